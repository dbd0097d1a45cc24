// Package batch splits a bulk reconcile run into bounded chunks whose
// progress survives between requests.
package batch

import (
	"context"
	"log/slog"
	"time"

	"github.com/pairsync/pairsync-server/internal/domain"
	"github.com/pairsync/pairsync-server/internal/errors"
	"github.com/pairsync/pairsync-server/internal/id"
	"github.com/pairsync/pairsync-server/internal/store"
)

// Defaults applied when the config leaves a value unset.
const (
	DefaultChunkSize = 100
	DefaultTTL       = time.Hour
)

// ProgressStore persists Progress records with an expiry.
type ProgressStore interface {
	SaveProgress(ctx context.Context, p *domain.Progress, ttl time.Duration) error
	GetProgress(ctx context.Context, batchID string) (*domain.Progress, error)
	DeleteProgress(ctx context.Context, batchID string) error
	ListProgress(ctx context.Context) ([]*domain.Progress, error)
}

// Runner reconciles one window of a pair's source collection.
type Runner interface {
	Count(ctx context.Context, pair domain.Pair, op domain.Operation) (int, error)
	Run(ctx context.Context, pair domain.Pair, op domain.Operation, offset, limit int) (domain.Result, error)
}

// Status is the externally visible state of a batch.
type Status struct {
	BatchID    string           `json:"batch_id"`
	Operation  domain.Operation `json:"operation"`
	Complete   bool             `json:"complete"`
	Processed  int              `json:"processed"`
	Total      int              `json:"total"`
	Synced     int              `json:"synced"`
	Errors     int              `json:"errors"`
	Percentage float64          `json:"percentage"`
}

// Started is returned by Init.
type Started struct {
	BatchID string `json:"batch_id"`
	Total   int    `json:"total"`
}

// Config tunes the coordinator.
type Config struct {
	ChunkSize int
	TTL       time.Duration
}

// Coordinator drives batches. Calls to Process for one batch must be
// sequential; concurrent batches over the same pair are independent.
type Coordinator struct {
	runner    Runner
	progress  ProgressStore
	chunkSize int
	ttl       time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(runner Runner, progress ProgressStore, cfg Config, logger *slog.Logger) *Coordinator {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		runner:    runner,
		progress:  progress,
		chunkSize: cfg.ChunkSize,
		ttl:       cfg.TTL,
		logger:    logger,
		now:       time.Now,
	}
}

// Init counts the source collection and stores a fresh Progress record.
func (c *Coordinator) Init(ctx context.Context, pair domain.Pair, op domain.Operation) (*Started, error) {
	if _, err := domain.ParseOperation(string(op)); err != nil {
		return nil, errors.Validation(err.Error())
	}
	total, err := c.runner.Count(ctx, pair, op)
	if err != nil {
		return nil, err
	}

	batchID, err := id.Batch()
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "generate batch id")
	}

	p := &domain.Progress{
		BatchID:   batchID,
		Type:      pair.Type,
		Taxonomy:  pair.Taxonomy,
		Operation: op,
		Total:     total,
		ChunkSize: c.chunkSize,
		StartedAt: c.now().UTC(),
	}
	if err := c.progress.SaveProgress(ctx, p, c.ttl); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "save progress")
	}

	c.logger.Info("Batch started", "batch_id", batchID, "pair", pair.Key(), "operation", op, "total", total)
	return &Started{BatchID: batchID, Total: total}, nil
}

// Process reconciles the next chunk, starting where the previous chunk
// stopped, and stores the advanced record.
func (c *Coordinator) Process(ctx context.Context, batchID string) (*Status, error) {
	p, err := c.load(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if p.Complete() {
		return statusOf(p), nil
	}

	res, err := c.runner.Run(ctx, p.Pair(), p.Operation, p.Processed, p.ChunkSize)
	if err != nil {
		return nil, err
	}
	p.Apply(res)
	if res.Examined() == 0 {
		// The source shrank below the recorded total.
		p.Processed = p.Total
	}

	if err := c.progress.SaveProgress(ctx, p, c.ttl); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "save progress")
	}

	st := statusOf(p)
	c.logger.Info("Batch chunk processed",
		"batch_id", batchID,
		"processed", st.Processed,
		"total", st.Total,
		"synced", res.Synced,
		"errors", res.Errors,
	)
	if st.Complete {
		c.logger.Info("Batch complete", "batch_id", batchID, "synced", p.Synced, "errors", p.Errors,
			"elapsed", c.now().Sub(p.StartedAt).Round(time.Millisecond))
	}
	return st, nil
}

// Progress reads the state of a batch without advancing it.
func (c *Coordinator) Progress(ctx context.Context, batchID string) (*Status, error) {
	p, err := c.load(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return statusOf(p), nil
}

// Cleanup discards a batch. Unknown ids are not an error.
func (c *Coordinator) Cleanup(ctx context.Context, batchID string) error {
	if err := c.progress.DeleteProgress(ctx, batchID); err != nil {
		return errors.Wrap(err, errors.CodeInternal, "delete progress")
	}
	c.logger.Debug("Batch cleaned up", "batch_id", batchID)
	return nil
}

// Active lists batches that have not yet expired.
func (c *Coordinator) Active(ctx context.Context) ([]*Status, error) {
	records, err := c.progress.ListProgress(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "list progress")
	}
	out := make([]*Status, 0, len(records))
	for _, p := range records {
		out = append(out, statusOf(p))
	}
	return out, nil
}

func (c *Coordinator) load(ctx context.Context, batchID string) (*domain.Progress, error) {
	if batchID == "" {
		return nil, errors.Validation("batch_id is required")
	}
	p, err := c.progress.GetProgress(ctx, batchID)
	if errors.Is(err, store.ErrBatchNotFound) {
		return nil, errors.NotFoundf("batch %s not found or expired", batchID)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "load progress")
	}
	return p, nil
}

func statusOf(p *domain.Progress) *Status {
	return &Status{
		BatchID:    p.BatchID,
		Operation:  p.Operation,
		Complete:   p.Complete(),
		Processed:  p.Processed,
		Total:      p.Total,
		Synced:     p.Synced,
		Errors:     p.Errors,
		Percentage: p.Percentage(),
	}
}
