package store

import (
	"context"
	"encoding/json/v2"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/pairsync/pairsync-server/internal/domain"
)

// Store wraps a Badger database holding batch progress records.
// Records carry a TTL so abandoned batches expire on their own.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// New opens the progress store at path.
func New(path string, logger *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	opts.SyncWrites = true
	opts.CompactL0OnClose = true
	return open(opts, logger)
}

// NewInMemory opens a progress store that lives only as long as the process.
func NewInMemory(logger *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return open(opts, logger)
}

func open(opts badger.Options, logger *slog.Logger) (*Store, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}
	if logger != nil {
		logger.Info("Progress store opened", "path", opts.Dir, "in_memory", opts.InMemory)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close gracefully closes the database.
func (s *Store) Close() error {
	if s.logger != nil {
		s.logger.Info("Closing progress store")
	}
	return s.db.Close()
}

// SaveProgress writes the record and resets its expiry to ttl from now.
func (s *Store) SaveProgress(ctx context.Context, p *domain.Progress, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(progressKey(p.BatchID), data).WithTTL(ttl))
	})
}

// GetProgress returns ErrBatchNotFound for unknown or expired batches.
func (s *Store) GetProgress(ctx context.Context, batchID string) (*domain.Progress, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var p domain.Progress
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(progressKey(batchID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &p)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrBatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get progress %s: %w", batchID, err)
	}
	return &p, nil
}

// DeleteProgress removes the record. Deleting an absent record is not an error.
func (s *Store) DeleteProgress(ctx context.Context, batchID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(progressKey(batchID))
	})
}

// ListProgress returns every live progress record.
func (s *Store) ListProgress(ctx context.Context) ([]*domain.Progress, error) {
	var out []*domain.Progress
	prefix := []byte(progressPrefix)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var p domain.Progress
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &p)
			}); err != nil {
				return err
			}
			out = append(out, &p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	return out, nil
}

// Ping checks that the database is open and readable.
func (s *Store) Ping(_ context.Context) error {
	if s.db.IsClosed() {
		return errors.New("progress store is closed")
	}
	return s.db.View(func(*badger.Txn) error { return nil })
}
