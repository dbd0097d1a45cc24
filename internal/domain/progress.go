package domain

import (
	"math"
	"time"
)

// Progress is the server-side state of one batch run.
type Progress struct {
	BatchID   string    `json:"batch_id"`
	Type      string    `json:"type"`
	Taxonomy  string    `json:"taxonomy"`
	Operation Operation `json:"operation"`
	Total     int       `json:"total"`
	Processed int       `json:"processed"`
	Synced    int       `json:"synced"`
	Errors    int       `json:"errors"`
	ChunkSize int       `json:"chunk_size"`
	StartedAt time.Time `json:"started_at"`
}

// Pair returns the pair the batch runs over.
func (p *Progress) Pair() Pair {
	return Pair{Type: p.Type, Taxonomy: p.Taxonomy}
}

// Apply folds one reconciled page into the record.
func (p *Progress) Apply(r Result) {
	p.Synced += r.Synced
	p.Errors += r.Errors
	p.Processed += r.Examined()
}

// Complete reports whether every source item has been examined.
func (p *Progress) Complete() bool {
	return p.Processed >= p.Total
}

// Percentage is processed/total rounded to two decimals, 0 for an empty batch.
func (p *Progress) Percentage() float64 {
	if p.Total <= 0 {
		return 0
	}
	pct := float64(p.Processed) / float64(p.Total) * 100
	return math.Round(pct*100) / 100
}
