// Package numerator holds the contract for document numbering.
package numerator

import (
	"context"
	"time"
)

// Generator issues sequential document numbers such as IN-2026-00001.
type Generator interface {
	// GetNextNumber returns the next formatted number for cfg in period.
	GetNextNumber(ctx context.Context, cfg Config, opts *Options, period time.Time) (string, error)

	// SetNextNumber moves a sequence (imports of legacy documents).
	SetNextNumber(ctx context.Context, cfg Config, period time.Time, value int64) error
}
