package postgres

import (
	"context"
	"fmt"

	"motoledger/pkg/numerator"
)

// Sequences implements numerator.Store on sys_sequences.
// Reserve joins the transaction in ctx, so strict numbering rolls back with it.
type Sequences struct {
	txManager *TxManager
}

// NewSequences creates a sequence store.
func NewSequences(txManager *TxManager) *Sequences {
	return &Sequences{txManager: txManager}
}

var _ numerator.Store = (*Sequences)(nil)

// Reserve implements numerator.Store.
func (s *Sequences) Reserve(ctx context.Context, key string, n int64) (int64, error) {
	var current int64
	err := s.txManager.GetQuerier(ctx).QueryRow(ctx, `
		INSERT INTO sys_sequences (key, current_val)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET current_val = sys_sequences.current_val + $2
		RETURNING current_val`, key, n).Scan(&current)
	if err != nil {
		return 0, fmt.Errorf("reserve sequence %s: %w", key, err)
	}
	return current, nil
}

// Set implements numerator.Store.
func (s *Sequences) Set(ctx context.Context, key string, value int64) error {
	_, err := s.txManager.GetQuerier(ctx).Exec(ctx, `
		INSERT INTO sys_sequences (key, current_val)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET current_val = $2`, key, value)
	if err != nil {
		return fmt.Errorf("set sequence %s: %w", key, err)
	}
	return nil
}
