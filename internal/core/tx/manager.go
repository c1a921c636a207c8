// Package tx defines the transaction contract the ledger and document
// services run on. Backends live in infrastructure/storage/{postgres,firestore,memory}.
package tx

import (
	"context"
)

// Manager opens transactions carried through ctx.
type Manager interface {
	// RunInTransaction commits when fn returns nil and rolls back otherwise.
	// A transaction already open in ctx is joined, not nested.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// InTransaction reports whether ctx already carries an open transaction.
	InTransaction(ctx context.Context) bool
}

// ReadOnlyManager is implemented by backends that can pin a consistent
// read-only snapshot.
type ReadOnlyManager interface {
	Manager
	ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error
}

// ReadOnly runs fn over one consistent snapshot. Managers without snapshot
// support fall back to a regular transaction.
func ReadOnly(ctx context.Context, m Manager, fn func(ctx context.Context) error) error {
	if ro, ok := m.(ReadOnlyManager); ok {
		return ro.ReadOnly(ctx, fn)
	}
	return m.RunInTransaction(ctx, fn)
}
