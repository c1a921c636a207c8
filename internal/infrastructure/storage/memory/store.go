// Package memory is an in-process storage backend for development and tests.
//
// Transactions are optimistic: writes are staged per transaction and applied
// atomically at commit, which fails with CONCURRENT_MODIFICATION when another
// transaction committed a newer version of any written row first.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"motoledger/internal/core/apperror"
	"motoledger/internal/core/id"
	"motoledger/internal/core/tx"
	"motoledger/internal/domain/ledger"
	"motoledger/internal/infrastructure/outbox"
)

type row struct {
	version int
	value   any
}

type rowKey struct {
	table string
	id    id.ID
}

type staged struct {
	// base is the committed version the transaction built on; 0 means absent.
	base int
	row  row
}

// Store holds all tables.
type Store struct {
	mu     sync.RWMutex
	tables map[string]map[id.ID]row
	seqs   map[string]int64
	audit  []ledger.AuditEntry
	outbox []outbox.Message
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		tables: make(map[string]map[id.ID]row),
		seqs:   make(map[string]int64),
	}
}

type txnKey struct{}

type txn struct {
	writes map[rowKey]staged
	order  []rowKey
	audit  []ledger.AuditEntry
	outbox []outbox.Message
}

func newTxn() *txn {
	return &txn{writes: make(map[rowKey]staged)}
}

func (t *txn) snapshot() *txn {
	return &txn{
		writes: maps.Clone(t.writes),
		order:  slices.Clone(t.order),
		audit:  slices.Clone(t.audit),
		outbox: slices.Clone(t.outbox),
	}
}

func (t *txn) restore(s *txn) {
	t.writes, t.order, t.audit, t.outbox = s.writes, s.order, s.audit, s.outbox
}

func txnFrom(ctx context.Context) *txn {
	t, _ := ctx.Value(txnKey{}).(*txn)
	return t
}

// get reads a row as seen by the transaction in ctx.
func (s *Store) get(ctx context.Context, table string, rowID id.ID) (row, bool) {
	if t := txnFrom(ctx); t != nil {
		if w, ok := t.writes[rowKey{table, rowID}]; ok {
			return w.row, true
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.tables[table][rowID]
	return r, ok
}

// scan visits every row of a table as seen by the transaction in ctx.
func (s *Store) scan(ctx context.Context, table string, fn func(rowID id.ID, r row)) {
	s.mu.RLock()
	rows := maps.Clone(s.tables[table])
	s.mu.RUnlock()
	if rows == nil {
		rows = make(map[id.ID]row)
	}

	if t := txnFrom(ctx); t != nil {
		for k, w := range t.writes {
			if k.table == table {
				rows[k.id] = w.row
			}
		}
	}
	for rowID, r := range rows {
		fn(rowID, r)
	}
}

// put writes value at version expected+1. expected == 0 inserts.
func (s *Store) put(ctx context.Context, table string, rowID id.ID, expected int, value any) error {
	next := row{version: expected + 1, value: value}
	key := rowKey{table, rowID}

	t := txnFrom(ctx)
	if t == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		cur, ok := s.tables[table][rowID]
		if err := checkVersion(table, rowID, expected, cur, ok); err != nil {
			return err
		}
		s.tableLocked(table)[rowID] = next
		return nil
	}

	cur, ok := s.get(ctx, table, rowID)
	if err := checkVersion(table, rowID, expected, cur, ok); err != nil {
		return err
	}

	w, seen := t.writes[key]
	if !seen {
		// cur was the committed row and matched expected; commit must still see it.
		w.base = expected
		t.order = append(t.order, key)
	}
	w.row = next
	t.writes[key] = w
	return nil
}

func checkVersion(table string, rowID id.ID, expected int, cur row, exists bool) error {
	switch {
	case expected == 0 && exists:
		return apperror.NewConflict(table + " already exists").WithDetail("id", rowID.String())
	case expected != 0 && !exists:
		return apperror.NewNotFound(table, rowID.String())
	case expected != 0 && cur.version != expected:
		return apperror.NewConcurrentModification(table, rowID.String()).
			WithDetail("expected_version", expected).
			WithDetail("current_version", cur.version)
	}
	return nil
}

func (s *Store) tableLocked(table string) map[id.ID]row {
	tbl, ok := s.tables[table]
	if !ok {
		tbl = make(map[id.ID]row)
		s.tables[table] = tbl
	}
	return tbl
}

// commit validates every staged base version and applies all writes, or none.
func (s *Store) commit(t *txn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range t.order {
		w := t.writes[key]
		cur, ok := s.tables[key.table][key.id]
		committed := 0
		if ok {
			committed = cur.version
		}
		if committed != w.base {
			return apperror.NewConcurrentModification(key.table, key.id.String()).
				WithDetail("expected_version", w.base).
				WithDetail("current_version", committed)
		}
	}

	for _, key := range t.order {
		s.tableLocked(key.table)[key.id] = t.writes[key].row
	}
	s.audit = append(s.audit, t.audit...)
	s.outbox = append(s.outbox, t.outbox...)
	return nil
}

// TxManager implements tx.Manager over Store.
type TxManager struct {
	store *Store
}

// NewTxManager creates a transaction manager.
func NewTxManager(store *Store) *TxManager {
	return &TxManager{store: store}
}

var _ tx.Manager = (*TxManager)(nil)

// RunInTransaction executes fn in a transaction. Nested calls reuse the
// outer transaction and roll back only their own writes on error.
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if t := txnFrom(ctx); t != nil {
		save := t.snapshot()
		if err := fn(ctx); err != nil {
			t.restore(save)
			return err
		}
		return nil
	}

	t := newTxn()
	txCtx := context.WithValue(ctx, txnKey{}, t)
	txCtx, hooks := tx.WithHooks(txCtx)

	if err := fn(txCtx); err != nil {
		return err
	}
	if err := m.store.commit(t); err != nil {
		return err
	}

	hooks.Run(ctx)
	return nil
}

// InTransaction implements tx.Manager.
func (m *TxManager) InTransaction(ctx context.Context) bool {
	return txnFrom(ctx) != nil
}
