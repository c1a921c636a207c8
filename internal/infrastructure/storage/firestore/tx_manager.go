package firestore

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"cloud.google.com/go/firestore"
	"go.opentelemetry.io/otel"
	otelcodes "go.opentelemetry.io/otel/codes"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"motoledger/internal/core/apperror"
	"motoledger/internal/core/tx"
)

var tracer = otel.Tracer("motoledger/firestore")

type staged struct {
	ref     *firestore.DocumentRef
	value   any
	version int
	create  bool
}

type txState struct {
	tx       *firestore.Transaction
	readOnly bool
	writes   map[string]staged
	order    []string
	// seen holds the version of every document read in this transaction.
	seen map[string]int
}

func newTxState(t *firestore.Transaction, readOnly bool) *txState {
	return &txState{
		tx:       t,
		readOnly: readOnly,
		writes:   make(map[string]staged),
		seen:     make(map[string]int),
	}
}

func (s *txState) snapshot() *txState {
	return &txState{
		writes: maps.Clone(s.writes),
		order:  slices.Clone(s.order),
		seen:   maps.Clone(s.seen),
	}
}

func (s *txState) restore(o *txState) {
	s.writes, s.order, s.seen = o.writes, o.order, o.seen
}

func (s *txState) see(snap *firestore.DocumentSnapshot) {
	v, err := snap.DataAt("version")
	if err != nil {
		return
	}
	if n, ok := v.(int64); ok {
		s.seen[snap.Ref.Path] = int(n)
	}
}

func (s *txState) stage(w staged) {
	key := w.ref.Path
	if prev, ok := s.writes[key]; ok {
		w.create = w.create || prev.create
	} else {
		s.order = append(s.order, key)
	}
	s.writes[key] = w
}

func (s *txState) flush() error {
	for _, key := range s.order {
		w := s.writes[key]
		var err error
		if w.create {
			err = s.tx.Create(w.ref, w.value)
		} else {
			err = s.tx.Set(w.ref, w.value)
		}
		if err != nil {
			return fmt.Errorf("write %s: %w", key, err)
		}
	}
	return nil
}

type txKey struct{}

func stateFrom(ctx context.Context) *txState {
	s, _ := ctx.Value(txKey{}).(*txState)
	return s
}

// TxManager implements tx.Manager over Firestore transactions.
//
// The SDK's own retry loop is disabled: an aborted transaction surfaces as
// CONCURRENT_MODIFICATION and the caller decides whether to retry.
type TxManager struct {
	client *Client
}

// NewTxManager creates a transaction manager.
func NewTxManager(client *Client) *TxManager {
	return &TxManager{client: client}
}

var _ tx.ReadOnlyManager = (*TxManager)(nil)

// RunInTransaction executes fn in a transaction. Nested calls join the outer
// transaction and discard only their own buffered writes on error.
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if s := stateFrom(ctx); s != nil {
		if s.readOnly {
			return apperror.NewInternal(errors.New("write transaction inside read-only transaction"))
		}
		save := s.snapshot()
		if err := fn(ctx); err != nil {
			s.restore(save)
			return err
		}
		return nil
	}
	return m.run(ctx, "firestore.RunInTransaction", false, fn, firestore.MaxAttempts(1))
}

// ReadOnly executes fn in a read-only transaction with a consistent snapshot.
func (m *TxManager) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	if stateFrom(ctx) != nil {
		return fn(ctx)
	}
	return m.run(ctx, "firestore.ReadOnly", true, fn, firestore.ReadOnly)
}

// InTransaction implements tx.Manager.
func (m *TxManager) InTransaction(ctx context.Context) bool {
	return stateFrom(ctx) != nil
}

func (m *TxManager) run(
	ctx context.Context,
	spanName string,
	readOnly bool,
	fn func(ctx context.Context) error,
	opts ...firestore.TransactionOption,
) error {
	ctx, span := tracer.Start(ctx, spanName)
	defer span.End()

	var hooks *tx.Hooks
	err := m.client.Client.RunTransaction(ctx, func(ctx context.Context, t *firestore.Transaction) error {
		s := newTxState(t, readOnly)
		txCtx := context.WithValue(ctx, txKey{}, s)
		txCtx, hooks = tx.WithHooks(txCtx)

		if err := fn(txCtx); err != nil {
			return err
		}
		return s.flush()
	}, opts...)
	if err != nil {
		err = translateError(err)
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return err
	}

	hooks.Run(ctx)
	return nil
}

// put stages value as version expected+1. expected == 0 creates the document.
// The stored version is compared with the one this transaction observed.
// Outside a transaction a single-write transaction is opened.
func (m *TxManager) put(ctx context.Context, ref *firestore.DocumentRef, expected int, value any) error {
	s := stateFrom(ctx)
	if s == nil {
		return m.RunInTransaction(ctx, func(ctx context.Context) error {
			return m.put(ctx, ref, expected, value)
		})
	}
	if s.readOnly {
		return apperror.NewInternal(errors.New("write in read-only transaction")).WithDetail("path", ref.Path)
	}

	cur, exists, err := s.currentVersion(ref)
	if err != nil {
		return err
	}
	entity := ref.Parent.ID
	switch {
	case expected == 0 && exists:
		return apperror.NewConflict(entity + " already exists").WithDetail("id", ref.ID)
	case expected != 0 && !exists:
		return apperror.NewNotFound(entity, ref.ID)
	case expected != 0 && cur != expected:
		return apperror.NewConcurrentModification(entity, ref.ID).
			WithDetail("expected_version", expected).
			WithDetail("current_version", cur)
	}

	s.stage(staged{ref: ref, value: value, version: expected + 1, create: expected == 0})
	return nil
}

// add stages an append-only document without reading it first.
// A duplicate ID fails at commit with CONFLICT.
func (m *TxManager) add(ctx context.Context, ref *firestore.DocumentRef, value any) error {
	s := stateFrom(ctx)
	if s == nil {
		return m.RunInTransaction(ctx, func(ctx context.Context) error {
			return m.add(ctx, ref, value)
		})
	}
	if s.readOnly {
		return apperror.NewInternal(errors.New("write in read-only transaction")).WithDetail("path", ref.Path)
	}
	s.stage(staged{ref: ref, value: value, version: 1, create: true})
	return nil
}

func (s *txState) currentVersion(ref *firestore.DocumentRef) (int, bool, error) {
	if w, ok := s.writes[ref.Path]; ok {
		return w.version, true, nil
	}
	if v, ok := s.seen[ref.Path]; ok {
		return v, true, nil
	}
	snap, err := s.tx.Get(ref)
	if status.Code(err) == codes.NotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, translateError(err)
	}
	s.see(snap)
	return s.seen[ref.Path], true, nil
}

// getDoc reads one document as seen by the transaction in ctx.
func getDoc[D any](ctx context.Context, ref *firestore.DocumentRef) (D, bool, error) {
	var doc D
	s := stateFrom(ctx)
	if s != nil {
		if w, ok := s.writes[ref.Path]; ok {
			return w.value.(D), true, nil
		}
	}

	var (
		snap *firestore.DocumentSnapshot
		err  error
	)
	if s != nil {
		snap, err = s.tx.Get(ref)
	} else {
		snap, err = ref.Get(ctx)
	}
	if status.Code(err) == codes.NotFound {
		return doc, false, nil
	}
	if err != nil {
		return doc, false, translateError(err)
	}
	if err := snap.DataTo(&doc); err != nil {
		return doc, false, fmt.Errorf("decode %s: %w", ref.Path, err)
	}
	if s != nil {
		s.see(snap)
	}
	return doc, true, nil
}

// queryDocs runs q and overlays the buffered writes of the transaction in ctx
// that belong to coll. keep is applied to every candidate, so it must repeat
// the query's filters.
func queryDocs[D any](ctx context.Context, q firestore.Query, coll *firestore.CollectionRef, keep func(D) bool) ([]D, error) {
	s := stateFrom(ctx)

	var it *firestore.DocumentIterator
	if s != nil {
		it = s.tx.Documents(q)
	} else {
		it = q.Documents(ctx)
	}
	defer it.Stop()

	byPath := make(map[string]D)
	var order []string
	for {
		snap, err := it.Next()
		if isDone(err) {
			break
		}
		if err != nil {
			return nil, translateError(err)
		}
		var doc D
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode %s: %w", snap.Ref.Path, err)
		}
		if s != nil {
			s.see(snap)
		}
		byPath[snap.Ref.Path] = doc
		order = append(order, snap.Ref.Path)
	}

	if s != nil {
		for _, key := range s.order {
			w := s.writes[key]
			if w.ref.Parent.Path != coll.Path {
				continue
			}
			if _, ok := byPath[key]; !ok {
				order = append(order, key)
			}
			byPath[key] = w.value.(D)
		}
	}

	out := make([]D, 0, len(order))
	for _, key := range order {
		if doc := byPath[key]; keep == nil || keep(doc) {
			out = append(out, doc)
		}
	}
	return out, nil
}

// hasStaged reports whether the transaction in ctx buffered writes to coll.
func hasStaged(ctx context.Context, coll *firestore.CollectionRef) bool {
	s := stateFrom(ctx)
	if s == nil {
		return false
	}
	for _, w := range s.writes {
		if w.ref.Parent.Path == coll.Path {
			return true
		}
	}
	return false
}

// translateError maps Firestore status codes to application errors.
func translateError(err error) error {
	if err == nil || apperror.IsAppError(err) {
		return err
	}
	switch status.Code(err) {
	case codes.Aborted:
		return apperror.NewConcurrentModification("transaction", codes.Aborted.String()).WithCause(err)
	case codes.AlreadyExists:
		return apperror.NewConflict("document already exists").WithCause(err)
	}
	return err
}

func isDone(err error) bool {
	return errors.Is(err, iterator.Done)
}
