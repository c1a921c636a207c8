package memory

import (
	"context"
	"errors"
	"slices"
	"time"

	"motoledger/internal/core/apperror"
	"motoledger/internal/core/id"
	"motoledger/internal/domain/ledger"
	"motoledger/internal/infrastructure/outbox"
	"motoledger/pkg/numerator"
)

// Auditor implements ledger.Auditor. Entries join the transaction in ctx.
type Auditor struct {
	store *Store
}

// NewAuditor creates an auditor.
func NewAuditor(store *Store) *Auditor { return &Auditor{store: store} }

var _ ledger.Auditor = (*Auditor)(nil)

// Record implements ledger.Auditor.
func (a *Auditor) Record(ctx context.Context, entry ledger.AuditEntry) error {
	if t := txnFrom(ctx); t != nil {
		t.audit = append(t.audit, entry)
		return nil
	}
	a.store.mu.Lock()
	a.store.audit = append(a.store.audit, entry)
	a.store.mu.Unlock()
	return nil
}

// History implements ledger.Auditor.
func (a *Auditor) History(ctx context.Context, entityType string, entityID id.ID, limit int) ([]ledger.AuditEntry, error) {
	a.store.mu.RLock()
	defer a.store.mu.RUnlock()

	var out []ledger.AuditEntry
	for i := len(a.store.audit) - 1; i >= 0 && len(out) < limit; i-- {
		e := a.store.audit[i]
		if e.EntityType == entityType && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

// Outbox implements ledger.Publisher and outbox.Source.
type Outbox struct {
	store *Store
}

// NewOutbox creates an outbox.
func NewOutbox(store *Store) *Outbox { return &Outbox{store: store} }

var (
	_ ledger.Publisher = (*Outbox)(nil)
	_ outbox.Source    = (*Outbox)(nil)
)

// Publish implements ledger.Publisher. It requires a transaction.
func (o *Outbox) Publish(ctx context.Context, event ledger.Event) error {
	t := txnFrom(ctx)
	if t == nil {
		return errors.New("outbox publish requires transaction context")
	}
	msg, err := outbox.NewMessage(event)
	if err != nil {
		return err
	}
	t.outbox = append(t.outbox, msg)
	return nil
}

// FetchPending implements outbox.Source.
func (o *Outbox) FetchPending(ctx context.Context, limit int) ([]outbox.Message, error) {
	o.store.mu.RLock()
	defer o.store.mu.RUnlock()

	now := time.Now()
	var out []outbox.Message
	for _, m := range o.store.outbox {
		if len(out) >= limit {
			break
		}
		if m.Status == outbox.StatusPending && (m.NextRetryAt == nil || !m.NextRetryAt.After(now)) {
			out = append(out, m)
		}
	}
	return out, nil
}

// MarkPublished implements outbox.Source.
func (o *Outbox) MarkPublished(ctx context.Context, msgID id.ID, at time.Time) error {
	return o.update(msgID, func(m *outbox.Message) {
		m.Status = outbox.StatusPublished
		m.PublishedAt = &at
	})
}

// MarkFailed implements outbox.Source.
func (o *Outbox) MarkFailed(ctx context.Context, msgID id.ID, cause error, nextRetry time.Time) error {
	return o.update(msgID, func(m *outbox.Message) {
		msg := cause.Error()
		m.RetryCount++
		m.LastError = &msg
		m.NextRetryAt = &nextRetry
		if m.RetryCount >= outbox.MaxRetries {
			m.Status = outbox.StatusFailed
		}
	})
}

// Messages returns a copy of every stored message.
func (o *Outbox) Messages() []outbox.Message {
	o.store.mu.RLock()
	defer o.store.mu.RUnlock()
	return slices.Clone(o.store.outbox)
}

func (o *Outbox) update(msgID id.ID, fn func(m *outbox.Message)) error {
	o.store.mu.Lock()
	defer o.store.mu.Unlock()
	for i := range o.store.outbox {
		if o.store.outbox[i].ID == msgID {
			fn(&o.store.outbox[i])
			return nil
		}
	}
	return apperror.NewNotFound("outbox message", msgID.String())
}

// Sequences implements numerator.Store.
type Sequences struct {
	store *Store
}

// NewSequences creates a sequence store.
func NewSequences(store *Store) *Sequences { return &Sequences{store: store} }

var _ numerator.Store = (*Sequences)(nil)

// Reserve implements numerator.Store. Sequences never join transactions.
func (s *Sequences) Reserve(ctx context.Context, key string, n int64) (int64, error) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	s.store.seqs[key] += n
	return s.store.seqs[key], nil
}

// Set implements numerator.Store.
func (s *Sequences) Set(ctx context.Context, key string, value int64) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	s.store.seqs[key] = value
	return nil
}
