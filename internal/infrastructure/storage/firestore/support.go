package firestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"motoledger/internal/core/apperror"
	"motoledger/internal/core/id"
	"motoledger/internal/domain/ledger"
	"motoledger/internal/infrastructure/outbox"
	"motoledger/pkg/numerator"
)

const (
	collAudit     = "audit"
	collOutbox    = "outbox"
	collSequences = "sequences"
)

// --- audit ---

type auditDoc struct {
	EntityType string    `firestore:"entityType"`
	EntityID   string    `firestore:"entityId"`
	Action     string    `firestore:"action"`
	Operator   string    `firestore:"operator"`
	Changes    []byte    `firestore:"changes"`
	At         time.Time `firestore:"at"`
}

// Auditor implements ledger.Auditor. Entries join the transaction in ctx.
type Auditor struct {
	client *Client
	txm    *TxManager
}

// NewAuditor creates an auditor.
func NewAuditor(client *Client, txm *TxManager) *Auditor {
	return &Auditor{client: client, txm: txm}
}

var _ ledger.Auditor = (*Auditor)(nil)

// Record implements ledger.Auditor.
func (a *Auditor) Record(ctx context.Context, entry ledger.AuditEntry) error {
	changes, err := json.Marshal(entry.Changes)
	if err != nil {
		return fmt.Errorf("marshal audit changes: %w", err)
	}
	return a.txm.add(ctx, a.client.Collection(collAudit).Doc(id.New().String()), auditDoc{
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID.String(),
		Action:     entry.Action,
		Operator:   entry.Operator,
		Changes:    changes,
		At:         entry.At,
	})
}

// History implements ledger.Auditor.
func (a *Auditor) History(ctx context.Context, entityType string, entityID id.ID, limit int) ([]ledger.AuditEntry, error) {
	q := a.client.Collection(collAudit).
		Where("entityType", "==", entityType).
		Where("entityId", "==", entityID.String()).
		OrderBy("at", firestore.Desc).
		Limit(limit)
	docs, err := queryDocs[auditDoc](ctx, q, a.client.Collection(collAudit), nil)
	if err != nil {
		return nil, err
	}

	out := make([]ledger.AuditEntry, 0, len(docs))
	for _, d := range docs {
		if d.EntityType != entityType || d.EntityID != entityID.String() {
			continue
		}
		e := ledger.AuditEntry{
			EntityType: d.EntityType,
			EntityID:   entityID,
			Action:     d.Action,
			Operator:   d.Operator,
			At:         d.At,
		}
		if err := json.Unmarshal(d.Changes, &e.Changes); err != nil {
			return nil, fmt.Errorf("decode audit changes: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

// --- outbox ---

type outboxDoc struct {
	outbox.Message
	ID          string `firestore:"id"`
	AggregateID string `firestore:"aggregateId"`
}

func (d outboxDoc) toMessage() (outbox.Message, error) {
	msg := d.Message
	var err error
	if msg.ID, err = id.Parse(d.ID); err != nil {
		return msg, fmt.Errorf("outbox id %q: %w", d.ID, err)
	}
	if msg.AggregateID, err = id.Parse(d.AggregateID); err != nil {
		return msg, fmt.Errorf("outbox %s aggregate id: %w", d.ID, err)
	}
	return msg, nil
}

// Outbox implements ledger.Publisher and outbox.Source.
type Outbox struct {
	client *Client
	txm    *TxManager
}

// NewOutbox creates an outbox.
func NewOutbox(client *Client, txm *TxManager) *Outbox {
	return &Outbox{client: client, txm: txm}
}

var (
	_ ledger.Publisher = (*Outbox)(nil)
	_ outbox.Source    = (*Outbox)(nil)
)

func (o *Outbox) col() *firestore.CollectionRef { return o.client.Collection(collOutbox) }

// Publish implements ledger.Publisher. It requires a transaction.
func (o *Outbox) Publish(ctx context.Context, event ledger.Event) error {
	if !o.txm.InTransaction(ctx) {
		return errors.New("outbox publish requires transaction context")
	}
	msg, err := outbox.NewMessage(event)
	if err != nil {
		return err
	}
	return o.txm.add(ctx, o.col().Doc(msg.ID.String()), outboxDoc{
		Message:     msg,
		ID:          msg.ID.String(),
		AggregateID: msg.AggregateID.String(),
	})
}

// FetchPending implements outbox.Source.
func (o *Outbox) FetchPending(ctx context.Context, limit int) ([]outbox.Message, error) {
	q := o.col().
		Where("status", "==", string(outbox.StatusPending)).
		OrderBy("createdAt", firestore.Asc).
		Limit(limit)
	docs, err := queryDocs[outboxDoc](ctx, q, o.col(), nil)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	out := make([]outbox.Message, 0, len(docs))
	for _, d := range docs {
		if d.NextRetryAt != nil && d.NextRetryAt.After(now) {
			continue
		}
		msg, err := d.toMessage()
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}

// MarkPublished implements outbox.Source.
func (o *Outbox) MarkPublished(ctx context.Context, msgID id.ID, at time.Time) error {
	_, err := o.col().Doc(msgID.String()).Update(ctx, []firestore.Update{
		{Path: "status", Value: string(outbox.StatusPublished)},
		{Path: "publishedAt", Value: at},
	})
	if status.Code(err) == codes.NotFound {
		return apperror.NewNotFound("outbox message", msgID.String())
	}
	return err
}

// MarkFailed implements outbox.Source.
func (o *Outbox) MarkFailed(ctx context.Context, msgID id.ID, cause error, nextRetry time.Time) error {
	ref := o.col().Doc(msgID.String())
	return o.client.Client.RunTransaction(ctx, func(ctx context.Context, t *firestore.Transaction) error {
		snap, err := t.Get(ref)
		if status.Code(err) == codes.NotFound {
			return apperror.NewNotFound("outbox message", msgID.String())
		}
		if err != nil {
			return err
		}
		var d outboxDoc
		if err := snap.DataTo(&d); err != nil {
			return fmt.Errorf("decode outbox message: %w", err)
		}

		retries := d.RetryCount + 1
		next := outbox.StatusPending
		if retries >= outbox.MaxRetries {
			next = outbox.StatusFailed
		}
		return t.Update(ref, []firestore.Update{
			{Path: "retryCount", Value: retries},
			{Path: "lastError", Value: cause.Error()},
			{Path: "nextRetryAt", Value: nextRetry},
			{Path: "status", Value: string(next)},
		})
	})
}

// --- sequences ---

type sequenceDoc struct {
	Value int64 `firestore:"value"`
}

// Sequences implements numerator.Store with one document per counter.
type Sequences struct {
	client *Client
}

// NewSequences creates a sequence store.
func NewSequences(client *Client) *Sequences { return &Sequences{client: client} }

var _ numerator.Store = (*Sequences)(nil)

// Reserve implements numerator.Store. It runs its own transaction and must
// not be called inside another one.
func (s *Sequences) Reserve(ctx context.Context, key string, n int64) (int64, error) {
	if stateFrom(ctx) != nil {
		return 0, errors.New("sequence reservation inside a transaction")
	}
	ref := s.client.Collection(collSequences).Doc(key)

	var value int64
	err := s.client.Client.RunTransaction(ctx, func(ctx context.Context, t *firestore.Transaction) error {
		var cur sequenceDoc
		snap, err := t.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
		case err != nil:
			return err
		default:
			if err := snap.DataTo(&cur); err != nil {
				return fmt.Errorf("decode sequence %s: %w", key, err)
			}
		}
		value = cur.Value + n
		return t.Set(ref, sequenceDoc{Value: value})
	})
	if err != nil {
		return 0, fmt.Errorf("reserve sequence %s: %w", key, err)
	}
	return value, nil
}

// Set implements numerator.Store.
func (s *Sequences) Set(ctx context.Context, key string, value int64) error {
	_, err := s.client.Collection(collSequences).Doc(key).Set(ctx, sequenceDoc{Value: value})
	if err != nil {
		return fmt.Errorf("set sequence %s: %w", key, err)
	}
	return nil
}
