// Package outbox relays ledger events stored next to the data change to a broker.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"motoledger/internal/core/id"
	"motoledger/internal/domain/ledger"
)

// Status represents the state of an outbox message.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPublished Status = "published"
	StatusFailed    Status = "failed"
)

// MaxRetries before a message is parked as failed.
const MaxRetries = 5

// Message is one stored event.
type Message struct {
	ID            id.ID      `db:"id" firestore:"-"`
	AggregateType string     `db:"aggregate_type" firestore:"aggregateType"`
	AggregateID   id.ID      `db:"aggregate_id" firestore:"-"`
	EventType     string     `db:"event_type" firestore:"eventType"`
	Payload       []byte     `db:"payload" firestore:"payload"`
	Status        Status     `db:"status" firestore:"status"`
	RetryCount    int        `db:"retry_count" firestore:"retryCount"`
	LastError     *string    `db:"last_error" firestore:"lastError"`
	NextRetryAt   *time.Time `db:"next_retry_at" firestore:"nextRetryAt"`
	CreatedAt     time.Time  `db:"created_at" firestore:"createdAt"`
	PublishedAt   *time.Time `db:"published_at" firestore:"publishedAt"`
}

// NewMessage serializes a ledger event.
func NewMessage(event ledger.Event) (Message, error) {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal event payload: %w", err)
	}
	createdAt := event.OccurredAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return Message{
		ID:            id.New(),
		AggregateType: ledger.AggregateProduct,
		AggregateID:   event.AggregateID,
		EventType:     event.Type,
		Payload:       payload,
		Status:        StatusPending,
		CreatedAt:     createdAt,
	}, nil
}

// NextRetry is the linear backoff applied after a failed delivery.
func NextRetry(retryCount int, now time.Time) time.Time {
	return now.Add(time.Duration(retryCount+1) * time.Minute)
}

// Source is the storage side of the relay. Each backend provides one.
type Source interface {
	// FetchPending returns due pending messages, oldest first.
	FetchPending(ctx context.Context, limit int) ([]Message, error)
	MarkPublished(ctx context.Context, msgID id.ID, at time.Time) error
	// MarkFailed records a delivery error; the message is parked once it ran out of retries.
	MarkFailed(ctx context.Context, msgID id.ID, cause error, nextRetry time.Time) error
}

// Handler delivers a message.
type Handler interface {
	Handle(ctx context.Context, msg *Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg *Message) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, msg *Message) error { return f(ctx, msg) }
