package outbox

import (
	"context"
	"fmt"
	"time"

	"motoledger/pkg/logger"
)

// Relay moves pending messages from a Source to a Handler.
type Relay struct {
	source    Source
	handler   Handler
	batchSize int
	now       func() time.Time
}

// NewRelay creates a relay.
func NewRelay(source Source, handler Handler, batchSize int) *Relay {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Relay{
		source:    source,
		handler:   handler,
		batchSize: batchSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ProcessBatch fetches and delivers one batch. Returns the number delivered.
func (r *Relay) ProcessBatch(ctx context.Context) (int, error) {
	messages, err := r.source.FetchPending(ctx, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch outbox messages: %w", err)
	}

	processed := 0
	for i := range messages {
		msg := &messages[i]
		if err := r.handler.Handle(ctx, msg); err != nil {
			logger.Warn(ctx, "outbox delivery failed",
				"message_id", msg.ID,
				"event_type", msg.EventType,
				"retry", msg.RetryCount,
				"error", err,
			)
			if markErr := r.source.MarkFailed(ctx, msg.ID, err, NextRetry(msg.RetryCount, r.now())); markErr != nil {
				return processed, fmt.Errorf("mark failed: %w", markErr)
			}
			continue
		}
		if err := r.source.MarkPublished(ctx, msg.ID, r.now()); err != nil {
			return processed, fmt.Errorf("mark published: %w", err)
		}
		processed++
	}
	return processed, nil
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		n, err := r.ProcessBatch(ctx)
		if err != nil {
			logger.Error(ctx, "outbox relay batch failed", "error", err)
		} else if n > 0 {
			logger.Debug(ctx, "outbox relay delivered", "count", n)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
