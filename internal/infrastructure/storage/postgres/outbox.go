package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"

	"motoledger/internal/core/id"
	"motoledger/internal/domain/ledger"
	"motoledger/internal/infrastructure/outbox"
)

// OutboxStore writes ledger events to sys_outbox inside the committing
// transaction and serves them back to the relay.
type OutboxStore struct {
	txManager *TxManager
}

// NewOutboxStore creates a new outbox store.
func NewOutboxStore(txManager *TxManager) *OutboxStore {
	return &OutboxStore{txManager: txManager}
}

var (
	_ ledger.Publisher = (*OutboxStore)(nil)
	_ outbox.Source    = (*OutboxStore)(nil)
)

// Publish implements ledger.Publisher. MUST be called inside a transaction.
func (s *OutboxStore) Publish(ctx context.Context, event ledger.Event) error {
	t := s.txManager.GetTx(ctx)
	if t == nil {
		return errors.New("outbox publish requires transaction context")
	}

	msg, err := outbox.NewMessage(event)
	if err != nil {
		return err
	}

	_, err = t.Exec(ctx, `
		INSERT INTO sys_outbox (id, aggregate_type, aggregate_id, event_type, payload, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload, msg.Status, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert outbox message: %w", err)
	}
	return nil
}

// FetchPending implements outbox.Source.
// Rows are locked with SKIP LOCKED so several workers can share the table
// when the call runs inside a transaction.
func (s *OutboxStore) FetchPending(ctx context.Context, limit int) ([]outbox.Message, error) {
	var messages []outbox.Message
	err := pgxscan.Select(ctx, s.txManager.GetQuerier(ctx), &messages, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, status,
		       retry_count, last_error, next_retry_at, created_at, published_at
		FROM sys_outbox
		WHERE status = $1
		  AND (next_retry_at IS NULL OR next_retry_at <= NOW())
		ORDER BY created_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED`, outbox.StatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch outbox messages: %w", err)
	}
	return messages, nil
}

// MarkPublished implements outbox.Source.
func (s *OutboxStore) MarkPublished(ctx context.Context, msgID id.ID, at time.Time) error {
	_, err := s.txManager.GetQuerier(ctx).Exec(ctx, `
		UPDATE sys_outbox
		SET status = $1, published_at = $2
		WHERE id = $3`, outbox.StatusPublished, at.UTC(), msgID)
	return err
}

// MarkFailed implements outbox.Source.
func (s *OutboxStore) MarkFailed(ctx context.Context, msgID id.ID, cause error, nextRetry time.Time) error {
	_, err := s.txManager.GetQuerier(ctx).Exec(ctx, `
		UPDATE sys_outbox
		SET retry_count = retry_count + 1,
		    last_error = $1,
		    next_retry_at = $2,
		    status = CASE WHEN retry_count + 1 >= $3 THEN $4 ELSE status END
		WHERE id = $5`,
		cause.Error(), nextRetry.UTC(), outbox.MaxRetries, outbox.StatusFailed, msgID)
	if err != nil {
		return fmt.Errorf("update failed message: %w", err)
	}
	return nil
}

// MoveToDLQ moves messages that ran out of retries to the dead letter table.
func (s *OutboxStore) MoveToDLQ(ctx context.Context) (int64, error) {
	result, err := s.txManager.GetQuerier(ctx).Exec(ctx, `
		WITH moved AS (
			DELETE FROM sys_outbox
			WHERE status = $1 AND retry_count >= $2
			RETURNING *
		)
		INSERT INTO sys_outbox_dlq
		SELECT *, NOW() AS failed_at, last_error AS failure_reason FROM moved`,
		outbox.StatusFailed, outbox.MaxRetries)
	if err != nil {
		return 0, fmt.Errorf("move to DLQ: %w", err)
	}
	return result.RowsAffected(), nil
}
