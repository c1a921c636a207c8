package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"motoledger/internal/core/apperror"
	"motoledger/internal/core/idempotency"
)

// staleAfter is how long a pending key may sit before another request reclaims it.
const staleAfter = time.Minute

type idempotencyRecord struct {
	UserID      string             `json:"userId"`
	Operation   string             `json:"operation"`
	RequestHash string             `json:"requestHash"`
	Status      idempotency.Status `json:"status"`
	StatusCode  int                `json:"statusCode,omitempty"`
	ContentType string             `json:"contentType,omitempty"`
	Body        []byte             `json:"body,omitempty"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

// RedisIdempotencyStore implements idempotency.Store on Redis. It serves the
// Firestore and memory drivers, which have no SQL table for keys.
type RedisIdempotencyStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisIdempotencyStore creates the store. Keys expire after ttl.
func NewRedisIdempotencyStore(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisIdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisIdempotencyStore{
		client: client,
		prefix: prefixOr(keyPrefix, "moto:") + "idempotency:",
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

var _ idempotency.Store = (*RedisIdempotencyStore)(nil)

// AcquireKey implements idempotency.Store. SETNX makes the first request the owner.
func (s *RedisIdempotencyStore) AcquireKey(ctx context.Context, key, userID, operation, requestHash string) (*idempotency.Replay, error) {
	now := s.now()
	fresh := idempotencyRecord{
		UserID:      userID,
		Operation:   operation,
		RequestHash: requestHash,
		Status:      idempotency.StatusPending,
		UpdatedAt:   now,
	}
	payload, err := json.Marshal(fresh)
	if err != nil {
		return nil, fmt.Errorf("marshal idempotency record: %w", err)
	}

	rkey := s.prefix + key
	ok, err := s.client.SetNX(ctx, rkey, payload, s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire idempotency key: %w", err)
	}
	if ok {
		return nil, nil
	}

	var replay *idempotency.Replay
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		rec, err := s.load(ctx, tx, rkey)
		if err != nil {
			return err
		}
		if rec.UserID != userID || rec.Operation != operation || rec.RequestHash != requestHash {
			return apperror.NewIdempotencyMismatch(key).
				WithDetail("stored_operation", rec.Operation).
				WithDetail("request_operation", operation)
		}

		switch rec.Status {
		case idempotency.StatusSuccess, idempotency.StatusFailed:
			replay = &idempotency.Replay{
				StatusCode:  idempotency.NormalizeStatus(rec.StatusCode),
				ContentType: idempotency.NormalizeContentType(rec.ContentType),
				Body:        rec.Body,
			}
			return nil
		}
		if now.Sub(rec.UpdatedAt) <= staleAfter {
			return apperror.NewIdempotencyConflict(key)
		}

		// The previous holder most likely crashed; reclaim the key.
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, rkey, payload, s.ttl)
			return nil
		})
		return err
	}, rkey)
	if errors.Is(err, redis.TxFailedErr) {
		return nil, apperror.NewIdempotencyConflict(key)
	}
	if err != nil {
		return nil, err
	}
	return replay, nil
}

// CompleteKey implements idempotency.Store.
func (s *RedisIdempotencyStore) CompleteKey(ctx context.Context, key string, statusCode int, contentType string, response any) error {
	return s.finish(ctx, key, idempotency.StatusSuccess, statusCode, contentType, response)
}

// FailKey implements idempotency.Store.
func (s *RedisIdempotencyStore) FailKey(ctx context.Context, key string, statusCode int, contentType string, response any) error {
	return s.finish(ctx, key, idempotency.StatusFailed, statusCode, contentType, response)
}

// ReleaseKey implements idempotency.Store.
func (s *RedisIdempotencyStore) ReleaseKey(ctx context.Context, key string) error {
	rkey := s.prefix + key
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		rec, err := s.load(ctx, tx, rkey)
		if err != nil {
			return err
		}
		if rec.Status != idempotency.StatusPending {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, rkey)
			return nil
		})
		return err
	}, rkey)
	if apperror.IsNotFound(err) {
		return nil
	}
	return err
}

func (s *RedisIdempotencyStore) finish(ctx context.Context, key string, status idempotency.Status, statusCode int, contentType string, response any) error {
	body, err := responseBytes(response)
	if err != nil {
		return err
	}

	rkey := s.prefix + key
	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		rec, err := s.load(ctx, tx, rkey)
		if err != nil {
			return err
		}
		rec.Status = status
		rec.StatusCode = statusCode
		rec.ContentType = contentType
		rec.Body = body
		rec.UpdatedAt = s.now()

		payload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal idempotency record: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetArgs(ctx, rkey, payload, redis.SetArgs{KeepTTL: true})
			return nil
		})
		return err
	}, rkey)
}

func (s *RedisIdempotencyStore) load(ctx context.Context, tx *redis.Tx, rkey string) (idempotencyRecord, error) {
	var rec idempotencyRecord
	raw, err := tx.Get(ctx, rkey).Bytes()
	if errors.Is(err, redis.Nil) {
		return rec, apperror.NewNotFound("idempotency key", rkey)
	}
	if err != nil {
		return rec, fmt.Errorf("read idempotency key: %w", err)
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, fmt.Errorf("decode idempotency record: %w", err)
	}
	return rec, nil
}

// responseBytes keeps already encoded bodies as they are.
func responseBytes(response any) ([]byte, error) {
	switch v := response.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	}
	b, err := json.Marshal(response)
	if err != nil {
		return nil, fmt.Errorf("marshal response: %w", err)
	}
	return b, nil
}
