package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"motoledger/internal/core/id"
	"motoledger/internal/domain/ledger"
)

// RedisProductCache implements ledger.SnapshotCache on Redis so every
// instance shares the same snapshots.
type RedisProductCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisProductCache creates the cache. Entries expire after ttl even
// without an invalidation.
func NewRedisProductCache(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisProductCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisProductCache{
		client: client,
		prefix: prefixOr(keyPrefix, "moto:") + "product:",
		ttl:    ttl,
	}
}

var _ ledger.SnapshotCache = (*RedisProductCache)(nil)

func (c *RedisProductCache) key(productID id.ID) string {
	return c.prefix + productID.String()
}

// productSnapshot is the stored value. A nil Product is a tombstone left by
// Invalidate so older snapshots are refused until it expires.
type productSnapshot struct {
	Version int             `json:"version"`
	Product *ledger.Product `json:"product,omitempty"`
}

// snapshotReader is satisfied by both the client and a WATCH transaction.
type snapshotReader interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// swapAttempts bounds WATCH retries when other writers touch the same key.
const swapAttempts = 5

func (c *RedisProductCache) load(ctx context.Context, r snapshotReader, key string) (*productSnapshot, error) {
	val, err := r.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get product snapshot: %w", err)
	}
	var snap productSnapshot
	if err := json.Unmarshal(val, &snap); err != nil {
		// written by an older build; treat as absent
		return nil, nil
	}
	return &snap, nil
}

// GetProduct implements ledger.SnapshotCache.
func (c *RedisProductCache) GetProduct(ctx context.Context, productID id.ID) (*ledger.Product, bool, error) {
	snap, err := c.load(ctx, c.client, c.key(productID))
	if err != nil {
		return nil, false, err
	}
	if snap == nil || snap.Product == nil {
		return nil, false, nil
	}
	return snap.Product, true, nil
}

// SetProduct implements ledger.SnapshotCache.
func (c *RedisProductCache) SetProduct(ctx context.Context, p *ledger.Product) error {
	payload, err := json.Marshal(productSnapshot{Version: p.Version, Product: p})
	if err != nil {
		return fmt.Errorf("marshal product snapshot: %w", err)
	}
	return c.swap(ctx, p.ID, payload, func(cur *productSnapshot) bool {
		if cur == nil {
			return true
		}
		return cur.Version < p.Version || (cur.Product == nil && cur.Version == p.Version)
	})
}

// Invalidate implements ledger.SnapshotCache.
func (c *RedisProductCache) Invalidate(ctx context.Context, productID id.ID, version int) error {
	payload, err := json.Marshal(productSnapshot{Version: version})
	if err != nil {
		return fmt.Errorf("marshal product tombstone: %w", err)
	}
	return c.swap(ctx, productID, payload, func(cur *productSnapshot) bool {
		return cur == nil || cur.Version <= version
	})
}

// swap writes payload when accept approves the current value, re-reading
// when another writer changed the key in between.
func (c *RedisProductCache) swap(ctx context.Context, productID id.ID, payload []byte, accept func(cur *productSnapshot) bool) error {
	key := c.key(productID)
	for range swapAttempts {
		err := c.client.Watch(ctx, func(tx *redis.Tx) error {
			cur, err := c.load(ctx, tx, key)
			if err != nil {
				return err
			}
			if !accept(cur) {
				return nil
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, payload, c.ttl)
				return nil
			})
			return err
		}, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("product snapshot %s: too much contention", productID)
}
