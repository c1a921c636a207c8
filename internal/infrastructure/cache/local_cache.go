package cache

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"motoledger/internal/core/id"
	"motoledger/internal/domain/ledger"
	"motoledger/pkg/logger"
)

// productChannel carries "<product id>:<version>" invalidations between instances.
const productChannel = "product_changed"

// localEntry is a snapshot, or a tombstone (product == nil) left by an
// invalidation so older snapshots are refused until it expires.
type localEntry struct {
	product   *ledger.Product
	version   int
	expiresAt time.Time
}

// LocalProductCache is an in-process ledger.SnapshotCache. With a pool it
// propagates invalidations to other instances through PostgreSQL
// LISTEN/NOTIFY; without one it only serves a single instance.
type LocalProductCache struct {
	pool *pgxpool.Pool
	ttl  time.Duration
	now  func() time.Time

	mu      sync.RWMutex
	entries map[id.ID]localEntry

	// Lifecycle
	lifecycleMu sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	started     bool
}

// NewLocalProductCache creates the cache. pool may be nil.
func NewLocalProductCache(pool *pgxpool.Pool, ttl time.Duration) *LocalProductCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &LocalProductCache{
		pool:    pool,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[id.ID]localEntry),
	}
}

var _ ledger.SnapshotCache = (*LocalProductCache)(nil)

// Start begins listening for invalidations from other instances.
func (c *LocalProductCache) Start(ctx context.Context) {
	if c.pool == nil {
		return
	}

	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()
	if c.started {
		return
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.started = true

	c.wg.Add(1)
	go c.listenLoop()
	logger.Info(c.ctx, "product cache listener started", "channel", productChannel)
}

// Stop gracefully stops the listener.
func (c *LocalProductCache) Stop() {
	c.lifecycleMu.Lock()
	if !c.started {
		c.lifecycleMu.Unlock()
		return
	}
	cancel := c.cancel
	c.started = false
	c.cancel = nil
	c.lifecycleMu.Unlock()

	cancel()
	c.wg.Wait()
}

// GetProduct implements ledger.SnapshotCache.
func (c *LocalProductCache) GetProduct(ctx context.Context, productID id.ID) (*ledger.Product, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[productID]
	c.mu.RUnlock()
	if !ok || e.product == nil || c.now().After(e.expiresAt) {
		return nil, false, nil
	}
	p := *e.product
	return &p, true, nil
}

// SetProduct implements ledger.SnapshotCache.
func (c *LocalProductCache) SetProduct(ctx context.Context, p *ledger.Product) error {
	snapshot := *p
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[p.ID]; ok && !c.now().After(e.expiresAt) {
		if e.version > p.Version || (e.product != nil && e.version == p.Version) {
			return nil
		}
	}
	c.entries[p.ID] = localEntry{product: &snapshot, version: p.Version, expiresAt: c.now().Add(c.ttl)}
	return nil
}

// Invalidate implements ledger.SnapshotCache. It tombstones the local entry
// and notifies the other instances.
func (c *LocalProductCache) Invalidate(ctx context.Context, productID id.ID, version int) error {
	c.tombstone(productID, version)
	if c.pool == nil {
		return nil
	}
	payload := productID.String() + ":" + strconv.Itoa(version)
	_, err := c.pool.Exec(ctx, "SELECT pg_notify($1, $2)", productChannel, payload)
	return err
}

func (c *LocalProductCache) tombstone(productID id.ID, version int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[productID]; ok && !c.now().After(e.expiresAt) && e.version > version {
		version = e.version
	}
	c.entries[productID] = localEntry{version: version, expiresAt: c.now().Add(c.ttl)}
}

// Len returns the number of cached snapshots, expired ones included.
func (c *LocalProductCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, e := range c.entries {
		if e.product != nil {
			n++
		}
	}
	return n
}

// listenLoop listens for PostgreSQL NOTIFY events.
func (c *LocalProductCache) listenLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		// Acquire dedicated connection for LISTEN
		conn, err := c.pool.Acquire(c.ctx)
		if err != nil {
			logger.Error(c.ctx, "failed to acquire connection for LISTEN", "error", err)
			time.Sleep(time.Second)
			continue
		}

		if _, err = conn.Exec(c.ctx, "LISTEN "+productChannel); err != nil {
			logger.Error(c.ctx, "failed to LISTEN", "error", err)
			conn.Release()
			time.Sleep(time.Second)
			continue
		}

		// Entries cached while disconnected may have missed invalidations.
		c.mu.Lock()
		c.entries = make(map[id.ID]localEntry)
		c.mu.Unlock()

		c.waitForNotifications(conn)
		conn.Release()
	}
}

// waitForNotifications blocks waiting for NOTIFY events.
func (c *LocalProductCache) waitForNotifications(conn *pgxpool.Conn) {
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		ctx, cancel := context.WithTimeout(c.ctx, 30*time.Second)
		notification, err := conn.Conn().WaitForNotification(ctx)
		cancel()

		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			logger.Warn(c.ctx, "product cache listener lost connection", "error", err)
			return
		}

		c.handleNotification(notification.Payload)
	}
}

func (c *LocalProductCache) handleNotification(payload string) {
	rawID, rawVersion, _ := strings.Cut(payload, ":")
	pid, err := id.Parse(rawID)
	if err != nil {
		logger.Warn(c.ctx, "invalid product invalidation payload", "payload", payload)
		return
	}
	version, err := strconv.Atoi(rawVersion)
	if err != nil {
		// unversioned: drop whatever is cached
		c.mu.Lock()
		delete(c.entries, pid)
		c.mu.Unlock()
		return
	}
	c.tombstone(pid, version)
}
