// Package di builds the service graph for the configured storage driver.
package di

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"motoledger/internal/core/idempotency"
	"motoledger/internal/core/numerator"
	"motoledger/internal/core/tx"
	"motoledger/internal/domain"
	"motoledger/internal/domain/auth"
	"motoledger/internal/domain/documents/credit_sale"
	"motoledger/internal/domain/documents/intake"
	"motoledger/internal/domain/documents/return_request"
	"motoledger/internal/domain/ledger"
	"motoledger/internal/domain/reports"
	"motoledger/internal/infrastructure/cache"
	"motoledger/internal/infrastructure/config"
	v1 "motoledger/internal/infrastructure/http/v1"
	"motoledger/internal/infrastructure/http/v1/handlers"
	"motoledger/internal/infrastructure/outbox"
	"motoledger/internal/infrastructure/storage/firestore"
	"motoledger/internal/infrastructure/storage/memory"
	"motoledger/internal/infrastructure/storage/postgres"
	"motoledger/internal/infrastructure/storage/postgres/document_repo"
	"motoledger/internal/infrastructure/storage/postgres/ledger_repo"
	"motoledger/internal/infrastructure/storage/postgres/report_repo"
	"motoledger/pkg/logger"
	seqnumerator "motoledger/pkg/numerator"
)

// Container holds the wired services. Close releases every connection it opened.
type Container struct {
	Config   *config.Config
	Services v1.Services

	// Outbox is drained by the worker relay.
	Outbox outbox.Source
	// Idempotency is nil when HTTP idempotency is disabled.
	Idempotency idempotency.Store
	Verifier    auth.Verifier
	// Locker is nil without Redis; jobs then run unguarded.
	Locker       *cache.Locker
	HealthChecks []handlers.HealthCheck
	Info         map[string]any

	pgIdempotency *postgres.IdempotencyStore
	pgOutbox      *postgres.OutboxStore
	localCache    *cache.LocalProductCache
	closers       []func()
}

// backend is what each storage driver contributes.
type backend struct {
	txm       tx.Manager
	repo      ledger.Repository
	auditor   ledger.Auditor
	publisher ledger.Publisher
	outbox    outbox.Source
	sequences seqnumerator.Store
	valuation reports.Source // nil falls back to the ledger-backed source

	intakes domain.DocumentRepository[*intake.Intake]
	credits domain.DocumentRepository[*credit_sale.CreditSale]
	returns domain.DocumentRepository[*return_request.ReturnRequest]
}

// New connects the configured driver and wires every service on top of it.
func New(ctx context.Context, cfg *config.Config) (_ *Container, err error) {
	c := &Container{
		Config: cfg,
		Info:   map[string]any{"driver": cfg.Database.Driver, "env": cfg.App.Env},
	}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	var b *backend
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		b, err = c.postgresBackend(ctx)
	case config.DriverFirestore:
		b, err = c.firestoreBackend(ctx)
	case config.DriverMemory:
		b = c.memoryBackend()
	default:
		err = fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
	if err != nil {
		return nil, err
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled() {
		rdb, err = cache.NewRedisClient(ctx, cache.RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, func() { _ = rdb.Close() })
		c.Locker = cache.NewLocker(rdb, cfg.Redis.KeyPrefix)
		c.HealthChecks = append(c.HealthChecks, handlers.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	}

	opts := []ledger.Option{
		ledger.WithAuditor(b.auditor),
		ledger.WithPublisher(b.publisher),
		ledger.WithRetryPolicy(tx.RetryPolicy{
			MaxAttempts: cfg.Ledger.MaxRetries,
			BaseDelay:   cfg.Ledger.RetryBaseDelay,
			MaxDelay:    cfg.Ledger.RetryMaxDelay,
		}),
	}
	switch {
	case rdb != nil:
		opts = append(opts, ledger.WithCache(cache.NewRedisProductCache(rdb, cfg.Redis.KeyPrefix, cfg.Redis.CacheTTL)))
	case c.localCache != nil:
		c.localCache.Start(ctx)
		opts = append(opts, ledger.WithCache(c.localCache))
	}
	l := ledger.NewService(b.repo, b.txm, opts...)

	var gen numerator.Generator = seqnumerator.New(b.sequences)

	var policy *credit_sale.PricePolicy
	if cfg.Ledger.PricePolicy != "" {
		if policy, err = credit_sale.NewPricePolicy(cfg.Ledger.PricePolicy); err != nil {
			return nil, fmt.Errorf("price policy: %w", err)
		}
	}
	credits, err := credit_sale.NewService(b.credits, b.txm, gen, l, policy)
	if err != nil {
		return nil, err
	}

	valuation := b.valuation
	if valuation == nil {
		valuation = reports.NewLedgerSource(l)
	}

	c.Services = v1.Services{
		Ledger:  l,
		Intakes: intake.NewService(b.intakes, b.txm, gen, l),
		Credits: credits,
		Returns: return_request.NewService(b.returns, b.txm, gen, l, credits),
		Reports: reports.NewService(valuation),
	}
	c.Outbox = b.outbox

	if cfg.HTTP.IdempotencyEnabled {
		switch {
		case c.pgIdempotency != nil:
			c.Idempotency = c.pgIdempotency
		case rdb != nil:
			c.Idempotency = cache.NewRedisIdempotencyStore(rdb, cfg.Redis.KeyPrefix, cfg.Ledger.IdempotencyTTL)
		default:
			c.Idempotency = memory.NewIdempotencyStore(cfg.Ledger.IdempotencyTTL)
		}
	}

	if c.Verifier, err = newVerifier(ctx, cfg.Auth); err != nil {
		return nil, err
	}

	logger.Info(ctx, "container ready",
		"driver", cfg.Database.Driver,
		"redis", rdb != nil,
		"idempotency", c.Idempotency != nil,
		"auth", cfg.Auth.Provider,
	)
	return c, nil
}

func (c *Container) postgresBackend(ctx context.Context) (*backend, error) {
	dbCfg := c.Config.Database
	dsn := dbCfg.DSN()

	if dbCfg.AutoMigrate {
		m, err := postgres.NewMigrator(dsn)
		if err != nil {
			return nil, err
		}
		err = m.Up(ctx)
		_ = m.Close()
		if err != nil {
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
	}

	poolCfg := postgres.DefaultPoolConfig(dsn)
	if dbCfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(dbCfg.MaxConns)
	}
	if dbCfg.MinConns > 0 {
		poolCfg.MinConns = int32(dbCfg.MinConns)
	}
	if dbCfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = dbCfg.ConnMaxLifetime
	}
	if dbCfg.ConnMaxIdleTime > 0 {
		poolCfg.MaxConnIdleTime = dbCfg.ConnMaxIdleTime
	}
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, pool.Close)
	c.HealthChecks = append(c.HealthChecks, handlers.HealthCheck{Name: "database", Check: pool.Check})
	c.Info["database"] = pool.Stats

	txm := postgres.NewTxManager(pool)
	auditor, err := postgres.NewAuditService(txm)
	if err != nil {
		return nil, err
	}
	c.pgOutbox = postgres.NewOutboxStore(txm)
	c.pgIdempotency = postgres.NewIdempotencyStore(txm, c.Config.Ledger.IdempotencyTTL)
	if !c.Config.Redis.Enabled() {
		c.localCache = cache.NewLocalProductCache(pool.Pool, c.Config.Redis.CacheTTL)
		c.closers = append(c.closers, c.localCache.Stop)
	}

	return &backend{
		txm:       txm,
		repo:      ledger_repo.New(txm),
		auditor:   auditor,
		publisher: c.pgOutbox,
		outbox:    c.pgOutbox,
		sequences: postgres.NewSequences(txm),
		valuation: report_repo.NewReportRepo(txm),
		intakes: document_repo.NewBaseDocumentRepo(txm, "doc_intakes",
			func() *intake.Intake { return &intake.Intake{} }),
		credits: document_repo.NewBaseDocumentRepo(txm, "doc_credit_sales",
			func() *credit_sale.CreditSale { return &credit_sale.CreditSale{} }),
		returns: document_repo.NewBaseDocumentRepo(txm, "doc_return_requests",
			func() *return_request.ReturnRequest { return &return_request.ReturnRequest{} }),
	}, nil
}

func (c *Container) firestoreBackend(ctx context.Context) (*backend, error) {
	fsCfg := c.Config.Firestore
	client, err := firestore.NewClient(ctx, firestore.Config{
		ProjectID:       fsCfg.ProjectID,
		CredentialsFile: fsCfg.CredentialsFile,
		Prefix:          fsCfg.Prefix,
	})
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, func() { _ = client.Close() })
	c.HealthChecks = append(c.HealthChecks, handlers.HealthCheck{Name: "firestore", Check: client.Ping})
	c.Info["firestore_project"] = client.ProjectID

	txm := firestore.NewTxManager(client)
	events := firestore.NewOutbox(client, txm)
	return &backend{
		txm:       txm,
		repo:      firestore.NewLedgerRepo(client, txm),
		auditor:   firestore.NewAuditor(client, txm),
		publisher: events,
		outbox:    events,
		sequences: firestore.NewSequences(client),
		intakes: firestore.NewDocumentRepo(client, txm, "doc_intakes",
			func() *intake.Intake { return &intake.Intake{} }),
		credits: firestore.NewDocumentRepo(client, txm, "doc_credit_sales",
			func() *credit_sale.CreditSale { return &credit_sale.CreditSale{} }),
		returns: firestore.NewDocumentRepo(client, txm, "doc_return_requests",
			func() *return_request.ReturnRequest { return &return_request.ReturnRequest{} }),
	}, nil
}

func (c *Container) memoryBackend() *backend {
	store := memory.NewStore()
	events := memory.NewOutbox(store)
	return &backend{
		txm:       memory.NewTxManager(store),
		repo:      memory.NewLedgerRepo(store),
		auditor:   memory.NewAuditor(store),
		publisher: events,
		outbox:    events,
		sequences: memory.NewSequences(store),
		intakes: memory.NewDocumentRepo(store, "doc_intakes",
			func() *intake.Intake { return &intake.Intake{} }),
		credits: memory.NewDocumentRepo(store, "doc_credit_sales",
			func() *credit_sale.CreditSale { return &credit_sale.CreditSale{} }),
		returns: memory.NewDocumentRepo(store, "doc_return_requests",
			func() *return_request.ReturnRequest { return &return_request.ReturnRequest{} }),
	}
}

func newVerifier(ctx context.Context, cfg config.AuthConfig) (auth.Verifier, error) {
	switch cfg.Provider {
	case "jwt":
		jwtCfg := auth.DefaultJWTConfig(cfg.JWTSecret)
		if cfg.JWTIssuer != "" {
			jwtCfg.Issuer = cfg.JWTIssuer
		}
		return auth.NewJWTService(jwtCfg), nil
	case "firebase":
		return auth.NewFirebaseVerifier(ctx, cfg.FirebaseProject, cfg.CredentialsFile)
	case "none":
		logger.Warn(ctx, "authentication disabled; every request runs as local admin")
		return auth.AnonymousVerifier{}, nil
	}
	return nil, fmt.Errorf("unknown auth provider %q", cfg.Provider)
}

// CleanupIdempotency drops expired keys. Only the PostgreSQL store needs it;
// Redis and memory keys expire on their own.
func (c *Container) CleanupIdempotency(ctx context.Context) (int64, error) {
	if c.pgIdempotency == nil {
		return 0, nil
	}
	return c.pgIdempotency.CleanupExpired(ctx)
}

// MoveDeadLetters parks outbox messages that exhausted their retries.
func (c *Container) MoveDeadLetters(ctx context.Context) (int64, error) {
	if c.pgOutbox == nil {
		return 0, nil
	}
	return c.pgOutbox.MoveToDLQ(ctx)
}

// RunExclusive runs fn under the named distributed lock, or directly when
// Redis is not configured.
func (c *Container) RunExclusive(ctx context.Context, name string, ttl time.Duration, fn func(ctx context.Context) error) error {
	if c.Locker == nil {
		return fn(ctx)
	}
	ran, err := c.Locker.RunExclusive(ctx, name, ttl, fn)
	if err != nil {
		return err
	}
	if !ran {
		logger.Debug(ctx, "job skipped, lock held elsewhere", "job", name)
	}
	return nil
}

// Close releases connections in reverse order of creation.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}
