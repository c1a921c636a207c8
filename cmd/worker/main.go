// Package main is the entry point for the motoledger background worker:
// outbox delivery, ledger consistency checks and key cleanup.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"motoledger/internal/domain/ledger"
	"motoledger/internal/infrastructure/config"
	"motoledger/internal/infrastructure/outbox"
	"motoledger/internal/infrastructure/telemetry"
	"motoledger/internal/platform/di"
	"motoledger/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.App.IsDevelopment(),
		Service:     cfg.App.Name + "-worker",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithLogger(ctx, log.WithComponent("worker"))

	if cfg.Database.Driver == config.DriverMemory {
		log.Warn("memory driver: the worker only sees its own empty store")
	}

	tp, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName + "-worker",
		Insecure:          cfg.Telemetry.Insecure,
	})
	if err != nil {
		log.Fatalw("failed to set up telemetry", "error", err)
	}
	defer func() { _ = tp.Shutdown(context.WithoutCancel(ctx)) }()

	container, err := di.New(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to build services", "error", err)
	}
	defer container.Close()

	handler, closeHandler, err := eventHandler(ctx, cfg.PubSub)
	if err != nil {
		log.Fatalw("failed to set up event delivery", "error", err)
	}
	defer closeHandler()

	w := &worker{
		container: container,
		relay:     outbox.NewRelay(container.Outbox, handler, cfg.Worker.BatchSize),
		cfg:       cfg.Worker,
	}

	log.Infow("starting motoledger worker",
		"driver", cfg.Database.Driver,
		"pubsub", cfg.PubSub.Enabled(),
		"poll_interval", cfg.Worker.PollInterval,
		"verify_interval", cfg.Worker.VerifyInterval,
	)

	var wg sync.WaitGroup
	for _, job := range []struct {
		name     string
		interval time.Duration
		run      func(ctx context.Context) error
	}{
		{"outbox-relay", cfg.Worker.PollInterval, w.deliver},
		{"ledger-verify", cfg.Worker.VerifyInterval, w.verify},
		{"cleanup", time.Hour, w.cleanup},
	} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx, job.name, job.interval, job.run)
		}()
	}

	<-ctx.Done()
	log.Info("shutting down worker...")
	wg.Wait()
	log.Info("worker stopped")
}

func eventHandler(ctx context.Context, cfg config.PubSubConfig) (outbox.Handler, func(), error) {
	if !cfg.Enabled() {
		logger.Info(ctx, "pubsub not configured, events are only logged")
		return outbox.LogHandler{}, func() {}, nil
	}

	psCfg := outbox.PubSubConfig{
		ProjectID:   cfg.ProjectID,
		Topic:       cfg.Topic,
		CreateTopic: cfg.CreateTopic,
	}
	if cfg.CredentialsFile != "" {
		b, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, nil, fmt.Errorf("read pubsub credentials: %w", err)
		}
		psCfg.CredentialsJSON = string(b)
	}
	h, err := outbox.NewPubSubHandler(ctx, psCfg)
	if err != nil {
		return nil, nil, err
	}
	return h, func() { _ = h.Close() }, nil
}

type worker struct {
	container *di.Container
	relay     *outbox.Relay
	cfg       config.WorkerConfig
}

// loop runs job every interval under a lock of the same name.
func (w *worker) loop(ctx context.Context, name string, interval time.Duration, job func(ctx context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := w.container.RunExclusive(ctx, name, w.cfg.LockTTL, job); err != nil && ctx.Err() == nil {
			logger.Error(ctx, "job failed", "job", name, "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// deliver drains the outbox until a batch comes back short.
func (w *worker) deliver(ctx context.Context) error {
	for ctx.Err() == nil {
		n, err := w.relay.ProcessBatch(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Debug(ctx, "outbox relay delivered", "count", n)
		}
		if n < w.cfg.BatchSize {
			return nil
		}
	}
	return nil
}

// verify compares every product's aggregates with its lots.
func (w *worker) verify(ctx context.Context) error {
	l := w.container.Services.Ledger
	const page = 200

	checked, drifted := 0, 0
	for offset := 0; ; offset += page {
		products, err := l.ListProducts(ctx, ledger.ProductFilter{Limit: page, Offset: offset})
		if err != nil {
			return err
		}
		for _, p := range products {
			drift, err := l.Verify(ctx, p.ID)
			if err != nil {
				return fmt.Errorf("verify %s: %w", p.SKU, err)
			}
			checked++
			if !drift.Consistent() {
				drifted++
				logger.Warn(ctx, "ledger drift detected",
					"product_id", p.ID,
					"sku", p.SKU,
					"stock_qty", drift.StockQty,
					"lots_remaining", drift.LotsRemaining,
					"unit_cost", drift.UnitCost,
					"expected_cost", drift.ExpectedCost,
					"bad_lots", len(drift.BadLots),
				)
			}
		}
		if len(products) < page {
			break
		}
	}
	logger.Info(ctx, "ledger verification finished", "checked", checked, "drifted", drifted)
	return nil
}

func (w *worker) cleanup(ctx context.Context) error {
	keys, err := w.container.CleanupIdempotency(ctx)
	if err != nil {
		return fmt.Errorf("cleanup idempotency: %w", err)
	}
	dead, err := w.container.MoveDeadLetters(ctx)
	if err != nil {
		return fmt.Errorf("move dead letters: %w", err)
	}
	if keys > 0 || dead > 0 {
		logger.Info(ctx, "cleanup finished", "idempotency_keys", keys, "dead_letters", dead)
	}
	return nil
}
