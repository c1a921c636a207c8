//go:build integration

package ledger_repo_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"motoledger/internal/core/apperror"
	"motoledger/internal/core/tx"
	"motoledger/internal/core/types"
	"motoledger/internal/domain/ledger"
	"motoledger/internal/domain/reports"
	"motoledger/internal/infrastructure/storage/postgres"
	"motoledger/internal/infrastructure/storage/postgres/ledger_repo"
	"motoledger/internal/infrastructure/storage/postgres/report_repo"
)

type pgFixture struct {
	txm    *postgres.TxManager
	svc    *ledger.Service
	repo   *ledger_repo.Repo
	audit  *postgres.AuditService
	outbox *postgres.OutboxStore
}

func newPGFixture(t *testing.T) *pgFixture {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("motoledger_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	migrator, err := postgres.NewMigrator(dsn)
	require.NoError(t, err)
	require.NoError(t, migrator.Up(ctx))
	require.NoError(t, migrator.Close())

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(dsn))
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	txm := postgres.NewTxManager(pool)
	audit, err := postgres.NewAuditService(txm)
	require.NoError(t, err)

	f := &pgFixture{
		txm:    txm,
		repo:   ledger_repo.New(txm),
		audit:  audit,
		outbox: postgres.NewOutboxStore(txm),
	}
	f.svc = ledger.NewService(f.repo, txm,
		ledger.WithAuditor(f.audit),
		ledger.WithPublisher(f.outbox),
		ledger.WithRetryPolicy(tx.RetryPolicy{MaxAttempts: 5, BaseDelay: 5 * time.Millisecond, MaxDelay: 50 * time.Millisecond}),
	)
	return f
}

func TestPostgresLedger(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	day1 := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	p := ledger.NewProduct("SPK-CR8E", "Spark plug CR8E", types.MustMoney("9"), types.MustMoney("6"))
	require.NoError(t, f.svc.CreateProduct(ctx, p))

	l1, err := f.svc.ReceiveLot(ctx, ledger.ReceiveInput{
		ProductID: p.ID, Quantity: types.Units(10), UnitCost: types.MustMoney("5"), ReceivedAt: day1,
	})
	require.NoError(t, err)
	l2, err := f.svc.ReceiveLot(ctx, ledger.ReceiveInput{
		ProductID: p.ID, Quantity: types.Units(10), UnitCost: types.MustMoney("7"), ReceivedAt: day1.AddDate(0, 0, 1),
	})
	require.NoError(t, err)

	t.Run("allocate, commit and reverse", func(t *testing.T) {
		plan, err := f.svc.Allocate(ctx, p.ID, types.Units(15))
		require.NoError(t, err)
		require.Len(t, plan.Lines, 2)
		assert.Equal(t, l1.ID, plan.Lines[0].LotID)
		assert.Equal(t, types.Units(10), plan.Lines[0].Quantity)
		assert.Equal(t, l2.ID, plan.Lines[1].LotID)
		assert.Equal(t, types.Units(5), plan.Lines[1].Quantity)

		rec, err := f.svc.CommitConsumption(ctx, plan, "sale:1")
		require.NoError(t, err)

		stored, err := f.repo.GetAllocation(ctx, rec.ID)
		require.NoError(t, err)
		assert.Len(t, stored.Lines, 2)

		product, err := f.repo.GetProduct(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, types.Units(5), product.StockQty)
		assert.True(t, product.UnitCost.Equal(types.MustMoney("7")), "cost %s", product.UnitCost)

		result, err := f.svc.Reverse(ctx, rec.ID, "return:1")
		require.NoError(t, err)
		assert.True(t, result.FullyReversed)
		assert.Equal(t, types.Units(20), result.StockQty)
		assert.True(t, result.UnitCost.Equal(types.MustMoney("5")))

		_, err = f.svc.Reverse(ctx, rec.ID, "return:2")
		assert.True(t, apperror.IsConflict(err))

		history, err := f.audit.History(ctx, "allocation", rec.ID, 10)
		require.NoError(t, err)
		assert.NotEmpty(t, history)
	})

	t.Run("insufficient stock reports shortfall", func(t *testing.T) {
		_, err := f.svc.Allocate(ctx, p.ID, types.Units(25))
		require.True(t, apperror.IsInsufficientStock(err))
		appErr, _ := apperror.AsAppError(err)
		assert.Equal(t, types.Units(5), appErr.Details["shortfall"])
	})

	t.Run("concurrent consumers never oversell", func(t *testing.T) {
		q := ledger.NewProduct("CHN-428", "Chain 428", types.MustMoney("30"), types.MustMoney("20"))
		require.NoError(t, f.svc.CreateProduct(ctx, q))
		_, err := f.svc.ReceiveLot(ctx, ledger.ReceiveInput{
			ProductID: q.ID, Quantity: types.Units(10), UnitCost: types.MustMoney("15"), ReceivedAt: day1,
		})
		require.NoError(t, err)

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
		)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := f.svc.Consume(ctx, q.ID, types.Units(8), "sale:race"); err == nil {
					mu.Lock()
					successes++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, successes)
		drift, err := f.svc.Verify(ctx, q.ID)
		require.NoError(t, err)
		assert.True(t, drift.Consistent())
		assert.Equal(t, types.Units(2), drift.LotsRemaining)
	})

	t.Run("outbox holds committed events", func(t *testing.T) {
		pending, err := f.outbox.FetchPending(ctx, 100)
		require.NoError(t, err)
		assert.NotEmpty(t, pending)
	})
}

func TestPostgresValuation(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	day1 := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	p := ledger.NewProduct("CHN-520", "Drive chain 520", types.MustMoney("45"), types.MustMoney("20"))
	require.NoError(t, f.svc.CreateProduct(ctx, p))
	empty := ledger.NewProduct("OIL-10W40", "Engine oil 10W-40", types.MustMoney("12"), types.MustMoney("8"))
	require.NoError(t, f.svc.CreateProduct(ctx, empty))
	for i, cost := range []string{"5", "7.25"} {
		_, err := f.svc.ReceiveLot(ctx, ledger.ReceiveInput{
			ProductID: p.ID, Quantity: types.Units(10), UnitCost: types.MustMoney(cost), ReceivedAt: day1.AddDate(0, 0, i),
		})
		require.NoError(t, err)
	}
	_, err := f.svc.Consume(ctx, p.ID, types.Units(12), "credit:CR-9")
	require.NoError(t, err)

	svc := reports.NewService(report_repo.NewReportRepo(f.txm))
	report, err := svc.Valuation(ctx, reports.ValuationFilter{Search: "chain"})
	require.NoError(t, err)
	require.Len(t, report.Items, 1)

	item := report.Items[0]
	assert.Equal(t, types.Units(8), item.StockQty)
	assert.Equal(t, types.Units(8), item.LotsRemaining)
	assert.Equal(t, 1, item.ActiveLots)
	assert.True(t, item.FIFOValue.Equal(types.MustMoney("58")), "fifo value %s", item.FIFOValue)
	assert.True(t, item.Drift.IsZero())

	all, err := svc.Valuation(ctx, reports.ValuationFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, all.TotalItems)
	assert.True(t, all.Items[1].FIFOValue.IsZero())
}
