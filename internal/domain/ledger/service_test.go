package ledger_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"motoledger/internal/core/apperror"
	"motoledger/internal/core/id"
	"motoledger/internal/core/tx"
	"motoledger/internal/core/types"
	"motoledger/internal/domain/ledger"
	"motoledger/internal/infrastructure/cache"
	"motoledger/internal/infrastructure/storage/memory"
)

var (
	day1 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	day2 = day1.AddDate(0, 0, 1)
)

type fixture struct {
	svc    *ledger.Service
	repo   *memory.LedgerRepo
	outbox *memory.Outbox
	audit  *memory.Auditor
	cache  *spyCache
	ctx    context.Context
}

// spyCache records invalidations.
type spyCache struct {
	mu          sync.Mutex
	invalidated []id.ID
}

func (c *spyCache) GetProduct(ctx context.Context, productID id.ID) (*ledger.Product, bool, error) {
	return nil, false, nil
}

func (c *spyCache) SetProduct(ctx context.Context, p *ledger.Product) error { return nil }

func (c *spyCache) Invalidate(ctx context.Context, productID id.ID, version int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, productID)
	return nil
}

// racingRepo runs onRead once, right after the first product read made
// outside a transaction, to interleave a commit with a cache fill.
type racingRepo struct {
	ledger.Repository
	txm    tx.Manager
	onRead func()
}

func (r *racingRepo) GetProduct(ctx context.Context, productID id.ID) (*ledger.Product, error) {
	p, err := r.Repository.GetProduct(ctx, productID)
	if fn := r.onRead; fn != nil && !r.txm.InTransaction(ctx) {
		r.onRead = nil
		fn()
	}
	return p, err
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	f := &fixture{
		repo:   memory.NewLedgerRepo(store),
		outbox: memory.NewOutbox(store),
		audit:  memory.NewAuditor(store),
		cache:  &spyCache{},
		ctx:    context.Background(),
	}
	f.svc = ledger.NewService(f.repo, memory.NewTxManager(store),
		ledger.WithAuditor(f.audit),
		ledger.WithPublisher(f.outbox),
		ledger.WithCache(f.cache),
		ledger.WithRetryPolicy(tx.RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}),
	)
	return f
}

func (f *fixture) product(t *testing.T) *ledger.Product {
	t.Helper()
	p := ledger.NewProduct("BRK-"+id.New().String()[24:], "Brake pad", types.MustMoney("12"), types.MustMoney("6"))
	require.NoError(t, f.svc.CreateProduct(f.ctx, p))
	return p
}

func (f *fixture) receive(t *testing.T, productID id.ID, qty int64, cost string, at time.Time) *ledger.Lot {
	t.Helper()
	lot, err := f.svc.ReceiveLot(f.ctx, ledger.ReceiveInput{
		ProductID:  productID,
		Quantity:   types.Units(qty),
		UnitCost:   types.MustMoney(cost),
		ReceivedAt: at,
		SourceRef:  "IN-TEST",
	})
	require.NoError(t, err)
	return lot
}

func (f *fixture) lot(t *testing.T, lotID id.ID) ledger.Lot {
	t.Helper()
	lots, err := f.repo.GetLots(f.ctx, []id.ID{lotID})
	require.NoError(t, err)
	return lots[0]
}

func (f *fixture) stock(t *testing.T, productID id.ID) *ledger.Product {
	t.Helper()
	p, err := f.repo.GetProduct(f.ctx, productID)
	require.NoError(t, err)
	return p
}

func assertMoney(t *testing.T, want string, got types.Money) {
	t.Helper()
	assert.True(t, types.MustMoney(want).Equal(got), "want %s, got %s", want, got)
}

func TestLedger_AllocateCommitReverse(t *testing.T) {
	f := newFixture(t)
	p := f.product(t)
	l1 := f.receive(t, p.ID, 10, "5", day1)
	l2 := f.receive(t, p.ID, 10, "7", day2)

	assertMoney(t, "5", f.stock(t, p.ID).UnitCost)
	assert.Equal(t, types.Units(20), f.stock(t, p.ID).StockQty)

	plan, err := f.svc.Allocate(f.ctx, p.ID, types.Units(15))
	require.NoError(t, err)
	require.Len(t, plan.Lines, 2)
	assert.Equal(t, l1.ID, plan.Lines[0].LotID)
	assert.Equal(t, types.Units(10), plan.Lines[0].Quantity)
	assert.Equal(t, l2.ID, plan.Lines[1].LotID)
	assert.Equal(t, types.Units(5), plan.Lines[1].Quantity)

	// planning has no side effects
	assert.Equal(t, types.Units(10), f.lot(t, l1.ID).RemainingQty)

	rec, err := f.svc.CommitConsumption(f.ctx, plan, "CR-2026-00001")
	require.NoError(t, err)
	assert.Equal(t, types.Units(15), rec.Quantity)
	assertMoney(t, "85", rec.TotalCost)

	got1, got2 := f.lot(t, l1.ID), f.lot(t, l2.ID)
	assert.Equal(t, types.Quantity(0), got1.RemainingQty)
	assert.Equal(t, ledger.LotExhausted, got1.State)
	assert.Equal(t, types.Units(5), got2.RemainingQty)
	assertMoney(t, "7", f.stock(t, p.ID).UnitCost)
	assert.Equal(t, types.Units(5), f.stock(t, p.ID).StockQty)

	res, err := f.svc.Reverse(f.ctx, rec.ID, "RT-2026-00001")
	require.NoError(t, err)
	assert.True(t, res.FullyReversed)
	assert.Equal(t, types.Units(15), res.Reversal.Quantity)
	assert.Equal(t, types.Units(20), res.StockQty)
	assertMoney(t, "5", res.UnitCost)

	got1, got2 = f.lot(t, l1.ID), f.lot(t, l2.ID)
	assert.Equal(t, types.Units(10), got1.RemainingQty)
	assert.Equal(t, ledger.LotActive, got1.State)
	assert.Equal(t, types.Units(10), got2.RemainingQty)
	assertMoney(t, "5", f.stock(t, p.ID).UnitCost)

	t.Run("second reversal conflicts", func(t *testing.T) {
		_, err := f.svc.Reverse(f.ctx, rec.ID, "RT-2026-00002")
		assert.True(t, apperror.IsConflict(err))
		assert.Equal(t, types.Units(20), f.stock(t, p.ID).StockQty)
	})

	t.Run("records are retrievable", func(t *testing.T) {
		got, err := f.svc.GetAllocation(f.ctx, rec.ID)
		require.NoError(t, err)
		assert.Len(t, got.Lines, 2)

		revs, err := f.svc.ListReversals(f.ctx, rec.ID)
		require.NoError(t, err)
		assert.Len(t, revs, 1)

		byCtx, err := f.svc.ListAllocationsByContext(f.ctx, "CR-2026-00001")
		require.NoError(t, err)
		assert.Len(t, byCtx, 1)
	})
}

func TestLedger_InsufficientStockHasNoSideEffects(t *testing.T) {
	f := newFixture(t)
	p := f.product(t)
	l1 := f.receive(t, p.ID, 10, "5", day1)
	f.receive(t, p.ID, 10, "7", day2)
	eventsBefore := len(f.outbox.Messages())

	_, err := f.svc.Allocate(f.ctx, p.ID, types.Units(25))
	require.True(t, apperror.IsInsufficientStock(err))
	appErr, _ := apperror.AsAppError(err)
	assert.Equal(t, types.Units(5), appErr.Details["shortfall"])

	_, err = f.svc.Consume(f.ctx, p.ID, types.Units(25), "CR-X")
	require.True(t, apperror.IsInsufficientStock(err))

	assert.Equal(t, types.Units(10), f.lot(t, l1.ID).RemainingQty)
	assert.Equal(t, types.Units(20), f.stock(t, p.ID).StockQty)
	assert.Len(t, f.outbox.Messages(), eventsBefore)
}

func TestLedger_ConcurrentCommitsOfStalePlans(t *testing.T) {
	f := newFixture(t)
	p := f.product(t)
	lot := f.receive(t, p.ID, 10, "5", day1)

	planA, err := f.svc.Allocate(f.ctx, p.ID, types.Units(8))
	require.NoError(t, err)
	planB, err := f.svc.Allocate(f.ctx, p.ID, types.Units(8))
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	for i, plan := range []*ledger.AllocationPlan{planA, planB} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.CommitConsumption(f.ctx, plan, "CR-RACE")
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, apperror.IsConflict(err), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, types.Units(2), f.lot(t, lot.ID).RemainingQty)
	assert.Equal(t, types.Units(2), f.stock(t, p.ID).StockQty)
}

func TestLedger_ConcurrentConsume(t *testing.T) {
	f := newFixture(t)
	p := f.product(t)
	lot := f.receive(t, p.ID, 10, "5", day1)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Consume(f.ctx, p.ID, types.Units(8), "CR-RACE")
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.True(t, apperror.IsInsufficientStock(err) || apperror.IsConflict(err), "unexpected error: %v", err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	remaining := f.lot(t, lot.ID).RemainingQty
	assert.Equal(t, types.Units(2), remaining)
	assert.False(t, remaining.IsNegative())
}

func TestLedger_PartialReversal(t *testing.T) {
	f := newFixture(t)
	p := f.product(t)
	l1 := f.receive(t, p.ID, 10, "5", day1)
	l2 := f.receive(t, p.ID, 10, "7", day2)

	rec, err := f.svc.Consume(f.ctx, p.ID, types.Units(15), "CR-1")
	require.NoError(t, err)

	res, err := f.svc.ReverseQuantity(f.ctx, rec.ID, types.Units(7), "RT-1")
	require.NoError(t, err)
	assert.False(t, res.FullyReversed)
	assert.Equal(t, types.Units(2), f.lot(t, l1.ID).RemainingQty)
	assert.Equal(t, types.Units(10), f.lot(t, l2.ID).RemainingQty)
	assertMoney(t, "5", res.UnitCost)

	res, err = f.svc.ReverseLines(f.ctx, rec.ID, []ledger.ReversalLine{{LotID: l1.ID, Quantity: types.Units(8)}}, "RT-2")
	require.NoError(t, err)
	assert.True(t, res.FullyReversed)
	assert.Equal(t, types.Units(20), res.StockQty)

	_, err = f.svc.ReverseQuantity(f.ctx, rec.ID, types.Units(1), "RT-3")
	assert.True(t, apperror.IsConflict(err))
}

func TestLedger_ReversalOverflowIsAtomic(t *testing.T) {
	f := newFixture(t)
	p := f.product(t)
	l1 := f.receive(t, p.ID, 10, "5", day1)
	l2 := f.receive(t, p.ID, 10, "7", day2)

	rec, err := f.svc.Consume(f.ctx, p.ID, types.Units(15), "CR-1")
	require.NoError(t, err)

	// Corrupt L2 behind the ledger's back: it looks full again.
	bad := f.lot(t, l2.ID)
	bad.RemainingQty = bad.OriginalQty
	require.NoError(t, f.repo.UpdateLot(f.ctx, &bad))

	_, err = f.svc.Reverse(f.ctx, rec.ID, "RT-1")
	require.True(t, apperror.IsLotOverflow(err))
	appErr, _ := apperror.AsAppError(err)
	assert.Equal(t, l2.ID.String(), appErr.Details["lot_id"])

	assert.Equal(t, types.Quantity(0), f.lot(t, l1.ID).RemainingQty, "no partial re-credit")
	revs, err := f.svc.ListReversals(f.ctx, rec.ID)
	require.NoError(t, err)
	assert.Empty(t, revs)
}

func TestLedger_RecalculateCost(t *testing.T) {
	f := newFixture(t)
	p := f.product(t)
	f.receive(t, p.ID, 10, "5", day1)

	drifted := f.stock(t, p.ID)
	drifted.UnitCost = types.MustMoney("99")
	require.NoError(t, f.repo.UpdateProduct(f.ctx, drifted))

	cost, err := f.svc.RecalculateCost(f.ctx, p.ID)
	require.NoError(t, err)
	assertMoney(t, "5", cost)
	assertMoney(t, "5", f.stock(t, p.ID).UnitCost)

	t.Run("zero without stock", func(t *testing.T) {
		empty := f.product(t)
		cost, err := f.svc.RecalculateCost(f.ctx, empty.ID)
		require.NoError(t, err)
		assertMoney(t, "0", cost)
	})

	t.Run("unknown product", func(t *testing.T) {
		_, err := f.svc.RecalculateCost(f.ctx, id.New())
		assert.True(t, apperror.IsNotFound(err))
	})
}

func TestLedger_Conservation(t *testing.T) {
	f := newFixture(t)
	p := f.product(t)
	for i, cost := range []string{"5", "6", "7", "8"} {
		f.receive(t, p.ID, 10, cost, day1.Add(time.Duration(i)*time.Hour))
	}

	consumed := types.Quantity(0)
	var recs []*ledger.AllocationRecord
	for _, q := range []int64{3, 9, 1, 12, 4} {
		rec, err := f.svc.Consume(f.ctx, p.ID, types.Units(q), "CR-SEQ")
		require.NoError(t, err)
		consumed += rec.Quantity
		recs = append(recs, rec)
	}

	lots, err := f.svc.ListLots(f.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.Units(40)-consumed, ledger.TotalRemaining(lots))

	for _, rec := range recs {
		_, err := f.svc.Reverse(f.ctx, rec.ID, "RT-SEQ")
		require.NoError(t, err)
	}
	lots, err = f.svc.ListLots(f.ctx, p.ID)
	require.NoError(t, err)
	for _, l := range lots {
		assert.Equal(t, l.OriginalQty, l.RemainingQty)
	}

	drift, err := f.svc.Verify(f.ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, drift.Consistent())
}

func TestLedger_CorrectStock(t *testing.T) {
	f := newFixture(t)
	p := f.product(t)
	f.receive(t, p.ID, 10, "5", day1)

	res, err := f.svc.CorrectStock(f.ctx, ledger.CorrectionInput{ProductID: p.ID, Delta: types.Units(3), Reason: "found in back room"})
	require.NoError(t, err)
	require.NotNil(t, res.Lot)
	assertMoney(t, "5", res.Lot.UnitCost)
	assert.Equal(t, types.Units(13), f.stock(t, p.ID).StockQty)

	res, err = f.svc.CorrectStock(f.ctx, ledger.CorrectionInput{ProductID: p.ID, Delta: types.Units(-4), Reason: "damaged"})
	require.NoError(t, err)
	require.NotNil(t, res.Allocation)
	assert.Equal(t, "correction:damaged", res.Allocation.ContextRef)
	assert.Equal(t, types.Units(9), f.stock(t, p.ID).StockQty)

	_, err = f.svc.CorrectStock(f.ctx, ledger.CorrectionInput{ProductID: p.ID, Delta: 0, Reason: "noop"})
	assert.Error(t, err)
}

func TestLedger_SideEffects(t *testing.T) {
	f := newFixture(t)
	p := f.product(t)
	f.receive(t, p.ID, 10, "5", day1)
	f.receive(t, p.ID, 10, "7", day2)

	_, err := f.svc.Consume(f.ctx, p.ID, types.Units(10), "CR-1")
	require.NoError(t, err)

	var kinds []string
	for _, m := range f.outbox.Messages() {
		kinds = append(kinds, m.EventType)
	}
	assert.Equal(t, []string{
		ledger.EventLotReceived,
		ledger.EventCostChanged,
		ledger.EventLotReceived,
		ledger.EventStockConsumed,
		ledger.EventCostChanged,
	}, kinds)

	history, err := f.svc.History(f.ctx, "product", p.ID, 10)
	require.NoError(t, err)
	require.NotEmpty(t, history)
	assert.Equal(t, "create", history[len(history)-1].Action)
	assert.Equal(t, "system", history[0].Operator)

	assert.Contains(t, f.cache.invalidated, p.ID)
}

func TestLedger_CommitRejectsEmptyPlan(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CommitConsumption(f.ctx, &ledger.AllocationPlan{ProductID: id.New()}, "CR-1")
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeValidation, appErr.Code)
}

func TestLedger_CommitRejectsNonFIFOPlan(t *testing.T) {
	f := newFixture(t)
	p := f.product(t)
	l1 := f.receive(t, p.ID, 10, "5", day1)
	l2 := f.receive(t, p.ID, 10, "7", day2)
	v1, v2 := f.lot(t, l1.ID).Version, f.lot(t, l2.ID).Version

	tests := []struct {
		name string
		plan *ledger.AllocationPlan
		code string
	}{
		{
			name: "skips the oldest lot",
			plan: &ledger.AllocationPlan{ProductID: p.ID, Requested: types.Units(5), Lines: []ledger.AllocationLine{
				{LotID: l2.ID, Quantity: types.Units(5), LotVersion: v2},
			}},
			code: apperror.CodeConflict,
		},
		{
			name: "lines do not add up to requested",
			plan: &ledger.AllocationPlan{ProductID: p.ID, Requested: types.Units(99), Lines: []ledger.AllocationLine{
				{LotID: l2.ID, Quantity: types.Units(5), LotVersion: v2},
			}},
			code: apperror.CodeValidation,
		},
		{
			name: "missing lot version",
			plan: &ledger.AllocationPlan{ProductID: p.ID, Requested: types.Units(5), Lines: []ledger.AllocationLine{
				{LotID: l1.ID, Quantity: types.Units(5)},
			}},
			code: apperror.CodeValidation,
		},
		{
			name: "fifo lots in the wrong order",
			plan: &ledger.AllocationPlan{ProductID: p.ID, Requested: types.Units(15), Lines: []ledger.AllocationLine{
				{LotID: l2.ID, Quantity: types.Units(5), LotVersion: v2},
				{LotID: l1.ID, Quantity: types.Units(10), LotVersion: v1},
			}},
			code: apperror.CodeConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CommitConsumption(f.ctx, tt.plan, "CR-TAMPERED")
			appErr, ok := apperror.AsAppError(err)
			require.True(t, ok, "unexpected error: %v", err)
			assert.Equal(t, tt.code, appErr.Code)
		})
	}

	assert.Equal(t, types.Units(10), f.lot(t, l1.ID).RemainingQty)
	assert.Equal(t, types.Units(10), f.lot(t, l2.ID).RemainingQty)
	assert.Equal(t, types.Units(20), f.stock(t, p.ID).StockQty)
	assertMoney(t, "5", f.stock(t, p.ID).UnitCost)
}

func TestLedger_ReceiveRespectsMaxQuantity(t *testing.T) {
	f := newFixture(t)
	p := f.product(t)

	_, err := f.svc.ReceiveLot(f.ctx, ledger.ReceiveInput{
		ProductID: p.ID, Quantity: types.MaxQuantity, UnitCost: types.MustMoney("1"), ReceivedAt: day1,
	})
	require.NoError(t, err)

	_, err = f.svc.ReceiveLot(f.ctx, ledger.ReceiveInput{
		ProductID: p.ID, Quantity: types.Units(1), UnitCost: types.MustMoney("1"), ReceivedAt: day2,
	})
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok, "unexpected error: %v", err)
	assert.Equal(t, apperror.CodeValidation, appErr.Code)

	assert.Equal(t, types.MaxQuantity, f.stock(t, p.ID).StockQty)
	_, err = f.svc.Consume(f.ctx, p.ID, types.Units(1), "CR-BIG")
	assert.NoError(t, err)
}

func TestLedger_StaleReadDoesNotRefillCache(t *testing.T) {
	store := memory.NewStore()
	txm := memory.NewTxManager(store)
	repo := &racingRepo{Repository: memory.NewLedgerRepo(store), txm: txm}
	svc := ledger.NewService(repo, txm, ledger.WithCache(cache.NewLocalProductCache(nil, time.Minute)))
	ctx := context.Background()

	p := ledger.NewProduct("SPK-CR8", "Spark plug CR8E", types.MustMoney("9"), types.MustMoney("4"))
	require.NoError(t, svc.CreateProduct(ctx, p))

	// the read-through sees the empty product, then a lot is received before it fills the cache
	repo.onRead = func() {
		_, err := svc.ReceiveLot(ctx, ledger.ReceiveInput{
			ProductID: p.ID, Quantity: types.Units(4), UnitCost: types.MustMoney("3"), ReceivedAt: day1,
		})
		require.NoError(t, err)
	}
	stale, err := svc.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, stale.StockQty.IsZero())

	fresh, err := svc.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.Units(4), fresh.StockQty)
	assertMoney(t, "3", fresh.UnitCost)
}

func TestLedger_Pricing(t *testing.T) {
	f := newFixture(t)
	p := f.product(t)

	price := types.MustMoney("15")
	got, err := f.svc.UpdatePricing(f.ctx, p.ID, ledger.PricingInput{SalePrice: &price})
	require.NoError(t, err)
	assertMoney(t, "15", got.SalePrice)

	low := types.MustMoney("1")
	_, err = f.svc.UpdatePricing(f.ctx, p.ID, ledger.PricingInput{SalePrice: &low})
	assert.Error(t, err, "sale price below floor")

	_, err = f.svc.UpdatePricing(f.ctx, p.ID, ledger.PricingInput{SalePrice: &price, Version: 1})
	assert.True(t, apperror.IsConflict(err))

	dup := ledger.NewProduct(p.SKU, "Other", price, low)
	err = f.svc.CreateProduct(f.ctx, dup)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeDuplicate, appErr.Code)
}
