package return_request_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"motoledger/internal/core/apperror"
	appctx "motoledger/internal/core/context"
	"motoledger/internal/core/numerator"
	"motoledger/internal/core/types"
	"motoledger/internal/domain/documents/credit_sale"
	"motoledger/internal/domain/documents/return_request"
	"motoledger/internal/domain/ledger"
	"motoledger/internal/infrastructure/storage/memory"
)

type fixture struct {
	ctx     context.Context
	ledger  *ledger.Service
	repo    *memory.LedgerRepo
	sales   *credit_sale.Service
	returns *return_request.Service
	chain   *ledger.Product
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	txm := memory.NewTxManager(store)
	repo := memory.NewLedgerRepo(store)
	l := ledger.NewService(repo, txm)

	sales, err := credit_sale.NewService(
		memory.NewDocumentRepo(store, "doc_credit_sales", func() *credit_sale.CreditSale { return &credit_sale.CreditSale{} }),
		txm, &numerator.MockGenerator{}, l, nil)
	require.NoError(t, err)
	returns := return_request.NewService(
		memory.NewDocumentRepo(store, "doc_return_requests", func() *return_request.ReturnRequest { return &return_request.ReturnRequest{} }),
		txm, &numerator.MockGenerator{}, l, sales)

	f := &fixture{
		ctx:     appctx.WithUser(context.Background(), &appctx.UserContext{UserID: "u-2", Email: "manager@shop.test"}),
		ledger:  l,
		repo:    repo,
		sales:   sales,
		returns: returns,
	}
	f.chain = ledger.NewProduct("CHN-520", "Drive chain 520", types.MustMoney("45"), types.MustMoney("20"))
	require.NoError(t, l.CreateProduct(f.ctx, f.chain))

	day1 := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	for i, cost := range []string{"5", "7"} {
		_, err := l.ReceiveLot(f.ctx, ledger.ReceiveInput{
			ProductID:  f.chain.ID,
			Quantity:   types.Units(10),
			UnitCost:   types.MustMoney(cost),
			ReceivedAt: day1.AddDate(0, 0, i),
		})
		require.NoError(t, err)
	}
	return f
}

// sell15 consumes all of L1 and 5 of L2.
func (f *fixture) sell15(t *testing.T) *credit_sale.CreditSale {
	t.Helper()
	sale := credit_sale.New("Ivan Petrov")
	sale.AddLine(f.chain.ID, types.Units(15), types.MustMoney("45"))
	require.NoError(t, f.sales.Create(f.ctx, sale))
	return sale
}

func (f *fixture) request(t *testing.T, sale *credit_sale.CreditSale, qty int64) *return_request.ReturnRequest {
	t.Helper()
	doc := return_request.New(sale.ID, "wrong pitch")
	doc.AddLine(1, types.Units(qty))
	require.NoError(t, f.returns.Create(f.ctx, doc))
	return doc
}

func TestReturn_ApproveRestocksNewestLotFirst(t *testing.T) {
	f := newFixture(t)
	sale := f.sell15(t)

	doc := f.request(t, sale, 7)
	assert.Equal(t, "RT-2026-00001", doc.Number)
	assert.Equal(t, sale.Number, doc.CreditSaleNumber)
	assert.Equal(t, f.chain.ID, doc.Lines[0].ProductID)
	assert.True(t, doc.CreditAmount.Equal(types.MustMoney("315")))

	pending, err := f.sales.Get(f.ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, types.Units(7), pending.Lines[0].PendingReturnQty)

	approved, err := f.returns.Approve(f.ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, return_request.StatusApproved, approved.Status)
	require.NotNil(t, approved.Lines[0].ReversalID)
	// 5 back to L2 @ 7, 2 back to L1 @ 5
	assert.True(t, approved.Lines[0].RestockedCost.Equal(types.MustMoney("45")))

	lots, err := f.ledger.ListLots(f.ctx, f.chain.ID)
	require.NoError(t, err)
	require.Len(t, lots, 2)
	assert.Equal(t, types.Units(2), lots[0].RemainingQty)
	assert.Equal(t, types.Units(10), lots[1].RemainingQty)

	p, err := f.ledger.GetProduct(f.ctx, f.chain.ID)
	require.NoError(t, err)
	assert.Equal(t, types.Units(12), p.StockQty)
	assert.True(t, p.UnitCost.Equal(types.MustMoney("5")))

	updated, err := f.sales.Get(f.ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, types.Units(7), updated.Lines[0].ReturnedQty)
	assert.True(t, updated.Lines[0].PendingReturnQty.IsZero())
	assert.True(t, updated.Balance().Equal(types.MustMoney("360")))

	_, err = f.returns.Approve(f.ctx, doc.ID)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeIllegalTransition, appErr.Code)
}

func TestReturn_CannotClaimMoreThanSold(t *testing.T) {
	f := newFixture(t)
	sale := f.sell15(t)
	f.request(t, sale, 10)

	doc := return_request.New(sale.ID, "")
	doc.AddLine(1, types.Units(6))
	err := f.returns.Create(f.ctx, doc)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeValidation, appErr.Code)
	assert.Equal(t, types.Units(5), appErr.Details["returnable"])
}

func TestReturn_RejectReleasesClaim(t *testing.T) {
	f := newFixture(t)
	sale := f.sell15(t)
	doc := f.request(t, sale, 15)

	rejected, err := f.returns.Reject(f.ctx, doc.ID, "used part")
	require.NoError(t, err)
	assert.Equal(t, return_request.StatusRejected, rejected.Status)
	assert.Equal(t, "used part", rejected.RejectReason)

	updated, err := f.sales.Get(f.ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, types.Units(15), updated.Lines[0].Returnable())

	p, err := f.ledger.GetProduct(f.ctx, f.chain.ID)
	require.NoError(t, err)
	assert.Equal(t, types.Units(5), p.StockQty)
}

func TestReturn_LotOverflowFailsWholeReturn(t *testing.T) {
	f := newFixture(t)
	sale := f.sell15(t)
	doc := f.request(t, sale, 15)

	// L1 looks full again while its units are still with the customer.
	lots, err := f.ledger.ListLots(f.ctx, f.chain.ID)
	require.NoError(t, err)
	bad := lots[0]
	bad.RemainingQty = bad.OriginalQty
	require.NoError(t, f.repo.UpdateLot(f.ctx, &bad))

	_, err = f.returns.Approve(f.ctx, doc.ID)
	require.True(t, apperror.IsLotOverflow(err), "got %v", err)

	got, err := f.returns.Get(f.ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, return_request.StatusRequested, got.Status)

	updated, err := f.sales.Get(f.ctx, sale.ID)
	require.NoError(t, err)
	assert.True(t, updated.Lines[0].ReturnedQty.IsZero())

	lots, err = f.ledger.ListLots(f.ctx, f.chain.ID)
	require.NoError(t, err)
	assert.Equal(t, types.Units(10), lots[0].RemainingQty)
	assert.Equal(t, types.Units(5), lots[1].RemainingQty)
}

func TestReturn_Validation(t *testing.T) {
	f := newFixture(t)
	sale := f.sell15(t)

	doc := return_request.New(sale.ID, "")
	err := f.returns.Create(f.ctx, doc)
	require.Error(t, err, "no lines")

	doc = return_request.New(sale.ID, "")
	doc.AddLine(1, types.Units(1))
	doc.AddLine(1, types.Units(1))
	require.Error(t, f.returns.Create(f.ctx, doc), "same sale line twice")

	doc = return_request.New(sale.ID, "")
	doc.AddLine(2, types.Units(1))
	require.Error(t, f.returns.Create(f.ctx, doc), "unknown sale line")
}
