package credit_sale_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"motoledger/internal/core/apperror"
	"motoledger/internal/core/numerator"
	"motoledger/internal/core/types"
	"motoledger/internal/domain/documents/credit_sale"
	"motoledger/internal/domain/ledger"
	"motoledger/internal/infrastructure/storage/memory"
)

var day1 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	ctx    context.Context
	ledger *ledger.Service
	svc    *credit_sale.Service
	chain  *ledger.Product
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	txm := memory.NewTxManager(store)
	l := ledger.NewService(memory.NewLedgerRepo(store), txm)
	repo := memory.NewDocumentRepo(store, "doc_credit_sales", func() *credit_sale.CreditSale { return &credit_sale.CreditSale{} })
	svc, err := credit_sale.NewService(repo, txm, &numerator.MockGenerator{}, l, nil)
	require.NoError(t, err)

	f := &fixture{ctx: context.Background(), ledger: l, svc: svc}
	f.chain = ledger.NewProduct("CHN-520", "Drive chain 520", types.MustMoney("45"), types.MustMoney("20"))
	require.NoError(t, l.CreateProduct(f.ctx, f.chain))
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

func (f *fixture) sale(qty int64, price string) *credit_sale.CreditSale {
	doc := credit_sale.New("Ivan Petrov")
	doc.AddLine(f.chain.ID, types.Units(qty), types.MustMoney(price))
	return doc
}

func TestCreditSale_CreateConsumesFIFO(t *testing.T) {
	f := newFixture(t)

	doc := f.sale(15, "45")
	require.NoError(t, f.svc.Create(f.ctx, doc))
	assert.Equal(t, credit_sale.StatusOpen, doc.Status)
	assert.True(t, doc.Total.Equal(types.MustMoney("675")))
	// 10 @ 5 + 5 @ 7
	assert.True(t, doc.CostOfGoods.Equal(types.MustMoney("85")))

	rec, err := f.ledger.GetAllocation(f.ctx, doc.Lines[0].AllocationID)
	require.NoError(t, err)
	assert.Equal(t, credit_sale.ContextRef(doc.Number), rec.ContextRef)

	p, err := f.ledger.GetProduct(f.ctx, f.chain.ID)
	require.NoError(t, err)
	assert.Equal(t, types.Units(5), p.StockQty)
	assert.True(t, p.UnitCost.Equal(types.MustMoney("7")))
}

func TestCreditSale_NothingAppliedOnFailure(t *testing.T) {
	f := newFixture(t)

	t.Run("price below floor", func(t *testing.T) {
		doc := f.sale(1, "19")
		err := f.svc.Create(f.ctx, doc)
		appErr, ok := apperror.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperror.CodePriceBelowFloor, appErr.Code)
		assert.Equal(t, 1, appErr.Details["lineNo"])
	})

	t.Run("second line short", func(t *testing.T) {
		doc := f.sale(8, "45")
		doc.AddLine(f.chain.ID, types.Units(13), types.MustMoney("45"))
		err := f.svc.Create(f.ctx, doc)
		require.True(t, apperror.IsInsufficientStock(err))
		appErr, _ := apperror.AsAppError(err)
		assert.Equal(t, types.Units(1), appErr.Details["shortfall"])
	})

	p, err := f.ledger.GetProduct(f.ctx, f.chain.ID)
	require.NoError(t, err)
	assert.Equal(t, types.Units(20), p.StockQty)

	drift, err := f.ledger.Verify(f.ctx, f.chain.ID)
	require.NoError(t, err)
	assert.True(t, drift.Consistent())
}

func TestCreditSale_Payments(t *testing.T) {
	f := newFixture(t)
	doc := f.sale(2, "45")
	require.NoError(t, f.svc.Create(f.ctx, doc))

	got, err := f.svc.RecordPayment(f.ctx, doc.ID, credit_sale.PaymentInput{Amount: types.MustMoney("50"), Method: "cash"})
	require.NoError(t, err)
	assert.Equal(t, credit_sale.StatusOpen, got.Status)
	assert.True(t, got.Balance().Equal(types.MustMoney("40")))

	_, err = f.svc.RecordPayment(f.ctx, doc.ID, credit_sale.PaymentInput{Amount: types.MustMoney("40.01")})
	require.Error(t, err, "overpayment")

	_, err = f.svc.RecordPayment(f.ctx, doc.ID, credit_sale.PaymentInput{Amount: types.MustMoney("0")})
	require.Error(t, err)

	got, err = f.svc.RecordPayment(f.ctx, doc.ID, credit_sale.PaymentInput{Amount: types.MustMoney("40"), Method: "card"})
	require.NoError(t, err)
	assert.Equal(t, credit_sale.StatusSettled, got.Status)
	assert.Len(t, got.Payments, 2)

	_, err = f.svc.RecordPayment(f.ctx, doc.ID, credit_sale.PaymentInput{Amount: types.MustMoney("1")})
	assert.Error(t, err)

	_, err = f.svc.Cancel(f.ctx, doc.ID, "")
	assert.Error(t, err)
}

func TestCreditSale_CancelRestoresStock(t *testing.T) {
	f := newFixture(t)
	doc := f.sale(15, "45")
	require.NoError(t, f.svc.Create(f.ctx, doc))

	got, err := f.svc.Cancel(f.ctx, doc.ID, "customer changed mind")
	require.NoError(t, err)
	assert.Equal(t, credit_sale.StatusCancelled, got.Status)
	assert.Equal(t, "customer changed mind", got.Comment)

	p, err := f.ledger.GetProduct(f.ctx, f.chain.ID)
	require.NoError(t, err)
	assert.Equal(t, types.Units(20), p.StockQty)
	assert.True(t, p.UnitCost.Equal(types.MustMoney("5")))

	_, err = f.svc.Cancel(f.ctx, doc.ID, "")
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeIllegalTransition, appErr.Code)
}

func TestCreditSale_CancelWithPayments(t *testing.T) {
	f := newFixture(t)
	doc := f.sale(1, "45")
	require.NoError(t, f.svc.Create(f.ctx, doc))
	_, err := f.svc.RecordPayment(f.ctx, doc.ID, credit_sale.PaymentInput{Amount: types.MustMoney("10")})
	require.NoError(t, err)

	_, err = f.svc.Cancel(f.ctx, doc.ID, "")
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeBusinessRule, appErr.Code)
}

func TestCreditSale_ReturnBookkeeping(t *testing.T) {
	doc := credit_sale.New("Walk-in")
	doc.AddLine(ledger.NewProduct("X", "X", types.Zero(), types.Zero()).ID, types.Units(4), types.MustMoney("10"))

	require.NoError(t, doc.ReserveReturn(1, types.Units(3)))
	assert.Error(t, doc.ReserveReturn(1, types.Units(2)), "only 1 left")
	assert.Error(t, doc.ReserveReturn(2, types.Units(1)), "unknown line")

	require.NoError(t, doc.CompleteReturn(1, types.Units(2)))
	require.NoError(t, doc.ReleaseReturn(1, types.Units(1)))
	assert.Equal(t, types.Units(2), doc.Lines[0].ReturnedQty)
	assert.True(t, doc.Lines[0].PendingReturnQty.IsZero())
	assert.Equal(t, types.Units(2), doc.Lines[0].Returnable())
	assert.True(t, doc.Balance().Equal(types.MustMoney("20")))
}
