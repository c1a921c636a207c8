package reports_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"motoledger/internal/core/types"
	"motoledger/internal/domain/ledger"
	"motoledger/internal/domain/reports"
	"motoledger/internal/infrastructure/storage/memory"
)

type fixture struct {
	ctx    context.Context
	repo   *memory.LedgerRepo
	ledger *ledger.Service
	svc    *reports.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	repo := memory.NewLedgerRepo(store)
	l := ledger.NewService(repo, memory.NewTxManager(store))
	return &fixture{
		ctx:    context.Background(),
		repo:   repo,
		ledger: l,
		svc:    reports.NewService(reports.NewLedgerSource(l)),
	}
}

func (f *fixture) stocked(t *testing.T, sku string, lots ...string) *ledger.Product {
	t.Helper()
	p := ledger.NewProduct(sku, "Part "+sku, types.MustMoney("50"), types.MustMoney("10"))
	require.NoError(t, f.ledger.CreateProduct(f.ctx, p))
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	for i, cost := range lots {
		_, err := f.ledger.ReceiveLot(f.ctx, ledger.ReceiveInput{
			ProductID:  p.ID,
			Quantity:   types.Units(10),
			UnitCost:   types.MustMoney(cost),
			ReceivedAt: at.AddDate(0, 0, i),
		})
		require.NoError(t, err)
	}
	return p
}

func TestValuation(t *testing.T) {
	f := newFixture(t)
	chain := f.stocked(t, "CHN-520", "5", "7")
	f.stocked(t, "OIL-10W40")
	_, err := f.ledger.Consume(f.ctx, chain.ID, types.Units(15), "credit:CR-1")
	require.NoError(t, err)

	report, err := f.svc.Valuation(f.ctx, reports.ValuationFilter{})
	require.NoError(t, err)
	require.Len(t, report.Items, 2)
	assert.Equal(t, 2, report.TotalItems)

	item := report.Items[0]
	assert.Equal(t, "CHN-520", item.SKU)
	assert.Equal(t, types.Units(5), item.StockQty)
	assert.Equal(t, 1, item.ActiveLots)
	assert.True(t, item.FIFOValue.Equal(types.MustMoney("35")))
	assert.True(t, item.BookValue.Equal(types.MustMoney("35")))
	assert.True(t, item.Drift.IsZero())
	assert.Zero(t, report.DriftCount)

	inStock, err := f.svc.Valuation(f.ctx, reports.ValuationFilter{InStockOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 1, inStock.TotalItems)

	paged, err := f.svc.Valuation(f.ctx, reports.ValuationFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged.Items, 1)
	assert.Equal(t, "OIL-10W40", paged.Items[0].SKU)
	assert.Equal(t, 2, paged.TotalItems)
	assert.True(t, paged.TotalFIFOValue.Equal(types.MustMoney("35")))
}

func TestValuation_ReportsDrift(t *testing.T) {
	f := newFixture(t)
	p := f.stocked(t, "SPK-IRI", "3")
	f.stocked(t, "CHN-428", "4")

	broken, err := f.repo.GetProduct(f.ctx, p.ID)
	require.NoError(t, err)
	broken.StockQty = types.Units(12)
	require.NoError(t, f.repo.UpdateProduct(f.ctx, broken))

	report, err := f.svc.Valuation(f.ctx, reports.ValuationFilter{DriftOnly: true})
	require.NoError(t, err)
	require.Len(t, report.Items, 1)
	assert.Equal(t, "SPK-IRI", report.Items[0].SKU)
	assert.Equal(t, types.Units(2), report.Items[0].Drift)
	assert.Equal(t, 1, report.DriftCount)
}

func TestWriteXLSX(t *testing.T) {
	f := newFixture(t)
	f.stocked(t, "CHN-520", "5", "7")
	report, err := f.svc.Valuation(f.ctx, reports.ValuationFilter{})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, reports.WriteXLSX(&buf, report))

	book, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer book.Close()

	rows, err := book.GetRows("Valuation")
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(rows), 4)
	assert.Equal(t, "SKU", rows[0][0])
	assert.Equal(t, "CHN-520", rows[1][0])
	assert.Equal(t, "20", rows[1][2])
	assert.Equal(t, "Total", rows[3][0])
}
