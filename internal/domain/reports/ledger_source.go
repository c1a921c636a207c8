package reports

import (
	"context"

	"motoledger/internal/core/id"
	"motoledger/internal/core/types"
	"motoledger/internal/domain/ledger"
)

// LedgerReader is the part of the ledger service LedgerSource reads.
type LedgerReader interface {
	ListProducts(ctx context.Context, filter ledger.ProductFilter) ([]ledger.Product, error)
	ListLots(ctx context.Context, productID id.ID) ([]ledger.Lot, error)
}

// LedgerSource computes valuation rows product by product through the
// ledger. Used for backends without an aggregate query.
type LedgerSource struct {
	ledger   LedgerReader
	pageSize int
}

// NewLedgerSource creates a source over l.
func NewLedgerSource(l LedgerReader) *LedgerSource {
	return &LedgerSource{ledger: l, pageSize: 200}
}

var _ Source = (*LedgerSource)(nil)

// ValuationRows implements Source.
func (s *LedgerSource) ValuationRows(ctx context.Context, filter ValuationFilter) ([]ValuationRow, error) {
	var rows []ValuationRow
	for offset := 0; ; offset += s.pageSize {
		products, err := s.ledger.ListProducts(ctx, ledger.ProductFilter{
			Search: filter.Search,
			IDs:    filter.ProductIDs,
			Limit:  s.pageSize,
			Offset: offset,
		})
		if err != nil {
			return nil, err
		}
		for _, p := range products {
			lots, err := s.ledger.ListLots(ctx, p.ID)
			if err != nil {
				return nil, err
			}
			rows = append(rows, rowFromLots(p, lots))
		}
		if len(products) < s.pageSize {
			return rows, nil
		}
	}
}

func rowFromLots(p ledger.Product, lots []ledger.Lot) ValuationRow {
	row := ValuationRow{
		ProductID: p.ID,
		SKU:       p.SKU,
		Name:      p.Name,
		StockQty:  p.StockQty,
		UnitCost:  p.UnitCost,
		FIFOValue: types.Zero(),
	}
	for _, lot := range lots {
		if lot.State != ledger.LotActive {
			continue
		}
		row.ActiveLots++
		row.LotsRemaining += lot.RemainingQty
		row.FIFOValue = row.FIFOValue.Add(lot.RemainingQty.Cost(lot.UnitCost))
	}
	return row
}
