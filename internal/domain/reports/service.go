package reports

import (
	"context"
	"fmt"
	"time"

	"motoledger/internal/core/types"
)

// Service provides report generation operations.
type Service struct {
	source Source
	now    func() time.Time
}

// NewService creates a new reports service.
func NewService(source Source) *Service {
	return &Service{source: source, now: func() time.Time { return time.Now().UTC() }}
}

// Valuation builds the inventory valuation report. Totals cover every
// matching product, not just the returned page.
func (s *Service) Valuation(ctx context.Context, filter ValuationFilter) (*Valuation, error) {
	// Set default pagination
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	if filter.Limit > 1000 {
		filter.Limit = 1000
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	rows, err := s.source.ValuationRows(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("get valuation rows: %w", err)
	}

	report := &Valuation{
		GeneratedAt:    s.now(),
		Items:          make([]ValuationItem, 0, min(len(rows), filter.Limit)),
		TotalQuantity:  0,
		TotalFIFOValue: types.Zero(),
		TotalBookValue: types.Zero(),
	}
	matched := 0
	for _, row := range rows {
		item := valuationItem(row)
		if filter.InStockOnly && item.StockQty.IsZero() && item.ActiveLots == 0 {
			continue
		}
		if filter.DriftOnly && item.Drift.IsZero() {
			continue
		}

		report.TotalQuantity += item.StockQty
		report.TotalFIFOValue = report.TotalFIFOValue.Add(item.FIFOValue)
		report.TotalBookValue = report.TotalBookValue.Add(item.BookValue)
		if !item.Drift.IsZero() {
			report.DriftCount++
		}

		if matched >= filter.Offset && len(report.Items) < filter.Limit {
			report.Items = append(report.Items, item)
		}
		matched++
	}
	report.TotalItems = matched
	return report, nil
}

func valuationItem(row ValuationRow) ValuationItem {
	return ValuationItem{
		ValuationRow: row,
		BookValue:    row.StockQty.Cost(row.UnitCost),
		Drift:        row.StockQty - row.LotsRemaining,
	}
}
