package reports

import (
	"context"
)

// Source reads valuation data. Rows come back ordered by SKU, unpaginated.
type Source interface {
	ValuationRows(ctx context.Context, filter ValuationFilter) ([]ValuationRow, error)
}
