package dto

import (
	"motoledger/internal/core/id"
	"motoledger/internal/domain/reports"
)

// ValuationQuery filters the valuation report.
type ValuationQuery struct {
	Search      string   `form:"search"`
	ProductIDs  []string `form:"productId" binding:"omitempty,dive,uuid"`
	InStockOnly bool     `form:"inStockOnly"`
	DriftOnly   bool     `form:"driftOnly"`
	Limit       int      `form:"limit" binding:"omitempty,min=1,max=1000"`
	Offset      int      `form:"offset" binding:"omitempty,min=0"`
}

// ToFilter builds the report filter.
func (q ValuationQuery) ToFilter() reports.ValuationFilter {
	f := reports.ValuationFilter{
		Search:      q.Search,
		InStockOnly: q.InStockOnly,
		DriftOnly:   q.DriftOnly,
		Limit:       q.Limit,
		Offset:      q.Offset,
	}
	for _, raw := range q.ProductIDs {
		f.ProductIDs = append(f.ProductIDs, id.MustParse(raw))
	}
	return f
}
