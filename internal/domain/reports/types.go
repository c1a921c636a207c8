// Package reports provides inventory valuation reports.
package reports

import (
	"time"

	"motoledger/internal/core/id"
	"motoledger/internal/core/types"
)

// ValuationFilter narrows the valuation report.
type ValuationFilter struct {
	Search     string
	ProductIDs []id.ID
	// InStockOnly drops products with no stock and no active lots.
	InStockOnly bool
	// DriftOnly keeps only products whose aggregate disagrees with their lots.
	DriftOnly bool

	Limit  int
	Offset int
}

// ValuationRow is what a Source returns per product.
type ValuationRow struct {
	ProductID     id.ID          `db:"product_id" json:"productId"`
	SKU           string         `db:"sku" json:"sku"`
	Name          string         `db:"name" json:"name"`
	StockQty      types.Quantity `db:"stock_qty" json:"stockQty"`
	UnitCost      types.Money    `db:"unit_cost" json:"unitCost"`
	LotsRemaining types.Quantity `db:"lots_remaining" json:"lotsRemaining"`
	// FIFOValue is the sum of remaining quantity times lot cost.
	FIFOValue  types.Money `db:"fifo_value" json:"fifoValue"`
	ActiveLots int         `db:"active_lots" json:"activeLots"`
}

// ValuationItem is one report line.
type ValuationItem struct {
	ValuationRow

	// BookValue is stock at the effective (oldest lot) cost.
	BookValue types.Money `json:"bookValue"`
	// Drift is StockQty minus LotsRemaining; non-zero means the ledger needs repair.
	Drift types.Quantity `json:"drift"`
}

// Valuation is the inventory valuation report.
type Valuation struct {
	GeneratedAt time.Time       `json:"generatedAt"`
	Items       []ValuationItem `json:"items"`
	TotalItems  int             `json:"totalItems"`

	TotalQuantity  types.Quantity `json:"totalQuantity"`
	TotalFIFOValue types.Money    `json:"totalFifoValue"`
	TotalBookValue types.Money    `json:"totalBookValue"`
	DriftCount     int            `json:"driftCount"`
}
