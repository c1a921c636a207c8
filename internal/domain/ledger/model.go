// Package ledger implements the lot-based FIFO inventory ledger.
//
// Every stock mutation (intake, sale, correction, return) goes through Service,
// which keeps a product's aggregate stock and effective cost consistent with
// its lots inside a single transaction.
package ledger

import (
	"context"
	"time"

	"motoledger/internal/core/apperror"
	"motoledger/internal/core/entity"
	"motoledger/internal/core/id"
	"motoledger/internal/core/types"
)

// Product is the catalog item whose stock is tracked in lots.
// StockQty and UnitCost are derived from lots and only written by the ledger.
type Product struct {
	entity.BaseEntity

	SKU        string         `db:"sku" json:"sku"`
	Name       string         `db:"name" json:"name"`
	StockQty   types.Quantity `db:"stock_qty" json:"stockQty"`
	UnitCost   types.Money    `db:"unit_cost" json:"unitCost"`
	SalePrice  types.Money    `db:"sale_price" json:"salePrice"`
	PriceFloor types.Money    `db:"price_floor" json:"priceFloor"`
	CreatedAt  time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updatedAt"`
}

// NewProduct creates a product with no stock.
func NewProduct(sku, name string, salePrice, priceFloor types.Money) *Product {
	now := time.Now().UTC()
	return &Product{
		BaseEntity: entity.NewBaseEntity(),
		SKU:        sku,
		Name:       name,
		UnitCost:   types.Zero(),
		SalePrice:  salePrice,
		PriceFloor: priceFloor,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Validate implements entity.Validatable.
func (p *Product) Validate(ctx context.Context) error {
	if p.SKU == "" {
		return apperror.NewValidation("sku is required").WithDetail("field", "sku")
	}
	if p.Name == "" {
		return apperror.NewValidation("name is required").WithDetail("field", "name")
	}
	return validatePricing(p.SalePrice, p.PriceFloor)
}

func validatePricing(salePrice, floor types.Money) error {
	if floor.IsNegative() {
		return apperror.NewValidation("price floor cannot be negative").WithDetail("field", "priceFloor")
	}
	if salePrice.LessThan(floor) {
		return apperror.NewValidation("sale price is below price floor").
			WithDetail("salePrice", salePrice.String()).
			WithDetail("priceFloor", floor.String())
	}
	return nil
}

// Lot is a batch of received stock with its own acquisition cost.
type Lot struct {
	entity.BaseEntity

	ProductID    id.ID          `db:"product_id" json:"productId"`
	OriginalQty  types.Quantity `db:"original_qty" json:"originalQty"`
	RemainingQty types.Quantity `db:"remaining_qty" json:"remainingQty"`
	UnitCost     types.Money    `db:"unit_cost" json:"unitCost"`
	ReceivedAt   time.Time      `db:"received_at" json:"receivedAt"`
	State        LotState       `db:"state" json:"state"`
	SourceRef    string         `db:"source_ref" json:"sourceRef"`
	CreatedAt    time.Time      `db:"created_at" json:"createdAt"`
}

// NewLot creates an active lot holding its full received quantity.
func NewLot(productID id.ID, qty types.Quantity, unitCost types.Money, receivedAt time.Time, sourceRef string) (*Lot, error) {
	if !qty.IsPositive() {
		return nil, apperror.NewValidation("lot quantity must be positive").WithDetail("quantity", qty)
	}
	if qty > types.MaxQuantity {
		return nil, apperror.NewValidation("lot quantity exceeds the maximum").
			WithDetail("quantity", qty).
			WithDetail("max", types.MaxQuantity)
	}
	if unitCost.IsNegative() {
		return nil, apperror.NewValidation("unit cost cannot be negative").WithDetail("unitCost", unitCost.String())
	}
	return &Lot{
		BaseEntity:   entity.NewBaseEntity(),
		ProductID:    productID,
		OriginalQty:  qty,
		RemainingQty: qty,
		UnitCost:     unitCost,
		ReceivedAt:   receivedAt.UTC(),
		State:        LotActive,
		SourceRef:    sourceRef,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// Headroom is how much can still be re-credited before the lot is full.
func (l *Lot) Headroom() types.Quantity {
	return l.OriginalQty - l.RemainingQty
}

// IsActive reports whether the lot still holds stock.
func (l *Lot) IsActive() bool {
	return l.State == LotActive && l.RemainingQty.IsPositive()
}

// take decrements remaining. Over-allocation is an internal error: plans never exceed remaining.
func (l *Lot) take(qty types.Quantity) error {
	if !qty.IsPositive() || qty > l.RemainingQty {
		return apperror.NewInternal(nil).
			WithDetail("lot_id", l.ID.String()).
			WithDetail("remaining", l.RemainingQty).
			WithDetail("requested", qty)
	}
	l.RemainingQty -= qty
	return l.syncState()
}

// restore increments remaining, bounded by the original quantity.
func (l *Lot) restore(qty types.Quantity) error {
	if qty > l.Headroom() {
		return apperror.NewLotOverflow(l.ID.String(), l.OriginalQty, l.RemainingQty, qty)
	}
	l.RemainingQty += qty
	return l.syncState()
}

func (l *Lot) syncState() error {
	want := LotExhausted
	if l.RemainingQty.IsPositive() {
		want = LotActive
	}
	if want == l.State {
		return nil
	}
	next, err := LotStates.Transition(l.State, want)
	if err != nil {
		return err
	}
	l.State = next
	return nil
}

// AllocationLine is one (lot, quantity, unit cost) tuple of a plan or record.
type AllocationLine struct {
	LotID      id.ID          `db:"lot_id" json:"lotId"`
	Quantity   types.Quantity `db:"quantity" json:"quantity"`
	UnitCost   types.Money    `db:"unit_cost" json:"unitCost"`
	ReceivedAt time.Time      `db:"received_at" json:"receivedAt"`
	// LotVersion is the lot version observed while planning.
	LotVersion int `db:"-" json:"lotVersion,omitempty"`
}

// Cost returns quantity * unit cost.
func (l AllocationLine) Cost() types.Money {
	return l.Quantity.Cost(l.UnitCost)
}

// AllocationPlan is the result of FIFO planning. It has no side effects until committed.
type AllocationPlan struct {
	ProductID id.ID            `json:"productId"`
	Requested types.Quantity   `json:"requested"`
	Lines     []AllocationLine `json:"lines"`
	PlannedAt time.Time        `json:"plannedAt"`
}

// TotalQuantity sums the plan lines.
func (p *AllocationPlan) TotalQuantity() types.Quantity {
	var total types.Quantity
	for _, l := range p.Lines {
		total += l.Quantity
	}
	return total
}

// TotalCost sums line costs.
func (p *AllocationPlan) TotalCost() types.Money {
	total := types.Zero()
	for _, l := range p.Lines {
		total = total.Add(l.Cost())
	}
	return total
}

// AllocationRecord is the immutable trace of a committed consumption.
type AllocationRecord struct {
	ID         id.ID            `db:"id" json:"id"`
	ProductID  id.ID            `db:"product_id" json:"productId"`
	ContextRef string           `db:"context_ref" json:"contextRef"`
	Quantity   types.Quantity   `db:"quantity" json:"quantity"`
	TotalCost  types.Money      `db:"total_cost" json:"totalCost"`
	Lines      []AllocationLine `db:"-" json:"lines"`
	CreatedBy  string           `db:"created_by" json:"createdBy"`
	CreatedAt  time.Time        `db:"created_at" json:"createdAt"`
}

// Line returns the record line for a lot.
func (r *AllocationRecord) Line(lotID id.ID) (AllocationLine, bool) {
	for _, l := range r.Lines {
		if l.LotID == lotID {
			return l, true
		}
	}
	return AllocationLine{}, false
}

// ReversalLine re-credits quantity to one lot.
type ReversalLine struct {
	LotID    id.ID          `db:"lot_id" json:"lotId"`
	Quantity types.Quantity `db:"quantity" json:"quantity"`
}

// Reversal records a (partial or full) re-credit of an allocation.
type Reversal struct {
	ID           id.ID          `db:"id" json:"id"`
	AllocationID id.ID          `db:"allocation_id" json:"allocationId"`
	ProductID    id.ID          `db:"product_id" json:"productId"`
	ContextRef   string         `db:"context_ref" json:"contextRef"`
	Quantity     types.Quantity `db:"quantity" json:"quantity"`
	Lines        []ReversalLine `db:"-" json:"lines"`
	CreatedBy    string         `db:"created_by" json:"createdBy"`
	CreatedAt    time.Time      `db:"created_at" json:"createdAt"`
}

// ReversalResult is returned to callers of Reverse.
type ReversalResult struct {
	Reversal      *Reversal      `json:"reversal"`
	Lots          []Lot          `json:"lots"`
	StockQty      types.Quantity `json:"stockQty"`
	UnitCost      types.Money    `json:"unitCost"`
	FullyReversed bool           `json:"fullyReversed"`
}

// Drift is the outcome of a consistency check on a product.
type Drift struct {
	ProductID     id.ID          `json:"productId"`
	StockQty      types.Quantity `json:"stockQty"`
	LotsRemaining types.Quantity `json:"lotsRemaining"`
	Difference    types.Quantity `json:"difference"`
	ExpectedCost  types.Money    `json:"expectedCost"`
	UnitCost      types.Money    `json:"unitCost"`
	BadLots       []id.ID        `json:"badLots,omitempty"`
}

// Consistent reports whether aggregates match the lots.
func (d *Drift) Consistent() bool {
	return d.Difference.IsZero() && d.ExpectedCost.Equal(d.UnitCost) && len(d.BadLots) == 0
}
