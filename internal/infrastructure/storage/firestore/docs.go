package firestore

import (
	"fmt"
	"time"

	"motoledger/internal/core/entity"
	"motoledger/internal/core/id"
	"motoledger/internal/core/types"
	"motoledger/internal/domain/ledger"
)

// Firestore DTOs. Domain structs are never stored directly: money is kept as a
// decimal string and quantities as scaled integers so no precision is lost.

type productDoc struct {
	ID         string    `firestore:"id"`
	SKU        string    `firestore:"sku"`
	Name       string    `firestore:"name"`
	NameLower  string    `firestore:"nameLower"`
	StockQty   int64     `firestore:"stockQty"`
	UnitCost   string    `firestore:"unitCost"`
	SalePrice  string    `firestore:"salePrice"`
	PriceFloor string    `firestore:"priceFloor"`
	Version    int       `firestore:"version"`
	CreatedAt  time.Time `firestore:"createdAt"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

func productToDoc(p *ledger.Product, version int) productDoc {
	return productDoc{
		ID:         p.ID.String(),
		SKU:        p.SKU,
		Name:       p.Name,
		StockQty:   p.StockQty.Int64Scaled(),
		UnitCost:   p.UnitCost.String(),
		SalePrice:  p.SalePrice.String(),
		PriceFloor: p.PriceFloor.String(),
		Version:    version,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}

func (d productDoc) toDomain() (*ledger.Product, error) {
	pid, err := id.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("product id %q: %w", d.ID, err)
	}
	unitCost, err := types.NewMoneyFromString(d.UnitCost)
	if err != nil {
		return nil, fmt.Errorf("product %s unit cost: %w", d.ID, err)
	}
	salePrice, err := types.NewMoneyFromString(d.SalePrice)
	if err != nil {
		return nil, fmt.Errorf("product %s sale price: %w", d.ID, err)
	}
	floor, err := types.NewMoneyFromString(d.PriceFloor)
	if err != nil {
		return nil, fmt.Errorf("product %s price floor: %w", d.ID, err)
	}
	return &ledger.Product{
		BaseEntity: entity.BaseEntity{ID: pid, Version: d.Version},
		SKU:        d.SKU,
		Name:       d.Name,
		StockQty:   types.NewQuantityFromInt64Scaled(d.StockQty),
		UnitCost:   unitCost,
		SalePrice:  salePrice,
		PriceFloor: floor,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}, nil
}

type lotDoc struct {
	ID           string    `firestore:"id"`
	ProductID    string    `firestore:"productId"`
	OriginalQty  int64     `firestore:"originalQty"`
	RemainingQty int64     `firestore:"remainingQty"`
	UnitCost     string    `firestore:"unitCost"`
	ReceivedAt   time.Time `firestore:"receivedAt"`
	State        string    `firestore:"state"`
	SourceRef    string    `firestore:"sourceRef"`
	Version      int       `firestore:"version"`
	CreatedAt    time.Time `firestore:"createdAt"`
}

func lotToDoc(l *ledger.Lot, version int) lotDoc {
	return lotDoc{
		ID:           l.ID.String(),
		ProductID:    l.ProductID.String(),
		OriginalQty:  l.OriginalQty.Int64Scaled(),
		RemainingQty: l.RemainingQty.Int64Scaled(),
		UnitCost:     l.UnitCost.String(),
		ReceivedAt:   l.ReceivedAt,
		State:        string(l.State),
		SourceRef:    l.SourceRef,
		Version:      version,
		CreatedAt:    l.CreatedAt,
	}
}

func (d lotDoc) toDomain() (ledger.Lot, error) {
	lotID, err := id.Parse(d.ID)
	if err != nil {
		return ledger.Lot{}, fmt.Errorf("lot id %q: %w", d.ID, err)
	}
	productID, err := id.Parse(d.ProductID)
	if err != nil {
		return ledger.Lot{}, fmt.Errorf("lot %s product id: %w", d.ID, err)
	}
	cost, err := types.NewMoneyFromString(d.UnitCost)
	if err != nil {
		return ledger.Lot{}, fmt.Errorf("lot %s unit cost: %w", d.ID, err)
	}
	state, err := ledger.LotStates.Parse(d.State)
	if err != nil {
		return ledger.Lot{}, err
	}
	return ledger.Lot{
		BaseEntity:   entity.BaseEntity{ID: lotID, Version: d.Version},
		ProductID:    productID,
		OriginalQty:  types.NewQuantityFromInt64Scaled(d.OriginalQty),
		RemainingQty: types.NewQuantityFromInt64Scaled(d.RemainingQty),
		UnitCost:     cost,
		ReceivedAt:   d.ReceivedAt,
		State:        state,
		SourceRef:    d.SourceRef,
		CreatedAt:    d.CreatedAt,
	}, nil
}

type allocationLineDoc struct {
	LotID      string    `firestore:"lotId"`
	Quantity   int64     `firestore:"quantity"`
	UnitCost   string    `firestore:"unitCost"`
	ReceivedAt time.Time `firestore:"receivedAt"`
}

// allocationDoc embeds its lines; records are immutable and small.
type allocationDoc struct {
	ID         string              `firestore:"id"`
	ProductID  string              `firestore:"productId"`
	ContextRef string              `firestore:"contextRef"`
	Quantity   int64               `firestore:"quantity"`
	TotalCost  string              `firestore:"totalCost"`
	Lines      []allocationLineDoc `firestore:"lines"`
	CreatedBy  string              `firestore:"createdBy"`
	CreatedAt  time.Time           `firestore:"createdAt"`
}

func allocationToDoc(r *ledger.AllocationRecord) allocationDoc {
	d := allocationDoc{
		ID:         r.ID.String(),
		ProductID:  r.ProductID.String(),
		ContextRef: r.ContextRef,
		Quantity:   r.Quantity.Int64Scaled(),
		TotalCost:  r.TotalCost.String(),
		Lines:      make([]allocationLineDoc, 0, len(r.Lines)),
		CreatedBy:  r.CreatedBy,
		CreatedAt:  r.CreatedAt,
	}
	for _, l := range r.Lines {
		d.Lines = append(d.Lines, allocationLineDoc{
			LotID:      l.LotID.String(),
			Quantity:   l.Quantity.Int64Scaled(),
			UnitCost:   l.UnitCost.String(),
			ReceivedAt: l.ReceivedAt,
		})
	}
	return d
}

func (d allocationDoc) toDomain() (ledger.AllocationRecord, error) {
	recID, err := id.Parse(d.ID)
	if err != nil {
		return ledger.AllocationRecord{}, fmt.Errorf("allocation id %q: %w", d.ID, err)
	}
	productID, err := id.Parse(d.ProductID)
	if err != nil {
		return ledger.AllocationRecord{}, fmt.Errorf("allocation %s product id: %w", d.ID, err)
	}
	total, err := types.NewMoneyFromString(d.TotalCost)
	if err != nil {
		return ledger.AllocationRecord{}, fmt.Errorf("allocation %s total cost: %w", d.ID, err)
	}
	rec := ledger.AllocationRecord{
		ID:         recID,
		ProductID:  productID,
		ContextRef: d.ContextRef,
		Quantity:   types.NewQuantityFromInt64Scaled(d.Quantity),
		TotalCost:  total,
		Lines:      make([]ledger.AllocationLine, 0, len(d.Lines)),
		CreatedBy:  d.CreatedBy,
		CreatedAt:  d.CreatedAt,
	}
	for _, l := range d.Lines {
		lotID, err := id.Parse(l.LotID)
		if err != nil {
			return ledger.AllocationRecord{}, fmt.Errorf("allocation %s lot id: %w", d.ID, err)
		}
		cost, err := types.NewMoneyFromString(l.UnitCost)
		if err != nil {
			return ledger.AllocationRecord{}, fmt.Errorf("allocation %s line cost: %w", d.ID, err)
		}
		rec.Lines = append(rec.Lines, ledger.AllocationLine{
			LotID:      lotID,
			Quantity:   types.NewQuantityFromInt64Scaled(l.Quantity),
			UnitCost:   cost,
			ReceivedAt: l.ReceivedAt,
		})
	}
	return rec, nil
}

type reversalLineDoc struct {
	LotID    string `firestore:"lotId"`
	Quantity int64  `firestore:"quantity"`
}

type reversalDoc struct {
	ID           string            `firestore:"id"`
	AllocationID string            `firestore:"allocationId"`
	ProductID    string            `firestore:"productId"`
	ContextRef   string            `firestore:"contextRef"`
	Quantity     int64             `firestore:"quantity"`
	Lines        []reversalLineDoc `firestore:"lines"`
	CreatedBy    string            `firestore:"createdBy"`
	CreatedAt    time.Time         `firestore:"createdAt"`
}

func reversalToDoc(r *ledger.Reversal) reversalDoc {
	d := reversalDoc{
		ID:           r.ID.String(),
		AllocationID: r.AllocationID.String(),
		ProductID:    r.ProductID.String(),
		ContextRef:   r.ContextRef,
		Quantity:     r.Quantity.Int64Scaled(),
		Lines:        make([]reversalLineDoc, 0, len(r.Lines)),
		CreatedBy:    r.CreatedBy,
		CreatedAt:    r.CreatedAt,
	}
	for _, l := range r.Lines {
		d.Lines = append(d.Lines, reversalLineDoc{LotID: l.LotID.String(), Quantity: l.Quantity.Int64Scaled()})
	}
	return d
}

func (d reversalDoc) toDomain() (ledger.Reversal, error) {
	revID, err := id.Parse(d.ID)
	if err != nil {
		return ledger.Reversal{}, fmt.Errorf("reversal id %q: %w", d.ID, err)
	}
	allocationID, err := id.Parse(d.AllocationID)
	if err != nil {
		return ledger.Reversal{}, fmt.Errorf("reversal %s allocation id: %w", d.ID, err)
	}
	productID, err := id.Parse(d.ProductID)
	if err != nil {
		return ledger.Reversal{}, fmt.Errorf("reversal %s product id: %w", d.ID, err)
	}
	rev := ledger.Reversal{
		ID:           revID,
		AllocationID: allocationID,
		ProductID:    productID,
		ContextRef:   d.ContextRef,
		Quantity:     types.NewQuantityFromInt64Scaled(d.Quantity),
		Lines:        make([]ledger.ReversalLine, 0, len(d.Lines)),
		CreatedBy:    d.CreatedBy,
		CreatedAt:    d.CreatedAt,
	}
	for _, l := range d.Lines {
		lotID, err := id.Parse(l.LotID)
		if err != nil {
			return ledger.Reversal{}, fmt.Errorf("reversal %s lot id: %w", d.ID, err)
		}
		rev.Lines = append(rev.Lines, ledger.ReversalLine{
			LotID:    lotID,
			Quantity: types.NewQuantityFromInt64Scaled(l.Quantity),
		})
	}
	return rev, nil
}
