package memory

import (
	"context"
	"slices"
	"strings"

	"motoledger/internal/core/apperror"
	"motoledger/internal/core/id"
	"motoledger/internal/domain/ledger"
)

const (
	tableProducts    = "product"
	tableLots        = "lot"
	tableAllocations = "allocation"
	tableReversals   = "reversal"
)

// LedgerRepo implements ledger.Repository.
type LedgerRepo struct {
	store *Store
}

// NewLedgerRepo creates the repository.
func NewLedgerRepo(store *Store) *LedgerRepo {
	return &LedgerRepo{store: store}
}

var _ ledger.Repository = (*LedgerRepo)(nil)

// --- products ---

func (r *LedgerRepo) GetProduct(ctx context.Context, productID id.ID) (*ledger.Product, error) {
	row, ok := r.store.get(ctx, tableProducts, productID)
	if !ok {
		return nil, apperror.NewNotFound("product", productID.String())
	}
	p := row.value.(ledger.Product)
	p.Version = row.version
	return &p, nil
}

func (r *LedgerRepo) CreateProduct(ctx context.Context, p *ledger.Product) error {
	var dup bool
	r.store.scan(ctx, tableProducts, func(_ id.ID, row row) {
		if row.value.(ledger.Product).SKU == p.SKU {
			dup = true
		}
	})
	if dup {
		return apperror.NewDuplicate("product", "sku", p.SKU)
	}
	if err := r.store.put(ctx, tableProducts, p.ID, 0, *p); err != nil {
		return err
	}
	p.Version = 1
	return nil
}

func (r *LedgerRepo) UpdateProduct(ctx context.Context, p *ledger.Product) error {
	if err := r.store.put(ctx, tableProducts, p.ID, p.Version, *p); err != nil {
		return err
	}
	p.Version++
	return nil
}

func (r *LedgerRepo) ListProducts(ctx context.Context, filter ledger.ProductFilter) ([]ledger.Product, error) {
	search := strings.ToLower(filter.Search)
	var out []ledger.Product
	r.store.scan(ctx, tableProducts, func(_ id.ID, row row) {
		p := row.value.(ledger.Product)
		p.Version = row.version
		if len(filter.IDs) > 0 && !slices.Contains(filter.IDs, p.ID) {
			return
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(p.SKU), search) &&
			!strings.Contains(strings.ToLower(p.Name), search) {
			return
		}
		if filter.InStock != nil && p.StockQty.IsPositive() != *filter.InStock {
			return
		}
		out = append(out, p)
	})

	slices.SortFunc(out, func(a, b ledger.Product) int { return strings.Compare(a.SKU, b.SKU) })
	return paginate(out, filter.Offset, filter.Limit), nil
}

// --- lots ---

func (r *LedgerRepo) lotsOf(ctx context.Context, productID id.ID, activeOnly bool) []ledger.Lot {
	var lots []ledger.Lot
	r.store.scan(ctx, tableLots, func(_ id.ID, row row) {
		l := row.value.(ledger.Lot)
		if l.ProductID != productID || (activeOnly && !l.IsActive()) {
			return
		}
		l.Version = row.version
		lots = append(lots, l)
	})
	ledger.SortFIFO(lots)
	return lots
}

func (r *LedgerRepo) ListActiveLots(ctx context.Context, productID id.ID) ([]ledger.Lot, error) {
	return r.lotsOf(ctx, productID, true), nil
}

func (r *LedgerRepo) OldestActiveLot(ctx context.Context, productID id.ID) (*ledger.Lot, error) {
	lots := r.lotsOf(ctx, productID, true)
	if len(lots) == 0 {
		return nil, nil
	}
	return &lots[0], nil
}

func (r *LedgerRepo) ListLots(ctx context.Context, productID id.ID) ([]ledger.Lot, error) {
	return r.lotsOf(ctx, productID, false), nil
}

func (r *LedgerRepo) GetLots(ctx context.Context, lotIDs []id.ID) ([]ledger.Lot, error) {
	lots := make([]ledger.Lot, 0, len(lotIDs))
	for _, lotID := range lotIDs {
		row, ok := r.store.get(ctx, tableLots, lotID)
		if !ok {
			return nil, apperror.NewNotFound("lot", lotID.String())
		}
		l := row.value.(ledger.Lot)
		l.Version = row.version
		lots = append(lots, l)
	}
	return lots, nil
}

func (r *LedgerRepo) CreateLot(ctx context.Context, lot *ledger.Lot) error {
	if err := r.store.put(ctx, tableLots, lot.ID, 0, *lot); err != nil {
		return err
	}
	lot.Version = 1
	return nil
}

func (r *LedgerRepo) UpdateLot(ctx context.Context, lot *ledger.Lot) error {
	if err := r.store.put(ctx, tableLots, lot.ID, lot.Version, *lot); err != nil {
		return err
	}
	lot.Version++
	return nil
}

// --- allocations & reversals ---

func (r *LedgerRepo) CreateAllocation(ctx context.Context, rec *ledger.AllocationRecord) error {
	c := *rec
	c.Lines = slices.Clone(rec.Lines)
	return r.store.put(ctx, tableAllocations, rec.ID, 0, c)
}

func (r *LedgerRepo) GetAllocation(ctx context.Context, allocationID id.ID) (*ledger.AllocationRecord, error) {
	row, ok := r.store.get(ctx, tableAllocations, allocationID)
	if !ok {
		return nil, apperror.NewNotFound("allocation", allocationID.String())
	}
	rec := row.value.(ledger.AllocationRecord)
	rec.Lines = slices.Clone(rec.Lines)
	return &rec, nil
}

func (r *LedgerRepo) ListAllocationsByContext(ctx context.Context, contextRef string) ([]ledger.AllocationRecord, error) {
	var out []ledger.AllocationRecord
	r.store.scan(ctx, tableAllocations, func(_ id.ID, row row) {
		rec := row.value.(ledger.AllocationRecord)
		if rec.ContextRef == contextRef {
			rec.Lines = slices.Clone(rec.Lines)
			out = append(out, rec)
		}
	})
	slices.SortFunc(out, func(a, b ledger.AllocationRecord) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return id.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (r *LedgerRepo) CreateReversal(ctx context.Context, rev *ledger.Reversal) error {
	c := *rev
	c.Lines = slices.Clone(rev.Lines)
	return r.store.put(ctx, tableReversals, rev.ID, 0, c)
}

func (r *LedgerRepo) ListReversals(ctx context.Context, allocationID id.ID) ([]ledger.Reversal, error) {
	var out []ledger.Reversal
	r.store.scan(ctx, tableReversals, func(_ id.ID, row row) {
		rev := row.value.(ledger.Reversal)
		if rev.AllocationID == allocationID {
			rev.Lines = slices.Clone(rev.Lines)
			out = append(out, rev)
		}
	})
	slices.SortFunc(out, func(a, b ledger.Reversal) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return id.Compare(a.ID, b.ID)
	})
	return out, nil
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
