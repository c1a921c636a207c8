package firestore

import (
	"context"
	"slices"
	"strings"

	"cloud.google.com/go/firestore"

	"motoledger/internal/core/apperror"
	"motoledger/internal/core/id"
	"motoledger/internal/domain/ledger"
)

const (
	collProducts    = "products"
	collProductSKUs = "product_skus"
	collLots        = "lots"
	collAllocations = "allocations"
	collReversals   = "reversals"
)

// skuDoc reserves a SKU; Firestore has no unique indexes.
type skuDoc struct {
	ProductID string `firestore:"productId"`
}

// LedgerRepo implements ledger.Repository.
//
// Indexes: lots(productId, state, receivedAt, __name__),
// allocations(contextRef, createdAt), reversals(allocationId, createdAt).
type LedgerRepo struct {
	client *Client
	txm    *TxManager
}

// NewLedgerRepo creates the repository.
func NewLedgerRepo(client *Client, txm *TxManager) *LedgerRepo {
	return &LedgerRepo{client: client, txm: txm}
}

var _ ledger.Repository = (*LedgerRepo)(nil)

func (r *LedgerRepo) products() *firestore.CollectionRef { return r.client.Collection(collProducts) }
func (r *LedgerRepo) lots() *firestore.CollectionRef     { return r.client.Collection(collLots) }

// --- products ---

func (r *LedgerRepo) GetProduct(ctx context.Context, productID id.ID) (*ledger.Product, error) {
	d, ok, err := getDoc[productDoc](ctx, r.products().Doc(productID.String()))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.NewNotFound("product", productID.String())
	}
	return d.toDomain()
}

func (r *LedgerRepo) CreateProduct(ctx context.Context, p *ledger.Product) error {
	return r.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		skuRef := r.client.Collection(collProductSKUs).Doc(strings.ToLower(p.SKU))
		if _, taken, err := getDoc[skuDoc](ctx, skuRef); err != nil {
			return err
		} else if taken {
			return apperror.NewDuplicate("product", "sku", p.SKU)
		}
		if err := r.txm.add(ctx, skuRef, skuDoc{ProductID: p.ID.String()}); err != nil {
			return err
		}

		d := productToDoc(p, 1)
		d.NameLower = strings.ToLower(p.Name)
		if err := r.txm.put(ctx, r.products().Doc(p.ID.String()), 0, d); err != nil {
			return err
		}
		p.Version = 1
		return nil
	})
}

func (r *LedgerRepo) UpdateProduct(ctx context.Context, p *ledger.Product) error {
	d := productToDoc(p, p.Version+1)
	d.NameLower = strings.ToLower(p.Name)
	if err := r.txm.put(ctx, r.products().Doc(p.ID.String()), p.Version, d); err != nil {
		return err
	}
	p.Version++
	return nil
}

func (r *LedgerRepo) ListProducts(ctx context.Context, filter ledger.ProductFilter) ([]ledger.Product, error) {
	search := strings.ToLower(filter.Search)
	docs, err := queryDocs(ctx, r.products().OrderBy("sku", firestore.Asc), r.products(), func(d productDoc) bool {
		if search != "" && !strings.Contains(strings.ToLower(d.SKU), search) && !strings.Contains(d.NameLower, search) {
			return false
		}
		if filter.InStock != nil && (d.StockQty > 0) != *filter.InStock {
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	out := make([]ledger.Product, 0, len(docs))
	for _, d := range docs {
		p, err := d.toDomain()
		if err != nil {
			return nil, err
		}
		if len(filter.IDs) > 0 && !slices.Contains(filter.IDs, p.ID) {
			continue
		}
		out = append(out, *p)
	}
	slices.SortFunc(out, func(a, b ledger.Product) int { return strings.Compare(a.SKU, b.SKU) })
	return paginate(out, filter.Offset, filter.Limit), nil
}

// --- lots ---

func (r *LedgerRepo) lotsOf(ctx context.Context, productID id.ID, activeOnly bool) ([]ledger.Lot, error) {
	pid := productID.String()
	q := r.lots().Where("productId", "==", pid)
	if activeOnly {
		q = q.Where("state", "==", string(ledger.LotActive))
	}
	docs, err := queryDocs(ctx, q, r.lots(), func(d lotDoc) bool {
		return d.ProductID == pid && (!activeOnly || (d.State == string(ledger.LotActive) && d.RemainingQty > 0))
	})
	if err != nil {
		return nil, err
	}
	return decodeLots(docs)
}

func (r *LedgerRepo) ListActiveLots(ctx context.Context, productID id.ID) ([]ledger.Lot, error) {
	return r.lotsOf(ctx, productID, true)
}

// OldestActiveLot reads a single document unless the transaction already
// buffered lot writes, which the limited query could not see.
func (r *LedgerRepo) OldestActiveLot(ctx context.Context, productID id.ID) (*ledger.Lot, error) {
	if hasStaged(ctx, r.lots()) {
		lots, err := r.ListActiveLots(ctx, productID)
		if err != nil || len(lots) == 0 {
			return nil, err
		}
		return &lots[0], nil
	}

	q := r.lots().
		Where("productId", "==", productID.String()).
		Where("state", "==", string(ledger.LotActive)).
		OrderBy("receivedAt", firestore.Asc).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Limit(1)
	docs, err := queryDocs[lotDoc](ctx, q, r.lots(), nil)
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	lot, err := docs[0].toDomain()
	if err != nil {
		return nil, err
	}
	return &lot, nil
}

func (r *LedgerRepo) ListLots(ctx context.Context, productID id.ID) ([]ledger.Lot, error) {
	return r.lotsOf(ctx, productID, false)
}

func (r *LedgerRepo) GetLots(ctx context.Context, lotIDs []id.ID) ([]ledger.Lot, error) {
	lots := make([]ledger.Lot, 0, len(lotIDs))
	for _, lotID := range lotIDs {
		d, ok, err := getDoc[lotDoc](ctx, r.lots().Doc(lotID.String()))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperror.NewNotFound("lot", lotID.String())
		}
		lot, err := d.toDomain()
		if err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	return lots, nil
}

func (r *LedgerRepo) CreateLot(ctx context.Context, lot *ledger.Lot) error {
	if err := r.txm.put(ctx, r.lots().Doc(lot.ID.String()), 0, lotToDoc(lot, 1)); err != nil {
		return err
	}
	lot.Version = 1
	return nil
}

func (r *LedgerRepo) UpdateLot(ctx context.Context, lot *ledger.Lot) error {
	if err := r.txm.put(ctx, r.lots().Doc(lot.ID.String()), lot.Version, lotToDoc(lot, lot.Version+1)); err != nil {
		return err
	}
	lot.Version++
	return nil
}

func decodeLots(docs []lotDoc) ([]ledger.Lot, error) {
	lots := make([]ledger.Lot, 0, len(docs))
	for _, d := range docs {
		lot, err := d.toDomain()
		if err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	ledger.SortFIFO(lots)
	return lots, nil
}

// --- allocations & reversals ---

func (r *LedgerRepo) CreateAllocation(ctx context.Context, rec *ledger.AllocationRecord) error {
	return r.txm.add(ctx, r.client.Collection(collAllocations).Doc(rec.ID.String()), allocationToDoc(rec))
}

func (r *LedgerRepo) GetAllocation(ctx context.Context, allocationID id.ID) (*ledger.AllocationRecord, error) {
	d, ok, err := getDoc[allocationDoc](ctx, r.client.Collection(collAllocations).Doc(allocationID.String()))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.NewNotFound("allocation", allocationID.String())
	}
	rec, err := d.toDomain()
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *LedgerRepo) ListAllocationsByContext(ctx context.Context, contextRef string) ([]ledger.AllocationRecord, error) {
	coll := r.client.Collection(collAllocations)
	docs, err := queryDocs(ctx, coll.Where("contextRef", "==", contextRef), coll, func(d allocationDoc) bool {
		return d.ContextRef == contextRef
	})
	if err != nil {
		return nil, err
	}

	out := make([]ledger.AllocationRecord, 0, len(docs))
	for _, d := range docs {
		rec, err := d.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b ledger.AllocationRecord) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return id.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (r *LedgerRepo) CreateReversal(ctx context.Context, rev *ledger.Reversal) error {
	return r.txm.add(ctx, r.client.Collection(collReversals).Doc(rev.ID.String()), reversalToDoc(rev))
}

func (r *LedgerRepo) ListReversals(ctx context.Context, allocationID id.ID) ([]ledger.Reversal, error) {
	coll := r.client.Collection(collReversals)
	aid := allocationID.String()
	docs, err := queryDocs(ctx, coll.Where("allocationId", "==", aid), coll, func(d reversalDoc) bool {
		return d.AllocationID == aid
	})
	if err != nil {
		return nil, err
	}

	out := make([]ledger.Reversal, 0, len(docs))
	for _, d := range docs {
		rev, err := d.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, rev)
	}
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
