// Package ledger_repo is the PostgreSQL lot store.
package ledger_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"motoledger/internal/core/apperror"
	"motoledger/internal/core/id"
	"motoledger/internal/domain/ledger"
	"motoledger/internal/infrastructure/storage/postgres"
)

const (
	tableProducts        = "products"
	tableLots            = "lots"
	tableAllocations     = "allocations"
	tableAllocationLines = "allocation_lines"
	tableReversals       = "reversals"
	tableReversalLines   = "reversal_lines"
)

var (
	productCols    = postgres.ExtractDBColumns[ledger.Product]()
	lotCols        = postgres.ExtractDBColumns[ledger.Lot]()
	allocationCols = postgres.ExtractDBColumns[ledger.AllocationRecord]()
	reversalCols   = postgres.ExtractDBColumns[ledger.Reversal]()
)

// Repo implements ledger.Repository.
type Repo struct {
	txm *postgres.TxManager
}

// New creates the repository.
func New(txm *postgres.TxManager) *Repo {
	return &Repo{txm: txm}
}

var _ ledger.Repository = (*Repo)(nil)

func builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (r *Repo) get(ctx context.Context, dst any, q squirrel.Sqlizer) error {
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	return pgxscan.Get(ctx, r.txm.GetQuerier(ctx), dst, sql, args...)
}

func (r *Repo) selectAll(ctx context.Context, dst any, q squirrel.Sqlizer) error {
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	return pgxscan.Select(ctx, r.txm.GetQuerier(ctx), dst, sql, args...)
}

func (r *Repo) exec(ctx context.Context, q squirrel.Sqlizer) (int64, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build statement: %w", err)
	}
	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *Repo) insert(ctx context.Context, table string, cols []string, v any) error {
	q := builder().Insert(table).SetMap(postgres.Columns(postgres.StructToMap(v), cols))
	_, err := r.exec(ctx, q)
	return err
}

// update writes every column but id and version, guarded by the expected version.
func (r *Repo) update(ctx context.Context, table string, cols []string, rowID id.ID, version int, v any) error {
	q := builder().Update(table).
		SetMap(postgres.Columns(postgres.StructToMap(v), cols, "id", "version", "created_at")).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": rowID, "version": version})

	affected, err := r.exec(ctx, q)
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperror.NewConcurrentModification(table, rowID.String()).
			WithDetail("expected_version", version)
	}
	return nil
}

// --- products ---

func (r *Repo) GetProduct(ctx context.Context, productID id.ID) (*ledger.Product, error) {
	var p ledger.Product
	q := builder().Select(productCols...).From(tableProducts).Where(squirrel.Eq{"id": productID})
	if err := r.get(ctx, &p, q); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("product", productID.String())
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &p, nil
}

func (r *Repo) CreateProduct(ctx context.Context, p *ledger.Product) error {
	p.Version = 1
	if err := r.insert(ctx, tableProducts, productCols, p); err != nil {
		if apperror.IsConflict(postgresErr(err)) {
			return apperror.NewDuplicate("product", "sku", p.SKU)
		}
		return postgresErr(err)
	}
	return nil
}

func (r *Repo) UpdateProduct(ctx context.Context, p *ledger.Product) error {
	if err := r.update(ctx, tableProducts, productCols, p.ID, p.Version, p); err != nil {
		return postgresErr(err)
	}
	p.Version++
	return nil
}

func (r *Repo) ListProducts(ctx context.Context, filter ledger.ProductFilter) ([]ledger.Product, error) {
	q := builder().Select(productCols...).From(tableProducts).OrderBy("sku")
	if len(filter.IDs) > 0 {
		q = q.Where(squirrel.Eq{"id": filter.IDs})
	}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		q = q.Where(squirrel.Or{
			squirrel.ILike{"sku": pattern},
			squirrel.ILike{"name": pattern},
		})
	}
	if filter.InStock != nil {
		if *filter.InStock {
			q = q.Where(squirrel.Gt{"stock_qty": 0})
		} else {
			q = q.Where(squirrel.LtOrEq{"stock_qty": 0})
		}
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	var out []ledger.Product
	if err := r.selectAll(ctx, &out, q); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return out, nil
}

// --- lots ---

func (r *Repo) lots(productID id.ID) squirrel.SelectBuilder {
	return builder().Select(lotCols...).From(tableLots).
		Where(squirrel.Eq{"product_id": productID}).
		OrderBy("received_at", "id")
}

func (r *Repo) ListActiveLots(ctx context.Context, productID id.ID) ([]ledger.Lot, error) {
	q := r.lots(productID).Where(squirrel.Eq{"state": ledger.LotActive}).Where(squirrel.Gt{"remaining_qty": 0})
	var out []ledger.Lot
	if err := r.selectAll(ctx, &out, q); err != nil {
		return nil, fmt.Errorf("list active lots: %w", err)
	}
	return out, nil
}

func (r *Repo) OldestActiveLot(ctx context.Context, productID id.ID) (*ledger.Lot, error) {
	q := r.lots(productID).Where(squirrel.Eq{"state": ledger.LotActive}).Where(squirrel.Gt{"remaining_qty": 0}).Limit(1)
	var lot ledger.Lot
	if err := r.get(ctx, &lot, q); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("oldest active lot: %w", err)
	}
	return &lot, nil
}

func (r *Repo) ListLots(ctx context.Context, productID id.ID) ([]ledger.Lot, error) {
	var out []ledger.Lot
	if err := r.selectAll(ctx, &out, r.lots(productID)); err != nil {
		return nil, fmt.Errorf("list lots: %w", err)
	}
	return out, nil
}

func (r *Repo) GetLots(ctx context.Context, lotIDs []id.ID) ([]ledger.Lot, error) {
	if len(lotIDs) == 0 {
		return nil, nil
	}
	q := builder().Select(lotCols...).From(tableLots).Where(squirrel.Eq{"id": lotIDs})
	var found []ledger.Lot
	if err := r.selectAll(ctx, &found, q); err != nil {
		return nil, fmt.Errorf("get lots: %w", err)
	}

	byID := make(map[id.ID]ledger.Lot, len(found))
	for _, l := range found {
		byID[l.ID] = l
	}
	out := make([]ledger.Lot, 0, len(lotIDs))
	for _, lotID := range lotIDs {
		l, ok := byID[lotID]
		if !ok {
			return nil, apperror.NewNotFound("lot", lotID.String())
		}
		out = append(out, l)
	}
	return out, nil
}

func (r *Repo) CreateLot(ctx context.Context, lot *ledger.Lot) error {
	lot.Version = 1
	return postgresErr(r.insert(ctx, tableLots, lotCols, lot))
}

func (r *Repo) UpdateLot(ctx context.Context, lot *ledger.Lot) error {
	if err := r.update(ctx, tableLots, lotCols, lot.ID, lot.Version, lot); err != nil {
		return postgresErr(err)
	}
	lot.Version++
	return nil
}

func postgresErr(err error) error {
	if err == nil || apperror.IsAppError(err) {
		return err
	}
	return postgres.QueryError(err, "ledger", nil)
}
