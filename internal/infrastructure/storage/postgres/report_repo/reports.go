// Package report_repo provides the PostgreSQL valuation source.
package report_repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"motoledger/internal/domain/reports"
	"motoledger/internal/infrastructure/storage/postgres"
)

// ReportRepo implements reports.Source with one aggregate query.
type ReportRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

// NewReportRepo creates a new report repository.
func NewReportRepo(txm *postgres.TxManager) *ReportRepo {
	return &ReportRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var _ reports.Source = (*ReportRepo)(nil)

// ValuationRows implements reports.Source.
func (r *ReportRepo) ValuationRows(ctx context.Context, filter reports.ValuationFilter) ([]reports.ValuationRow, error) {
	q := r.builder.
		Select(
			"p.id AS product_id",
			"p.sku",
			"p.name",
			"p.stock_qty",
			"p.unit_cost",
			"COALESCE(SUM(l.remaining_qty), 0) AS lots_remaining",
			// remaining_qty is scaled by 10^4
			"COALESCE(SUM(l.remaining_qty::numeric * l.unit_cost / 10000), 0) AS fifo_value",
			"COUNT(l.id) AS active_lots",
		).
		From("products p").
		LeftJoin("lots l ON l.product_id = p.id AND l.state = 'active'").
		GroupBy("p.id").
		OrderBy("p.sku")

	if s := strings.TrimSpace(filter.Search); s != "" {
		pattern := "%" + s + "%"
		q = q.Where(squirrel.Or{
			squirrel.ILike{"p.sku": pattern},
			squirrel.ILike{"p.name": pattern},
		})
	}
	if len(filter.ProductIDs) > 0 {
		q = q.Where(squirrel.Eq{"p.id": filter.ProductIDs})
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build valuation query: %w", err)
	}

	var rows []reports.ValuationRow
	err = r.txm.ReadOnly(ctx, func(ctx context.Context) error {
		return pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &rows, sql, args...)
	})
	if err != nil {
		return nil, fmt.Errorf("valuation report: %w", err)
	}
	return rows, nil
}
