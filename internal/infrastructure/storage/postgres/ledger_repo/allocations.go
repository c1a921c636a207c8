package ledger_repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"motoledger/internal/core/apperror"
	"motoledger/internal/core/id"
	"motoledger/internal/domain/ledger"
	"motoledger/internal/infrastructure/storage/postgres"
)

type allocationLineRow struct {
	AllocationID id.ID `db:"allocation_id"`
	LineNo       int   `db:"line_no"`
	ledger.AllocationLine
}

type reversalLineRow struct {
	ReversalID id.ID `db:"reversal_id"`
	LineNo     int   `db:"line_no"`
	ledger.ReversalLine
}

var (
	allocationLineCols = postgres.ExtractDBColumns[allocationLineRow]()
	reversalLineCols   = postgres.ExtractDBColumns[reversalLineRow]()
)

// CreateAllocation inserts the header and sends its lines in one batch.
func (r *Repo) CreateAllocation(ctx context.Context, rec *ledger.AllocationRecord) error {
	if err := r.insert(ctx, tableAllocations, allocationCols, rec); err != nil {
		return postgresErr(err)
	}

	queries := make([]postgres.BatchQuery, 0, len(rec.Lines))
	for i, line := range rec.Lines {
		q, err := insertQuery(tableAllocationLines, allocationLineCols, allocationLineRow{
			AllocationID:   rec.ID,
			LineNo:         i + 1,
			AllocationLine: line,
		})
		if err != nil {
			return err
		}
		queries = append(queries, q)
	}
	return postgresErr(r.txm.ExecuteBatch(ctx, queries))
}

func (r *Repo) GetAllocation(ctx context.Context, allocationID id.ID) (*ledger.AllocationRecord, error) {
	var rec ledger.AllocationRecord
	q := builder().Select(allocationCols...).From(tableAllocations).Where(squirrel.Eq{"id": allocationID})
	if err := r.get(ctx, &rec, q); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("allocation", allocationID.String())
		}
		return nil, fmt.Errorf("get allocation: %w", err)
	}

	records := []ledger.AllocationRecord{rec}
	if err := r.attachAllocationLines(ctx, records); err != nil {
		return nil, err
	}
	return &records[0], nil
}

func (r *Repo) ListAllocationsByContext(ctx context.Context, contextRef string) ([]ledger.AllocationRecord, error) {
	q := builder().Select(allocationCols...).From(tableAllocations).
		Where(squirrel.Eq{"context_ref": contextRef}).
		OrderBy("created_at", "id")

	var out []ledger.AllocationRecord
	if err := r.selectAll(ctx, &out, q); err != nil {
		return nil, fmt.Errorf("list allocations: %w", err)
	}
	if err := r.attachAllocationLines(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) attachAllocationLines(ctx context.Context, records []ledger.AllocationRecord) error {
	if len(records) == 0 {
		return nil
	}
	ids := make([]id.ID, len(records))
	index := make(map[id.ID]int, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
		index[rec.ID] = i
	}

	q := builder().Select(allocationLineCols...).From(tableAllocationLines).
		Where(squirrel.Eq{"allocation_id": ids}).
		OrderBy("allocation_id", "line_no")
	var rows []allocationLineRow
	if err := r.selectAll(ctx, &rows, q); err != nil {
		return fmt.Errorf("list allocation lines: %w", err)
	}
	for _, row := range rows {
		i := index[row.AllocationID]
		records[i].Lines = append(records[i].Lines, row.AllocationLine)
	}
	return nil
}

// CreateReversal inserts the header and sends its lines in one batch.
func (r *Repo) CreateReversal(ctx context.Context, rev *ledger.Reversal) error {
	if err := r.insert(ctx, tableReversals, reversalCols, rev); err != nil {
		return postgresErr(err)
	}

	queries := make([]postgres.BatchQuery, 0, len(rev.Lines))
	for i, line := range rev.Lines {
		q, err := insertQuery(tableReversalLines, reversalLineCols, reversalLineRow{
			ReversalID:   rev.ID,
			LineNo:       i + 1,
			ReversalLine: line,
		})
		if err != nil {
			return err
		}
		queries = append(queries, q)
	}
	return postgresErr(r.txm.ExecuteBatch(ctx, queries))
}

func (r *Repo) ListReversals(ctx context.Context, allocationID id.ID) ([]ledger.Reversal, error) {
	q := builder().Select(reversalCols...).From(tableReversals).
		Where(squirrel.Eq{"allocation_id": allocationID}).
		OrderBy("created_at", "id")

	var out []ledger.Reversal
	if err := r.selectAll(ctx, &out, q); err != nil {
		return nil, fmt.Errorf("list reversals: %w", err)
	}
	if len(out) == 0 {
		return out, nil
	}

	ids := make([]id.ID, len(out))
	index := make(map[id.ID]int, len(out))
	for i, rev := range out {
		ids[i] = rev.ID
		index[rev.ID] = i
	}
	lq := builder().Select(reversalLineCols...).From(tableReversalLines).
		Where(squirrel.Eq{"reversal_id": ids}).
		OrderBy("reversal_id", "line_no")
	var rows []reversalLineRow
	if err := r.selectAll(ctx, &rows, lq); err != nil {
		return nil, fmt.Errorf("list reversal lines: %w", err)
	}
	for _, row := range rows {
		i := index[row.ReversalID]
		out[i].Lines = append(out[i].Lines, row.ReversalLine)
	}
	return out, nil
}

func insertQuery(table string, cols []string, v any) (postgres.BatchQuery, error) {
	data := postgres.Columns(postgres.StructToMap(v), cols)
	if len(data) == 0 {
		return postgres.BatchQuery{}, errors.New("no db tags found in " + table + " row")
	}
	sql, args, err := builder().Insert(table).SetMap(data).ToSql()
	if err != nil {
		return postgres.BatchQuery{}, fmt.Errorf("build insert: %w", err)
	}
	return postgres.BatchQuery{SQL: sql, Args: args}, nil
}
