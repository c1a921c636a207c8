// Package document_repo provides the PostgreSQL document repository shared by
// intakes, credit sales and return requests.
//
// Header fields used for lookup and filtering live in columns; the full
// document, lines included, is kept in the jsonb body column.
package document_repo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"motoledger/internal/core/apperror"
	"motoledger/internal/core/id"
	"motoledger/internal/domain"
	"motoledger/internal/infrastructure/storage/postgres"
)

var orderColumns = map[string]struct{}{
	"number":     {},
	"date":       {},
	"status":     {},
	"created_at": {},
	"updated_at": {},
}

type documentRow struct {
	ID      id.ID           `db:"id"`
	Version int             `db:"version"`
	Body    json.RawMessage `db:"body"`
}

// BaseDocumentRepo implements domain.DocumentRepository for one table.
type BaseDocumentRepo[T domain.Document] struct {
	txm       *postgres.TxManager
	tableName string
	newFn     func() T
}

// NewBaseDocumentRepo creates a repository over tableName.
func NewBaseDocumentRepo[T domain.Document](txm *postgres.TxManager, tableName string, newFn func() T) *BaseDocumentRepo[T] {
	return &BaseDocumentRepo[T]{txm: txm, tableName: tableName, newFn: newFn}
}

// Builder returns a new squirrel builder.
func (r *BaseDocumentRepo[T]) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (r *BaseDocumentRepo[T]) columns(doc T) (map[string]any, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", r.tableName, err)
	}
	return map[string]any{
		"number": doc.GetNumber(),
		"date":   doc.GetDate(),
		"status": doc.GetStatus(),
		"body":   body,
	}, nil
}

// Create inserts a new document.
func (r *BaseDocumentRepo[T]) Create(ctx context.Context, doc T) error {
	data, err := r.columns(doc)
	if err != nil {
		return err
	}
	data["id"] = doc.GetID()
	data["version"] = 1
	data["created_at"] = squirrel.Expr("NOW()")
	data["updated_at"] = squirrel.Expr("NOW()")

	sql, args, err := r.Builder().Insert(r.tableName).SetMap(data).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if appErr := postgres.QueryError(err, r.tableName, doc.GetID().String()); apperror.IsConflict(appErr) {
			return apperror.NewDuplicate(r.tableName, "number", doc.GetNumber())
		}
		return fmt.Errorf("insert %s: %w", r.tableName, err)
	}
	doc.SetVersion(1)
	return nil
}

// Update replaces the document with optimistic locking.
func (r *BaseDocumentRepo[T]) Update(ctx context.Context, doc T) error {
	data, err := r.columns(doc)
	if err != nil {
		return err
	}

	q := r.Builder().
		Update(r.tableName).
		SetMap(data).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": doc.GetID()}).
		Where(squirrel.Eq{"version": doc.GetVersion()})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	result, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return postgres.QueryError(err, r.tableName, doc.GetID().String())
	}
	if result.RowsAffected() == 0 {
		return apperror.NewConcurrentModification(r.tableName, doc.GetID().String())
	}
	doc.SetVersion(doc.GetVersion() + 1)
	return nil
}

func (r *BaseDocumentRepo[T]) baseSelect() squirrel.SelectBuilder {
	return r.Builder().Select("id", "version", "body").From(r.tableName)
}

func (r *BaseDocumentRepo[T]) decode(row documentRow) (T, error) {
	doc := r.newFn()
	if err := json.Unmarshal(row.Body, doc); err != nil {
		return doc, fmt.Errorf("decode %s %s: %w", r.tableName, row.ID, err)
	}
	doc.SetVersion(row.Version)
	return doc, nil
}

func (r *BaseDocumentRepo[T]) getOne(ctx context.Context, q squirrel.SelectBuilder, key string) (T, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		var zero T
		return zero, fmt.Errorf("build query: %w", err)
	}
	var row documentRow
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &row, sql, args...); err != nil {
		var zero T
		if pgxscan.NotFound(err) {
			return zero, apperror.NewNotFound(r.tableName, key)
		}
		return zero, fmt.Errorf("get %s: %w", r.tableName, err)
	}
	return r.decode(row)
}

// GetByID retrieves a document by ID.
func (r *BaseDocumentRepo[T]) GetByID(ctx context.Context, docID id.ID) (T, error) {
	return r.getOne(ctx, r.baseSelect().Where(squirrel.Eq{"id": docID}), docID.String())
}

// GetByNumber retrieves a document by number.
func (r *BaseDocumentRepo[T]) GetByNumber(ctx context.Context, number string) (T, error) {
	return r.getOne(ctx, r.baseSelect().Where(squirrel.Eq{"number": number}), number)
}

// List retrieves documents with standard filtering.
func (r *BaseDocumentRepo[T]) List(ctx context.Context, filter domain.ListFilter) (domain.ListResult[T], error) {
	filter = filter.Normalize()
	result := domain.ListResult[T]{Limit: filter.Limit, Offset: filter.Offset}

	q := r.baseSelect()
	if len(filter.IDs) > 0 {
		q = q.Where(squirrel.Eq{"id": filter.IDs})
	}
	if filter.Status != "" {
		q = q.Where(squirrel.Eq{"status": filter.Status})
	}
	if filter.DateFrom != nil {
		q = q.Where(squirrel.GtOrEq{"date": *filter.DateFrom})
	}
	if filter.DateTo != nil {
		q = q.Where(squirrel.LtOrEq{"date": *filter.DateTo})
	}
	if filter.Search != "" {
		q = q.Where(squirrel.ILike{"number": "%" + filter.Search + "%"})
	}

	querier := r.txm.GetQuerier(ctx)
	countSQL, countArgs, err := r.Builder().Select("COUNT(*)").FromSelect(q, "sub").ToSql()
	if err != nil {
		return result, fmt.Errorf("build count: %w", err)
	}
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&result.TotalCount); err != nil {
		return result, fmt.Errorf("count: %w", err)
	}

	orderBy, err := parseOrderBy(filter.OrderBy)
	if err != nil {
		return result, err
	}
	q = q.OrderBy(orderBy, "id").Limit(uint64(filter.Limit)).Offset(uint64(filter.Offset))

	sql, args, err := q.ToSql()
	if err != nil {
		return result, fmt.Errorf("build query: %w", err)
	}
	var rows []documentRow
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return result, fmt.Errorf("list: %w", err)
	}

	result.Items = make([]T, 0, len(rows))
	for _, row := range rows {
		doc, err := r.decode(row)
		if err != nil {
			return result, err
		}
		result.Items = append(result.Items, doc)
	}
	return result, nil
}

func parseOrderBy(orderBy string) (string, error) {
	if strings.TrimSpace(orderBy) == "" {
		return "date DESC", nil
	}

	direction := "ASC"
	field := orderBy
	if strings.HasPrefix(orderBy, "-") {
		direction = "DESC"
		field = strings.TrimPrefix(orderBy, "-")
	} else if strings.HasPrefix(orderBy, "+") {
		field = strings.TrimPrefix(orderBy, "+")
	}

	field = strings.TrimSpace(field)
	if _, ok := orderColumns[field]; !ok {
		return "", apperror.NewValidation("invalid orderBy").WithDetail("orderBy", orderBy).WithDetail("field", field)
	}
	return field + " " + direction, nil
}
