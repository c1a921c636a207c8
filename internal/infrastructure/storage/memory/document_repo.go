package memory

import (
	"context"
	"encoding/json"
	"fmt"

	"motoledger/internal/core/apperror"
	"motoledger/internal/core/id"
	"motoledger/internal/domain"
)

// DocumentRepo implements domain.DocumentRepository for any document type.
// Documents are stored as JSON so callers never share line slices with the store.
type DocumentRepo[T domain.Document] struct {
	store *Store
	table string
	newFn func() T
}

// NewDocumentRepo creates a repository over table.
func NewDocumentRepo[T domain.Document](store *Store, table string, newFn func() T) *DocumentRepo[T] {
	return &DocumentRepo[T]{store: store, table: table, newFn: newFn}
}

func (r *DocumentRepo[T]) encode(doc T) ([]byte, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", r.table, err)
	}
	return b, nil
}

func (r *DocumentRepo[T]) decode(rw row) (T, error) {
	doc := r.newFn()
	if err := json.Unmarshal(rw.value.([]byte), doc); err != nil {
		return doc, fmt.Errorf("decode %s: %w", r.table, err)
	}
	doc.SetVersion(rw.version)
	return doc, nil
}

// Create implements domain.DocumentRepository.
func (r *DocumentRepo[T]) Create(ctx context.Context, doc T) error {
	if _, err := r.GetByNumber(ctx, doc.GetNumber()); err == nil {
		return apperror.NewDuplicate(r.table, "number", doc.GetNumber())
	}
	b, err := r.encode(doc)
	if err != nil {
		return err
	}
	if err := r.store.put(ctx, r.table, doc.GetID(), 0, b); err != nil {
		return err
	}
	doc.SetVersion(1)
	return nil
}

// Update implements domain.DocumentRepository.
func (r *DocumentRepo[T]) Update(ctx context.Context, doc T) error {
	b, err := r.encode(doc)
	if err != nil {
		return err
	}
	if err := r.store.put(ctx, r.table, doc.GetID(), doc.GetVersion(), b); err != nil {
		return err
	}
	doc.SetVersion(doc.GetVersion() + 1)
	return nil
}

// GetByID implements domain.DocumentRepository.
func (r *DocumentRepo[T]) GetByID(ctx context.Context, docID id.ID) (T, error) {
	rw, ok := r.store.get(ctx, r.table, docID)
	if !ok {
		var zero T
		return zero, apperror.NewNotFound(r.table, docID.String())
	}
	return r.decode(rw)
}

// GetByNumber implements domain.DocumentRepository.
func (r *DocumentRepo[T]) GetByNumber(ctx context.Context, number string) (T, error) {
	var (
		found T
		ok    bool
		err   error
	)
	r.store.scan(ctx, r.table, func(_ id.ID, rw row) {
		if ok || err != nil {
			return
		}
		doc, decErr := r.decode(rw)
		if decErr != nil {
			err = decErr
			return
		}
		if doc.GetNumber() == number {
			found, ok = doc, true
		}
	})
	if err != nil {
		return found, err
	}
	if !ok {
		return found, apperror.NewNotFound(r.table, number)
	}
	return found, nil
}

// List implements domain.DocumentRepository.
func (r *DocumentRepo[T]) List(ctx context.Context, filter domain.ListFilter) (domain.ListResult[T], error) {
	filter = filter.Normalize()

	var (
		items []T
		err   error
	)
	r.store.scan(ctx, r.table, func(_ id.ID, rw row) {
		if err != nil {
			return
		}
		doc, decErr := r.decode(rw)
		if decErr != nil {
			err = decErr
			return
		}
		if filter.Matches(doc) {
			items = append(items, doc)
		}
	})
	if err != nil {
		return domain.ListResult[T]{}, err
	}

	domain.SortDocuments(items, filter.OrderBy)
	total := int64(len(items))
	return domain.ListResult[T]{
		Items:      paginate(items, filter.Offset, filter.Limit),
		TotalCount: total,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}, nil
}
