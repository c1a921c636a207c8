package firestore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	"motoledger/internal/core/apperror"
	"motoledger/internal/core/id"
	"motoledger/internal/domain"
)

// documentDoc stores header fields for querying next to the JSON body.
type documentDoc struct {
	ID        string    `firestore:"id"`
	Number    string    `firestore:"number"`
	Date      time.Time `firestore:"date"`
	Status    string    `firestore:"status"`
	Body      []byte    `firestore:"body"`
	Version   int       `firestore:"version"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

type numberDoc struct {
	DocumentID string `firestore:"documentId"`
}

// DocumentRepo implements domain.DocumentRepository for any document type.
type DocumentRepo[T domain.Document] struct {
	client *Client
	txm    *TxManager
	coll   string
	newFn  func() T
}

// NewDocumentRepo creates a repository over collection coll.
func NewDocumentRepo[T domain.Document](client *Client, txm *TxManager, coll string, newFn func() T) *DocumentRepo[T] {
	return &DocumentRepo[T]{client: client, txm: txm, coll: coll, newFn: newFn}
}

func (r *DocumentRepo[T]) col() *firestore.CollectionRef { return r.client.Collection(r.coll) }

func (r *DocumentRepo[T]) numbers() *firestore.CollectionRef {
	return r.client.Collection(r.coll + "_numbers")
}

func (r *DocumentRepo[T]) encode(doc T, version int) (documentDoc, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return documentDoc{}, fmt.Errorf("encode %s: %w", r.coll, err)
	}
	return documentDoc{
		ID:        doc.GetID().String(),
		Number:    doc.GetNumber(),
		Date:      doc.GetDate(),
		Status:    doc.GetStatus(),
		Body:      b,
		Version:   version,
		UpdatedAt: time.Now().UTC(),
	}, nil
}

func (r *DocumentRepo[T]) decode(d documentDoc) (T, error) {
	doc := r.newFn()
	if err := json.Unmarshal(d.Body, doc); err != nil {
		return doc, fmt.Errorf("decode %s %s: %w", r.coll, d.ID, err)
	}
	doc.SetVersion(d.Version)
	return doc, nil
}

// Create implements domain.DocumentRepository. The number is reserved in a
// side collection in the same transaction.
func (r *DocumentRepo[T]) Create(ctx context.Context, doc T) error {
	return r.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		numRef := r.numbers().Doc(doc.GetNumber())
		if _, taken, err := getDoc[numberDoc](ctx, numRef); err != nil {
			return err
		} else if taken {
			return apperror.NewDuplicate(r.coll, "number", doc.GetNumber())
		}

		d, err := r.encode(doc, 1)
		if err != nil {
			return err
		}
		if err := r.txm.add(ctx, numRef, numberDoc{DocumentID: d.ID}); err != nil {
			return err
		}
		if err := r.txm.put(ctx, r.col().Doc(d.ID), 0, d); err != nil {
			return err
		}
		doc.SetVersion(1)
		return nil
	})
}

// Update implements domain.DocumentRepository.
func (r *DocumentRepo[T]) Update(ctx context.Context, doc T) error {
	d, err := r.encode(doc, doc.GetVersion()+1)
	if err != nil {
		return err
	}
	if err := r.txm.put(ctx, r.col().Doc(d.ID), doc.GetVersion(), d); err != nil {
		return err
	}
	doc.SetVersion(doc.GetVersion() + 1)
	return nil
}

// GetByID implements domain.DocumentRepository.
func (r *DocumentRepo[T]) GetByID(ctx context.Context, docID id.ID) (T, error) {
	d, ok, err := getDoc[documentDoc](ctx, r.col().Doc(docID.String()))
	if err != nil {
		var zero T
		return zero, err
	}
	if !ok {
		var zero T
		return zero, apperror.NewNotFound(r.coll, docID.String())
	}
	return r.decode(d)
}

// GetByNumber implements domain.DocumentRepository.
func (r *DocumentRepo[T]) GetByNumber(ctx context.Context, number string) (T, error) {
	docs, err := queryDocs(ctx, r.col().Where("number", "==", number).Limit(1), r.col(), func(d documentDoc) bool {
		return d.Number == number
	})
	if err != nil {
		var zero T
		return zero, err
	}
	if len(docs) == 0 {
		var zero T
		return zero, apperror.NewNotFound(r.coll, number)
	}
	return r.decode(docs[0])
}

// List implements domain.DocumentRepository. Status and date bounds are
// pushed to the query; the rest is filtered in memory.
func (r *DocumentRepo[T]) List(ctx context.Context, filter domain.ListFilter) (domain.ListResult[T], error) {
	filter = filter.Normalize()

	q := r.col().Query
	if filter.Status != "" {
		q = q.Where("status", "==", filter.Status)
	}
	if filter.DateFrom != nil {
		q = q.Where("date", ">=", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		q = q.Where("date", "<=", *filter.DateTo)
	}

	docs, err := queryDocs[documentDoc](ctx, q, r.col(), nil)
	if err != nil {
		return domain.ListResult[T]{}, err
	}

	items := make([]T, 0, len(docs))
	for _, d := range docs {
		doc, err := r.decode(d)
		if err != nil {
			return domain.ListResult[T]{}, err
		}
		if filter.Matches(doc) {
			items = append(items, doc)
		}
	}

	domain.SortDocuments(items, filter.OrderBy)
	return domain.ListResult[T]{
		Items:      paginate(items, filter.Offset, filter.Limit),
		TotalCount: int64(len(items)),
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}, nil
}
