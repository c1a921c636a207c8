// Package domain provides the interfaces shared by document services and their repositories.
package domain

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"motoledger/internal/core/entity"
	"motoledger/internal/core/id"
)

// --- Filter & Pagination ---

// ListFilter contains common filtering options for document lists.
type ListFilter struct {
	// Search matches the document number or comment
	Search string

	// IDs filters by specific IDs
	IDs []id.ID

	// Status filters by lifecycle state
	Status string

	// DateFrom/DateTo bound the business date (inclusive)
	DateFrom *time.Time
	DateTo   *time.Time

	// OrderBy specifies sorting (e.g., "number", "-date")
	OrderBy string

	// Pagination
	Limit  int
	Offset int
}

// DefaultListFilter returns sensible defaults.
func DefaultListFilter() ListFilter {
	return ListFilter{
		Limit:   50,
		OrderBy: "-date",
	}
}

// Normalize clamps pagination.
func (f ListFilter) Normalize() ListFilter {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Limit > 500 {
		f.Limit = 500
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.OrderBy == "" {
		f.OrderBy = "-date"
	}
	return f
}

// Matches applies the filter to a document in memory. Backends without
// secondary indexes (memory, Firestore) filter with it.
func (f ListFilter) Matches(doc Document) bool {
	if len(f.IDs) > 0 && !slices.Contains(f.IDs, doc.GetID()) {
		return false
	}
	if f.Status != "" && doc.GetStatus() != f.Status {
		return false
	}
	if f.DateFrom != nil && doc.GetDate().Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && doc.GetDate().After(*f.DateTo) {
		return false
	}
	if f.Search != "" && !strings.Contains(strings.ToLower(doc.GetNumber()), strings.ToLower(f.Search)) {
		return false
	}
	return true
}

// SortDocuments orders items by "number" or "date" ("-" prefix for descending),
// breaking ties by ID.
func SortDocuments[T Document](items []T, orderBy string) {
	desc := strings.HasPrefix(orderBy, "-")
	field := strings.TrimPrefix(orderBy, "-")

	slices.SortFunc(items, func(a, b T) int {
		var c int
		switch field {
		case "number":
			c = cmp.Compare(a.GetNumber(), b.GetNumber())
		case "status":
			c = cmp.Compare(a.GetStatus(), b.GetStatus())
		default:
			c = a.GetDate().Compare(b.GetDate())
		}
		if c == 0 {
			c = id.Compare(a.GetID(), b.GetID())
		}
		if desc {
			return -c
		}
		return c
	})
}

// ListResult contains paginated results.
type ListResult[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int64 `json:"totalCount"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
}

// --- Repository Interfaces ---

// Document is the contract every stored business document satisfies.
type Document interface {
	entity.Validatable
	GetID() id.ID
	GetVersion() int
	SetVersion(v int)
	GetNumber() string
	SetNumber(n string)
	GetDate() time.Time
	GetStatus() string
	Stamp(operator string)
}

// DocumentRepository stores a document together with its lines.
// Implementations join the transaction carried by ctx.
type DocumentRepository[T Document] interface {
	// Create inserts a new document
	Create(ctx context.Context, doc T) error

	// GetByID retrieves a document by ID
	GetByID(ctx context.Context, docID id.ID) (T, error)

	// GetByNumber retrieves a document by its number
	GetByNumber(ctx context.Context, number string) (T, error)

	// Update replaces the document if its version matches (optimistic locking),
	// then bumps the version.
	Update(ctx context.Context, doc T) error

	// List retrieves documents with filtering and pagination
	List(ctx context.Context, filter ListFilter) (ListResult[T], error)
}

// --- Hooks ---

// HookEvent represents lifecycle event type.
type HookEvent string

const (
	BeforeCreate HookEvent = "before_create"
	AfterCreate  HookEvent = "after_create"
	BeforeUpdate HookEvent = "before_update"
	AfterUpdate  HookEvent = "after_update"
)

// Hook is a function that runs at specific lifecycle points.
type Hook[T any] func(ctx context.Context, entity T) error

// HookRegistry stores lifecycle hooks for an entity type.
type HookRegistry[T any] struct {
	hooks map[HookEvent][]Hook[T]
}

// NewHookRegistry creates an empty hook registry.
func NewHookRegistry[T any]() *HookRegistry[T] {
	return &HookRegistry[T]{
		hooks: make(map[HookEvent][]Hook[T]),
	}
}

// On registers a hook for the specified event.
func (r *HookRegistry[T]) On(event HookEvent, hook Hook[T]) {
	r.hooks[event] = append(r.hooks[event], hook)
}

// Run executes all hooks for the specified event, stopping at the first error.
func (r *HookRegistry[T]) Run(ctx context.Context, event HookEvent, entity T) error {
	for _, hook := range r.hooks[event] {
		if err := hook(ctx, entity); err != nil {
			return err
		}
	}
	return nil
}

// OnBeforeCreate registers a hook to run before create.
func (r *HookRegistry[T]) OnBeforeCreate(hook Hook[T]) {
	r.On(BeforeCreate, hook)
}

// OnAfterCreate registers a hook to run after create.
func (r *HookRegistry[T]) OnAfterCreate(hook Hook[T]) {
	r.On(AfterCreate, hook)
}

// OnBeforeUpdate registers a hook to run before update.
func (r *HookRegistry[T]) OnBeforeUpdate(hook Hook[T]) {
	r.On(BeforeUpdate, hook)
}
