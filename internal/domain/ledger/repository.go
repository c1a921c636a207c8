package ledger

import (
	"context"
	"time"

	"motoledger/internal/core/id"
)

// Repository is the lot store. Implementations join the transaction carried by ctx.
//
// Update methods are optimistic: they succeed only if the stored version equals
// the entity's version, then bump the entity's version. A mismatch returns
// CONCURRENT_MODIFICATION.
type Repository interface {
	GetProduct(ctx context.Context, productID id.ID) (*Product, error)
	CreateProduct(ctx context.Context, p *Product) error
	UpdateProduct(ctx context.Context, p *Product) error
	ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error)

	// ListActiveLots returns lots with remaining > 0 in FIFO order.
	ListActiveLots(ctx context.Context, productID id.ID) ([]Lot, error)
	// OldestActiveLot reads at most one lot; nil when the product has no stock.
	OldestActiveLot(ctx context.Context, productID id.ID) (*Lot, error)
	// ListLots returns every lot of a product (active and exhausted) in FIFO order.
	ListLots(ctx context.Context, productID id.ID) ([]Lot, error)
	GetLots(ctx context.Context, lotIDs []id.ID) ([]Lot, error)
	CreateLot(ctx context.Context, lot *Lot) error
	UpdateLot(ctx context.Context, lot *Lot) error

	CreateAllocation(ctx context.Context, rec *AllocationRecord) error
	GetAllocation(ctx context.Context, allocationID id.ID) (*AllocationRecord, error)
	ListAllocationsByContext(ctx context.Context, contextRef string) ([]AllocationRecord, error)

	CreateReversal(ctx context.Context, rev *Reversal) error
	ListReversals(ctx context.Context, allocationID id.ID) ([]Reversal, error)
}

// ProductFilter narrows ListProducts.
type ProductFilter struct {
	Search  string
	IDs     []id.ID
	InStock *bool
	Limit   int
	Offset  int
}

// AuditEntry is written inside the committing transaction.
type AuditEntry struct {
	EntityType string         `json:"entityType"`
	EntityID   id.ID          `json:"entityId"`
	Action     string         `json:"action"`
	Operator   string         `json:"operator"`
	Changes    map[string]any `json:"changes"`
	At         time.Time      `json:"at"`
}

// Auditor persists and reads audit entries.
type Auditor interface {
	Record(ctx context.Context, entry AuditEntry) error
	// History returns the newest entries of an entity first.
	History(ctx context.Context, entityType string, entityID id.ID, limit int) ([]AuditEntry, error)
}

// Publisher stores domain events next to the data change (transactional outbox).
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// SnapshotCache holds read-mostly product snapshots. It is only invalidated after commit.
type SnapshotCache interface {
	GetProduct(ctx context.Context, productID id.ID) (*Product, bool, error)
	// SetProduct stores p unless a snapshot at p.Version or newer is cached,
	// or a newer version was invalidated.
	SetProduct(ctx context.Context, p *Product) error
	// Invalidate drops the snapshot of a product committed at version and
	// refuses older snapshots from then on.
	Invalidate(ctx context.Context, productID id.ID, version int) error
}
