// Package entity holds the identity and versioning embedded by ledger rows
// and stock documents.
package entity

import (
	"context"
	"time"

	"motoledger/internal/core/apperror"
	"motoledger/internal/core/id"
)

// Validatable is implemented by entities that check their own invariants
// without touching storage.
type Validatable interface {
	Validate(ctx context.Context) error
}

// BaseEntity is the identity plus the optimistic-lock version every
// product, lot and document carries.
type BaseEntity struct {
	ID id.ID `db:"id" json:"id"`

	// Version is bumped by the repository on every successful update.
	Version int `db:"version" json:"version"`
}

// NewBaseEntity returns a fresh UUIDv7 identity at version 1.
func NewBaseEntity() BaseEntity {
	return BaseEntity{ID: id.New(), Version: 1}
}

func (b *BaseEntity) GetID() id.ID     { return b.ID }
func (b *BaseEntity) GetVersion() int  { return b.Version }
func (b *BaseEntity) SetVersion(v int) { b.Version = v }

// ExpectVersion compares a client-supplied version with the stored one.
// Zero means "don't care". A mismatch is CONFLICT rather than
// CONCURRENT_MODIFICATION so the retry loop never replays it.
func (b *BaseEntity) ExpectVersion(kind string, expected int) error {
	if expected == 0 || expected == b.Version {
		return nil
	}
	return apperror.NewConflict(kind+" was modified by another user").
		WithDetail("id", b.ID.String()).
		WithDetail("expected_version", expected).
		WithDetail("current_version", b.Version)
}

// Timestamps records creation and last change of a document.
type Timestamps struct {
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
	CreatedBy string    `db:"created_by" json:"createdBy,omitempty"`
	UpdatedBy string    `db:"updated_by" json:"updatedBy,omitempty"`
}

// SetUpdatedAt is used by repositories after a write.
func (t *Timestamps) SetUpdatedAt(at time.Time) { t.UpdatedAt = at }
