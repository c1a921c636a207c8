package entity

import (
	"context"
	"time"

	"motoledger/internal/core/apperror"
)

// Document is embedded by intakes, credit sales and return requests.
type Document struct {
	BaseEntity
	Timestamps

	// Number is assigned on create, e.g. CR-2026-00042.
	Number string `db:"number" json:"number"`

	// Date is the business date; it picks the numbering period.
	Date time.Time `db:"date" json:"date"`

	Comment string `db:"comment" json:"comment,omitempty"`
}

// NewDocument creates an unnumbered document dated now.
func NewDocument() Document {
	now := time.Now().UTC()
	return Document{
		BaseEntity: NewBaseEntity(),
		Timestamps: Timestamps{CreatedAt: now, UpdatedAt: now},
		Date:       now,
	}
}

// Validate implements Validatable.
func (d *Document) Validate(ctx context.Context) error {
	if d.Date.IsZero() {
		return apperror.NewValidation("date is required").WithDetail("field", "date")
	}
	return nil
}

func (d *Document) GetNumber() string  { return d.Number }
func (d *Document) SetNumber(n string) { d.Number = n }
func (d *Document) GetDate() time.Time { return d.Date }

// Stamp attributes the change to operator. The creator is recorded once.
func (d *Document) Stamp(operator string) {
	now := time.Now().UTC()
	if d.CreatedBy == "" {
		d.CreatedBy = operator
		d.CreatedAt = now
	}
	d.UpdatedBy = operator
	d.UpdatedAt = now
}
