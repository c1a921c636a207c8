// Package intake provides the stock intake document: goods received from a
// supplier that become FIFO lots once activated.
package intake

import (
	"context"

	"motoledger/internal/core/apperror"
	"motoledger/internal/core/entity"
	"motoledger/internal/core/fsm"
	"motoledger/internal/core/id"
	"motoledger/internal/core/types"
)

// Status is the intake lifecycle state.
type Status string

const (
	StatusTemporary Status = "temporary"
	StatusActive    Status = "active"
	StatusDiscarded Status = "discarded"
)

// States is the intake lifecycle.
var States = fsm.New("intake", map[Status][]Status{
	StatusTemporary: {StatusActive, StatusDiscarded},
	StatusActive:    nil,
	StatusDiscarded: nil,
})

// Intake is a stock intake document.
type Intake struct {
	entity.Document

	Status      Status `json:"status"`
	SupplierRef string `json:"supplierRef,omitempty"`
	// DiscardReason is set when the intake is discarded.
	DiscardReason string `json:"discardReason,omitempty"`

	TotalQuantity types.Quantity `json:"totalQuantity"`
	TotalCost     types.Money    `json:"totalCost"`

	Lines []Line `json:"lines"`
}

// Line is one received product.
type Line struct {
	LineNo    int            `json:"lineNo"`
	ProductID id.ID          `json:"productId"`
	Quantity  types.Quantity `json:"quantity"`
	UnitCost  types.Money    `json:"unitCost"`
	// LotID is the lot created on activation.
	LotID *id.ID `json:"lotId,omitempty"`
}

// New creates an empty temporary intake.
func New(supplierRef string) *Intake {
	return &Intake{
		Document:    entity.NewDocument(),
		Status:      StatusTemporary,
		SupplierRef: supplierRef,
		TotalCost:   types.Zero(),
		Lines:       make([]Line, 0),
	}
}

// AddLine appends a line and recalculates totals.
func (d *Intake) AddLine(productID id.ID, qty types.Quantity, unitCost types.Money) {
	d.Lines = append(d.Lines, Line{
		LineNo:    len(d.Lines) + 1,
		ProductID: productID,
		Quantity:  qty,
		UnitCost:  unitCost,
	})
	d.recalculateTotals()
}

// SetLines replaces all lines, renumbering them.
func (d *Intake) SetLines(lines []Line) {
	d.Lines = make([]Line, 0, len(lines))
	for _, l := range lines {
		d.AddLine(l.ProductID, l.Quantity, l.UnitCost)
	}
	d.recalculateTotals()
}

func (d *Intake) recalculateTotals() {
	d.TotalQuantity = 0
	d.TotalCost = types.Zero()
	for _, l := range d.Lines {
		d.TotalQuantity += l.Quantity
		d.TotalCost = d.TotalCost.Add(l.Quantity.Cost(l.UnitCost))
	}
}

// GetStatus implements domain.Document.
func (d *Intake) GetStatus() string { return string(d.Status) }

// CanModify reports whether lines may still change.
func (d *Intake) CanModify() error {
	if d.Status != StatusTemporary {
		return apperror.NewBusinessRule(apperror.CodeBusinessRule, "only temporary intakes can be modified").
			WithDetail("status", string(d.Status))
	}
	return nil
}

// Validate implements entity.Validatable.
func (d *Intake) Validate(ctx context.Context) error {
	if err := d.Document.Validate(ctx); err != nil {
		return err
	}
	if !States.Valid(d.Status) {
		return apperror.NewValidation("unknown intake status").WithDetail("status", string(d.Status))
	}
	if len(d.Lines) == 0 {
		return apperror.NewValidation("at least one line is required").
			WithDetail("field", "lines")
	}

	for i, line := range d.Lines {
		if id.IsNil(line.ProductID) {
			return apperror.NewValidation("product is required").
				WithDetail("field", "lines").
				WithDetail("lineNo", i+1)
		}
		if !line.Quantity.IsPositive() {
			return apperror.NewValidation("quantity must be positive").
				WithDetail("field", "lines").
				WithDetail("lineNo", i+1)
		}
		if line.UnitCost.IsNegative() {
			return apperror.NewValidation("unit cost cannot be negative").
				WithDetail("field", "lines").
				WithDetail("lineNo", i+1)
		}
	}
	return nil
}
