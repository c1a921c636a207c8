// Package return_request provides customer returns against credit sales.
// An approved return puts goods back into the lots they were sold from.
package return_request

import (
	"context"

	"motoledger/internal/core/apperror"
	"motoledger/internal/core/entity"
	"motoledger/internal/core/fsm"
	"motoledger/internal/core/id"
	"motoledger/internal/core/types"
)

// Status is the return lifecycle state.
type Status string

const (
	StatusRequested Status = "requested"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
)

// States is the return lifecycle.
var States = fsm.New("return request", map[Status][]Status{
	StatusRequested: {StatusApproved, StatusRejected},
	StatusApproved:  nil,
	StatusRejected:  nil,
})

// ReturnRequest is a customer return of goods bought on credit.
type ReturnRequest struct {
	entity.Document

	Status           Status `json:"status"`
	CreditSaleID     id.ID  `json:"creditSaleId"`
	CreditSaleNumber string `json:"creditSaleNumber"`
	Reason           string `json:"reason,omitempty"`
	RejectReason     string `json:"rejectReason,omitempty"`

	TotalQuantity types.Quantity `json:"totalQuantity"`
	// CreditAmount is what the customer is credited at sale prices.
	CreditAmount types.Money `json:"creditAmount"`

	Lines []Line `json:"lines"`
}

// Line returns part of one credit sale line.
type Line struct {
	LineNo     int            `json:"lineNo"`
	SaleLineNo int            `json:"saleLineNo"`
	ProductID  id.ID          `json:"productId"`
	Quantity   types.Quantity `json:"quantity"`
	UnitPrice  types.Money    `json:"unitPrice"`

	// Set on approval.
	ReversalID    *id.ID      `json:"reversalId,omitempty"`
	RestockedCost types.Money `json:"restockedCost"`
}

// New creates a requested return for a credit sale.
func New(creditSaleID id.ID, reason string) *ReturnRequest {
	return &ReturnRequest{
		Document:     entity.NewDocument(),
		Status:       StatusRequested,
		CreditSaleID: creditSaleID,
		Reason:       reason,
		CreditAmount: types.Zero(),
		Lines:        make([]Line, 0),
	}
}

// AddLine claims qty of a credit sale line.
func (d *ReturnRequest) AddLine(saleLineNo int, qty types.Quantity) {
	d.Lines = append(d.Lines, Line{
		LineNo:        len(d.Lines) + 1,
		SaleLineNo:    saleLineNo,
		Quantity:      qty,
		UnitPrice:     types.Zero(),
		RestockedCost: types.Zero(),
	})
	d.recalculateTotals()
}

func (d *ReturnRequest) recalculateTotals() {
	d.TotalQuantity = 0
	d.CreditAmount = types.Zero()
	for _, l := range d.Lines {
		d.TotalQuantity += l.Quantity
		d.CreditAmount = d.CreditAmount.Add(l.Quantity.Cost(l.UnitPrice))
	}
}

// GetStatus implements domain.Document.
func (d *ReturnRequest) GetStatus() string { return string(d.Status) }

// Validate implements entity.Validatable.
func (d *ReturnRequest) Validate(ctx context.Context) error {
	if err := d.Document.Validate(ctx); err != nil {
		return err
	}
	if !States.Valid(d.Status) {
		return apperror.NewValidation("unknown return status").WithDetail("status", string(d.Status))
	}
	if id.IsNil(d.CreditSaleID) {
		return apperror.NewValidation("credit sale is required").WithDetail("field", "creditSaleId")
	}
	if len(d.Lines) == 0 {
		return apperror.NewValidation("at least one line is required").WithDetail("field", "lines")
	}
	seen := make(map[int]bool, len(d.Lines))
	for i, line := range d.Lines {
		if line.SaleLineNo <= 0 {
			return apperror.NewValidation("sale line is required").
				WithDetail("field", "lines").
				WithDetail("lineNo", i+1)
		}
		if seen[line.SaleLineNo] {
			return apperror.NewValidation("sale line returned twice in one request").
				WithDetail("field", "lines").
				WithDetail("saleLineNo", line.SaleLineNo)
		}
		seen[line.SaleLineNo] = true
		if !line.Quantity.IsPositive() {
			return apperror.NewValidation("quantity must be positive").
				WithDetail("field", "lines").
				WithDetail("lineNo", i+1)
		}
	}
	return nil
}
