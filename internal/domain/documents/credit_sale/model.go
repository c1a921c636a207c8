// Package credit_sale provides the credit sale document: goods handed to a
// customer now and paid for later.
package credit_sale

import (
	"context"
	"time"

	"motoledger/internal/core/apperror"
	"motoledger/internal/core/entity"
	"motoledger/internal/core/fsm"
	"motoledger/internal/core/id"
	"motoledger/internal/core/types"
)

// Status is the credit sale lifecycle state.
type Status string

const (
	StatusOpen      Status = "open"
	StatusSettled   Status = "settled"
	StatusCancelled Status = "cancelled"
)

// States is the credit sale lifecycle.
var States = fsm.New("credit sale", map[Status][]Status{
	StatusOpen:      {StatusSettled, StatusCancelled},
	StatusSettled:   nil,
	StatusCancelled: nil,
})

// CreditSale is a sale on credit.
type CreditSale struct {
	entity.Document

	Status        Status     `json:"status"`
	CustomerName  string     `json:"customerName"`
	CustomerPhone string     `json:"customerPhone,omitempty"`
	DueDate       *time.Time `json:"dueDate,omitempty"`

	Total    types.Money `json:"total"`
	Credited types.Money `json:"credited"`
	Paid     types.Money `json:"paid"`
	// CostOfGoods is the FIFO cost of everything consumed.
	CostOfGoods types.Money `json:"costOfGoods"`

	Lines    []Line    `json:"lines"`
	Payments []Payment `json:"payments"`
}

// Line is one sold product.
type Line struct {
	LineNo    int            `json:"lineNo"`
	ProductID id.ID          `json:"productId"`
	Quantity  types.Quantity `json:"quantity"`
	UnitPrice types.Money    `json:"unitPrice"`
	Amount    types.Money    `json:"amount"`

	// Set when the line is consumed from stock.
	AllocationID id.ID       `json:"allocationId"`
	CostOfGoods  types.Money `json:"costOfGoods"`

	ReturnedQty      types.Quantity `json:"returnedQty"`
	PendingReturnQty types.Quantity `json:"pendingReturnQty"`
}

// Returnable is the quantity a new return request may still claim.
func (l Line) Returnable() types.Quantity {
	return l.Quantity - l.ReturnedQty - l.PendingReturnQty
}

// Payment is one customer payment.
type Payment struct {
	ID         id.ID       `json:"id"`
	Amount     types.Money `json:"amount"`
	Method     string      `json:"method,omitempty"`
	Reference  string      `json:"reference,omitempty"`
	PaidAt     time.Time   `json:"paidAt"`
	RecordedBy string      `json:"recordedBy,omitempty"`
}

// New creates an open credit sale.
func New(customerName string) *CreditSale {
	return &CreditSale{
		Document:     entity.NewDocument(),
		Status:       StatusOpen,
		CustomerName: customerName,
		Total:        types.Zero(),
		Credited:     types.Zero(),
		Paid:         types.Zero(),
		CostOfGoods:  types.Zero(),
		Lines:        make([]Line, 0),
		Payments:     make([]Payment, 0),
	}
}

// AddLine appends a line and recalculates totals.
func (d *CreditSale) AddLine(productID id.ID, qty types.Quantity, unitPrice types.Money) {
	d.Lines = append(d.Lines, Line{
		LineNo:    len(d.Lines) + 1,
		ProductID: productID,
		Quantity:  qty,
		UnitPrice: unitPrice,
		Amount:    qty.Cost(unitPrice),
	})
	d.recalculateTotals()
}

func (d *CreditSale) recalculateTotals() {
	d.Total = types.Zero()
	d.Credited = types.Zero()
	d.CostOfGoods = types.Zero()
	for _, l := range d.Lines {
		d.Total = d.Total.Add(l.Amount)
		d.Credited = d.Credited.Add(l.ReturnedQty.Cost(l.UnitPrice))
		d.CostOfGoods = d.CostOfGoods.Add(l.CostOfGoods)
	}
	d.Paid = types.Zero()
	for _, p := range d.Payments {
		d.Paid = d.Paid.Add(p.Amount)
	}
}

// Balance is what the customer still owes. It is negative when returns
// left the customer overpaid.
func (d *CreditSale) Balance() types.Money {
	return d.Total.Sub(d.Credited).Sub(d.Paid)
}

// RefundDue is the amount owed back to the customer.
func (d *CreditSale) RefundDue() types.Money {
	if b := d.Balance(); b.IsNegative() {
		return b.Neg()
	}
	return types.Zero()
}

// Line returns the line with the given number.
func (d *CreditSale) Line(lineNo int) (*Line, error) {
	for i := range d.Lines {
		if d.Lines[i].LineNo == lineNo {
			return &d.Lines[i], nil
		}
	}
	return nil, apperror.NewValidation("unknown line").WithDetail("lineNo", lineNo)
}

// AddPayment records a payment and settles the sale at zero balance.
func (d *CreditSale) AddPayment(p Payment) error {
	if d.Status != StatusOpen {
		return apperror.NewBusinessRule(apperror.CodeBusinessRule, "payments are accepted only on open credit sales").
			WithDetail("status", string(d.Status))
	}
	if !p.Amount.IsPositive() {
		return apperror.NewValidation("payment amount must be positive").WithDetail("field", "amount")
	}
	if balance := d.Balance(); p.Amount.GreaterThan(balance) {
		return apperror.NewBusinessRule(apperror.CodeBusinessRule, "payment exceeds outstanding balance").
			WithDetail("balance", balance.String()).
			WithDetail("amount", p.Amount.String())
	}
	d.Payments = append(d.Payments, p)
	d.recalculateTotals()
	return d.settleIfPaid()
}

func (d *CreditSale) settleIfPaid() error {
	if d.Status != StatusOpen || d.Balance().IsPositive() {
		return nil
	}
	var err error
	d.Status, err = States.Transition(d.Status, StatusSettled)
	return err
}

// ReserveReturn marks qty of a line as claimed by a pending return request.
func (d *CreditSale) ReserveReturn(lineNo int, qty types.Quantity) error {
	if d.Status == StatusCancelled {
		return apperror.NewBusinessRule(apperror.CodeBusinessRule, "credit sale is cancelled")
	}
	line, err := d.Line(lineNo)
	if err != nil {
		return err
	}
	if !qty.IsPositive() || qty > line.Returnable() {
		return apperror.NewValidation("return quantity exceeds what is left to return").
			WithDetail("lineNo", lineNo).
			WithDetail("returnable", line.Returnable()).
			WithDetail("requested", qty)
	}
	line.PendingReturnQty += qty
	return nil
}

// ReleaseReturn drops a pending claim (rejected request).
func (d *CreditSale) ReleaseReturn(lineNo int, qty types.Quantity) error {
	line, err := d.Line(lineNo)
	if err != nil {
		return err
	}
	line.PendingReturnQty = max(line.PendingReturnQty-qty, 0)
	return nil
}

// CompleteReturn converts a pending claim into a returned quantity and
// credits the customer.
func (d *CreditSale) CompleteReturn(lineNo int, qty types.Quantity) error {
	line, err := d.Line(lineNo)
	if err != nil {
		return err
	}
	if qty > line.PendingReturnQty {
		return apperror.NewConflict("return exceeds pending quantity").
			WithDetail("lineNo", lineNo).
			WithDetail("pending", line.PendingReturnQty)
	}
	line.PendingReturnQty -= qty
	line.ReturnedQty += qty
	d.recalculateTotals()
	return d.settleIfPaid()
}

// GetStatus implements domain.Document.
func (d *CreditSale) GetStatus() string { return string(d.Status) }

// Validate implements entity.Validatable.
func (d *CreditSale) Validate(ctx context.Context) error {
	if err := d.Document.Validate(ctx); err != nil {
		return err
	}
	if !States.Valid(d.Status) {
		return apperror.NewValidation("unknown credit sale status").WithDetail("status", string(d.Status))
	}
	if d.CustomerName == "" {
		return apperror.NewValidation("customer name is required").
			WithDetail("field", "customerName")
	}
	if d.DueDate != nil && d.DueDate.Before(d.Date) {
		return apperror.NewValidation("due date is before the sale date").
			WithDetail("field", "dueDate")
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
		if line.UnitPrice.IsNegative() {
			return apperror.NewValidation("unit price cannot be negative").
				WithDetail("field", "lines").
				WithDetail("lineNo", i+1)
		}
	}
	return nil
}
