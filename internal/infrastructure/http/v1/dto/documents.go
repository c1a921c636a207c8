package dto

import (
	"time"

	"motoledger/internal/core/id"
	"motoledger/internal/core/types"
	"motoledger/internal/domain/documents/credit_sale"
	"motoledger/internal/domain/documents/intake"
	"motoledger/internal/domain/documents/return_request"
)

// --- Intake ---

// IntakeLineRequest is one received product.
type IntakeLineRequest struct {
	ProductID string         `json:"productId" binding:"required,uuid"`
	Quantity  types.Quantity `json:"quantity" binding:"required,gt=0"`
	UnitCost  types.Money    `json:"unitCost"`
}

// CreateIntakeRequest creates a temporary intake.
type CreateIntakeRequest struct {
	Date        *time.Time          `json:"date"`
	SupplierRef string              `json:"supplierRef" binding:"max=200"`
	Comment     string              `json:"comment" binding:"max=1000"`
	Lines       []IntakeLineRequest `json:"lines" binding:"required,min=1,dive"`
}

// ToIntake maps the request.
func (r CreateIntakeRequest) ToIntake() *intake.Intake {
	doc := intake.New(r.SupplierRef)
	if r.Date != nil {
		doc.Date = r.Date.UTC()
	}
	doc.Comment = r.Comment
	for _, l := range r.Lines {
		doc.AddLine(id.MustParse(l.ProductID), l.Quantity, l.UnitCost)
	}
	return doc
}

// UpdateIntakeRequest edits a temporary intake.
type UpdateIntakeRequest struct {
	Version     int                 `json:"version" binding:"min=0"`
	SupplierRef *string             `json:"supplierRef" binding:"omitempty,max=200"`
	Comment     *string             `json:"comment" binding:"omitempty,max=1000"`
	Lines       []IntakeLineRequest `json:"lines" binding:"omitempty,dive"`
}

// ToInput maps the request.
func (r UpdateIntakeRequest) ToInput() intake.UpdateInput {
	in := intake.UpdateInput{Version: r.Version, SupplierRef: r.SupplierRef, Comment: r.Comment}
	for i, l := range r.Lines {
		in.Lines = append(in.Lines, intake.Line{
			LineNo:    i + 1,
			ProductID: id.MustParse(l.ProductID),
			Quantity:  l.Quantity,
			UnitCost:  l.UnitCost,
		})
	}
	return in
}

// --- Credit sale ---

// CreditLineRequest is one sold product.
type CreditLineRequest struct {
	ProductID string         `json:"productId" binding:"required,uuid"`
	Quantity  types.Quantity `json:"quantity" binding:"required,gt=0"`
	UnitPrice types.Money    `json:"unitPrice"`
}

// CreateCreditSaleRequest sells goods on credit.
type CreateCreditSaleRequest struct {
	Date          *time.Time          `json:"date"`
	DueDate       *time.Time          `json:"dueDate"`
	CustomerName  string              `json:"customerName" binding:"required,max=200"`
	CustomerPhone string              `json:"customerPhone" binding:"omitempty,max=50"`
	Comment       string              `json:"comment" binding:"max=1000"`
	Lines         []CreditLineRequest `json:"lines" binding:"required,min=1,dive"`
}

// ToCreditSale maps the request.
func (r CreateCreditSaleRequest) ToCreditSale() *credit_sale.CreditSale {
	doc := credit_sale.New(r.CustomerName)
	if r.Date != nil {
		doc.Date = r.Date.UTC()
	}
	doc.DueDate = r.DueDate
	doc.CustomerPhone = r.CustomerPhone
	doc.Comment = r.Comment
	for _, l := range r.Lines {
		doc.AddLine(id.MustParse(l.ProductID), l.Quantity, l.UnitPrice)
	}
	return doc
}

// PaymentRequest records a customer payment.
type PaymentRequest struct {
	Amount    types.Money `json:"amount"`
	Method    string      `json:"method" binding:"omitempty,oneof=cash card transfer other"`
	Reference string      `json:"reference" binding:"max=200"`
	PaidAt    *time.Time  `json:"paidAt"`
}

// ToInput maps the request.
func (r PaymentRequest) ToInput() credit_sale.PaymentInput {
	in := credit_sale.PaymentInput{Amount: r.Amount, Method: r.Method, Reference: r.Reference}
	if r.PaidAt != nil {
		in.PaidAt = r.PaidAt.UTC()
	}
	return in
}

// CreditSaleResponse adds derived balances to the document.
type CreditSaleResponse struct {
	*credit_sale.CreditSale
	Balance   types.Money `json:"balance"`
	RefundDue types.Money `json:"refundDue"`
}

// FromCreditSale maps a credit sale.
func FromCreditSale(doc *credit_sale.CreditSale) CreditSaleResponse {
	return CreditSaleResponse{CreditSale: doc, Balance: doc.Balance(), RefundDue: doc.RefundDue()}
}

// --- Return request ---

// ReturnLineRequest returns part of a credit sale line.
type ReturnLineRequest struct {
	SaleLineNo int            `json:"saleLineNo" binding:"required,min=1"`
	Quantity   types.Quantity `json:"quantity" binding:"required,gt=0"`
}

// CreateReturnRequest opens a return against a credit sale.
type CreateReturnRequest struct {
	CreditSaleID string              `json:"creditSaleId" binding:"required,uuid"`
	Date         *time.Time          `json:"date"`
	Reason       string              `json:"reason" binding:"max=500"`
	Lines        []ReturnLineRequest `json:"lines" binding:"required,min=1,dive"`
}

// ToReturnRequest maps the request.
func (r CreateReturnRequest) ToReturnRequest() *return_request.ReturnRequest {
	doc := return_request.New(id.MustParse(r.CreditSaleID), r.Reason)
	if r.Date != nil {
		doc.Date = r.Date.UTC()
	}
	for _, l := range r.Lines {
		doc.AddLine(l.SaleLineNo, l.Quantity)
	}
	return doc
}
