package handlers

import (
	"github.com/gin-gonic/gin"

	"motoledger/internal/domain/documents/credit_sale"
	"motoledger/internal/infrastructure/http/v1/dto"
)

// CreditSaleHandler handles credit sale requests.
type CreditSaleHandler struct {
	*BaseDocumentHandler[*credit_sale.CreditSale]
	service *credit_sale.Service
}

// NewCreditSaleHandler creates a new credit sale handler.
func NewCreditSaleHandler(base *BaseHandler, service *credit_sale.Service) *CreditSaleHandler {
	return &CreditSaleHandler{
		BaseDocumentHandler: NewBaseDocumentHandler(base, service, func(doc *credit_sale.CreditSale) any {
			return dto.FromCreditSale(doc)
		}),
		service: service,
	}
}

// Create handles POST /credits
func (h *CreditSaleHandler) Create(c *gin.Context) {
	var req dto.CreateCreditSaleRequest
	if !h.BindJSON(c, &req) {
		return
	}
	doc := req.ToCreditSale()
	if err := h.service.Create(c.Request.Context(), doc); err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromCreditSale(doc))
}

// RecordPayment handles POST /credits/:id/payments
func (h *CreditSaleHandler) RecordPayment(c *gin.Context) {
	docID, ok := h.ParamID(c)
	if !ok {
		return
	}
	var req dto.PaymentRequest
	if !h.BindJSON(c, &req) {
		return
	}
	doc, err := h.service.RecordPayment(c.Request.Context(), docID, req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromCreditSale(doc))
}

// Cancel handles POST /credits/:id/cancel
func (h *CreditSaleHandler) Cancel(c *gin.Context) {
	var req dto.ReasonRequest
	if !h.BindOptionalJSON(c, &req) {
		return
	}
	docID, ok := h.ParamID(c)
	if !ok {
		return
	}
	doc, err := h.service.Cancel(c.Request.Context(), docID, req.Reason)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromCreditSale(doc))
}
