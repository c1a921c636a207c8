package handlers

import (
	"github.com/gin-gonic/gin"

	"motoledger/internal/domain/ledger"
	"motoledger/internal/infrastructure/http/v1/dto"
)

// ProductHandler serves the product catalog and its lots.
type ProductHandler struct {
	*BaseHandler
	ledger *ledger.Service
}

// NewProductHandler creates a new product handler.
func NewProductHandler(base *BaseHandler, l *ledger.Service) *ProductHandler {
	return &ProductHandler{BaseHandler: base, ledger: l}
}

// Create handles POST /products
func (h *ProductHandler) Create(c *gin.Context) {
	var req dto.CreateProductRequest
	if !h.BindJSON(c, &req) {
		return
	}
	p := req.ToProduct()
	if err := h.ledger.CreateProduct(c.Request.Context(), p); err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromProduct(p))
}

// List handles GET /products
func (h *ProductHandler) List(c *gin.Context) {
	var q dto.ProductListQuery
	if !h.BindQuery(c, &q) {
		return
	}
	products, err := h.ledger.ListProducts(c.Request.Context(), q.ToFilter())
	if err != nil {
		h.Error(c, err)
		return
	}
	items := make([]dto.ProductResponse, 0, len(products))
	for i := range products {
		items = append(items, dto.FromProduct(&products[i]))
	}
	h.OK(c, dto.ListResponse[dto.ProductResponse]{Items: items, TotalCount: int64(len(items)), Limit: q.Limit, Offset: q.Offset})
}

// Get handles GET /products/:id
func (h *ProductHandler) Get(c *gin.Context) {
	productID, ok := h.ParamID(c)
	if !ok {
		return
	}
	p, err := h.ledger.GetProduct(c.Request.Context(), productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromProduct(p))
}

// UpdatePricing handles PUT /products/:id/pricing
func (h *ProductHandler) UpdatePricing(c *gin.Context) {
	productID, ok := h.ParamID(c)
	if !ok {
		return
	}
	var req dto.UpdatePricingRequest
	if !h.BindJSON(c, &req) {
		return
	}
	p, err := h.ledger.UpdatePricing(c.Request.Context(), productID, req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromProduct(p))
}

// RecalculateCost handles POST /products/:id/recalculate-cost
func (h *ProductHandler) RecalculateCost(c *gin.Context) {
	productID, ok := h.ParamID(c)
	if !ok {
		return
	}
	cost, err := h.ledger.RecalculateCost(c.Request.Context(), productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.RecalculateResponse{ProductID: productID, UnitCost: cost})
}

// Lots handles GET /products/:id/lots
func (h *ProductHandler) Lots(c *gin.Context) {
	productID, ok := h.ParamID(c)
	if !ok {
		return
	}
	lots, err := h.ledger.ListLots(c.Request.Context(), productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ListResponse[ledger.Lot]{Items: lots, TotalCount: int64(len(lots))})
}

// Correct handles POST /products/:id/corrections
func (h *ProductHandler) Correct(c *gin.Context) {
	productID, ok := h.ParamID(c)
	if !ok {
		return
	}
	var req dto.CorrectionRequest
	if !h.BindJSON(c, &req) {
		return
	}
	res, err := h.ledger.CorrectStock(c.Request.Context(), ledger.CorrectionInput{
		ProductID: productID,
		Delta:     req.Delta,
		UnitCost:  req.UnitCost,
		Reason:    req.Reason,
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, res)
}

// Verify handles GET /products/:id/verify
func (h *ProductHandler) Verify(c *gin.Context) {
	productID, ok := h.ParamID(c)
	if !ok {
		return
	}
	drift, err := h.ledger.Verify(c.Request.Context(), productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"drift": drift, "consistent": drift.Consistent()})
}

// History handles GET /products/:id/history
func (h *ProductHandler) History(c *gin.Context) {
	productID, ok := h.ParamID(c)
	if !ok {
		return
	}
	entries, err := h.ledger.History(c.Request.Context(), "product", productID, 100)
	if err != nil {
		h.Error(c, err)
		return
	}
	if entries == nil {
		entries = []ledger.AuditEntry{}
	}
	h.OK(c, dto.ListResponse[ledger.AuditEntry]{Items: entries, TotalCount: int64(len(entries))})
}
