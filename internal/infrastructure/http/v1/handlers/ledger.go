package handlers

import (
	"github.com/gin-gonic/gin"

	"motoledger/internal/core/id"
	"motoledger/internal/domain/ledger"
	"motoledger/internal/infrastructure/http/v1/dto"
)

// LedgerHandler exposes allocation and reversal directly, for integrations
// that keep their own sales documents.
type LedgerHandler struct {
	*BaseHandler
	ledger *ledger.Service
}

// NewLedgerHandler creates a new ledger handler.
func NewLedgerHandler(base *BaseHandler, l *ledger.Service) *LedgerHandler {
	return &LedgerHandler{BaseHandler: base, ledger: l}
}

// Plan handles POST /ledger/allocations/plan
func (h *LedgerHandler) Plan(c *gin.Context) {
	var req dto.PlanRequest
	if !h.BindJSON(c, &req) {
		return
	}
	plan, err := h.ledger.Allocate(c.Request.Context(), id.MustParse(req.ProductID), req.Quantity)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, plan)
}

// Commit handles POST /ledger/allocations
func (h *LedgerHandler) Commit(c *gin.Context) {
	var req dto.CommitRequest
	if !h.BindJSON(c, &req) {
		return
	}
	rec, err := h.ledger.CommitConsumption(c.Request.Context(), &req.Plan, req.ContextRef)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, rec)
}

// Consume handles POST /ledger/consume
func (h *LedgerHandler) Consume(c *gin.Context) {
	var req dto.ConsumeRequest
	if !h.BindJSON(c, &req) {
		return
	}
	rec, err := h.ledger.Consume(c.Request.Context(), id.MustParse(req.ProductID), req.Quantity, req.ContextRef)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, rec)
}

// GetAllocation handles GET /ledger/allocations/:id
func (h *LedgerHandler) GetAllocation(c *gin.Context) {
	allocationID, ok := h.ParamID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	rec, err := h.ledger.GetAllocation(ctx, allocationID)
	if err != nil {
		h.Error(c, err)
		return
	}
	reversals, err := h.ledger.ListReversals(ctx, allocationID)
	if err != nil {
		h.Error(c, err)
		return
	}
	if reversals == nil {
		reversals = []ledger.Reversal{}
	}
	h.OK(c, gin.H{"allocation": rec, "reversals": reversals})
}

// Reverse handles POST /ledger/allocations/:id/reverse
func (h *LedgerHandler) Reverse(c *gin.Context) {
	allocationID, ok := h.ParamID(c)
	if !ok {
		return
	}
	var req dto.ReverseRequest
	if !h.BindJSON(c, &req) {
		return
	}

	var (
		ctx = c.Request.Context()
		res *ledger.ReversalResult
		err error
	)
	switch {
	case len(req.Lines) > 0:
		res, err = h.ledger.ReverseLines(ctx, allocationID, req.Lines, req.ContextRef)
	case req.Quantity != nil:
		res, err = h.ledger.ReverseQuantity(ctx, allocationID, *req.Quantity, req.ContextRef)
	default:
		res, err = h.ledger.Reverse(ctx, allocationID, req.ContextRef)
	}
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, res)
}
