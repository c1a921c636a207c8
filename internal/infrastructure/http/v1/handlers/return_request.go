package handlers

import (
	"github.com/gin-gonic/gin"

	"motoledger/internal/domain/documents/return_request"
	"motoledger/internal/infrastructure/http/v1/dto"
)

// ReturnHandler handles return requests against credit sales.
type ReturnHandler struct {
	*BaseDocumentHandler[*return_request.ReturnRequest]
	service *return_request.Service
}

// NewReturnHandler creates a new return handler.
func NewReturnHandler(base *BaseHandler, service *return_request.Service) *ReturnHandler {
	return &ReturnHandler{
		BaseDocumentHandler: NewBaseDocumentHandler[*return_request.ReturnRequest](base, service, nil),
		service:             service,
	}
}

// Create handles POST /returns
func (h *ReturnHandler) Create(c *gin.Context) {
	var req dto.CreateReturnRequest
	if !h.BindJSON(c, &req) {
		return
	}
	doc := req.ToReturnRequest()
	if err := h.service.Create(c.Request.Context(), doc); err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, doc)
}

// Approve handles POST /returns/:id/approve
func (h *ReturnHandler) Approve(c *gin.Context) {
	h.respond(c, h.service.Approve)
}

// Reject handles POST /returns/:id/reject
func (h *ReturnHandler) Reject(c *gin.Context) {
	var req dto.ReasonRequest
	if !h.BindJSON(c, &req) {
		return
	}
	docID, ok := h.ParamID(c)
	if !ok {
		return
	}
	doc, err := h.service.Reject(c.Request.Context(), docID, req.Reason)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, doc)
}
