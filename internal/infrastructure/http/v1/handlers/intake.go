package handlers

import (
	"github.com/gin-gonic/gin"

	"motoledger/internal/domain/documents/intake"
	"motoledger/internal/infrastructure/http/v1/dto"
)

// IntakeHandler handles stock intake requests.
type IntakeHandler struct {
	*BaseDocumentHandler[*intake.Intake]
	service *intake.Service
}

// NewIntakeHandler creates a new intake handler.
func NewIntakeHandler(base *BaseHandler, service *intake.Service) *IntakeHandler {
	return &IntakeHandler{
		BaseDocumentHandler: NewBaseDocumentHandler[*intake.Intake](base, service, nil),
		service:             service,
	}
}

// Create handles POST /intakes
func (h *IntakeHandler) Create(c *gin.Context) {
	var req dto.CreateIntakeRequest
	if !h.BindJSON(c, &req) {
		return
	}
	doc := req.ToIntake()
	if err := h.service.Create(c.Request.Context(), doc); err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, doc)
}

// Update handles PUT /intakes/:id
func (h *IntakeHandler) Update(c *gin.Context) {
	docID, ok := h.ParamID(c)
	if !ok {
		return
	}
	var req dto.UpdateIntakeRequest
	if !h.BindJSON(c, &req) {
		return
	}
	doc, err := h.service.Update(c.Request.Context(), docID, req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, doc)
}

// Activate handles POST /intakes/:id/activate
func (h *IntakeHandler) Activate(c *gin.Context) {
	h.respond(c, h.service.Activate)
}

// Discard handles POST /intakes/:id/discard
func (h *IntakeHandler) Discard(c *gin.Context) {
	var req dto.ReasonRequest
	if !h.BindOptionalJSON(c, &req) {
		return
	}
	docID, ok := h.ParamID(c)
	if !ok {
		return
	}
	doc, err := h.service.Discard(c.Request.Context(), docID, req.Reason)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, doc)
}
