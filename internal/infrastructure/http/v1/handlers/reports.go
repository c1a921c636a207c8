package handlers

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"motoledger/internal/domain/reports"
	"motoledger/internal/infrastructure/http/v1/dto"
)

// ReportsHandler handles HTTP requests for reports.
type ReportsHandler struct {
	*BaseHandler
	service *reports.Service
}

// NewReportsHandler creates a new reports handler.
func NewReportsHandler(base *BaseHandler, service *reports.Service) *ReportsHandler {
	return &ReportsHandler{
		BaseHandler: base,
		service:     service,
	}
}

// Valuation handles GET /reports/valuation
func (h *ReportsHandler) Valuation(c *gin.Context) {
	v, ok := h.valuation(c)
	if !ok {
		return
	}
	h.OK(c, v)
}

// ValuationXLSX handles GET /reports/valuation.xlsx
func (h *ReportsHandler) ValuationXLSX(c *gin.Context) {
	v, ok := h.valuation(c)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := reports.WriteXLSX(&buf, v); err != nil {
		h.Error(c, err)
		return
	}
	filename := fmt.Sprintf("valuation-%s.xlsx", v.GeneratedAt.Format("20060102-1504"))
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, reports.XLSXContentType, buf.Bytes())
}

func (h *ReportsHandler) valuation(c *gin.Context) (*reports.Valuation, bool) {
	var q dto.ValuationQuery
	if !h.BindQuery(c, &q) {
		return nil, false
	}
	v, err := h.service.Valuation(c.Request.Context(), q.ToFilter())
	if err != nil {
		h.Error(c, err)
		return nil, false
	}
	return v, true
}
