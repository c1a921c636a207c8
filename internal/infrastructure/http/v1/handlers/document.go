package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"motoledger/internal/core/id"
	"motoledger/internal/domain"
	"motoledger/internal/infrastructure/http/v1/dto"
)

// DocumentReader is the read side every document service shares.
type DocumentReader[T any] interface {
	Get(ctx context.Context, docID id.ID) (T, error)
	List(ctx context.Context, filter domain.ListFilter) (domain.ListResult[T], error)
}

// BaseDocumentHandler provides the generic read handlers for a document type.
type BaseDocumentHandler[T any] struct {
	*BaseHandler
	reader   DocumentReader[T]
	mapToDTO func(T) any
}

// NewBaseDocumentHandler creates a new base document handler. A nil mapper
// serializes the document as is.
func NewBaseDocumentHandler[T any](base *BaseHandler, reader DocumentReader[T], mapToDTO func(T) any) *BaseDocumentHandler[T] {
	if mapToDTO == nil {
		mapToDTO = func(doc T) any { return doc }
	}
	return &BaseDocumentHandler[T]{BaseHandler: base, reader: reader, mapToDTO: mapToDTO}
}

// Get handles GET /{entity}/:id
func (h *BaseDocumentHandler[T]) Get(c *gin.Context) {
	docID, ok := h.ParamID(c)
	if !ok {
		return
	}
	doc, err := h.reader.Get(c.Request.Context(), docID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, h.mapToDTO(doc))
}

// List handles GET /{entity}
func (h *BaseDocumentHandler[T]) List(c *gin.Context) {
	var q dto.DocumentListQuery
	if !h.BindQuery(c, &q) {
		return
	}
	result, err := h.reader.List(c.Request.Context(), q.ToFilter())
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]any, 0, len(result.Items))
	for _, doc := range result.Items {
		items = append(items, h.mapToDTO(doc))
	}
	h.OK(c, dto.ListResponse[any]{
		Items:      items,
		TotalCount: result.TotalCount,
		Limit:      result.Limit,
		Offset:     result.Offset,
	})
}

// respond runs a state transition and answers with the resulting document.
func (h *BaseDocumentHandler[T]) respond(c *gin.Context, fn func(ctx context.Context, docID id.ID) (T, error)) {
	docID, ok := h.ParamID(c)
	if !ok {
		return
	}
	doc, err := fn(c.Request.Context(), docID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, h.mapToDTO(doc))
}
