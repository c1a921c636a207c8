package v1

import (
	"github.com/gin-gonic/gin"

	"motoledger/internal/infrastructure/http/v1/middleware"
)

// DocumentRouteHandler defines the routes every document type shares.
type DocumentRouteHandler interface {
	List(c *gin.Context)
	Create(c *gin.Context)
	Get(c *gin.Context)
}

// RegisterDocumentRoutes registers the list/create/get routes for a document.
// State transitions are registered by the caller since they differ per type.
//
// Usage:
//
//	handler := handlers.NewIntakeHandler(base, service)
//	RegisterDocumentRoutes(v1.Group("/intakes"), handler, writers)
func RegisterDocumentRoutes(group *gin.RouterGroup, handler DocumentRouteHandler, createRoles []string) {
	group.GET("", handler.List)
	group.POST("", middleware.RequireRole(createRoles...), handler.Create)
	group.GET("/:id", handler.Get)
}
