// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"motoledger/internal/core/idempotency"
	"motoledger/internal/domain/auth"
	"motoledger/internal/domain/documents/credit_sale"
	"motoledger/internal/domain/documents/intake"
	"motoledger/internal/domain/documents/return_request"
	"motoledger/internal/domain/ledger"
	"motoledger/internal/domain/reports"
	"motoledger/internal/infrastructure/http/v1/dto"
	"motoledger/internal/infrastructure/http/v1/handlers"
	"motoledger/internal/infrastructure/http/v1/middleware"
	"motoledger/pkg/logger"
)

// Services are the domain services the API exposes.
type Services struct {
	Ledger  *ledger.Service
	Intakes *intake.Service
	Credits *credit_sale.Service
	Returns *return_request.Service
	Reports *reports.Service
}

// RouterConfig holds router configuration.
type RouterConfig struct {
	// Logger for request logging
	Logger *logger.Logger

	// Verifier validates bearer tokens. Use auth.AnonymousVerifier for local runs.
	Verifier auth.Verifier

	Services Services

	// Idempotency stores Idempotency-Key outcomes; nil disables the middleware.
	Idempotency idempotency.Store

	// HealthChecks are probed by /health/ready.
	HealthChecks []handlers.HealthCheck

	// Info is merged into /health/info.
	Info map[string]any

	// ServiceName enables otelgin spans when set.
	ServiceName string

	// Mode is the gin mode (debug, release, test). Defaults to release.
	Mode string
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	mode := cfg.Mode
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)
	dto.RegisterValidators()

	router := gin.New()

	// Global middleware (order matters!)
	if cfg.ServiceName != "" {
		router.Use(otelgin.Middleware(cfg.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())
	router.NoRoute(middleware.NotFound())

	// Health endpoints (no auth)
	healthHandler := handlers.NewHealthHandler(cfg.Info, cfg.HealthChecks...)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	verifier := cfg.Verifier
	if verifier == nil {
		verifier = auth.AnonymousVerifier{}
	}

	// API v1
	v1 := router.Group("/api/v1")
	v1.Use(middleware.Auth(verifier))
	if cfg.Idempotency != nil {
		v1.Use(middleware.Idempotency(cfg.Idempotency))
	}

	base := handlers.NewBaseHandler()
	svc := cfg.Services

	registerProductRoutes(v1.Group("/products"), handlers.NewProductHandler(base, svc.Ledger))
	registerLedgerRoutes(v1.Group("/ledger"), handlers.NewLedgerHandler(base, svc.Ledger))

	// --- INTAKES ---
	{
		h := handlers.NewIntakeHandler(base, svc.Intakes)
		g := v1.Group("/intakes")
		RegisterDocumentRoutes(g, h, writers)
		g.PUT("/:id", middleware.RequireRole(writers...), h.Update)
		g.POST("/:id/activate", middleware.RequireRole(writers...), h.Activate)
		g.POST("/:id/discard", middleware.RequireRole(writers...), h.Discard)
	}

	// --- CREDIT SALES ---
	{
		h := handlers.NewCreditSaleHandler(base, svc.Credits)
		g := v1.Group("/credits")
		RegisterDocumentRoutes(g, h, writers)
		g.POST("/:id/payments", middleware.RequireRole(writers...), h.RecordPayment)
		g.POST("/:id/cancel", middleware.RequireRole(managers...), h.Cancel)
	}

	// --- RETURNS ---
	{
		h := handlers.NewReturnHandler(base, svc.Returns)
		g := v1.Group("/returns")
		RegisterDocumentRoutes(g, h, writers)
		g.POST("/:id/approve", middleware.RequireRole(managers...), h.Approve)
		g.POST("/:id/reject", middleware.RequireRole(managers...), h.Reject)
	}

	// --- REPORTS ---
	{
		h := handlers.NewReportsHandler(base, svc.Reports)
		g := v1.Group("/reports", middleware.RequireRole(managers...))
		g.GET("/valuation", h.Valuation)
		g.GET("/valuation.xlsx", h.ValuationXLSX)
	}

	return router
}

var (
	writers  = []string{auth.RoleClerk, auth.RoleManager}
	managers = []string{auth.RoleManager}
)

func registerProductRoutes(g *gin.RouterGroup, h *handlers.ProductHandler) {
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.GET("/:id/lots", h.Lots)
	g.GET("/:id/history", h.History)
	g.GET("/:id/verify", middleware.RequireRole(managers...), h.Verify)
	g.POST("", middleware.RequireRole(managers...), h.Create)
	g.PUT("/:id/pricing", middleware.RequireRole(managers...), h.UpdatePricing)
	g.POST("/:id/recalculate-cost", middleware.RequireRole(managers...), h.RecalculateCost)
	g.POST("/:id/corrections", middleware.RequireRole(managers...), h.Correct)
}

func registerLedgerRoutes(g *gin.RouterGroup, h *handlers.LedgerHandler) {
	g.POST("/allocations/plan", middleware.RequireRole(writers...), h.Plan)
	g.POST("/allocations", middleware.RequireRole(writers...), h.Commit)
	g.POST("/consume", middleware.RequireRole(writers...), h.Consume)
	g.GET("/allocations/:id", h.GetAllocation)
	g.POST("/allocations/:id/reverse", middleware.RequireRole(managers...), h.Reverse)
}
