package middleware

import (
	"github.com/gin-gonic/gin"

	appctx "motoledger/internal/core/context"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderTraceID   = "X-Trace-ID"
)

// Gin context keys.
const (
	ctxRequestID        = "request_id"
	ctxTraceID          = "trace_id"
	ctxIdempotencyKey   = "idempotency_key"
	ctxIdempotencyStore = "idempotency_store"
)

// Trace attaches request/trace IDs to the request context and echoes them
// back in response headers. Must run after otelgin so span IDs are reused.
func Trace() gin.HandlerFunc {
	return func(c *gin.Context) {
		tc := appctx.DeriveTrace(c.Request.Context(), c.GetHeader(HeaderRequestID), c.GetHeader(HeaderTraceID))

		c.Request = c.Request.WithContext(appctx.WithTrace(c.Request.Context(), tc))
		c.Set(ctxTraceID, tc.TraceID)
		c.Set(ctxRequestID, tc.RequestID)

		c.Header(HeaderRequestID, tc.RequestID)
		c.Header(HeaderTraceID, tc.TraceID)

		c.Next()
	}
}
