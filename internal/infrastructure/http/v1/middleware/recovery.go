// Package middleware provides the gin middleware chain of the ledger API.
package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"motoledger/internal/core/apperror"
	"motoledger/pkg/logger"
)

// Recovery turns a handler panic into a 500 envelope. The stack goes to the
// log and the active span, never to the client.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			ctx := c.Request.Context()
			cause := fmt.Errorf("panic: %v", rec)

			logger.Error(ctx, "panic recovered",
				"error", rec,
				"route", c.FullPath(),
				"stack", string(debug.Stack()),
			)
			if span := trace.SpanFromContext(ctx); span.IsRecording() {
				span.RecordError(cause)
				span.SetStatus(codes.Error, "panic")
			}

			_ = c.Error(apperror.NewInternal(cause).WithDetail("request_id", c.GetString(ctxRequestID)))
			c.Abort()
		}()
		c.Next()
	}
}
