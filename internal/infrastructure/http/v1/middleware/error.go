package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"motoledger/internal/core/apperror"
	"motoledger/internal/core/idempotency"
	"motoledger/pkg/logger"
)

// ErrorBody is the payload under the "error" key of every failed response.
type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorHandler middleware transforms errors into consistent JSON responses.
// Hides internal errors from clients while logging full details.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		// If response already written by handler, do not override it.
		if c.Writer.Written() {
			return
		}

		status := http.StatusInternalServerError
		var body ErrorBody
		if appErr, ok := apperror.AsAppError(err); ok {
			if appErr.Err != nil || appErr.HTTPStatus >= http.StatusInternalServerError {
				logger.Error(c.Request.Context(), "request error",
					"code", appErr.Code,
					"cause", appErr.Err,
				)
			}
			status = appErr.HTTPStatus
			body = ErrorBody{Code: appErr.Code, Message: appErr.Message, Details: appErr.Details}
		} else {
			logger.Error(c.Request.Context(), "unhandled error", "error", err)
			body = ErrorBody{
				Code:    apperror.CodeInternal,
				Message: "Internal server error",
				Details: map[string]any{"request_id": c.GetString(ctxRequestID)},
			}
		}

		response := gin.H{"error": body}
		// Retryable failures release the key; the rest are replayed as returned (best-effort).
		if key, store, ok := idempotencyFrom(c); ok {
			if retryable(status, body.Code) {
				if rerr := store.ReleaseKey(c.Request.Context(), key); rerr != nil {
					logger.Warn(c.Request.Context(), "idempotency release key", "key", key, "error", rerr)
				}
			} else if ferr := store.FailKey(c.Request.Context(), key, status, "application/json", response); ferr != nil {
				logger.Warn(c.Request.Context(), "idempotency fail key", "key", key, "error", ferr)
			}
		}
		c.JSON(status, response)
	}
}

// retryable reports whether the same request may succeed when sent again:
// optimistic conflicts and server-side failures.
func retryable(status int, code string) bool {
	switch code {
	case apperror.CodeConflict, apperror.CodeConcurrentModification:
		return true
	}
	return status >= http.StatusInternalServerError
}

// NotFound answers unknown routes in the error envelope.
func NotFound() gin.HandlerFunc {
	return func(c *gin.Context) {
		_ = c.Error(apperror.NewNotFound("route", c.Request.Method+" "+c.Request.URL.Path))
	}
}

func idempotencyFrom(c *gin.Context) (string, idempotency.Store, bool) {
	key := c.GetString(ctxIdempotencyKey)
	if key == "" {
		return "", nil, false
	}
	v, ok := c.Get(ctxIdempotencyStore)
	if !ok {
		return "", nil, false
	}
	store, ok := v.(idempotency.Store)
	return key, store, ok && store != nil
}
