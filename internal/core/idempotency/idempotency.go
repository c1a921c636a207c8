// Package idempotency defines the key store behind the X-Idempotency-Key header.
package idempotency

import "context"

// Status represents the state of an idempotent operation.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Replay is a cached HTTP response.
type Replay struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Store persists idempotency keys. PostgreSQL and Redis provide implementations.
type Store interface {
	// AcquireKey returns (nil, nil) when the caller owns the key, a Replay when
	// the operation already finished, or IDEMPOTENCY_CONFLICT while another
	// request holds it.
	AcquireKey(ctx context.Context, key, userID, operation, requestHash string) (*Replay, error)
	CompleteKey(ctx context.Context, key string, statusCode int, contentType string, response any) error
	FailKey(ctx context.Context, key string, statusCode int, contentType string, response any) error
	// ReleaseKey drops a pending key so the same request can be sent again.
	// Finished keys are left alone.
	ReleaseKey(ctx context.Context, key string) error
}

// NormalizeStatus defaults a missing status to 200.
func NormalizeStatus(status int) int {
	if status == 0 {
		return 200
	}
	return status
}

// NormalizeContentType defaults a missing content type to JSON.
func NormalizeContentType(ct string) string {
	if ct == "" {
		return "application/json"
	}
	return ct
}
