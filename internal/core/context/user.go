// Package context provides request-scoped values extraction.
package context

import (
	"context"
	"slices"
)

// UserContext identifies the operator behind a request.
// It is attached to audit entries and ledger records.
type UserContext struct {
	UserID      string
	Email       string
	DisplayName string
	Roles       []string
	IsAdmin     bool
	// Provider is the identity source that verified the token ("jwt", "firebase").
	Provider string
}

type userContextKey struct{}

// WithUser adds UserContext to context.
func WithUser(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// GetUser returns UserContext from context.
func GetUser(ctx context.Context) *UserContext {
	if v, ok := ctx.Value(userContextKey{}).(*UserContext); ok {
		return v
	}
	return nil
}

// GetUserID returns user ID from context or empty string.
func GetUserID(ctx context.Context) string {
	if u := GetUser(ctx); u != nil {
		return u.UserID
	}
	return ""
}

// Operator returns the best human-readable identity for audit attribution.
func Operator(ctx context.Context) string {
	u := GetUser(ctx)
	switch {
	case u == nil:
		return "system"
	case u.Email != "":
		return u.Email
	case u.UserID != "":
		return u.UserID
	default:
		return "system"
	}
}

// HasRole checks if user has specific role.
func HasRole(ctx context.Context, role string) bool {
	u := GetUser(ctx)
	if u == nil {
		return false
	}
	if u.IsAdmin {
		return true
	}
	return slices.Contains(u.Roles, role)
}
