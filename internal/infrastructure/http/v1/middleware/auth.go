package middleware

import (
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"motoledger/internal/core/apperror"
	appctx "motoledger/internal/core/context"
	"motoledger/internal/domain/auth"
	"motoledger/pkg/logger"
)

// Auth middleware validates bearer tokens and populates user context.
func Auth(verifier auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			if _, anonymous := verifier.(auth.AnonymousVerifier); !anonymous {
				abortUnauthorized(c, "missing authorization header")
				return
			}
			authHeader = "Bearer -"
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			abortUnauthorized(c, "invalid authorization header format")
			return
		}

		user, err := verifier.ValidateToken(c.Request.Context(), parts[1])
		if err != nil {
			logger.Debug(c.Request.Context(), "token rejected", "error", err)
			abortUnauthorized(c, "invalid token")
			return
		}

		// logger.FromContext picks the operator up from here.
		c.Request = c.Request.WithContext(appctx.WithUser(c.Request.Context(), user))
		c.Set("user_id", user.UserID)

		c.Next()
	}
}

// RequireRole lets the request through when the operator holds one of roles.
// Admins always pass.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if appctx.GetUser(ctx) == nil {
			abortUnauthorized(c, "authentication required")
			return
		}
		if slices.ContainsFunc(roles, func(r string) bool { return appctx.HasRole(ctx, r) }) || appctx.HasRole(ctx, auth.RoleAdmin) {
			c.Next()
			return
		}
		_ = c.Error(
			apperror.NewForbidden("insufficient permissions").
				WithDetail("required_roles", roles),
		)
		c.Abort()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	_ = c.Error(apperror.NewUnauthorized(message))
	c.Abort()
}
