package auth

import (
	"context"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	appctx "motoledger/internal/core/context"
)

// FirebaseVerifier checks Firebase ID tokens. Roles come from the custom
// claim "roles"; the "admin" claim grants every role.
type FirebaseVerifier struct {
	client *fbauth.Client
}

// NewFirebaseVerifier initializes the Firebase app for projectID.
func NewFirebaseVerifier(ctx context.Context, projectID, credentialsFile string) (*FirebaseVerifier, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase auth: %w", err)
	}
	return &FirebaseVerifier{client: client}, nil
}

var _ Verifier = (*FirebaseVerifier)(nil)

// ValidateToken implements Verifier.
func (v *FirebaseVerifier) ValidateToken(ctx context.Context, idToken string) (*appctx.UserContext, error) {
	token, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, fmt.Errorf("verify id token: %w", err)
	}
	uid := strings.TrimSpace(token.UID)
	if uid == "" {
		return nil, fmt.Errorf("token has no uid")
	}
	return userFromClaims(uid, token.Claims), nil
}

func userFromClaims(uid string, claims map[string]any) *appctx.UserContext {
	user := &appctx.UserContext{UserID: uid, Provider: "firebase"}
	if e, ok := claims["email"].(string); ok {
		user.Email = strings.TrimSpace(e)
	}
	if n, ok := claims["name"].(string); ok {
		user.DisplayName = strings.TrimSpace(n)
	}
	if raw, ok := claims["roles"].([]any); ok {
		for _, r := range raw {
			if s, ok := r.(string); ok && s != "" {
				user.Roles = append(user.Roles, s)
			}
		}
	}
	if admin, ok := claims["admin"].(bool); ok && admin {
		user.IsAdmin = true
	}
	for _, r := range user.Roles {
		if r == RoleAdmin {
			user.IsAdmin = true
		}
	}
	return user
}
