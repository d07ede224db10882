package auth

import (
	"context"
)

// AuthType records how a request was authenticated
type AuthType string

const (
	AuthTypeJWT    AuthType = "jwt"
	AuthTypeAPIKey AuthType = "api_key"
)

// UserContext holds authenticated user information.
// UserID is the stable identity used for permission links; for Azure AD tokens it is the oid claim.
type UserContext struct {
	UserID      string
	DisplayName string
	Email       string
	AuthType    AuthType
}

type contextKey string

const userContextKey contextKey = "userContext"

// WithUserContext adds user context to the context
func WithUserContext(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// FromContext extracts user context from the context
func FromContext(ctx context.Context) (*UserContext, bool) {
	user, ok := ctx.Value(userContextKey).(*UserContext)
	return user, ok && user != nil
}

// MustFromContext extracts user context or panics
func MustFromContext(ctx context.Context) *UserContext {
	user, ok := FromContext(ctx)
	if !ok {
		panic("user context not found in context")
	}
	return user
}

// UserIDFromContext returns the authenticated user id, or "" for anonymous requests
func UserIDFromContext(ctx context.Context) string {
	if user, ok := FromContext(ctx); ok {
		return user.UserID
	}
	return ""
}
