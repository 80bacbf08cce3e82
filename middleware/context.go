package middleware

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/hrapp/hr-auth/models"
)

// Context key type to avoid collisions
type contextKey string

const (
	// authenticationKey is the context key for the AuthenticationContext
	authenticationKey contextKey = "authentication"
)

// AuthenticationContext is attached to a request once its bearer token and
// principal have been verified
type AuthenticationContext struct {
	Principal   *models.Principal
	Roles       []models.Role
	Authorities []string // ROLE_ prefixed
	TokenID     string
	ExpiresAt   time.Time
}

// HasRole reports whether the context carries role
func (a *AuthenticationContext) HasRole(role models.Role) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Subject returns the authenticated subject
func (a *AuthenticationContext) Subject() string {
	if a == nil || a.Principal == nil {
		return ""
	}
	return a.Principal.Subject
}

// GetRequestIDFromContext retrieves the request ID set by chi's RequestID middleware
func GetRequestIDFromContext(ctx context.Context) string {
	return middleware.GetReqID(ctx)
}

// WithAuthentication attaches an AuthenticationContext
func WithAuthentication(ctx context.Context, auth *AuthenticationContext) context.Context {
	return context.WithValue(ctx, authenticationKey, auth)
}

// GetAuthentication retrieves the AuthenticationContext, or nil for
// unauthenticated requests
func GetAuthentication(ctx context.Context) *AuthenticationContext {
	if val := ctx.Value(authenticationKey); val != nil {
		if auth, ok := val.(*AuthenticationContext); ok {
			return auth
		}
	}
	return nil
}

// GetPrincipal retrieves the authenticated principal, or nil
func GetPrincipal(ctx context.Context) *models.Principal {
	if auth := GetAuthentication(ctx); auth != nil {
		return auth.Principal
	}
	return nil
}
