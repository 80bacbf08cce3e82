package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/hrapp/hr-auth/internal/observability"
	"github.com/hrapp/hr-auth/models"
	"github.com/hrapp/hr-auth/services"
	"github.com/hrapp/hr-auth/token"
	"github.com/hrapp/hr-auth/utils"
)

// unauthenticatedMessage is the only message a client ever sees for a
// failed authentication, whatever the cause
const unauthenticatedMessage = "authentication required"

// TokenValidator verifies signed tokens
type TokenValidator interface {
	Validate(tokenString string, expected token.Kind) (*token.Result, error)
}

// PrincipalLoader resolves the current state of a subject
type PrincipalLoader interface {
	Lookup(ctx context.Context, subject string) (*models.Principal, error)
}

// AuthMiddleware is the authentication gate run before business handlers
type AuthMiddleware struct {
	tokens     TokenValidator
	principals PrincipalLoader
	bypass     []string
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware. Bypass entries ending in
// "/" match by prefix, others match exactly.
func NewAuthMiddleware(
	tokens TokenValidator,
	principals PrincipalLoader,
	bypass []string,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *AuthMiddleware {
	return &AuthMiddleware{
		tokens:     tokens,
		principals: principals,
		bypass:     append([]string(nil), bypass...),
		metrics:    metrics,
		logger:     logger,
	}
}

// IsBypassed reports whether r may proceed without authentication
func (m *AuthMiddleware) IsBypassed(r *http.Request) bool {
	if r.Method == http.MethodOptions {
		return true
	}
	p := cleanPath(r.URL.Path)
	for _, entry := range m.bypass {
		if strings.HasSuffix(entry, "/") {
			if strings.HasPrefix(p, entry) {
				return true
			}
		} else if p == entry {
			return true
		}
	}
	return false
}

// RequireAuth authenticates the bearer token of every non-bypassed request
// and attaches an AuthenticationContext
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if _, ok := canonicalPath(r); !ok {
			rejectPath(w, r, m.logger)
			return
		}

		// Already authenticated earlier in this request
		if GetAuthentication(ctx) != nil || m.IsBypassed(r) {
			next.ServeHTTP(w, r)
			return
		}

		requestID := GetRequestIDFromContext(ctx)

		raw := extractBearerToken(r)
		if raw == "" {
			m.reject(w, r, "missing_token", "")
			return
		}

		result, err := m.tokens.Validate(raw, token.KindAccess)
		if err != nil {
			m.reject(w, r, token.Reason(err), "")
			return
		}

		principal, err := m.principals.Lookup(ctx, result.Subject)
		if err != nil {
			if services.IsNotFoundError(err) {
				m.reject(w, r, "unknown_subject", result.Subject)
				return
			}
			m.logger.Error("principal lookup failed",
				zap.String("request_id", requestID),
				zap.String("subject", result.Subject),
				zap.Error(err))
			m.reject(w, r, "lookup_error", result.Subject)
			return
		}
		if !principal.Active {
			m.reject(w, r, "disabled", result.Subject)
			return
		}

		roles := result.Roles
		if principal.Role != "" {
			roles = []models.Role{principal.Role}
		}

		auth := &AuthenticationContext{
			Principal:   principal,
			Roles:       roles,
			Authorities: models.Authorities(roles),
			TokenID:     result.ID,
			ExpiresAt:   result.ExpiresAt,
		}
		m.metrics.AuthAttempt(observability.OutcomeSuccess)

		m.logger.Debug("authentication successful",
			zap.String("request_id", requestID),
			zap.String("subject", principal.Subject),
			zap.Strings("authorities", auth.Authorities))

		next.ServeHTTP(w, r.WithContext(WithAuthentication(ctx, auth)))
	})
}

// reject logs the internal reason and writes the generic 401
func (m *AuthMiddleware) reject(w http.ResponseWriter, r *http.Request, reason, subject string) {
	m.logger.Warn("authentication failed",
		zap.String("request_id", GetRequestIDFromContext(r.Context())),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("reason", reason),
		zap.String("subject", subject))
	m.metrics.AuthFailure(reason)

	w.Header().Set("WWW-Authenticate", `Bearer realm="hr-auth"`)
	_ = utils.WriteUnauthorized(w, unauthenticatedMessage)
}

// extractBearerToken extracts the Bearer token from the Authorization header
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
