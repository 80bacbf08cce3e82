package auth

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/hrapp/hr-auth/config"
	"github.com/hrapp/hr-auth/models"
	"github.com/hrapp/hr-auth/services"
	"github.com/hrapp/hr-auth/services/revocation"
	"github.com/hrapp/hr-auth/token"
)

// PrincipalLoader resolves the current state of a subject
type PrincipalLoader interface {
	Lookup(ctx context.Context, subject string) (*models.Principal, error)
}

// Refreshed is the result of exchanging a refresh cookie
type Refreshed struct {
	AccessToken string
	Principal   *models.Principal
}

// SessionManager issues and clears the refresh cookie and trades it for
// access tokens. Refresh tokens are not rotated on use.
type SessionManager struct {
	tokens     *token.Service
	principals PrincipalLoader
	denylist   revocation.Denylist
	cookieName string
	secure     bool
	logger     *zap.Logger
}

// NewSessionManager creates a new SessionManager
func NewSessionManager(
	tokens *token.Service,
	principals PrincipalLoader,
	denylist revocation.Denylist,
	cfg config.AuthConfig,
	logger *zap.Logger,
) *SessionManager {
	name := cfg.RefreshCookieName
	if name == "" {
		name = config.DefaultRefreshCookieName
	}
	return &SessionManager{
		tokens:     tokens,
		principals: principals,
		denylist:   denylist,
		cookieName: name,
		secure:     cfg.RefreshCookieSecure,
		logger:     logger,
	}
}

// CookieName returns the refresh cookie name
func (m *SessionManager) CookieName() string {
	return m.cookieName
}

// Issue mints a refresh token for subject and wraps it in a cookie
func (m *SessionManager) Issue(subject string) (*http.Cookie, error) {
	refresh, err := m.tokens.IssueRefreshToken(subject)
	if err != nil {
		return nil, services.WrapInternal("failed to issue refresh token", err)
	}
	return m.cookie(refresh, int(m.tokens.RefreshTTL().Seconds())), nil
}

// Clear returns a cookie that removes the refresh cookie from the browser
func (m *SessionManager) Clear() *http.Cookie {
	return m.cookie("", 0)
}

func (m *SessionManager) cookie(value string, maxAge int) *http.Cookie {
	c := &http.Cookie{
		Name:     m.cookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteStrictMode,
	}
	// MaxAge 0 means "unspecified" to net/http; -1 emits Max-Age=0
	if maxAge == 0 {
		c.MaxAge = -1
	}
	return c
}

// FromRequest returns the refresh cookie of r, or nil
func (m *SessionManager) FromRequest(r *http.Request) *http.Cookie {
	c, err := r.Cookie(m.cookieName)
	if err != nil || c.Value == "" {
		return nil
	}
	return c
}

// RefreshAccessToken validates a refresh cookie, re-resolves the subject's
// current role and issues a new access token
func (m *SessionManager) RefreshAccessToken(ctx context.Context, cookie *http.Cookie) (*Refreshed, error) {
	if cookie == nil || cookie.Value == "" {
		return nil, services.WrapUnauthenticated(errMissingCookie)
	}

	result, err := m.tokens.Validate(cookie.Value, token.KindRefresh)
	if err != nil {
		return nil, services.WrapUnauthenticated(err)
	}

	revoked, err := m.denylist.IsRevoked(ctx, result.ID)
	if err != nil {
		return nil, services.WrapInternal("failed to check token revocation", err)
	}
	if revoked {
		return nil, services.WrapUnauthenticated(token.ErrRevoked)
	}

	principal, err := m.principals.Lookup(ctx, result.Subject)
	if err != nil {
		if services.IsNotFoundError(err) {
			return nil, services.WrapUnauthenticated(err)
		}
		return nil, err
	}
	if !principal.Active {
		return nil, services.WrapUnauthenticated(services.ErrAccountDisabled)
	}

	access, err := m.tokens.IssueAccessToken(principal.Subject, []models.Role{principal.Role})
	if err != nil {
		return nil, services.WrapInternal("failed to issue access token", err)
	}

	return &Refreshed{AccessToken: access, Principal: principal}, nil
}

// Revoke denylists the refresh token carried by cookie until it expires.
// Invalid or missing cookies are ignored and report an empty subject.
func (m *SessionManager) Revoke(ctx context.Context, cookie *http.Cookie) (string, error) {
	if cookie == nil || cookie.Value == "" {
		return "", nil
	}
	result, err := m.tokens.Validate(cookie.Value, token.KindRefresh)
	if err != nil {
		m.logger.Debug("logout with unusable refresh cookie", zap.String("reason", token.Reason(err)))
		return "", nil
	}
	if err := m.denylist.Revoke(ctx, result.ID, result.ExpiresAt); err != nil {
		return result.Subject, services.WrapInternal("failed to revoke refresh token", err)
	}
	return result.Subject, nil
}

var errMissingCookie = errors.New("refresh cookie missing")

// FailureReason labels a refresh or login failure for logs and metrics
func FailureReason(err error) string {
	if err == nil {
		return ""
	}

	// Unwrap the generic unauthenticated layers down to the cause
	cause := err
	for {
		var de *services.DomainError
		if !errors.As(cause, &de) || de.Type != services.ErrorTypeUnauthenticated || de.Err == nil {
			break
		}
		cause = de.Err
	}

	var de *services.DomainError
	switch {
	case errors.Is(cause, errMissingCookie):
		return "missing_token"
	case errors.As(cause, &de) && de.Message == services.ErrAccountDisabled.Message:
		return "disabled"
	case services.IsNotFoundError(cause):
		return "unknown_subject"
	case services.IsInternalError(cause):
		return "internal"
	case errors.Is(cause, bcrypt.ErrMismatchedHashAndPassword):
		return "bad_password"
	}
	if reason := token.Reason(cause); reason != "unknown" {
		return reason
	}
	return "invalid_credentials"
}
