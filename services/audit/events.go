package audit

import (
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/hrapp/hr-auth/models"
)

// RequestMeta is the request context attached to every auth event
type RequestMeta struct {
	RequestID string
	IPAddress string
	UserAgent string
}

// MetaFromRequest extracts request metadata. RealIP middleware has already
// rewritten RemoteAddr when a proxy header is present.
func MetaFromRequest(r *http.Request) RequestMeta {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return RequestMeta{
		RequestID: middleware.GetReqID(r.Context()),
		IPAddress: ip,
		UserAgent: r.UserAgent(),
	}
}

func newEvent(t models.AuthEventType, subject string, meta RequestMeta) *models.AuthEvent {
	return models.NewAuthEvent(t, strings.ToLower(strings.TrimSpace(subject))).
		WithRequest(meta.RequestID, meta.IPAddress, meta.UserAgent)
}

// LoginSucceeded builds a successful login event
func LoginSucceeded(subject string, role models.Role, meta RequestMeta) *models.AuthEvent {
	return newEvent(models.AuthEventLoginSucceeded, subject, meta).
		WithDetails(map[string]string{"role": role.String()})
}

// LoginFailed builds a failed login event. reason is internal only and never
// returned to the client.
func LoginFailed(subject, reason string, meta RequestMeta) *models.AuthEvent {
	return newEvent(models.AuthEventLoginFailed, subject, meta).
		WithDetails(map[string]string{"reason": reason})
}

// TokenRefreshed builds a refresh event
func TokenRefreshed(subject string, role models.Role, meta RequestMeta) *models.AuthEvent {
	return newEvent(models.AuthEventTokenRefreshed, subject, meta).
		WithDetails(map[string]string{"role": role.String()})
}

// RefreshRejected builds an event for a refused refresh attempt
func RefreshRejected(subject, reason string, meta RequestMeta) *models.AuthEvent {
	return newEvent(models.AuthEventRefreshRejected, subject, meta).
		WithDetails(map[string]string{"reason": reason})
}

// Logout builds a logout event
func Logout(subject string, meta RequestMeta) *models.AuthEvent {
	return newEvent(models.AuthEventLogout, subject, meta)
}

// PasswordResetRequested builds an event for a forgot-password request.
// known records whether the address matched an account.
func PasswordResetRequested(subject string, known bool, meta RequestMeta) *models.AuthEvent {
	return newEvent(models.AuthEventPasswordResetRequested, subject, meta).
		WithDetails(map[string]bool{"known_account": known})
}

// PasswordResetCompleted builds an event for a successful password change
func PasswordResetCompleted(subject string, meta RequestMeta) *models.AuthEvent {
	return newEvent(models.AuthEventPasswordResetCompleted, subject, meta)
}

// AccessDenied builds an authorization failure event
func AccessDenied(subject string, role models.Role, method, path string, meta RequestMeta) *models.AuthEvent {
	return newEvent(models.AuthEventAccessDenied, subject, meta).
		WithDetails(map[string]string{
			"role":   role.String(),
			"method": method,
			"path":   path,
		})
}

// AdminBootstrapped builds the event written when the first admin is created
func AdminBootstrapped(subject string, generatedPassword bool) *models.AuthEvent {
	return newEvent(models.AuthEventAdminBootstrapped, subject, RequestMeta{}).
		WithDetails(map[string]bool{"generated_password": generatedPassword})
}
