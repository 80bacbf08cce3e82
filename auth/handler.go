// Package auth serves the unauthenticated session endpoints: login, token
// refresh, logout and the two password reset steps.
package auth

import (
	"context"
	"net"
	"net/http"

	"go.uber.org/zap"

	"github.com/hrapp/hr-auth/handlers"
	"github.com/hrapp/hr-auth/internal/observability"
	"github.com/hrapp/hr-auth/models"
	"github.com/hrapp/hr-auth/services"
	"github.com/hrapp/hr-auth/services/audit"
	"github.com/hrapp/hr-auth/services/passwordreset"
	"github.com/hrapp/hr-auth/services/ratelimit"
	"github.com/hrapp/hr-auth/token"
	"github.com/hrapp/hr-auth/utils"
)

const (
	loginSuccessMessage = "Login successful"
	logoutMessage       = "Logged out"
)

// Authenticator verifies a subject's password
type Authenticator interface {
	Authenticate(ctx context.Context, subject, raw string) (*models.Principal, error)
}

// ResetFlow runs the two password reset steps
type ResetFlow interface {
	Request(ctx context.Context, email string) (passwordreset.Outcome, error)
	Consume(ctx context.Context, resetToken, newPassword string) (string, error)
}

// LoginRequest is the body of POST /auth/login
type LoginRequest struct {
	Email    string `json:"email" form:"email" validate:"required,email"`
	Password string `json:"password" form:"password" validate:"required"`
}

// LoginResponse is returned on a successful login
type LoginResponse struct {
	Token         string `json:"token"`
	Role          string `json:"role"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	StatusMessage string `json:"statusMessage"`
}

// RefreshResponse carries a new access token
type RefreshResponse struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

// ForgotPasswordRequest is accepted as JSON, form or query parameters
type ForgotPasswordRequest struct {
	Email string `json:"email" form:"email" validate:"required,email"`
}

// ForgotPasswordResponse is identical for known and unknown addresses
type ForgotPasswordResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// ResetPasswordRequest is accepted as JSON, form or query parameters
type ResetPasswordRequest struct {
	Token       string `json:"token" form:"token" validate:"required"`
	NewPassword string `json:"newPassword" form:"newPassword" validate:"required"`
}

// Handler handles the session and password reset endpoints
type Handler struct {
	tokens   *token.Service
	users    Authenticator
	sessions *SessionManager
	resets   ResetFlow
	limiter  *ratelimit.Service
	recorder audit.Recorder
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewHandler creates a new auth handler. limiter may be nil to disable rate
// limiting; recorder may be nil to discard audit events.
func NewHandler(
	tokens *token.Service,
	users Authenticator,
	sessions *SessionManager,
	resets ResetFlow,
	limiter *ratelimit.Service,
	recorder audit.Recorder,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Handler {
	if recorder == nil {
		recorder = audit.Discard
	}
	return &Handler{
		tokens:   tokens,
		users:    users,
		sessions: sessions,
		resets:   resets,
		limiter:  limiter,
		recorder: recorder,
		metrics:  metrics,
		logger:   logger,
	}
}

// HandleLogin handles POST /auth/login
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, ratelimit.ScopeLogin) {
		return
	}

	var req LoginRequest
	if !h.bind(w, r, &req) {
		return
	}

	meta := audit.MetaFromRequest(r)
	principal, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		reason := FailureReason(err)
		h.logger.Warn("login failed",
			zap.String("request_id", meta.RequestID),
			zap.String("subject", req.Email),
			zap.String("reason", reason))
		h.metrics.AuthFailure(reason)
		h.record(audit.LoginFailed(req.Email, reason, meta))
		if services.IsInternalError(err) {
			handlers.HandleServiceError(w, err, h.logger)
			return
		}
		_ = utils.WriteUnauthorized(w, services.ErrUnauthenticated.Message)
		return
	}

	access, err := h.tokens.IssueAccessToken(principal.Subject, []models.Role{principal.Role})
	if err != nil {
		handlers.HandleServiceError(w, services.WrapInternal("failed to issue access token", err), h.logger)
		return
	}
	cookie, err := h.sessions.Issue(principal.Subject)
	if err != nil {
		handlers.HandleServiceError(w, err, h.logger)
		return
	}

	h.metrics.AuthAttempt(observability.OutcomeSuccess)
	h.metrics.TokenIssued(string(token.KindAccess))
	h.metrics.TokenIssued(string(token.KindRefresh))
	h.record(audit.LoginSucceeded(principal.Subject, principal.Role, meta))
	h.logger.Info("login successful",
		zap.String("request_id", meta.RequestID),
		zap.String("subject", principal.Subject),
		zap.String("role", string(principal.Role)))

	http.SetCookie(w, cookie)
	_ = utils.WriteOK(w, LoginResponse{
		Token:         access,
		Role:          string(principal.Role),
		Email:         principal.Subject,
		Name:          principal.Name,
		StatusMessage: loginSuccessMessage,
	})
}

// HandleRefresh handles POST /auth/refresh
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	meta := audit.MetaFromRequest(r)

	refreshed, err := h.sessions.RefreshAccessToken(r.Context(), h.sessions.FromRequest(r))
	if err != nil {
		reason := FailureReason(err)
		h.logger.Warn("token refresh rejected",
			zap.String("request_id", meta.RequestID),
			zap.String("reason", reason))
		h.record(audit.RefreshRejected("", reason, meta))
		if services.IsInternalError(err) {
			handlers.HandleServiceError(w, err, h.logger)
			return
		}
		h.metrics.AuthFailure(reason)
		_ = utils.WriteUnauthorized(w, services.ErrUnauthenticated.Message)
		return
	}

	h.metrics.TokenIssued(string(token.KindAccess))
	h.record(audit.TokenRefreshed(refreshed.Principal.Subject, refreshed.Principal.Role, meta))

	_ = utils.WriteOK(w, RefreshResponse{
		Token: refreshed.AccessToken,
		Role:  string(refreshed.Principal.Role),
	})
}

// HandleLogout handles POST /auth/logout. It always clears the cookie.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	meta := audit.MetaFromRequest(r)

	subject, err := h.sessions.Revoke(r.Context(), h.sessions.FromRequest(r))
	if err != nil {
		h.logger.Error("failed to revoke refresh token",
			zap.String("request_id", meta.RequestID),
			zap.Error(err))
	}
	if subject != "" {
		h.record(audit.Logout(subject, meta))
	}

	http.SetCookie(w, h.sessions.Clear())
	_ = utils.WriteMessage(w, logoutMessage)
}

// HandleForgotPassword handles POST /auth/forgot-password. The response
// never reveals whether the address has an account.
func (h *Handler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, ratelimit.ScopeForgotPassword) {
		return
	}

	var req ForgotPasswordRequest
	if !h.bind(w, r, &req) {
		return
	}

	meta := audit.MetaFromRequest(r)
	outcome, err := h.resets.Request(r.Context(), req.Email)
	if err != nil {
		// Masked: the client sees the same response either way
		h.logger.Error("password reset request failed",
			zap.String("request_id", meta.RequestID),
			zap.String("error_type", string(services.GetErrorType(err))),
			zap.Error(err))
		if services.IsDeliveryFailureError(err) {
			h.metrics.AuthFailure("delivery_failure")
		}
	}
	h.record(audit.PasswordResetRequested(outcome.Subject, outcome.KnownUser, meta))

	_ = utils.WriteOK(w, ForgotPasswordResponse{
		Status:  http.StatusOK,
		Message: passwordreset.RequestedMessage,
	})
}

// HandleResetPassword handles POST /auth/reset-password
func (h *Handler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !h.bind(w, r, &req) {
		return
	}

	subject, err := h.resets.Consume(r.Context(), req.Token, req.NewPassword)
	if err != nil {
		handlers.HandleServiceError(w, err, h.logger)
		return
	}

	h.record(audit.PasswordResetCompleted(subject, audit.MetaFromRequest(r)))
	_ = utils.WriteMessage(w, passwordreset.CompletedMessage)
}

// allow applies the rate limit for scope keyed by client IP and writes a
// 429 when exceeded
func (h *Handler) allow(w http.ResponseWriter, r *http.Request, scope ratelimit.Scope) bool {
	if h.limiter == nil {
		return true
	}

	res, err := h.limiter.Check(r.Context(), scope, clientIP(r))
	if err != nil {
		handlers.HandleServiceError(w, services.WrapInternal("rate limiter unavailable", err), h.logger)
		return false
	}
	if !res.Allowed {
		h.logger.Warn("rate limit exceeded",
			zap.String("scope", string(scope)),
			zap.String("ip", clientIP(r)))
		_ = utils.WriteTooManyRequests(w, services.ErrRateLimitExceeded.Message, res.RetryAfter)
		return false
	}
	return true
}

// bind decodes and validates a request, writing a 400 on failure
func (h *Handler) bind(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := utils.Bind(r, dst); err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return false
	}
	if err := utils.ValidateStruct(dst); err != nil {
		handlers.HandleValidationError(w, err, h.logger)
		return false
	}
	return true
}

func (h *Handler) record(event *models.AuthEvent) {
	if err := h.recorder.Record(event); err != nil {
		h.logger.Debug("audit event not recorded", zap.Error(err))
	}
}

// clientIP returns the remote host; RealIP middleware has already applied
// forwarding headers
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
