package middleware

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/hrapp/hr-auth/internal/observability"
	"github.com/hrapp/hr-auth/internal/policy"
	"github.com/hrapp/hr-auth/models"
	"github.com/hrapp/hr-auth/services/audit"
	"github.com/hrapp/hr-auth/utils"
)

// Authorizer enforces the role policy table on authenticated requests
type Authorizer struct {
	table    *policy.Table
	recorder audit.Recorder
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewAuthorizer creates a new Authorizer. A nil recorder discards events.
func NewAuthorizer(table *policy.Table, recorder audit.Recorder, metrics *observability.Metrics, logger *zap.Logger) *Authorizer {
	if recorder == nil {
		recorder = audit.Discard
	}
	return &Authorizer{
		table:    table,
		recorder: recorder,
		metrics:  metrics,
		logger:   logger,
	}
}

// Authorize checks the request's roles against the policy table. Requests
// whose path no rule covers only need to be authenticated.
func (a *Authorizer) Authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		auth := GetAuthentication(r.Context())
		if auth == nil {
			_ = utils.WriteUnauthorized(w, unauthenticatedMessage)
			return
		}

		requestPath, ok := canonicalPath(r)
		if !ok {
			rejectPath(w, r, a.logger)
			return
		}

		decision := a.table.EvaluateRoles(r.Method, requestPath, auth.Roles)
		if !decision.Allowed {
			a.logger.Warn("access denied",
				zap.String("request_id", GetRequestIDFromContext(r.Context())),
				zap.String("subject", auth.Subject()),
				zap.Strings("authorities", auth.Authorities),
				zap.String("method", r.Method),
				zap.String("path", requestPath),
				zap.Stringer("rule", decision.Rule))
			a.metrics.AuthzDenied()

			var role models.Role
			if len(auth.Roles) > 0 {
				role = auth.Roles[0]
			}
			_ = a.recorder.Record(audit.AccessDenied(auth.Subject(), role, r.Method, requestPath, audit.MetaFromRequest(r)))

			_ = utils.WriteForbidden(w, "access forbidden")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequireRole returns middleware that only admits the given roles,
// independent of the policy table
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	allowed := make(map[models.Role]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := GetAuthentication(r.Context())
			if auth == nil {
				_ = utils.WriteUnauthorized(w, unauthenticatedMessage)
				return
			}
			for _, have := range auth.Roles {
				if allowed[have] {
					next.ServeHTTP(w, r)
					return
				}
			}
			_ = utils.WriteForbidden(w, "access forbidden")
		})
	}
}
