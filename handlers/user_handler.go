package handlers

import (
	"net/http"
	"time"

	"github.com/hrapp/hr-auth/middleware"
	"github.com/hrapp/hr-auth/models"
	"github.com/hrapp/hr-auth/utils"
)

// CurrentUserResponse describes the authenticated principal
type CurrentUserResponse struct {
	Subject     string   `json:"subject"`
	Name        string   `json:"name"`
	Role        string   `json:"role"`
	Authorities []string `json:"authorities"`
	ExpiresAt   string   `json:"expiresAt,omitempty"`
}

// HandleCurrentUser handles GET /api/users/me
func HandleCurrentUser(w http.ResponseWriter, r *http.Request) {
	auth := middleware.GetAuthentication(r.Context())
	if auth == nil || auth.Principal == nil {
		_ = utils.WriteUnauthorized(w, "authentication required")
		return
	}

	resp := CurrentUserResponse{
		Subject:     auth.Principal.Subject,
		Name:        auth.Principal.Name,
		Role:        string(auth.Principal.Role),
		Authorities: auth.Authorities,
	}
	if resp.Role == "" && len(auth.Roles) > 0 {
		resp.Role = string(auth.Roles[0])
	}
	if resp.Authorities == nil {
		resp.Authorities = models.Authorities(auth.Roles)
	}
	if !auth.ExpiresAt.IsZero() {
		resp.ExpiresAt = auth.ExpiresAt.UTC().Format(time.RFC3339)
	}

	_ = utils.WriteOK(w, resp)
}
