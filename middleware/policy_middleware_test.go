package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/hrapp/hr-auth/internal/policy"
	"github.com/hrapp/hr-auth/models"
)

// MockRecorder is a mock implementation of audit.Recorder
type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) Record(event *models.AuthEvent) error {
	args := m.Called(event)
	return args.Error(0)
}

func withRole(r *http.Request, role models.Role) *http.Request {
	auth := &AuthenticationContext{
		Principal:   &models.Principal{Subject: "user@x.com", Role: role, Active: true},
		Roles:       []models.Role{role},
		Authorities: models.Authorities([]models.Role{role}),
	}
	return r.WithContext(WithAuthentication(r.Context(), auth))
}

func TestAuthorize(t *testing.T) {
	logger := zap.NewNop()
	table := policy.DefaultTable()

	tests := []struct {
		name   string
		method string
		path   string
		role   models.Role
		want   int
	}{
		{"employee lists own leaves", http.MethodGet, "/api/leaves/my", models.RoleEmployee, http.StatusOK},
		{"employee cannot list all leaves", http.MethodGet, "/api/leaves", models.RoleEmployee, http.StatusForbidden},
		{"hr lists all leaves", http.MethodGet, "/api/leaves", models.RoleHR, http.StatusOK},
		{"admin sets leave status", http.MethodPut, "/api/leaves/42/status", models.RoleAdmin, http.StatusOK},
		{"employee cannot override attendance", http.MethodPost, "/api/attendance/override", models.RoleEmployee, http.StatusForbidden},
		{"admin reaches admin area", http.MethodDelete, "/api/admin/users/7", models.RoleAdmin, http.StatusOK},
		{"hr cannot reach admin area", http.MethodGet, "/api/admin/users", models.RoleHR, http.StatusForbidden},
		{"any role reads own profile", http.MethodGet, "/api/users/me", models.RoleEmployee, http.StatusOK},
		{"uncovered path needs authentication only", http.MethodGet, "/api/announcements", models.RoleEmployee, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := new(MockRecorder)
			recorder.On("Record", mock.Anything).Return(nil).Maybe()
			a := NewAuthorizer(table, recorder, nil, logger)

			called := false
			req := withRole(httptest.NewRequest(tt.method, tt.path, nil), tt.role)
			w := httptest.NewRecorder()
			a.Authorize(okHandler(&called)).ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
			assert.Equal(t, tt.want == http.StatusOK, called)
			if tt.want == http.StatusForbidden {
				assert.JSONEq(t, `{"error":"access forbidden"}`, w.Body.String())
				recorder.AssertNumberOfCalls(t, "Record", 1)
			} else {
				recorder.AssertNotCalled(t, "Record", mock.Anything)
			}
		})
	}

	t.Run("denial records access denied event", func(t *testing.T) {
		recorder := new(MockRecorder)
		recorder.On("Record", mock.MatchedBy(func(e *models.AuthEvent) bool {
			return e.Type == models.AuthEventAccessDenied && e.Subject == "user@x.com"
		})).Return(nil).Once()
		a := NewAuthorizer(table, recorder, nil, logger)

		called := false
		req := withRole(httptest.NewRequest(http.MethodGet, "/api/hr/reports", nil), models.RoleEmployee)
		w := httptest.NewRecorder()
		a.Authorize(okHandler(&called)).ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
		recorder.AssertExpectations(t)
	})

	t.Run("missing authentication gives 401", func(t *testing.T) {
		a := NewAuthorizer(table, nil, nil, logger)

		called := false
		w := httptest.NewRecorder()
		a.Authorize(okHandler(&called)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/leaves", nil))

		assert.False(t, called)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("preflight skips policy", func(t *testing.T) {
		a := NewAuthorizer(table, nil, nil, logger)

		called := false
		w := httptest.NewRecorder()
		a.Authorize(okHandler(&called)).ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/admin/users", nil))

		assert.True(t, called)
	})
}

func TestAuthorize_RoutedPathMatchesPolicyPath(t *testing.T) {
	a := NewAuthorizer(policy.DefaultTable(), nil, nil, zap.NewNop())

	asEmployee := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, withRole(r, models.RoleEmployee))
		})
	}
	reached := func(name string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(name))
		}
	}

	r := chi.NewRouter()
	r.Use(asEmployee)
	r.Use(a.Authorize)
	r.Route("/api/admin", func(r chi.Router) {
		r.Get("/users/{id}", reached("admin"))
	})
	r.Put("/api/users/{id}/salary", reached("salary"))
	r.Get("/api/users/me", reached("me"))

	tests := []struct {
		name   string
		method string
		target string
		want   int
	}{
		{"admin route denied", http.MethodGet, "/api/admin/users/42", http.StatusForbidden},
		{"own profile allowed", http.MethodGet, "/api/users/me", http.StatusOK},
		{"encoded traversal out of admin area", http.MethodGet, "/api/admin/users/%2E%2E%2F%2E%2E%2Fusers%2Fme", http.StatusBadRequest},
		{"encoded dot segment into salary", http.MethodPut, "/api/users/%2E%2E/salary", http.StatusBadRequest},
		{"encoded slash inside segment", http.MethodGet, "/api/users%2Fme", http.StatusBadRequest},
		{"literal dot segments", http.MethodPut, "/api/users/me/../7/salary", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(tt.method, tt.target, nil))

			assert.Equal(t, tt.want, w.Code)
			if tt.want != http.StatusOK {
				assert.NotContains(t, []string{"admin", "salary", "me"}, w.Body.String())
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	t.Run("matching role passes", func(t *testing.T) {
		called := false
		req := withRole(httptest.NewRequest(http.MethodGet, "/", nil), models.RoleHR)
		w := httptest.NewRecorder()
		RequireRole(models.RoleAdmin, models.RoleHR)(okHandler(&called)).ServeHTTP(w, req)
		assert.True(t, called)
	})

	t.Run("other role is forbidden", func(t *testing.T) {
		called := false
		req := withRole(httptest.NewRequest(http.MethodGet, "/", nil), models.RoleEmployee)
		w := httptest.NewRecorder()
		RequireRole(models.RoleAdmin)(okHandler(&called)).ServeHTTP(w, req)
		assert.False(t, called)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("roles parsed from config match", func(t *testing.T) {
		parsed, err := models.ParseRoles([]string{"admin", " role_hr "})
		assert.NoError(t, err)

		called := false
		req := withRole(httptest.NewRequest(http.MethodGet, "/", nil), models.RoleHR)
		w := httptest.NewRecorder()
		RequireRole(parsed...)(okHandler(&called)).ServeHTTP(w, req)
		assert.True(t, called)
	})

	t.Run("unauthenticated is 401", func(t *testing.T) {
		called := false
		w := httptest.NewRecorder()
		RequireRole(models.RoleAdmin)(okHandler(&called)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
