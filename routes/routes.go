package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/hrapp/hr-auth/app"
	"github.com/hrapp/hr-auth/handlers"
	authmw "github.com/hrapp/hr-auth/middleware"
)

// MountFunc registers business routes on a router that already enforces
// authentication and the role policy table
type MountFunc func(r chi.Router)

// SetupRoutes configures all application routes and middleware. mount may
// be nil.
func SetupRoutes(deps *app.Dependencies, mount MountFunc) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(deps.Metrics.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Frontend.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Bearer authentication for every path outside the bypass list
	r.Use(deps.AuthMiddleware.RequireAuth)

	// Health check endpoints
	r.Get("/healthz", deps.Health.HandleHealth)
	r.Get("/readyz", deps.Health.HandleReadiness)
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	// Session endpoints, served under both prefixes
	authRoutes := func(r chi.Router) {
		r.Use(authmw.SecurityHeaders)
		r.Post("/login", deps.AuthHandler.HandleLogin)
		r.Post("/refresh", deps.AuthHandler.HandleRefresh)
		r.Post("/logout", deps.AuthHandler.HandleLogout)
		r.Post("/forgot-password", deps.AuthHandler.HandleForgotPassword)
		r.Post("/reset-password", deps.AuthHandler.HandleResetPassword)
	}
	r.Route("/auth", authRoutes)
	r.Route("/api/auth", authRoutes)

	// Uploaded profile pictures are public
	if dir := deps.Config.Server.UploadsDir; dir != "" {
		r.Handle("/uploads/profile/*", http.StripPrefix("/uploads/profile/", handlers.NewUploadsHandler(dir)))
	}

	// Authenticated routes must also pass the policy table
	r.Group(func(r chi.Router) {
		r.Use(deps.Authorizer.Authorize)

		r.Get("/api/users/me", handlers.HandleCurrentUser)

		if mount != nil {
			mount(r)
		}
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"endpoint not found"}`))
	})

	return r
}
