package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gatehouse/internal/auth"
)

// healthCheckTimeout bounds each component check behind /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.metrics.instrument)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Unauthenticated
		r.Get("/health", s.handleHealth)
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

		// Credential endpoints, throttled per client
		r.Group(func(r chi.Router) {
			r.Use(s.rateLimitMiddleware)
			r.Post("/auth/login", s.handleLogin)
			r.Post("/users/mailResetPassword", s.handleMailResetPassword)
			r.Get("/users/checkResetPasswordCred", s.handleCheckResetPasswordCred)
			r.Post("/users/resetPassword", s.handleResetPassword)
		})

		// Session only
		r.With(s.protect(auth.OpCatalogView)).Get("/auth/permissions", s.handlePermissions)
		r.With(s.protect(auth.OpProfileView)).Get("/users/profile", s.handleGetProfile)
		r.With(s.protect(auth.OpProfileUpdate)).Post("/users/profile", s.handleUpdateProfile)
		r.With(s.protect(auth.OpChangePassword)).Post("/users/changePassword", s.handleChangePassword)

		// ADMIN
		r.With(s.protect(auth.OpUserCreate)).Post("/users", s.handleCreateUser)
		r.With(s.protect(auth.OpUserUpdate)).Put("/users", s.handleUpdateUser)
		r.With(s.protect(auth.OpUserFind)).Get("/users", s.handleFindUsers)
		r.With(s.protect(auth.OpUserSuspend)).Post("/users/suspend", s.handleSuspendUser)
		r.With(s.protect(auth.OpUserActivate)).Post("/users/activate", s.handleActivateUser)
		r.With(s.protect(auth.OpUserAssignRole)).Post("/users/role", s.handleAssignRole)
		r.With(s.protect(auth.OpUserCheckPermission)).Post("/users/checkPermission", s.handleCheckPermission)
		r.With(s.protect(auth.OpAuditView)).Get("/audit", s.handleListAuditLogs)
	})

	return r
}

// handleHealth reports the server version and the state of each registered
// component. Any failing component turns the response into a 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.health))
	for name := range s.health {
		names = append(names, name)
	}
	sort.Strings(names)

	status := "ok"
	components := make(map[string]string, len(names))
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := s.health[name].HealthCheck(ctx)
		cancel()
		if err != nil {
			s.logger.Warn("health check failed", "component", name, "error", err)
			components[name] = "unhealthy"
			status = "degraded"
			continue
		}
		components[name] = "ok"
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":     status,
		"version":    s.version,
		"components": components,
	})
}
