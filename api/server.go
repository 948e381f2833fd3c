/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address from proxy headers
  3. Logger:     logrus request log carrying the request ID
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the resident/admin frontend

ROUTE GROUPS:
  /healthz              Liveness
  /metrics              Prometheus
  /api/units/*          Units, their vehicles and passes
  /api/vehicles/*       Vehicle edits and active checks
  /api/passes/*         Pass detail
  /api/admin/*          Admin operations (X-Admin-Code required)
  /api/scenarios/*      Demo scenarios

AUTHENTICATION:
  Admin routes compare the X-Admin-Code header with the configured static
  access code in constant time. Everything else is resident-facing.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/RL96-hub/ParkingPass/pass"
)

// AdminCodeHeader carries the static admin access code.
const AdminCodeHeader = "X-Admin-Code"

// RouterOptions configures NewRouter.
type RouterOptions struct {
	AdminCode      string
	AllowedOrigins []string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logRequests)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", AdminCodeHeader},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", h.Metrics.Handler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Unit routes
		r.Route("/units", func(r chi.Router) {
			r.Get("/", h.ListUnits)
			r.Post("/", h.CreateUnit)
			r.Get("/{id}", h.GetUnit)
			r.With(requireAdmin(opts.AdminCode)).Delete("/{id}", h.DeleteUnit)

			r.Get("/{id}/vehicles", h.ListVehicles)
			r.Post("/{id}/vehicles", h.CreateVehicle)

			r.Get("/{id}/passes", h.ListPasses)
			r.Post("/{id}/passes", h.CreatePass)
		})

		// Vehicle routes
		r.Route("/vehicles", func(r chi.Router) {
			r.Put("/{id}", h.UpdateVehicle)
			r.Delete("/{id}", h.DeleteVehicle)
			r.Get("/{id}/active", h.GetActivePass)
		})

		// Pass routes
		r.Get("/passes/{id}", h.GetPass)

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(requireAdmin(opts.AdminCode))
			r.Put("/units/{id}", h.UpdateUnit)
			r.Post("/passes/{id}/payment", h.UpdatePayment)
			r.Get("/settings", h.GetSettings)
			r.Put("/settings", h.UpdateSettings)
			r.Post("/reconcile", h.Reconcile)
			r.Post("/reset", h.ResetDatabase)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.With(requireAdmin(opts.AdminCode)).Post("/load", h.LoadScenario)
		})
	})

	return r
}

// requireAdmin rejects requests without the admin code and marks the
// request context with an admin actor.
func requireAdmin(code string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(AdminCodeHeader)
			if code == "" || subtle.ConstantTimeCompare([]byte(got), []byte(code)) != 1 {
				writeJSON(w, http.StatusForbidden, ErrorResponse{
					Error: "Admin access required",
					Code:  "forbidden",
				})
				return
			}
			ctx := withActor(r.Context(), pass.Actor{ID: "admin", Role: pass.RoleAdmin})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		requestLogger(r).WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   ww.Status(),
			"bytes":    ww.BytesWritten(),
			"duration": time.Since(start).String(),
			"remote":   r.RemoteAddr,
		}).Info("request")
	})
}
