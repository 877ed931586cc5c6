/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Structured request logging (zap)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/settlements/*    Settlement hierarchy
  /api/rows/*           Rows and overrides
  /api/statements/*     Statement export and archive
  /api/policies/*       Policy management
  /api/instructors/*    Directory
  /api/institutions/*   Directory
  /api/trainings/*      Source records
  /api/regions/*        Region codes and distances
  /api/holidays/*       Holiday calendar
  /api/scenarios/*      Demo scenarios
  /ws                   Live events
  /files/{key}          Archived statements (local sink only)

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/snapshot", h.GetSnapshot)
		r.Post("/recompute", h.Recompute)
		r.Get("/scheduler", h.GetSchedulerStatus)

		r.Route("/settlements", func(r chi.Router) {
			r.Get("/", h.ListSettlements)
			r.Get("/{instructorID}", h.GetSettlement)
		})

		r.Route("/rows", func(r chi.Router) {
			r.Get("/", h.ListRows)
			r.Put("/{id}/override", h.SetOverride)
			r.Delete("/{id}/override", h.RemoveOverride)
		})

		r.Route("/statements", func(r chi.Router) {
			r.Get("/", h.GetStatement)
			r.Post("/archive", h.ArchiveStatement)
		})

		r.Route("/policies", func(r chi.Router) {
			r.Get("/", h.ListPolicies)
			r.Get("/{kind}", h.GetPolicy)
			r.Put("/{kind}", h.SetPolicy)
			r.Delete("/{kind}", h.ResetPolicy)
		})

		r.Route("/instructors", func(r chi.Router) {
			r.Get("/", h.ListInstructors)
			r.Put("/{id}", h.UpsertInstructor)
			r.Delete("/{id}", h.DeleteInstructor)
		})

		r.Route("/institutions", func(r chi.Router) {
			r.Get("/", h.ListInstitutions)
			r.Put("/{id}", h.UpsertInstitution)
			r.Delete("/{id}", h.DeleteInstitution)
		})

		r.Route("/trainings", func(r chi.Router) {
			r.Get("/", h.ListTrainings)
			r.Get("/{id}", h.GetTraining)
			r.Put("/{id}", h.UpsertTraining)
			r.Delete("/{id}", h.DeleteTraining)
		})

		r.Route("/regions", func(r chi.Router) {
			r.Get("/", h.ListRegions)
			r.Get("/resolve", h.ResolveRegion)
			r.Get("/distance", h.GetDistance)
			r.Get("/distances", h.ListDistances)
			r.Put("/distances", h.SaveDistance)
		})

		r.Route("/holidays", func(r chi.Router) {
			r.Get("/", h.ListHolidays)
			r.Post("/", h.CreateHoliday)
			r.Post("/defaults", h.AddDefaultHolidays)
			r.Delete("/{id}", h.DeleteHoliday)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	if h.Hub != nil {
		r.Get("/ws", h.Hub.HandleWebSocket)
	}
	r.Get("/files/{key}", h.ServeFile)

	return r
}

// requestLogger logs one line per request with zap.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("http request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("took", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
