package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"focusift/internal/catalog"
	"focusift/internal/metrics"
	"focusift/internal/session"
	"focusift/internal/storage"
)

// Deps holds everything the HTTP surface talks to.
type Deps struct {
	Registry *session.Registry
	Catalog  *catalog.Catalog
	Store    storage.Storage
	Metrics  *metrics.Metrics // optional
	Identity IdentityHeaders
	APIKey   string
	Logger   *slog.Logger
}

// NewRouter creates the Chi router with all routes and middleware.
func NewRouter(d Deps) *chi.Mux {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Identity == (IdentityHeaders{}) {
		d.Identity = DefaultIdentityHeaders()
	}

	r := chi.NewRouter()

	// Global middleware (runs on ALL routes including /health)
	r.Use(CORS)
	r.Use(RequestID)
	r.Use(Logger(d.Logger))
	r.Use(Recovery(d.Logger))
	if d.Metrics != nil {
		r.Use(d.Metrics.RequestTrackingMiddleware)
	}

	healthH := NewHealthHandler(d.Store, d.Catalog, d.Registry)
	techniqueH := NewTechniqueHandler(d.Catalog)
	timerH := NewTimerHandler(d.Registry)
	feedbackH := NewFeedbackHandler(d.Registry)
	sessionH := NewSessionHandler(d.Store)

	// Unauthenticated routes
	r.Get("/health", healthH.Health)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(d.APIKey))
		r.Use(IdentityExtractor(d.Identity))

		r.Get("/api/techniques", techniqueH.List)
		// Summaries may arrive from a remote daemon that carries only the API key.
		r.Post("/api/session", sessionH.Create)

		r.Group(func(r chi.Router) {
			r.Use(RequireUser)

			r.Get("/api/me", Me)
			r.Get("/api/sessions", sessionH.List)

			r.Route("/api/timer", func(r chi.Router) {
				r.Post("/start", timerH.Start)
				r.Post("/stop", timerH.Stop)
				r.Post("/visibility", timerH.Visibility)
				r.Get("/status", timerH.Status)
				r.Get("/events", timerH.Events)
			})

			r.Get("/api/feedback", feedbackH.Get)
			r.Post("/api/feedback", feedbackH.Record)
		})
	})

	return r
}

// Me handles GET /api/me
func Me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, GetIdentity(r))
}
