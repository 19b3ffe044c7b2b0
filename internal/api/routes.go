package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func (h *Handler) Routes(m *Middleware, metricsHandler http.Handler, corsOrigins []string, rateLimitRPM int) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(m.RequestLogger)
	r.Use(m.Recoverer)
	r.Use(m.Timeout(30 * time.Second))
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(m.CORS(corsOrigins))
	r.Use(m.RateLimit(rateLimitRPM))

	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/brands/{brandID}", func(r chi.Router) {
			r.Post("/discover", h.TriggerDiscovery)
			r.Post("/generate", h.TriggerGeneration)
			r.Get("/schedule-preview", h.SchedulePreview)
			r.Put("/settings", h.UpdateBrandSettings)
		})

		r.Route("/drafts/{draftID}", func(r chi.Router) {
			r.Get("/", h.GetDraft)
			r.Post("/approve", h.ApproveDraft)
			r.Post("/reject", h.RejectDraft)
			r.Post("/publish", h.PublishDraft)
		})

		r.Route("/jobs/{jobID}", func(r chi.Router) {
			r.Get("/", h.GetPublishJob)
			r.Post("/retry", h.RetryPublishJob)
		})
	})

	return r
}
