package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capitalize-ai/conversation-engine/internal/middleware"
	"github.com/capitalize-ai/conversation-engine/pkg/logger"
)

// Handlers groups the API handlers mounted by NewRouter.
type Handlers struct {
	Health        *HealthHandler
	Conversations *ConversationHandler
	Messages      *MessageHandler
	History       *HistoryHandler
	Stream        *StreamHandler
}

// RouterConfig holds the router's middleware settings.
type RouterConfig struct {
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// NewRouter builds the HTTP routes and global middleware.
func NewRouter(h Handlers, cfg RouterConfig, log *logger.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS())

	r.Get("/health", h.Health.Health)
	r.Get("/ready", h.Health.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", h.Conversations.Create)
			r.Get("/", h.Conversations.List)
			r.Get("/recent", h.Conversations.Recent)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.Conversations.Get)
				r.Delete("/", h.Conversations.Delete)
				r.Post("/clear", h.Conversations.Clear)
				r.Put("/bookmark", h.Conversations.Bookmark)
				r.Get("/export", h.Conversations.Export)

				r.Post("/messages", h.Messages.Send)
				r.Put("/messages/{messageID}/reaction", h.Messages.React)

				r.Get("/events", h.Stream.Stream)
			})
		})

		r.Route("/history", func(r chi.Router) {
			r.Get("/", h.History.List)
			r.Put("/query", h.History.SetQuery)

			r.Route("/selection", func(r chi.Router) {
				r.Get("/", h.History.Selection)
				r.Delete("/", h.History.ClearSelection)
				r.Post("/all", h.History.SelectAll)
				r.Post("/mode", h.History.EnterMode)
				r.Post("/delete", h.History.DeleteSelected)
				r.Get("/export", h.History.ExportSelected)
				r.Post("/{id}", h.History.Toggle)
			})
		})
	})

	return r
}
