package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// NewRouter builds the admin router. metrics may be nil when Prometheus is
// disabled.
func NewRouter(handlers *AdminHandlers, secret string, metrics http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", handlers.handleHealth)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(secret))
		r.Get("/status", handlers.handleStatus)
		r.Get("/cache", handlers.handleCache)

		r.Route("/entities", func(r chi.Router) {
			r.Get("/", handlers.handleListEntities)
			r.Post("/{entity}/invalidate", handlers.handleInvalidate)
			r.Put("/{entity}/interval", handlers.handlePollInterval)
		})
	})
	return r
}

// RegisterRoutes mounts the admin router under /admin
func RegisterRoutes(mux *http.ServeMux, handlers *AdminHandlers, secret string, metrics http.Handler) {
	r := NewRouter(handlers, secret, metrics)
	mux.Handle("/admin", http.RedirectHandler("/admin/", http.StatusMovedPermanently))
	mux.Handle("/admin/", http.StripPrefix("/admin", r))
	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}
	log.Info().Bool("auth", secret != "").Msg("Admin endpoints enabled at /admin/*")
}
