package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"menugen/internal/http/handlers"
	"menugen/internal/infra"
	"menugen/internal/middleware"
)

// NewRouter assembles the HTTP surface: session lifecycle under /v1, the
// public share redirect, and the static artifact tree.
func NewRouter(app *handlers.App, cfg *infra.Config, logger infra.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(logger),
		middleware.CORS(cfg.CORSAllowedOrigins),
		middleware.RateLimit(cfg.RateLimitPerMin, time.Minute),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/stats", app.GetStatistics)

	r.Route("/v1/menus", func(r chi.Router) {
		r.Post("/", app.UploadMenu)
	})

	r.Route("/v1/sessions/{id}", func(r chi.Router) {
		r.Get("/", app.GetSession)
		r.Delete("/", app.DeleteSession)
		r.Get("/status", app.GetSessionStatus)
		r.Get("/progress", app.GetSessionProgress)
		r.Get("/cache", app.GetCacheInfo)
		r.Post("/cancel", app.CancelSession)
		r.Put("/priority", app.SetPriority)
		r.Get("/archive", app.ArchiveSession)
		r.Get("/items/{itemID}/download-url", app.GetDownloadURL)
		r.Post("/items/{itemID}/share", app.CreateShareURL)
	})

	r.Get("/share/{token}", app.ResolveShare)

	fileServer := http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.StoragePath)))
	r.Get("/static/*", fileServer.ServeHTTP)

	return r
}
