package handlers

import (
	"encoding/json"
	"net/http"

	"menugen/internal/batch"
	"menugen/internal/cache"
	"menugen/internal/infra"
	"menugen/internal/pipeline"
	"menugen/internal/storage"
)

// App bundles the service dependencies the HTTP handlers need. BaseURL is
// the public prefix under which stored artifacts are served.
type App struct {
	Cache     *cache.ResultsCache
	Scheduler *batch.Scheduler
	Pipeline  *pipeline.Pipeline
	Store     *storage.FileStore
	BaseURL   string
	Logger    infra.Logger
}

// NewApp constructs the handler container.
func NewApp(results *cache.ResultsCache, scheduler *batch.Scheduler, pipe *pipeline.Pipeline, store *storage.FileStore, baseURL string, logger infra.Logger) *App {
	return &App{
		Cache:     results,
		Scheduler: scheduler,
		Pipeline:  pipe,
		Store:     store,
		BaseURL:   baseURL,
		Logger:    logger,
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, message string) {
	a.json(w, code, map[string]string{"error": message})
}
