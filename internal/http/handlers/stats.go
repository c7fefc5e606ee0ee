package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// GetStatistics serves aggregate batch counters.
func (a *App) GetStatistics(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, a.Scheduler.Statistics())
}

type priorityRequest struct {
	Priority int `json:"priority"`
}

// SetPriority reprioritizes every queued item of the session's batch.
func (a *App) SetPriority(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	var req priorityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "body must be JSON with a priority field")
		return
	}
	if !a.Scheduler.SetPriority(sessionID, req.Priority) {
		a.error(w, http.StatusNotFound, "no active batch for session")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"priority": req.Priority})
}
