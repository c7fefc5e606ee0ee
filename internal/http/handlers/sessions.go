package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"menugen/internal/domain"
)

const maxUploadBytes = 32 << 20

// UploadMenu accepts a multipart form with an optional "menu" image and an
// "items" JSON array of extracted line items, then starts the generation
// pipeline for a fresh session.
func (a *App) UploadMenu(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		a.error(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	var items []domain.LineItem
	if err := json.Unmarshal([]byte(r.FormValue("items")), &items); err != nil || len(items) == 0 {
		a.error(w, http.StatusBadRequest, "items must be a non-empty JSON array")
		return
	}
	for _, item := range items {
		if strings.TrimSpace(item.ID) == "" {
			a.error(w, http.StatusBadRequest, "every item requires an id")
			return
		}
	}

	priority := 0
	if v := r.FormValue("priority"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			a.error(w, http.StatusBadRequest, "priority must be an integer")
			return
		}
		priority = p
	}

	var menuImage []byte
	filename := ""
	if file, header, err := r.FormFile("menu"); err == nil {
		defer file.Close()
		data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
		if err != nil {
			a.error(w, http.StatusBadRequest, "failed to read menu image")
			return
		}
		menuImage = data
		filename = header.Filename
	}

	sessionID, err := a.Pipeline.Start(r.Context(), menuImage, filename, items, priority)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) {
			a.error(w, http.StatusBadRequest, "invalid request")
			return
		}
		a.Logger.Error().Err(err).Msg("handlers: start session failed")
		a.error(w, http.StatusInternalServerError, "failed to start session")
		return
	}

	a.json(w, http.StatusAccepted, map[string]string{"sessionId": sessionID})
}

// GetSession serves the cached processing result.
func (a *App) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	result, err := a.Cache.Get(r.Context(), sessionID)
	if err != nil {
		a.notFoundOrBadRequest(w, err)
		return
	}
	a.json(w, http.StatusOK, result)
}

// GetSessionStatus serves the coarse status projection.
func (a *App) GetSessionStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	status, err := a.Cache.GetStatus(r.Context(), sessionID)
	if err != nil {
		a.notFoundOrBadRequest(w, err)
		return
	}
	a.json(w, http.StatusOK, status)
}

// GetSessionProgress serves live batch counters from the scheduler.
func (a *App) GetSessionProgress(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	progress, ok := a.Scheduler.Progress(sessionID)
	if !ok {
		a.error(w, http.StatusNotFound, "session not found")
		return
	}
	a.json(w, http.StatusOK, progress)
}

// GetCacheInfo serves entry diagnostics.
func (a *App) GetCacheInfo(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	info, err := a.Cache.GetInfo(r.Context(), sessionID)
	if err != nil {
		a.notFoundOrBadRequest(w, err)
		return
	}
	a.json(w, http.StatusOK, info)
}

// CancelSession cancels the session's batch.
func (a *App) CancelSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if !a.Scheduler.Cancel(sessionID) {
		a.error(w, http.StatusNotFound, "no cancellable batch for session")
		return
	}
	a.json(w, http.StatusOK, map[string]bool{"cancelled": true})
}

// DeleteSession removes the session from cache, disk, share links and
// uploads.
func (a *App) DeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if !a.Cache.DeleteSession(r.Context(), sessionID) {
		a.error(w, http.StatusNotFound, "session not found")
		return
	}
	a.json(w, http.StatusOK, map[string]bool{"deleted": true})
}

// GetDownloadURL serves the download-annotated artifact URL for one item.
func (a *App) GetDownloadURL(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	itemID := chi.URLParam(r, "itemID")
	url, err := a.Cache.DownloadURL(r.Context(), sessionID, itemID)
	if err != nil {
		a.notFoundOrBadRequest(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]string{"url": url})
}

// CreateShareURL mints a share link for one item.
func (a *App) CreateShareURL(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	itemID := chi.URLParam(r, "itemID")
	shareURL, err := a.Cache.ShareURL(r.Context(), sessionID, itemID)
	if err != nil {
		a.notFoundOrBadRequest(w, err)
		return
	}
	a.json(w, http.StatusCreated, map[string]string{"shareUrl": shareURL})
}

func (a *App) notFoundOrBadRequest(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		a.error(w, http.StatusNotFound, "session not found")
	case errors.Is(err, domain.ErrItemNotFound):
		a.error(w, http.StatusNotFound, "line item not found")
	case errors.Is(err, domain.ErrInvalidArgument):
		a.error(w, http.StatusBadRequest, "invalid request")
	default:
		a.Logger.Error().Err(err).Msg("handlers: request failed")
		a.error(w, http.StatusInternalServerError, "internal error")
	}
}
