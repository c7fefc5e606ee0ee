package handlers

import (
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"menugen/internal/domain"
	"menugen/pkg/zip"
)

// ArchiveSession streams a zip of every successfully generated dish photo in
// the session. Failed items are skipped; a session with no successful photos
// yields 404.
func (a *App) ArchiveSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	result, err := a.Cache.Get(r.Context(), sessionID)
	if err != nil {
		a.notFoundOrBadRequest(w, err)
		return
	}

	var assets []zip.Asset
	for _, outcome := range result.GeneratedImages {
		if outcome.Status != domain.OutcomeSuccess {
			continue
		}
		key := a.storageKeyFromURL(outcome.URL)
		data, err := a.Store.Read(r.Context(), key)
		if err != nil {
			a.Logger.Warn().Err(err).
				Str("session_id", sessionID).
				Str("key", key).
				Msg("handlers: archive skipping unreadable artifact")
			continue
		}
		ext := path.Ext(key)
		if ext == "" {
			ext = ".png"
		}
		assets = append(assets, zip.Asset{Filename: outcome.LineItemID + ext, Data: data})
	}
	if len(assets) == 0 {
		a.error(w, http.StatusNotFound, "no generated images to archive")
		return
	}

	payload, err := zip.Archive(assets)
	if err != nil {
		a.Logger.Error().Err(err).Str("session_id", sessionID).Msg("handlers: archive failed")
		a.error(w, http.StatusInternalServerError, "failed to build archive")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="menu-`+sessionID+`.zip"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

// storageKeyFromURL maps a public artifact URL back to its storage key.
func (a *App) storageKeyFromURL(artifactURL string) string {
	key := strings.TrimPrefix(artifactURL, a.BaseURL)
	if i := strings.Index(key, "?"); i >= 0 {
		key = key[:i]
	}
	return strings.TrimPrefix(key, "/")
}
