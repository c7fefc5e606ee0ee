package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ResolveShare redirects a share token to the underlying artifact URL.
// Expired or unknown tokens yield 404.
func (a *App) ResolveShare(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	link, ok := a.Cache.ResolveShareLink(token)
	if !ok {
		a.error(w, http.StatusNotFound, "share link not found or expired")
		return
	}
	http.Redirect(w, r, link.URL, http.StatusFound)
}
