package api

import (
	"errors"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/mrnkim/adland-tv/internal/checkpoint"
)

// itemTitle finds the title recorded for slug in the batch checkpoint.
func itemTitle(p *checkpoint.Progress, slug string) (string, bool) {
	for _, c := range p.Completed {
		if c.Slug == slug {
			return c.Title, true
		}
	}
	for _, f := range p.Failed {
		if f.Slug == slug {
			return f.Title, true
		}
	}
	return "", false
}

// mediaHandler serves the cached download of a batch item so an operator can
// review it. Range requests are honoured for in-browser seeking.
func mediaHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tag, ok := batchTag(w, r)
		if !ok {
			return
		}
		slug := chi.URLParam(r, "slug")

		progress, err := cfg.Store.Load(tag)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		title, found := itemTitle(progress, slug)
		if !found {
			WriteError(w, http.StatusNotFound, "item not found in batch", "NOT_FOUND")
			return
		}

		path := cfg.MediaPath(title)
		f, err := os.Open(path)
		if errors.Is(err, os.ErrNotExist) {
			WriteError(w, http.StatusNotFound, "media not cached", "NOT_FOUND")
			return
		}
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to open media", "INTERNAL_ERROR")
			return
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil || !info.Mode().IsRegular() {
			WriteError(w, http.StatusNotFound, "media not cached", "NOT_FOUND")
			return
		}

		w.Header().Set("Content-Type", "video/mp4")
		http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	}
}
