package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/RuslanFatikhov/Collections/internal/audit"
	"github.com/RuslanFatikhov/Collections/internal/auth"
	"github.com/RuslanFatikhov/Collections/internal/uploads"
)

// upload accepts a multipart form with a single "file" part. The stored
// key never contains the client's filename; the response URL is served
// back through serveFile.
func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "missing file")
		return
	}
	defer file.Close()

	u := auth.CurrentUser(r.Context())
	key, contentType, err := uploads.Key(u.ID, header.Filename)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.files.Put(r.Context(), key, contentType, file); err != nil {
		h.fail(w, r, err)
		return
	}

	if h.recorder != nil {
		h.recorder.Record(r.Context(), audit.Record{
			UserID:   u.ID,
			Action:   audit.ActionFileUpload,
			Resource: audit.ResourceFile,
			Details:  map[string]any{"key": key, "size": header.Size},
		})
	}

	writeJSON(w, http.StatusCreated, map[string]string{"url": fileURL(key)})
}

func (h *Handler) serveFile(w http.ResponseWriter, r *http.Request) {
	key := "uploads/" + chi.URLParam(r, "*")
	body, contentType, err := h.files.Get(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, body)
}

// fileURL maps a stored key onto its public path.
func fileURL(key string) string {
	return "/files/" + strings.TrimPrefix(key, "uploads/")
}
