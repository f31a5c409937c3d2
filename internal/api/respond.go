package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/RuslanFatikhov/Collections/internal/admin"
	"github.com/RuslanFatikhov/Collections/internal/collections"
	"github.com/RuslanFatikhov/Collections/internal/fields"
	"github.com/RuslanFatikhov/Collections/internal/log"
	"github.com/RuslanFatikhov/Collections/internal/uploads"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// fail maps service errors onto HTTP statuses. Anything unrecognized is
// a 500 with a generic body, the real error goes to the log only.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var fieldErr *fields.FieldError
	var nameErr *collections.NameError
	var schemaErr *collections.SchemaError

	switch {
	case errors.As(err, &fieldErr),
		errors.As(err, &nameErr),
		errors.As(err, &schemaErr),
		errors.Is(err, uploads.ErrUnsupportedType),
		errors.Is(err, collections.ErrNotPublic),
		errors.Is(err, admin.ErrSelfBlock):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, collections.ErrNotFound),
		errors.Is(err, collections.ErrItemNotFound),
		errors.Is(err, admin.ErrUserNotFound),
		errors.Is(err, admin.ErrCollectionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, collections.ErrNotOwner),
		errors.Is(err, collections.ErrBlocked):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		log.FromContext(r.Context()).Error(r.Context(), err, "request failed",
			"url.path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeBody tolerates unknown keys, clients may send fields this
// version does not know about.
func decodeBody(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// idParam parses the {id} route parameter, 0 on malformed input so the
// store lookup misses and the handler 404s.
func idParam(r *http.Request) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id
}
