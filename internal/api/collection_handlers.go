package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/RuslanFatikhov/Collections/internal/auth"
	"github.com/RuslanFatikhov/Collections/internal/collections"
	"github.com/RuslanFatikhov/Collections/internal/fields"
)

type collectionBody struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Fields      fields.Schema `json:"custom_fields"`
}

func (h *Handler) listCollections(w http.ResponseWriter, r *http.Request) {
	u := auth.CurrentUser(r.Context())
	cs, err := h.collections.Mine(r.Context(), u.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"collections": cs})
}

func (h *Handler) createCollection(w http.ResponseWriter, r *http.Request) {
	var in collectionBody
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	u := auth.CurrentUser(r.Context())
	c, err := h.collections.Create(r.Context(), u.ID, in.Name, in.Description, in.Fields)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) getCollection(w http.ResponseWriter, r *http.Request) {
	u := auth.CurrentUser(r.Context())
	c, err := h.collections.Get(r.Context(), u.ID, idParam(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) updateCollection(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name        *string        `json:"name"`
		Description *string        `json:"description"`
		CoverURL    *string        `json:"cover_url"`
		Fields      *fields.Schema `json:"custom_fields"`
	}
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	u := auth.CurrentUser(r.Context())
	c, err := h.collections.Update(r.Context(), u.ID, idParam(r), collections.UpdateParams{
		Name:        in.Name,
		Description: in.Description,
		CoverURL:    in.CoverURL,
		Fields:      in.Fields,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) deleteCollection(w http.ResponseWriter, r *http.Request) {
	u := auth.CurrentUser(r.Context())
	if err := h.collections.Delete(r.Context(), u.ID, idParam(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) setPublic(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Public bool `json:"public"`
	}
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	u := auth.CurrentUser(r.Context())
	c, err := h.collections.SetPublic(r.Context(), u.ID, idParam(r), in.Public)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"collection":  c,
		"public_path": c.PublicPath(),
	})
}

func (h *Handler) rotateShareToken(w http.ResponseWriter, r *http.Request) {
	u := auth.CurrentUser(r.Context())
	c, err := h.collections.RotateShareToken(r.Context(), u.ID, idParam(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"collection":  c,
		"public_path": c.PublicPath(),
	})
}

func (h *Handler) explore(w http.ResponseWriter, r *http.Request) {
	cs, err := h.collections.Public(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"collections": cs})
}

func (h *Handler) publicCollection(w http.ResponseWriter, r *http.Request) {
	token, err := uuid.Parse(chi.URLParam(r, "uuid"))
	if err != nil {
		writeError(w, http.StatusNotFound, "collection not found")
		return
	}

	c, err := h.collections.PublicByToken(r.Context(), token)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	// Anonymous item listing works because the collection is public.
	items, err := h.collections.Items(r.Context(), 0, c.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"collection": c, "items": items})
}
