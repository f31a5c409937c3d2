package api

import (
	"net/http"

	"github.com/RuslanFatikhov/Collections/internal/auth"
	"github.com/RuslanFatikhov/Collections/internal/fields"
)

type itemBody struct {
	Data   fields.Payload `json:"custom_data"`
	Images []string       `json:"images"`
}

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	var in itemBody
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	u := auth.CurrentUser(r.Context())
	it, err := h.collections.CreateItem(r.Context(), u.ID, idParam(r), in.Data, in.Images)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, it)
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	u := auth.CurrentUser(r.Context())
	items, err := h.collections.Items(r.Context(), u.ID, idParam(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	u := auth.CurrentUser(r.Context())
	it, _, err := h.collections.Item(r.Context(), u.ID, idParam(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	var in itemBody
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	u := auth.CurrentUser(r.Context())
	it, err := h.collections.UpdateItem(r.Context(), u.ID, idParam(r), in.Data, in.Images)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (h *Handler) deleteItem(w http.ResponseWriter, r *http.Request) {
	u := auth.CurrentUser(r.Context())
	if err := h.collections.DeleteItem(r.Context(), u.ID, idParam(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
