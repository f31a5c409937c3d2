package api

import (
	"net/http"
	"strconv"

	"github.com/RuslanFatikhov/Collections/internal/auth"
)

func (h *Handler) adminStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.admin.Overview(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) adminUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.admin.Users(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (h *Handler) blockUser(blocked bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adm := auth.CurrentUser(r.Context())
		u, err := h.admin.SetUserBlocked(r.Context(), adm.ID, idParam(r), blocked)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, u)
	}
}

func (h *Handler) blockCollection(blocked bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adm := auth.CurrentUser(r.Context())
		c, err := h.admin.SetCollectionBlocked(r.Context(), adm.ID, idParam(r), blocked)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

func (h *Handler) auditTrail(w http.ResponseWriter, r *http.Request) {
	userID, _ := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	recs, err := h.admin.AuditTrail(r.Context(), h.trail, userID, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": recs})
}
