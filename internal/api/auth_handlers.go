package api

import (
	"errors"
	"net/http"

	"github.com/RuslanFatikhov/Collections/internal/auth"
)

type credentials struct {
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	Password string `json:"password"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	u, err := h.auth.Register(r.Context(), in.Email, in.Name, in.Password)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrEmailTaken):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, auth.ErrInvalidEmail),
		errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, auth.ErrNameRequired),
		errors.Is(err, auth.ErrNameTooLong):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	default:
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, u)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	u, token, err := h.auth.Login(r.Context(), in.Email, in.Password)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	case errors.Is(err, auth.ErrBlocked):
		writeError(w, http.StatusForbidden, err.Error())
		return
	default:
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"user": u, "token": token})
}

// logout only audits; tokens are stateless and simply age out.
func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	u := auth.CurrentUser(r.Context())
	h.auth.RecordLogout(r.Context(), u.ID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, auth.CurrentUser(r.Context()))
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name      *string `json:"name"`
		AvatarURL *string `json:"avatar_url"`
	}
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	me := auth.CurrentUser(r.Context())
	u, err := h.auth.UpdateProfile(r.Context(), me.ID, auth.ProfileParams{
		Name:      in.Name,
		AvatarURL: in.AvatarURL,
	})
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrNameRequired), errors.Is(err, auth.ErrNameTooLong):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	default:
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, u)
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	var in struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	me := auth.CurrentUser(r.Context())
	err := h.auth.ChangePassword(r.Context(), me.ID, in.CurrentPassword, in.NewPassword)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	case errors.Is(err, auth.ErrWeakPassword):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	default:
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "password changed"})
}
