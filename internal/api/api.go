// Package api mounts the JSON HTTP surface: auth, collections and
// items CRUD, public share links, uploads, and moderation. Each route
// group opts into a rate limit policy; key selection (user vs IP)
// belongs to the policy, not the route.
package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/RuslanFatikhov/Collections/internal/admin"
	"github.com/RuslanFatikhov/Collections/internal/audit"
	"github.com/RuslanFatikhov/Collections/internal/auth"
	"github.com/RuslanFatikhov/Collections/internal/collections"
	"github.com/RuslanFatikhov/Collections/internal/log"
	"github.com/RuslanFatikhov/Collections/internal/ratelimit"
	"github.com/RuslanFatikhov/Collections/internal/uploads"
)

const defaultMaxUploadBytes = uploads.MaxUploadBytes

type Handler struct {
	logger      log.Logger
	auth        *auth.Service
	collections *collections.Service
	admin       *admin.Service
	files       uploads.ObjectStore
	trail       audit.Store
	recorder    *audit.Recorder
	limits      *ratelimit.Enforcer
	maxUpload   int64
}

type Options struct {
	Logger      log.Logger
	Auth        *auth.Service
	Collections *collections.Service
	Admin       *admin.Service
	Files       uploads.ObjectStore
	Trail       audit.Store
	Recorder    *audit.Recorder
	Limits      *ratelimit.Enforcer
	// MaxUploadBytes caps a single file upload, 0 uses the default.
	MaxUploadBytes int64
}

func New(opts Options) *Handler {
	h := &Handler{
		logger:      opts.Logger,
		auth:        opts.Auth,
		collections: opts.Collections,
		admin:       opts.Admin,
		files:       opts.Files,
		trail:       opts.Trail,
		recorder:    opts.Recorder,
		limits:      opts.Limits,
		maxUpload:   opts.MaxUploadBytes,
	}
	if h.logger == nil {
		h.logger = log.Nop()
	}
	if h.maxUpload <= 0 {
		h.maxUpload = defaultMaxUploadBytes
	}
	return h
}

// Routes mounts every route group. The caller supplies the router so
// the server can layer its own middleware outside.
func (h *Handler) Routes(r chi.Router) {
	read := h.limits.Limit(ratelimit.APIRead)
	write := h.limits.Limit(ratelimit.APIWrite)
	del := h.limits.Limit(ratelimit.APIDelete)
	login := h.limits.Limit(ratelimit.Auth)
	upload := h.limits.Limit(ratelimit.FileUpload)
	public := h.limits.Limit(ratelimit.PublicView)

	r.Route("/api", func(r chi.Router) {
		r.With(login).Post("/auth/register", h.register)
		r.With(login).Post("/auth/login", h.login)
		r.With(auth.RequireUser, write).Post("/auth/logout", h.logout)
		r.With(auth.RequireUser, read).Get("/user", h.currentUser)
		r.With(auth.RequireUser, write).Put("/user", h.updateProfile)
		r.With(auth.RequireUser, write).Put("/user/password", h.changePassword)

		r.Route("/collections", func(r chi.Router) {
			r.Use(auth.RequireUser)
			r.With(read).Get("/", h.listCollections)
			r.With(write).Post("/", h.createCollection)
			r.Route("/{id}", func(r chi.Router) {
				r.With(read).Get("/", h.getCollection)
				r.With(write).Put("/", h.updateCollection)
				r.With(del).Delete("/", h.deleteCollection)
				r.With(write).Post("/publish", h.setPublic)
				r.With(write).Post("/rotate-token", h.rotateShareToken)
				r.With(read).Get("/items", h.listItems)
				r.With(write).Post("/items", h.createItem)
			})
		})

		r.Route("/items/{id}", func(r chi.Router) {
			r.Use(auth.RequireUser)
			r.With(read).Get("/", h.getItem)
			r.With(write).Put("/", h.updateItem)
			r.With(del).Delete("/", h.deleteItem)
		})

		// Anonymous surface, IP keyed.
		r.With(public).Get("/explore", h.explore)
		r.With(public).Get("/public/{uuid}", h.publicCollection)

		r.With(auth.RequireUser, upload).Post("/uploads", h.upload)

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireAdmin)
			r.With(read).Get("/stats", h.adminStats)
			r.With(read).Get("/users", h.adminUsers)
			r.With(write).Post("/users/{id}/block", h.blockUser(true))
			r.With(write).Post("/users/{id}/unblock", h.blockUser(false))
			r.With(write).Post("/collections/{id}/block", h.blockCollection(true))
			r.With(write).Post("/collections/{id}/unblock", h.blockCollection(false))
			r.With(read).Get("/audit", h.auditTrail)
		})
	})

	r.With(public).Get("/files/*", h.serveFile)
}
