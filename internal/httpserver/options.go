package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/RuslanFatikhov/Collections/internal/health"
	"github.com/RuslanFatikhov/Collections/internal/httpmw"
	"github.com/RuslanFatikhov/Collections/internal/log"
)

type Options struct {
	Logger       log.Logger
	Port         int
	UseRecoverMW bool
	OnPanic      func()
	MetricsMW    func(http.Handler) http.Handler
	Health       health.Probe
	Readiness    health.Probe

	// APIRoutes mounts the application's routes on the chi router.
	APIRoutes func(chi.Router)

	// AuthMW resolves the bearer token into a request identity. Runs
	// before APIRoutes so per-user rate limit keys see the user id.
	AuthMW func(http.Handler) http.Handler

	// CeilingMW is the process-wide overload guard, outermost of the
	// rate limiting layers.
	CeilingMW func(http.Handler) http.Handler

	ClientIPOpts httpmw.ClientIPOptions

	// MaxBodyBytes caps request bodies, 0 uses the 1 MB default.
	MaxBodyBytes int64
}
