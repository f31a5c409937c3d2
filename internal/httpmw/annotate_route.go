package httpmw

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// AnnotateHTTPRoute renames the active span after routing so traces group by
// route pattern (e.g. "GET /api/collections/{id}") instead of raw URL. Must
// run inside the chi router, after next, because the pattern is only known
// once a route has matched.
func AnnotateHTTPRoute(next http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)

		ctx := r.Context()
		pattern := ""
		if rc := chi.RouteContext(ctx); rc != nil {
			pattern = rc.RoutePattern()
		}
		if pattern == "" {
			pattern = r.URL.Path
		}

		if span := trace.SpanFromContext(ctx); span != nil && span.IsRecording() {
			span.SetAttributes(attribute.String("http.route", pattern))
			span.SetName(r.Method + " " + pattern)
		}
	}
	return http.HandlerFunc(fn)
}
