package httpmw

import (
	"net/http"
	"runtime/debug"

	"github.com/RuslanFatikhov/Collections/internal/log"
	"github.com/RuslanFatikhov/Collections/internal/xerrors"
)

// Recover converts handler panics into a 500 response, logs the panic
// with its stack, and invokes onPanic (used to bump a counter).
func Recover(L log.Logger, onPanic func()) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						// connection was deliberately aborted, let it propagate
						panic(rec)
					}
					if onPanic != nil {
						onPanic()
					}
					err := xerrors.Newf("panic: %v", rec)
					L.Error(r.Context(), err, "recovered handler panic",
						"url.path", r.URL.Path,
						"panic_stack", string(debug.Stack()),
					)
					w.Header().Set("Content-Type", "application/json; charset=utf-8")
					w.WriteHeader(http.StatusInternalServerError)
					w.Write([]byte(`{"error":"internal server error"}`))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
