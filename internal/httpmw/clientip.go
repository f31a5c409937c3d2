package httpmw

import (
	"context"
	"net"
	"net/http"
	"strings"
)

type clientIPKey struct{}

// ClientIPOptions configures client IP extraction.
type ClientIPOptions struct {
	// TrustProxyHeaders controls whether X-Forwarded-For / X-Real-IP are
	// consulted. Leave false when the server is directly exposed:
	// forwarded headers are then stripped so nothing downstream can be
	// fooled by a spoofed header.
	TrustProxyHeaders bool
}

// ClientIP extracts the client IP and stores it in the context, trusting
// no proxy headers.
func ClientIP(next http.Handler) http.Handler {
	return ClientIPWithOptions(ClientIPOptions{})(next)
}

// ClientIPWithOptions returns middleware that resolves the client IP with
// the given options and stores it in the request context.
func ClientIPWithOptions(opts ClientIPOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ResolveClientIP(r, opts.TrustProxyHeaders)
			ctx := WithClientIP(r.Context(), ip)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ResolveClientIP returns the best-effort client address. Behind a trusted
// proxy the priority is: first X-Forwarded-For entry, then X-Real-IP, then
// the direct peer address. Without a trusted proxy the peer address wins
// and the forwarded headers are dropped from the request.
func ResolveClientIP(r *http.Request, trustProxyHeaders bool) string {
	peer := peerAddr(r)

	if !trustProxyHeaders {
		r.Header.Del("X-Forwarded-For")
		r.Header.Del("X-Real-IP")
		return peer
	}

	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		// first entry is the originating client, the rest are proxies
		first := strings.TrimSpace(strings.Split(xf, ",")[0])
		if net.ParseIP(first) != nil {
			return first
		}
	}
	if xr := strings.TrimSpace(r.Header.Get("X-Real-IP")); xr != "" {
		if net.ParseIP(xr) != nil {
			return xr
		}
	}
	return peer
}

func peerAddr(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "0.0.0.0"
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr without a port, take it as-is if it parses
		if net.ParseIP(r.RemoteAddr) != nil {
			return r.RemoteAddr
		}
		return "0.0.0.0"
	}
	return host
}

// ClientIPFromContext returns the resolved client IP, or "" if the
// middleware did not run.
func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey{}, ip)
}
