package httpmw

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

// Context helpers

func TestWithRequestID_Basic(t *testing.T) {
	ctx := WithRequestID(context.Background(), "test-id-123")
	if got := RequestIDFromContext(ctx); got != "test-id-123" {
		t.Fatalf("RequestIDFromContext = %q, want %q", got, "test-id-123")
	}
}

func TestRequestIDFromContext_NoValue(t *testing.T) {
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Fatalf("expected empty string from bare context, got %q", got)
	}
}

// Middleware

func TestRequestID_GeneratesWhenMissing(t *testing.T) {
	var ctxID string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID = RequestIDFromContext(r.Context())
	})

	rec := httptest.NewRecorder()
	RequestID("X-Request-Id")(handler).ServeHTTP(rec, httptest.NewRequest("GET", "/", http.NoBody))

	// 16 random bytes hex encoded
	if len(ctxID) != 32 {
		t.Fatalf("generated id = %q, want 32 hex chars", ctxID)
	}
	if rec.Header().Get("X-Request-Id") != ctxID {
		t.Fatalf("response header = %q, context id = %q", rec.Header().Get("X-Request-Id"), ctxID)
	}
}

func TestRequestID_PropagatesInbound(t *testing.T) {
	var ctxID string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID = RequestIDFromContext(r.Context())
	})

	req := httptest.NewRequest("GET", "/", http.NoBody)
	req.Header.Set("X-Request-Id", "upstream-id")
	rec := httptest.NewRecorder()
	RequestID("X-Request-Id")(handler).ServeHTTP(rec, req)

	if ctxID != "upstream-id" {
		t.Fatalf("context id = %q, want upstream-id", ctxID)
	}
	if rec.Header().Get("X-Request-Id") != "upstream-id" {
		t.Fatalf("response header = %q", rec.Header().Get("X-Request-Id"))
	}
}

func TestRequestID_DefaultHeaderName(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	rec := httptest.NewRecorder()
	RequestID("")(handler).ServeHTTP(rec, httptest.NewRequest("GET", "/", http.NoBody))

	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("empty header name did not fall back to X-Request-Id")
	}
}
