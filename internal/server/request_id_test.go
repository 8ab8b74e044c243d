package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"vidmill/internal/observability/logging"
)

func TestRequestIDMiddlewareAnnotatesContextAndHeaders(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := logging.RequestIDFromContext(r.Context())
		if !ok {
			t.Fatal("expected request id in context")
		}
		seen = id
	})

	handler := requestIDMiddlewareWithGenerator(nil, func() string { return "generated-id" }, next)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen != "generated-id" {
		t.Fatalf("expected generated id, got %q", seen)
	}
	if rec.Header().Get("X-Request-Id") != "generated-id" {
		t.Fatalf("expected response header, got %q", rec.Header().Get("X-Request-Id"))
	}
}

func TestRequestIDMiddlewarePreservesInboundID(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	handler := requestIDMiddleware(nil, next)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "caller-id")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Header().Get("X-Request-Id") != "caller-id" {
		t.Fatalf("expected caller id to be echoed, got %q", rec.Header().Get("X-Request-Id"))
	}
}
