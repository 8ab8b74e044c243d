package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewRespectsLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "warn", Writer: &buf, Format: "json"})
	logger.Info("hidden")
	logger.Warn("visible", "key", "value")

	output := buf.String()
	if strings.Contains(output, "hidden") {
		t.Fatalf("expected info logs to be suppressed, got %q", output)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(output)), &entry); err != nil {
		t.Fatalf("expected JSON log output, got %q: %v", output, err)
	}
	if entry["msg"] != "visible" || entry["key"] != "value" {
		t.Fatalf("unexpected log entry: %v", entry)
	}
}

func TestNewTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "info", Writer: &buf, Format: "text"})
	logger.Info("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Fatalf("expected text formatted output, got %q", buf.String())
	}
}

func TestWithContextAnnotatesRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Writer: &buf})
	ctx := ContextWithRequestID(context.Background(), "req-123")
	WithContext(ctx, logger).Info("annotated")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("decode log entry: %v", err)
	}
	if entry["request_id"] != "req-123" {
		t.Fatalf("expected request_id to be propagated, got %v", entry)
	}
}

func TestContextWithRequestIDIgnoresBlankValues(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "   ")
	if _, ok := RequestIDFromContext(ctx); ok {
		t.Fatal("expected blank request IDs to be dropped")
	}
}

func TestRequestLoggerEmitsRequestFields(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Writer: &buf})
	handler := RequestLogger(RequestLoggerConfig{
		Logger:            logger,
		DisableRemoteAddr: true,
		AdditionalFields: func(*http.Request, int, time.Duration) []any {
			return []any{"extra", "field"}
		},
	})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/register", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("decode log entry: %v", err)
	}
	if entry["method"] != http.MethodPost || entry["path"] != "/register" {
		t.Fatalf("unexpected request fields: %v", entry)
	}
	if entry["status"] != float64(http.StatusCreated) {
		t.Fatalf("expected status 201, got %v", entry["status"])
	}
	if entry["extra"] != "field" {
		t.Fatalf("expected additional fields to be appended, got %v", entry)
	}
	if _, present := entry["remote_addr"]; present {
		t.Fatal("expected remote_addr to be omitted")
	}
}

func TestLoggerFromContextRoundTrip(t *testing.T) {
	logger := slog.Default()
	ctx := ContextWithLogger(context.Background(), logger)
	if got := LoggerFromContext(ctx); got != logger {
		t.Fatal("expected logger stored on context to be returned")
	}
	if got := LoggerFromContext(context.Background()); got != nil {
		t.Fatal("expected nil logger for empty context")
	}
}
