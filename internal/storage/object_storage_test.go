package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestNewObjectStorageClientDisabledWithoutBucket(t *testing.T) {
	client := NewObjectStorageClient(ObjectStorageConfig{Endpoint: "minio.local:9000"})
	if client.Enabled() {
		t.Fatal("expected client without bucket to be disabled")
	}
	if _, err := client.Upload(context.Background(), "thumbnails/x.jpg", "image/jpeg", []byte("x")); err != nil {
		t.Fatalf("disabled client upload should be a no-op, got %v", err)
	}
}

func TestObjectStorageUploadSignsAndBuildsURL(t *testing.T) {
	var captured *http.Request
	var capturedBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r
		capturedBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	parsed, err := url.Parse(server.URL)
	if err != nil {
		t.Fatalf("parse test server url: %v", err)
	}

	client := NewObjectStorageClient(ObjectStorageConfig{
		Endpoint:       parsed.Host,
		Region:         "us-east-1",
		AccessKey:      "test-access",
		SecretKey:      "test-secret",
		Bucket:         "thumbs",
		PublicEndpoint: "https://cdn.example.com/thumbs",
	})
	if !client.Enabled() {
		t.Fatal("expected configured client to be enabled")
	}

	ref, err := client.Upload(context.Background(), "thumbnails/abc.jpg", "image/jpeg", []byte("jpeg-bytes"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if captured == nil {
		t.Fatal("expected upload request to reach the server")
	}
	if captured.Method != http.MethodPut {
		t.Fatalf("expected PUT, got %s", captured.Method)
	}
	if captured.URL.Path != "/thumbs/thumbnails/abc.jpg" {
		t.Fatalf("unexpected object path %q", captured.URL.Path)
	}
	if string(capturedBody) != "jpeg-bytes" {
		t.Fatalf("unexpected body %q", capturedBody)
	}
	if got := captured.Header.Get("Content-Type"); got != "image/jpeg" {
		t.Fatalf("unexpected content type %q", got)
	}
	auth := captured.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "AWS4-HMAC-SHA256 Credential=test-access/") {
		t.Fatalf("unexpected authorization header %q", auth)
	}
	if captured.Header.Get("x-amz-content-sha256") == "" {
		t.Fatal("expected payload hash header")
	}
	if ref.URL != "https://cdn.example.com/thumbs/thumbnails/abc.jpg" {
		t.Fatalf("unexpected public URL %q", ref.URL)
	}
	if ref.Key != "thumbnails/abc.jpg" {
		t.Fatalf("unexpected key %q", ref.Key)
	}
}

func TestObjectStorageUploadAppliesPrefix(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	parsed, _ := url.Parse(server.URL)

	client := NewObjectStorageClient(ObjectStorageConfig{
		Endpoint: parsed.Host,
		Bucket:   "media",
		Prefix:   "vidmill",
	})
	ref, err := client.Upload(context.Background(), "thumbnails/abc.jpg", "image/jpeg", []byte("x"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if ref.Key != "vidmill/thumbnails/abc.jpg" {
		t.Fatalf("expected prefixed key, got %q", ref.Key)
	}
}

func TestObjectStorageUploadRejectsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()
	parsed, _ := url.Parse(server.URL)

	client := NewObjectStorageClient(ObjectStorageConfig{
		Endpoint: parsed.Host,
		Bucket:   "media",
	})
	if _, err := client.Upload(context.Background(), "thumbnails/abc.jpg", "image/jpeg", []byte("x")); err == nil {
		t.Fatal("expected upload failure for 403 response")
	}
}
