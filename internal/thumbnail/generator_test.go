package thumbnail

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"vidmill/internal/storage"
)

type stubObjectStorage struct {
	enabled  bool
	uploaded map[string][]byte
	types    map[string]string
	fail     bool
}

func newStubObjectStorage() *stubObjectStorage {
	return &stubObjectStorage{
		enabled:  true,
		uploaded: make(map[string][]byte),
		types:    make(map[string]string),
	}
}

func (s *stubObjectStorage) Enabled() bool { return s.enabled }

func (s *stubObjectStorage) Upload(_ context.Context, key, contentType string, body []byte) (storage.ObjectReference, error) {
	if s.fail {
		return storage.ObjectReference{}, errors.New("bucket unavailable")
	}
	s.uploaded[key] = body
	s.types[key] = contentType
	return storage.ObjectReference{Key: key, URL: "https://cdn.example.com/" + key}, nil
}

func (s *stubObjectStorage) Delete(context.Context, string) error { return nil }

func TestGenerateSubmitsFluxPayload(t *testing.T) {
	var capturedAuth, capturedContentType string
	var capturedPayload map[string]any
	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/generate", func(w http.ResponseWriter, r *http.Request) {
		capturedAuth = r.Header.Get("Authorization")
		capturedContentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&capturedPayload)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"images": []map[string]string{{"url": server.URL + "/image.jpg"}},
		})
	})
	mux.HandleFunc("/image.jpg", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("jpeg-bytes"))
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	generator := NewGenerator(GeneratorConfig{
		Endpoint: server.URL + "/generate",
		APIKey:   "test-key",
	})
	image, err := generator.Generate(context.Background(), "cat playing piano")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if string(image) != "jpeg-bytes" {
		t.Fatalf("unexpected image bytes %q", image)
	}

	if capturedAuth != "Key test-key" {
		t.Fatalf("unexpected auth header %q", capturedAuth)
	}
	if capturedContentType != "application/json" {
		t.Fatalf("unexpected content type %q", capturedContentType)
	}
	prompt, _ := capturedPayload["prompt"].(string)
	if !strings.HasPrefix(prompt, "YouTube video thumbnail, cat playing piano,") {
		t.Fatalf("expected enhanced prompt, got %q", prompt)
	}
	if capturedPayload["image_size"] != "landscape_16_9" {
		t.Fatalf("unexpected image size %v", capturedPayload["image_size"])
	}
	if capturedPayload["num_inference_steps"] != float64(28) {
		t.Fatalf("unexpected inference steps %v", capturedPayload["num_inference_steps"])
	}
	if capturedPayload["guidance_scale"] != 3.5 {
		t.Fatalf("unexpected guidance scale %v", capturedPayload["guidance_scale"])
	}
	if capturedPayload["num_images"] != float64(1) {
		t.Fatalf("unexpected image count %v", capturedPayload["num_images"])
	}
	if capturedPayload["enable_safety_checker"] != true {
		t.Fatalf("expected safety checker enabled, got %v", capturedPayload["enable_safety_checker"])
	}
}

func TestGenerateRequiresAPIKey(t *testing.T) {
	generator := NewGenerator(GeneratorConfig{})
	if _, err := generator.Generate(context.Background(), "anything"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestGenerateUpstreamFailures(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "error status",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
		},
		{
			name: "no images",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_ = json.NewEncoder(w).Encode(map[string]any{"images": []any{}})
			},
		},
		{
			name: "empty image url",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_ = json.NewEncoder(w).Encode(map[string]any{
					"images": []map[string]string{{"url": "  "}},
				})
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(tc.handler)
			defer server.Close()
			generator := NewGenerator(GeneratorConfig{Endpoint: server.URL, APIKey: "test-key"})
			if _, err := generator.Generate(context.Background(), "prompt"); !errors.Is(err, ErrUpstream) {
				t.Fatalf("expected ErrUpstream, got %v", err)
			}
		})
	}
}

func TestGenerateImageDownloadFailure(t *testing.T) {
	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/generate", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"images": []map[string]string{{"url": server.URL + "/image.jpg"}},
		})
	})
	mux.HandleFunc("/image.jpg", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	generator := NewGenerator(GeneratorConfig{Endpoint: server.URL + "/generate", APIKey: "test-key"})
	if _, err := generator.Generate(context.Background(), "prompt"); !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}

func TestServiceCreateThumbnail(t *testing.T) {
	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/generate", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"images": []map[string]string{{"url": server.URL + "/image.jpg"}},
		})
	})
	mux.HandleFunc("/image.jpg", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("jpeg-bytes"))
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	objects := newStubObjectStorage()
	generator := NewGenerator(GeneratorConfig{Endpoint: server.URL + "/generate", APIKey: "test-key"})
	service := NewService(generator, objects, nil, WithKeyFactory(func() string { return "fixed-id" }))

	url, err := service.CreateThumbnail(context.Background(), "cat playing piano")
	if err != nil {
		t.Fatalf("create thumbnail: %v", err)
	}
	if url != "https://cdn.example.com/thumbnails/fixed-id.jpg" {
		t.Fatalf("unexpected url %q", url)
	}
	body, ok := objects.uploaded["thumbnails/fixed-id.jpg"]
	if !ok || string(body) != "jpeg-bytes" {
		t.Fatalf("expected image to be uploaded, got %v", objects.uploaded)
	}
	if objects.types["thumbnails/fixed-id.jpg"] != "image/jpeg" {
		t.Fatalf("expected image/jpeg content type, got %q", objects.types["thumbnails/fixed-id.jpg"])
	}
}

func TestServiceCreateThumbnailStorageFailure(t *testing.T) {
	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/generate", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"images": []map[string]string{{"url": server.URL + "/image.jpg"}},
		})
	})
	mux.HandleFunc("/image.jpg", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("jpeg-bytes"))
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	objects := newStubObjectStorage()
	objects.fail = true
	generator := NewGenerator(GeneratorConfig{Endpoint: server.URL + "/generate", APIKey: "test-key"})
	service := NewService(generator, objects, nil)

	if _, err := service.CreateThumbnail(context.Background(), "prompt"); !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}

func TestServiceNotConfigured(t *testing.T) {
	service := NewService(NewGenerator(GeneratorConfig{}), newStubObjectStorage(), nil)
	if _, err := service.CreateThumbnail(context.Background(), "prompt"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}

	disabled := newStubObjectStorage()
	disabled.enabled = false
	service = NewService(NewGenerator(GeneratorConfig{APIKey: "key"}), disabled, nil)
	if _, err := service.CreateThumbnail(context.Background(), "prompt"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
