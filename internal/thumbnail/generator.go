// Package thumbnail proxies text prompts to a FLUX-compatible image
// generation API and re-hosts the resulting image in object storage so the
// returned URL stays valid after the upstream's temporary link expires.
package thumbnail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrUpstream marks failures of the image API or the image download. Handlers
// map it to a plain server error; the caller retries the whole request.
var ErrUpstream = errors.New("thumbnail upstream failure")

// ErrNotConfigured is returned when no API key has been provisioned.
var ErrNotConfigured = errors.New("thumbnail generation not configured")

const (
	defaultEndpoint       = "https://fal.run/fal-ai/flux/dev"
	defaultRequestTimeout = 60 * time.Second
	defaultFetchTimeout   = 30 * time.Second
	defaultImageSize      = "landscape_16_9"

	// Appended to every prompt so generations come out looking like video
	// covers rather than generic renders.
	promptStyleSuffix = "vibrant colors, high contrast, professional design, 16:9 aspect ratio, eye-catching, modern style, cinematic quality"
)

// GeneratorConfig configures the image generation client.
type GeneratorConfig struct {
	Endpoint       string
	APIKey         string
	ImageSize      string
	RequestTimeout time.Duration
	FetchTimeout   time.Duration
}

// Generator calls the image API and downloads the produced image. There are
// no retries anywhere in the pipeline.
type Generator struct {
	cfg          GeneratorConfig
	generateHTTP *http.Client
	fetchHTTP    *http.Client
}

// NewGenerator constructs a Generator with defaults applied for any zero
// fields.
func NewGenerator(cfg GeneratorConfig) *Generator {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if strings.TrimSpace(cfg.ImageSize) == "" {
		cfg.ImageSize = defaultImageSize
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	return &Generator{
		cfg:          cfg,
		generateHTTP: &http.Client{Timeout: cfg.RequestTimeout},
		fetchHTTP:    &http.Client{Timeout: cfg.FetchTimeout},
	}
}

// Configured reports whether an API key is available.
func (g *Generator) Configured() bool {
	return strings.TrimSpace(g.cfg.APIKey) != ""
}

type generateRequest struct {
	Prompt              string  `json:"prompt"`
	ImageSize           string  `json:"image_size"`
	NumInferenceSteps   int     `json:"num_inference_steps"`
	GuidanceScale       float64 `json:"guidance_scale"`
	NumImages           int     `json:"num_images"`
	EnableSafetyChecker bool    `json:"enable_safety_checker"`
}

type generateResponse struct {
	Images []struct {
		URL string `json:"url"`
	} `json:"images"`
}

// EnhancePrompt wraps the user prompt with thumbnail styling cues.
func EnhancePrompt(prompt string) string {
	return fmt.Sprintf("YouTube video thumbnail, %s, %s", strings.TrimSpace(prompt), promptStyleSuffix)
}

// Generate submits the prompt to the image API and returns the raw bytes of
// the first generated image.
func (g *Generator) Generate(ctx context.Context, prompt string) ([]byte, error) {
	if !g.Configured() {
		return nil, ErrNotConfigured
	}

	payload, err := json.Marshal(generateRequest{
		Prompt:              EnhancePrompt(prompt),
		ImageSize:           g.cfg.ImageSize,
		NumInferenceSteps:   28,
		GuidanceScale:       3.5,
		NumImages:           1,
		EnableSafetyChecker: true,
	})
	if err != nil {
		return nil, fmt.Errorf("encode generation request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create generation request: %w", err)
	}
	request.Header.Set("Authorization", "Key "+strings.TrimSpace(g.cfg.APIKey))
	request.Header.Set("Content-Type", "application/json")

	response, err := g.generateHTTP.Do(request)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer func() {
		_ = response.Body.Close()
	}()
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrUpstream, response.StatusCode)
	}

	var decoded generateResponse
	if err := json.NewDecoder(response.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUpstream, err)
	}
	if len(decoded.Images) == 0 {
		return nil, fmt.Errorf("%w: no images generated", ErrUpstream)
	}
	imageURL := strings.TrimSpace(decoded.Images[0].URL)
	if imageURL == "" {
		return nil, fmt.Errorf("%w: empty image url", ErrUpstream)
	}

	return g.fetchImage(ctx, imageURL)
}

func (g *Generator) fetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create image fetch request: %w", err)
	}
	response, err := g.fetchHTTP.Do(request)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch image: %v", ErrUpstream, err)
	}
	defer func() {
		_ = response.Body.Close()
	}()
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: fetch image: unexpected status %d", ErrUpstream, response.StatusCode)
	}
	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read image: %v", ErrUpstream, err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty image body", ErrUpstream)
	}
	return body, nil
}
