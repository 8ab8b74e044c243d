package thumbnail

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"vidmill/internal/storage"
)

// Service generates a thumbnail for a prompt and re-hosts it in object
// storage under a stable key.
type Service struct {
	generator *Generator
	objects   storage.ObjectStorage
	logger    *slog.Logger
	newID     func() string
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithKeyFactory overrides object key generation, primarily for tests.
func WithKeyFactory(factory func() string) ServiceOption {
	return func(s *Service) {
		if factory != nil {
			s.newID = factory
		}
	}
}

// NewService wires a Generator to an object storage client.
func NewService(generator *Generator, objects storage.ObjectStorage, logger *slog.Logger, opts ...ServiceOption) *Service {
	service := &Service{
		generator: generator,
		objects:   objects,
		logger:    logger,
		newID:     func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(service)
		}
	}
	return service
}

// Configured reports whether both the generator and the storage backend are
// ready to serve requests.
func (s *Service) Configured() bool {
	return s != nil && s.generator != nil && s.generator.Configured() && s.objects != nil && s.objects.Enabled()
}

// CreateThumbnail generates an image for the prompt, stores it, and returns
// the public URL. Upstream and storage failures propagate without retries.
func (s *Service) CreateThumbnail(ctx context.Context, prompt string) (string, error) {
	if s.generator == nil || !s.generator.Configured() {
		return "", ErrNotConfigured
	}
	if s.objects == nil || !s.objects.Enabled() {
		return "", ErrNotConfigured
	}

	image, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}

	key := fmt.Sprintf("thumbnails/%s.jpg", s.newID())
	ref, err := s.objects.Upload(ctx, key, "image/jpeg", image)
	if err != nil {
		return "", fmt.Errorf("%w: store image: %v", ErrUpstream, err)
	}
	if s.logger != nil {
		s.logger.Info("thumbnail stored", "key", ref.Key, "bytes", len(image))
	}
	return ref.URL, nil
}
