package storage

import (
	"errors"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"vidmill/internal/models"
)

var categoryTitleCaser = cases.Title(language.English)

// DefaultVideoCategory is assigned when the upload does not name one.
const DefaultVideoCategory = "Other"

// NormalizeCategory trims the category and renders it in title case so the
// dashboard groups uploads consistently regardless of the caller's casing.
func NormalizeCategory(category string) string {
	trimmed := strings.TrimSpace(category)
	if trimmed == "" {
		return DefaultVideoCategory
	}
	return categoryTitleCaser.String(strings.ToLower(trimmed))
}

// CreateVideo stores uploaded video metadata against an existing channel.
// Engagement counters start at zero; asset hosting is out of scope.
func (s *Storage) CreateVideo(params CreateVideoParams) (models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Channels[params.ChannelID]; !ok {
		return models.Video{}, ErrChannelNotFound
	}
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return models.Video{}, errors.New("title is required")
	}

	id, err := generateID()
	if err != nil {
		return models.Video{}, err
	}

	video := models.Video{
		ID:           id,
		ChannelID:    params.ChannelID,
		Title:        title,
		Description:  strings.TrimSpace(params.Description),
		ThumbnailURL: strings.TrimSpace(params.ThumbnailURL),
		Category:     NormalizeCategory(params.Category),
		CreatedAt:    s.now(),
	}

	s.data.Videos[id] = video
	if err := s.persist(); err != nil {
		delete(s.data.Videos, id)
		return models.Video{}, err
	}

	return video, nil
}
