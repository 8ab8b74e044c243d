package storage

import (
	"errors"
	"strings"

	"vidmill/internal/models"
	"vidmill/internal/observability/metrics"
)

// RecordEarnings appends a row to the channel's earnings ledger and keeps the
// channel's running total in sync with the ledger sum.
func (s *Storage) RecordEarnings(params RecordEarningsParams) (models.EarningsEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	channel, ok := s.data.Channels[params.ChannelID]
	if !ok {
		return models.EarningsEntry{}, ErrChannelNotFound
	}
	source := strings.TrimSpace(strings.ToLower(params.Source))
	if source == "" {
		return models.EarningsEntry{}, errors.New("source is required")
	}

	updatedData := cloneDataset(s.data)

	id, err := generateID()
	if err != nil {
		return models.EarningsEntry{}, err
	}
	createdAt := params.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	entry := models.EarningsEntry{
		ID:          id,
		ChannelID:   params.ChannelID,
		Amount:      params.Amount,
		Source:      source,
		Description: strings.TrimSpace(params.Description),
		CreatedAt:   createdAt.UTC(),
	}
	updatedData.EarningsLog[id] = entry

	channel.TotalEarnings = channel.TotalEarnings.Add(params.Amount)
	channel.UpdatedAt = s.now()
	updatedData.Channels[channel.ID] = channel

	if err := s.persistDataset(updatedData); err != nil {
		return models.EarningsEntry{}, err
	}
	s.data = updatedData

	metrics.ObserveEarnings(entry.Source, entry.Amount)
	return entry, nil
}

// CreateSubscription records a viewer subscribing to a channel and bumps the
// channel's subscriber count.
func (s *Storage) CreateSubscription(params CreateSubscriptionParams) (models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	channel, ok := s.data.Channels[params.ChannelID]
	if !ok {
		return models.Subscription{}, ErrChannelNotFound
	}
	if _, ok := s.data.Users[params.UserID]; !ok {
		return models.Subscription{}, ErrUserNotFound
	}

	updatedData := cloneDataset(s.data)

	id, err := generateID()
	if err != nil {
		return models.Subscription{}, err
	}
	sub := models.Subscription{
		ID:        id,
		ChannelID: params.ChannelID,
		UserID:    params.UserID,
		Tier:      strings.TrimSpace(params.Tier),
		Amount:    params.Amount,
		CreatedAt: s.now(),
	}
	updatedData.Subscriptions[id] = sub

	channel.Subscribers++
	channel.UpdatedAt = s.now()
	updatedData.Channels[channel.ID] = channel

	if err := s.persistDataset(updatedData); err != nil {
		return models.Subscription{}, err
	}
	s.data = updatedData

	return sub, nil
}
