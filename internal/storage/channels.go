package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"vidmill/internal/models"
	"vidmill/internal/observability/metrics"
)

// CreateChannel performs the become-author transition: it creates the owner's
// single channel, flips the author flag, and seeds the earnings ledger with
// demonstration rows. The whole mutation commits or rolls back as one unit, so
// a user is an author exactly when their channel exists.
func (s *Storage) CreateChannel(params CreateChannelParams) (models.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	owner, ok := s.data.Users[params.OwnerID]
	if !ok {
		return models.Channel{}, ErrUserNotFound
	}
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return models.Channel{}, errors.New("channel name is required")
	}
	if owner.IsAuthor {
		return models.Channel{}, ErrChannelExists
	}
	for _, channel := range s.data.Channels {
		if channel.OwnerID == params.OwnerID {
			return models.Channel{}, ErrChannelExists
		}
	}

	updatedData := cloneDataset(s.data)

	id, err := generateID()
	if err != nil {
		return models.Channel{}, err
	}

	now := s.now()
	channel := models.Channel{
		ID:          id,
		OwnerID:     params.OwnerID,
		Name:        name,
		Description: strings.TrimSpace(params.Description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	seeded := make([]models.EarningsEntry, 0, len(authorSeedEarnings))
	for _, seed := range authorSeedEarnings {
		entryID, err := generateID()
		if err != nil {
			return models.Channel{}, err
		}
		amount, err := models.ParseMoney(seed.amount)
		if err != nil {
			return models.Channel{}, fmt.Errorf("parse seed amount: %w", err)
		}
		entry := models.EarningsEntry{
			ID:          entryID,
			ChannelID:   id,
			Amount:      amount,
			Source:      seed.source,
			Description: seed.description,
			CreatedAt:   now.Add(-time.Duration(seed.ageDays) * 24 * time.Hour),
		}
		updatedData.EarningsLog[entryID] = entry
		seeded = append(seeded, entry)
		channel.TotalEarnings = channel.TotalEarnings.Add(amount)
	}

	updatedData.Channels[id] = channel
	owner.IsAuthor = true
	updatedData.Users[params.OwnerID] = owner

	if err := s.persistDataset(updatedData); err != nil {
		return models.Channel{}, err
	}
	s.data = updatedData

	for _, entry := range seeded {
		metrics.ObserveEarnings(entry.Source, entry.Amount)
	}
	return channel, nil
}

// GetChannelByOwner returns the channel owned by the provided user, if any.
func (s *Storage) GetChannelByOwner(ownerID string) (models.Channel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, channel := range s.data.Channels {
		if channel.OwnerID == ownerID {
			return channel, true
		}
	}
	return models.Channel{}, false
}
