package storage

import (
	"context"
	"time"

	"vidmill/internal/models"
)

// Repository exposes the datastore operations required by the API handlers.
type Repository interface {
	Ping(ctx context.Context) error

	CreateUser(params CreateUserParams) (models.User, error)
	AuthenticateUser(email, password string) (models.User, error)
	GetUser(id string) (models.User, bool)
	FindUserByEmail(email string) (models.User, bool)

	CreateChannel(params CreateChannelParams) (models.Channel, error)
	GetChannelByOwner(ownerID string) (models.Channel, bool)

	CreateVideo(params CreateVideoParams) (models.Video, error)
	ChannelStats(channelID string, now time.Time) (ChannelStats, error)

	RecordEarnings(params RecordEarningsParams) (models.EarningsEntry, error)
	CreateSubscription(params CreateSubscriptionParams) (models.Subscription, error)
}

var _ Repository = (*Storage)(nil)

// NewJSONRepository opens the JSON-backed datastore and returns it as a
// Repository.
func NewJSONRepository(path string, opts ...Option) (Repository, error) {
	return NewStorage(path, opts...)
}
