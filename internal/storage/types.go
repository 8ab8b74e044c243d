package storage

import (
	"context"
	"errors"
	"time"

	"vidmill/internal/models"
)

const (
	passwordHashSaltLength = 16
	passwordHashKeyLength  = 32
	passwordHashIterations = 120000

	// MinPasswordLength is enforced on registration.
	MinPasswordLength = 6

	// StatsMonths is the length of the monthly earnings series returned by
	// ChannelStats.
	StatsMonths = 6

	// StatsVideoLimit caps the video list returned by ChannelStats.
	StatsVideoLimit = 10

	// NewSubscriberWindow is the trailing window used for the recent
	// subscriber count.
	NewSubscriberWindow = 30 * 24 * time.Hour
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrChannelExists      = errors.New("channel already exists")
	ErrChannelNotFound    = errors.New("channel not found")
	ErrUserNotFound       = errors.New("user not found")
)

// CreateUserParams captures the attributes required to register a user.
type CreateUserParams struct {
	Email       string
	Password    string
	Username    string
	DisplayName string
}

// CreateChannelParams captures the become-author request. The channel insert,
// the author flag flip, and the demonstration earnings rows commit as one unit
// of work.
type CreateChannelParams struct {
	OwnerID     string
	Name        string
	Description string
}

// CreateVideoParams captures uploaded video metadata. Engagement counters are
// initialised to zero server-side.
type CreateVideoParams struct {
	ChannelID    string
	Title        string
	Description  string
	ThumbnailURL string
	Category     string
}

// RecordEarningsParams appends one row to a channel's earnings ledger.
type RecordEarningsParams struct {
	ChannelID   string
	Amount      models.Money
	Source      string
	Description string
	CreatedAt   time.Time
}

// CreateSubscriptionParams records a viewer subscribing to a channel.
type CreateSubscriptionParams struct {
	ChannelID string
	UserID    string
	Tier      string
	Amount    models.Money
}

// MonthlyEarnings is one calendar-month bucket in the dashboard series.
type MonthlyEarnings struct {
	Month  string       `json:"month"`
	Amount models.Money `json:"amount"`
}

// ChannelStats aggregates the author dashboard payload: earnings grouped by
// source, a fixed-length monthly series ending in the current month, the most
// recent videos, and the trailing-window subscriber count.
type ChannelStats struct {
	Channel          models.Channel          `json:"channel"`
	EarningsBySource map[string]models.Money `json:"earnings_by_source"`
	MonthlyEarnings  []MonthlyEarnings       `json:"monthly_earnings"`
	Videos           []models.Video          `json:"videos"`
	NewSubscribers   int                     `json:"new_subscribers_30d"`
}

// ObjectStorageConfig describes the external S3-compatible bucket used for
// persisting generated thumbnails.
type ObjectStorageConfig struct {
	Endpoint       string
	Region         string
	AccessKey      string
	SecretKey      string
	Bucket         string
	UseSSL         bool
	Prefix         string
	PublicEndpoint string
	RequestTimeout time.Duration
}

// ObjectReference identifies a stored object and its public URL.
type ObjectReference struct {
	Key string
	URL string
}

// ObjectStorage uploads and deletes objects in the configured bucket.
type ObjectStorage interface {
	Enabled() bool
	Upload(ctx context.Context, key, contentType string, body []byte) (ObjectReference, error)
	Delete(ctx context.Context, key string) error
}

const defaultObjectStorageRequestTimeout = 30 * time.Second

type seedEarning struct {
	amount      string
	source      string
	description string
	ageDays     int
}

// Demonstration rows inserted when a channel is created so a brand-new author
// dashboard is not empty. Amounts and timestamps are fixture data.
var authorSeedEarnings = []seedEarning{
	{amount: "1250.50", source: "views", description: "Ad revenue from views", ageDays: 0},
	{amount: "3400.00", source: "subscriptions", description: "Paid subscriptions", ageDays: 10},
	{amount: "500.00", source: "donations", description: "Viewer donations", ageDays: 20},
}
