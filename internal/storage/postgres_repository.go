package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"vidmill/internal/models"
	"vidmill/internal/observability/metrics"
)

type postgresRepository struct {
	pool *pgxpool.Pool
	cfg  PostgresConfig
	now  func() time.Time
}

// NewPostgresRepository opens a Postgres-backed repository and applies the
// schema migrations before returning.
func NewPostgresRepository(dsn string, opts ...Option) (Repository, error) {
	cfg := newPostgresConfig(dsn, opts...)
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections >= 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckInterval > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckInterval
	}
	if cfg.ApplicationName != "" {
		if poolCfg.ConnConfig.RuntimeParams == nil {
			poolCfg.ConnConfig.RuntimeParams = make(map[string]string)
		}
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	repo := &postgresRepository{pool: pool, cfg: cfg, now: cfg.Clock}

	ctx, cancel := repo.queryContext()
	defer cancel()
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return repo, nil
}

// Close releases the connection pool, waiting at most until ctx is done.
func (r *postgresRepository) Close(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		r.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (r *postgresRepository) queryContext() (context.Context, context.CancelFunc) {
	if r.cfg.StatementTimeout > 0 {
		return context.WithTimeout(context.Background(), r.cfg.StatementTimeout)
	}
	return context.Background(), func() {}
}

func (r *postgresRepository) Ping(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("postgres pool not configured")
	}
	return r.pool.Ping(ctx)
}

func mapConstraintError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505":
		switch pgErr.ConstraintName {
		case "users_email_key":
			return ErrEmailTaken
		case "users_username_key":
			return ErrUsernameTaken
		case "channels_user_id_key":
			return ErrChannelExists
		}
	case "23503":
		if strings.HasSuffix(pgErr.ConstraintName, "user_id_fkey") {
			return ErrUserNotFound
		}
		return ErrChannelNotFound
	}
	return err
}

func (r *postgresRepository) CreateUser(params CreateUserParams) (models.User, error) {
	normalizedEmail := strings.TrimSpace(strings.ToLower(params.Email))
	if normalizedEmail == "" {
		return models.User{}, errors.New("email is required")
	}
	username := strings.TrimSpace(params.Username)
	if username == "" {
		return models.User{}, errors.New("username is required")
	}
	if len(params.Password) < MinPasswordLength {
		return models.User{}, fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	displayName := strings.TrimSpace(params.DisplayName)
	if displayName == "" {
		displayName = username
	}

	id, err := generateID()
	if err != nil {
		return models.User{}, err
	}
	hashed, err := hashPassword(params.Password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := models.User{
		ID:           id,
		Email:        normalizedEmail,
		Username:     username,
		DisplayName:  displayName,
		PasswordHash: hashed,
		CreatedAt:    r.now(),
	}

	ctx, cancel := r.queryContext()
	defer cancel()
	_, err = r.pool.Exec(ctx, `
INSERT INTO users (id, email, username, display_name, password_hash, is_author, created_at)
VALUES ($1, $2, $3, $4, $5, FALSE, $6)
`, user.ID, user.Email, user.Username, user.DisplayName, user.PasswordHash, user.CreatedAt)
	if err != nil {
		return models.User{}, mapConstraintError(err)
	}
	return user, nil
}

const userColumns = `id, email, username, display_name, avatar_url, bio, password_hash, is_author, created_at`

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Username,
		&user.DisplayName,
		&user.AvatarURL,
		&user.Bio,
		&user.PasswordHash,
		&user.IsAuthor,
		&user.CreatedAt,
	)
	return user, err
}

func (r *postgresRepository) GetUser(id string) (models.User, bool) {
	ctx, cancel := r.queryContext()
	defer cancel()
	user, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return models.User{}, false
	}
	return user, true
}

func (r *postgresRepository) FindUserByEmail(email string) (models.User, bool) {
	ctx, cancel := r.queryContext()
	defer cancel()
	normalized := strings.TrimSpace(strings.ToLower(email))
	user, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, normalized))
	if err != nil {
		return models.User{}, false
	}
	return user, true
}

func (r *postgresRepository) AuthenticateUser(email, password string) (models.User, error) {
	if password == "" {
		return models.User{}, ErrInvalidCredentials
	}
	user, ok := r.FindUserByEmail(email)
	if !ok {
		return models.User{}, ErrInvalidCredentials
	}
	if err := verifyPassword(user.PasswordHash, password); err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return models.User{}, ErrInvalidCredentials
		}
		return models.User{}, err
	}
	return user, nil
}

// CreateChannel runs the become-author unit of work in a single transaction.
// The unique constraint on channels.user_id is the arbiter when two requests
// race: the loser observes no inserted row and reports a conflict.
func (r *postgresRepository) CreateChannel(params CreateChannelParams) (models.Channel, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return models.Channel{}, errors.New("channel name is required")
	}

	ctx, cancel := r.queryContext()
	defer cancel()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Channel{}, fmt.Errorf("begin channel transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, params.OwnerID).Scan(&exists); err != nil {
		return models.Channel{}, fmt.Errorf("check owner: %w", err)
	}
	if !exists {
		return models.Channel{}, ErrUserNotFound
	}

	id, err := generateID()
	if err != nil {
		return models.Channel{}, err
	}
	now := r.now()
	channel := models.Channel{
		ID:          id,
		OwnerID:     params.OwnerID,
		Name:        name,
		Description: strings.TrimSpace(params.Description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var insertedID string
	err = tx.QueryRow(ctx, `
INSERT INTO channels (id, user_id, name, description, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5)
ON CONFLICT (user_id) DO NOTHING
RETURNING id
`, channel.ID, channel.OwnerID, channel.Name, channel.Description, now).Scan(&insertedID)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Channel{}, ErrChannelExists
	}
	if err != nil {
		return models.Channel{}, mapConstraintError(err)
	}

	if _, err := tx.Exec(ctx, `UPDATE users SET is_author = TRUE WHERE id = $1`, params.OwnerID); err != nil {
		return models.Channel{}, fmt.Errorf("mark user as author: %w", err)
	}

	type seededEntry struct {
		source string
		amount models.Money
	}
	seeded := make([]seededEntry, 0, len(authorSeedEarnings))
	for _, seed := range authorSeedEarnings {
		entryID, err := generateID()
		if err != nil {
			return models.Channel{}, err
		}
		amount, err := models.ParseMoney(seed.amount)
		if err != nil {
			return models.Channel{}, fmt.Errorf("parse seed amount: %w", err)
		}
		createdAt := now.Add(-time.Duration(seed.ageDays) * 24 * time.Hour)
		if _, err := tx.Exec(ctx, `
INSERT INTO earnings_log (id, channel_id, amount, source, description, created_at)
VALUES ($1, $2, $3::numeric, $4, $5, $6)
`, entryID, channel.ID, amount.DecimalString(), seed.source, seed.description, createdAt); err != nil {
			return models.Channel{}, fmt.Errorf("seed earnings: %w", err)
		}
		seeded = append(seeded, seededEntry{source: seed.source, amount: amount})
		channel.TotalEarnings = channel.TotalEarnings.Add(amount)
	}

	if _, err := tx.Exec(ctx, `UPDATE channels SET total_earnings = $2::numeric WHERE id = $1`, channel.ID, channel.TotalEarnings.DecimalString()); err != nil {
		return models.Channel{}, fmt.Errorf("update channel earnings: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Channel{}, fmt.Errorf("commit channel transaction: %w", err)
	}
	for _, entry := range seeded {
		metrics.ObserveEarnings(entry.source, entry.amount)
	}
	return channel, nil
}

const channelColumns = `id, user_id, name, description, subscribers_count, total_views, total_earnings::text, created_at, updated_at`

func scanChannel(row pgx.Row) (models.Channel, error) {
	var channel models.Channel
	var earnings string
	err := row.Scan(
		&channel.ID,
		&channel.OwnerID,
		&channel.Name,
		&channel.Description,
		&channel.Subscribers,
		&channel.TotalViews,
		&earnings,
		&channel.CreatedAt,
		&channel.UpdatedAt,
	)
	if err != nil {
		return models.Channel{}, err
	}
	channel.TotalEarnings, err = models.ParseMoney(earnings)
	if err != nil {
		return models.Channel{}, fmt.Errorf("parse channel earnings: %w", err)
	}
	return channel, nil
}

func (r *postgresRepository) GetChannelByOwner(ownerID string) (models.Channel, bool) {
	ctx, cancel := r.queryContext()
	defer cancel()
	channel, err := scanChannel(r.pool.QueryRow(ctx, `SELECT `+channelColumns+` FROM channels WHERE user_id = $1`, ownerID))
	if err != nil {
		return models.Channel{}, false
	}
	return channel, true
}

func (r *postgresRepository) CreateVideo(params CreateVideoParams) (models.Video, error) {
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
		CreatedAt:    r.now(),
	}

	ctx, cancel := r.queryContext()
	defer cancel()
	_, err = r.pool.Exec(ctx, `
INSERT INTO videos (id, channel_id, title, description, thumbnail_url, category, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`, video.ID, video.ChannelID, video.Title, video.Description, video.ThumbnailURL, video.Category, video.CreatedAt)
	if err != nil {
		return models.Video{}, mapConstraintError(err)
	}
	return video, nil
}

func (r *postgresRepository) ChannelStats(channelID string, now time.Time) (ChannelStats, error) {
	ctx, cancel := r.queryContext()
	defer cancel()

	channel, err := scanChannel(r.pool.QueryRow(ctx, `SELECT `+channelColumns+` FROM channels WHERE id = $1`, channelID))
	if errors.Is(err, pgx.ErrNoRows) {
		return ChannelStats{}, ErrChannelNotFound
	}
	if err != nil {
		return ChannelStats{}, fmt.Errorf("load channel: %w", err)
	}

	stats := ChannelStats{
		Channel:          channel,
		EarningsBySource: make(map[string]models.Money),
	}

	rows, err := r.pool.Query(ctx, `
SELECT source, SUM(amount)::text
FROM earnings_log
WHERE channel_id = $1
GROUP BY source
`, channelID)
	if err != nil {
		return ChannelStats{}, fmt.Errorf("aggregate earnings by source: %w", err)
	}
	for rows.Next() {
		var source, total string
		if err := rows.Scan(&source, &total); err != nil {
			rows.Close()
			return ChannelStats{}, fmt.Errorf("scan source aggregate: %w", err)
		}
		amount, err := models.ParseMoney(total)
		if err != nil {
			rows.Close()
			return ChannelStats{}, fmt.Errorf("parse source aggregate: %w", err)
		}
		stats.EarningsBySource[source] = amount
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return ChannelStats{}, fmt.Errorf("iterate source aggregates: %w", err)
	}

	window := statsMonthWindow(now, StatsMonths)
	monthTotals := make([]models.Money, len(window))
	monthRows, err := r.pool.Query(ctx, `
SELECT date_trunc('month', created_at AT TIME ZONE 'UTC'), SUM(amount)::text
FROM earnings_log
WHERE channel_id = $1 AND created_at >= $2
GROUP BY 1
`, channelID, window[0])
	if err != nil {
		return ChannelStats{}, fmt.Errorf("aggregate monthly earnings: %w", err)
	}
	for monthRows.Next() {
		var bucket time.Time
		var total string
		if err := monthRows.Scan(&bucket, &total); err != nil {
			monthRows.Close()
			return ChannelStats{}, fmt.Errorf("scan monthly aggregate: %w", err)
		}
		amount, err := models.ParseMoney(total)
		if err != nil {
			monthRows.Close()
			return ChannelStats{}, fmt.Errorf("parse monthly aggregate: %w", err)
		}
		bucketStart := monthStart(bucket)
		for i, start := range window {
			if bucketStart.Equal(start) {
				monthTotals[i] = monthTotals[i].Add(amount)
				break
			}
		}
	}
	monthRows.Close()
	if err := monthRows.Err(); err != nil {
		return ChannelStats{}, fmt.Errorf("iterate monthly aggregates: %w", err)
	}
	stats.MonthlyEarnings = make([]MonthlyEarnings, len(window))
	for i, start := range window {
		stats.MonthlyEarnings[i] = MonthlyEarnings{Month: start.Format("Jan"), Amount: monthTotals[i]}
	}

	videoRows, err := r.pool.Query(ctx, `
SELECT id, channel_id, title, description, thumbnail_url, category, views_count, likes_count, comments_count, earnings::text, created_at
FROM videos
WHERE channel_id = $1
ORDER BY created_at DESC
LIMIT $2
`, channelID, StatsVideoLimit)
	if err != nil {
		return ChannelStats{}, fmt.Errorf("list videos: %w", err)
	}
	stats.Videos = make([]models.Video, 0, StatsVideoLimit)
	for videoRows.Next() {
		var video models.Video
		var earnings string
		if err := videoRows.Scan(
			&video.ID,
			&video.ChannelID,
			&video.Title,
			&video.Description,
			&video.ThumbnailURL,
			&video.Category,
			&video.Views,
			&video.Likes,
			&video.Comments,
			&earnings,
			&video.CreatedAt,
		); err != nil {
			videoRows.Close()
			return ChannelStats{}, fmt.Errorf("scan video: %w", err)
		}
		video.Earnings, err = models.ParseMoney(earnings)
		if err != nil {
			videoRows.Close()
			return ChannelStats{}, fmt.Errorf("parse video earnings: %w", err)
		}
		stats.Videos = append(stats.Videos, video)
	}
	videoRows.Close()
	if err := videoRows.Err(); err != nil {
		return ChannelStats{}, fmt.Errorf("iterate videos: %w", err)
	}

	cutoff := now.Add(-NewSubscriberWindow)
	if err := r.pool.QueryRow(ctx, `
SELECT COUNT(*)
FROM subscriptions
WHERE channel_id = $1 AND created_at >= $2
`, channelID, cutoff).Scan(&stats.NewSubscribers); err != nil {
		return ChannelStats{}, fmt.Errorf("count recent subscribers: %w", err)
	}

	return stats, nil
}

func (r *postgresRepository) RecordEarnings(params RecordEarningsParams) (models.EarningsEntry, error) {
	source := strings.TrimSpace(strings.ToLower(params.Source))
	if source == "" {
		return models.EarningsEntry{}, errors.New("source is required")
	}

	id, err := generateID()
	if err != nil {
		return models.EarningsEntry{}, err
	}
	createdAt := params.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.now()
	}
	entry := models.EarningsEntry{
		ID:          id,
		ChannelID:   params.ChannelID,
		Amount:      params.Amount,
		Source:      source,
		Description: strings.TrimSpace(params.Description),
		CreatedAt:   createdAt.UTC(),
	}

	ctx, cancel := r.queryContext()
	defer cancel()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.EarningsEntry{}, fmt.Errorf("begin earnings transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	tag, err := tx.Exec(ctx, `
UPDATE channels SET total_earnings = total_earnings + $2::numeric, updated_at = $3 WHERE id = $1
`, entry.ChannelID, entry.Amount.DecimalString(), r.now())
	if err != nil {
		return models.EarningsEntry{}, fmt.Errorf("update channel earnings: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.EarningsEntry{}, ErrChannelNotFound
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO earnings_log (id, channel_id, amount, source, description, created_at)
VALUES ($1, $2, $3::numeric, $4, $5, $6)
`, entry.ID, entry.ChannelID, entry.Amount.DecimalString(), entry.Source, entry.Description, entry.CreatedAt); err != nil {
		return models.EarningsEntry{}, mapConstraintError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.EarningsEntry{}, fmt.Errorf("commit earnings transaction: %w", err)
	}
	metrics.ObserveEarnings(entry.Source, entry.Amount)
	return entry, nil
}

func (r *postgresRepository) CreateSubscription(params CreateSubscriptionParams) (models.Subscription, error) {
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
		CreatedAt: r.now(),
	}

	ctx, cancel := r.queryContext()
	defer cancel()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Subscription{}, fmt.Errorf("begin subscription transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	tag, err := tx.Exec(ctx, `
UPDATE channels SET subscribers_count = subscribers_count + 1, updated_at = $2 WHERE id = $1
`, sub.ChannelID, sub.CreatedAt)
	if err != nil {
		return models.Subscription{}, fmt.Errorf("update subscriber count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.Subscription{}, ErrChannelNotFound
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO subscriptions (id, channel_id, user_id, tier, amount, created_at)
VALUES ($1, $2, $3, $4, $5::numeric, $6)
`, sub.ID, sub.ChannelID, sub.UserID, sub.Tier, sub.Amount.DecimalString(), sub.CreatedAt); err != nil {
		return models.Subscription{}, mapConstraintError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Subscription{}, fmt.Errorf("commit subscription transaction: %w", err)
	}
	return sub, nil
}

var _ Repository = (*postgresRepository)(nil)
