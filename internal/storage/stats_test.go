package storage

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"vidmill/internal/models"
)

func TestStatsMonthWindow(t *testing.T) {
	now := time.Date(2024, time.May, 15, 10, 30, 0, 0, time.UTC)
	window := statsMonthWindow(now, StatsMonths)
	if len(window) != StatsMonths {
		t.Fatalf("expected %d buckets, got %d", StatsMonths, len(window))
	}
	wantFirst := time.Date(2023, time.December, 1, 0, 0, 0, 0, time.UTC)
	if !window[0].Equal(wantFirst) {
		t.Fatalf("expected window to start at %s, got %s", wantFirst, window[0])
	}
	wantLast := time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)
	if !window[len(window)-1].Equal(wantLast) {
		t.Fatalf("expected window to end at %s, got %s", wantLast, window[len(window)-1])
	}
}

func TestStatsMonthWindowAcrossYearBoundary(t *testing.T) {
	now := time.Date(2024, time.January, 31, 23, 59, 0, 0, time.UTC)
	window := statsMonthWindow(now, StatsMonths)
	wantFirst := time.Date(2023, time.August, 1, 0, 0, 0, 0, time.UTC)
	if !window[0].Equal(wantFirst) {
		t.Fatalf("expected window to start at %s, got %s", wantFirst, window[0])
	}
}

func TestChannelStatsSeededDashboard(t *testing.T) {
	now := time.Date(2024, time.May, 15, 12, 0, 0, 0, time.UTC)
	store := newTestStorage(t, WithClock(func() time.Time { return now }))
	user := mustCreateUser(t, store, "creator@example.com", "creator")
	channel, err := store.CreateChannel(CreateChannelParams{OwnerID: user.ID, Name: "My Channel"})
	if err != nil {
		t.Fatalf("create channel: %v", err)
	}

	stats, err := store.ChannelStats(channel.ID, now)
	if err != nil {
		t.Fatalf("channel stats: %v", err)
	}

	wantSources := map[string]string{
		"views":         "1250.50",
		"subscriptions": "3400.00",
		"donations":     "500.00",
	}
	if len(stats.EarningsBySource) != len(wantSources) {
		t.Fatalf("expected %d sources, got %v", len(wantSources), stats.EarningsBySource)
	}
	for source, amount := range wantSources {
		if got := stats.EarningsBySource[source]; got != models.MustParseMoney(amount) {
			t.Fatalf("expected %s for source %s, got %s", amount, source, got)
		}
	}

	if len(stats.MonthlyEarnings) != StatsMonths {
		t.Fatalf("expected %d monthly buckets, got %d", StatsMonths, len(stats.MonthlyEarnings))
	}

	var seriesTotal models.Money
	for _, bucket := range stats.MonthlyEarnings {
		seriesTotal = seriesTotal.Add(bucket.Amount)
	}
	// All seed rows fall inside the 6-month window, so the series sums to the
	// full ledger total.
	if seriesTotal != models.MustParseMoney("5150.50") {
		t.Fatalf("expected series total 5150.50, got %s", seriesTotal)
	}
	if stats.MonthlyEarnings[len(stats.MonthlyEarnings)-1].Month != "May" {
		t.Fatalf("expected most recent bucket last, got %q", stats.MonthlyEarnings[len(stats.MonthlyEarnings)-1].Month)
	}

	if stats.NewSubscribers != 0 {
		t.Fatalf("expected no subscribers on a fresh channel, got %d", stats.NewSubscribers)
	}
}

func TestChannelStatsMonthlyBucketing(t *testing.T) {
	now := time.Date(2024, time.May, 15, 12, 0, 0, 0, time.UTC)
	store := newTestStorage(t, WithClock(func() time.Time { return now }))
	user := mustCreateUser(t, store, "creator@example.com", "creator")
	channel, err := store.CreateChannel(CreateChannelParams{OwnerID: user.ID, Name: "My Channel"})
	if err != nil {
		t.Fatalf("create channel: %v", err)
	}

	entries := []struct {
		amount    string
		createdAt time.Time
	}{
		{"10.00", time.Date(2024, time.May, 2, 0, 0, 0, 0, time.UTC)},
		{"20.00", time.Date(2023, time.December, 31, 23, 0, 0, 0, time.UTC)},
		// Outside the window, must not appear in any bucket.
		{"40.00", time.Date(2023, time.November, 30, 0, 0, 0, 0, time.UTC)},
	}
	for _, entry := range entries {
		if _, err := store.RecordEarnings(RecordEarningsParams{
			ChannelID: channel.ID,
			Amount:    models.MustParseMoney(entry.amount),
			Source:    "bonus",
			CreatedAt: entry.createdAt,
		}); err != nil {
			t.Fatalf("record earnings: %v", err)
		}
	}

	stats, err := store.ChannelStats(channel.ID, now)
	if err != nil {
		t.Fatalf("channel stats: %v", err)
	}

	byMonth := make(map[string]models.Money, len(stats.MonthlyEarnings))
	for _, bucket := range stats.MonthlyEarnings {
		byMonth[bucket.Month] = bucket.Amount
	}
	if got := byMonth["Dec"]; got != models.MustParseMoney("20.00") {
		t.Fatalf("expected December bucket 20.00, got %s", got)
	}
	// Seed rows land in May (views, subscriptions) and April (donations);
	// the explicit 10.00 entry joins the May bucket.
	if got := byMonth["May"]; got != models.MustParseMoney("4660.50") {
		t.Fatalf("expected May bucket 4660.50, got %s", got)
	}
	if got := byMonth["Apr"]; got != models.MustParseMoney("500.00") {
		t.Fatalf("expected April bucket 500.00, got %s", got)
	}
}

func TestChannelStatsTopVideos(t *testing.T) {
	current := time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)
	store := newTestStorage(t, WithClock(func() time.Time { return current }))
	user := mustCreateUser(t, store, "creator@example.com", "creator")
	channel, err := store.CreateChannel(CreateChannelParams{OwnerID: user.ID, Name: "My Channel"})
	if err != nil {
		t.Fatalf("create channel: %v", err)
	}

	for i := 0; i < StatsVideoLimit+2; i++ {
		current = current.Add(time.Hour)
		if _, err := store.CreateVideo(CreateVideoParams{
			ChannelID: channel.ID,
			Title:     fmt.Sprintf("Video %02d", i),
		}); err != nil {
			t.Fatalf("create video %d: %v", i, err)
		}
	}

	stats, err := store.ChannelStats(channel.ID, current)
	if err != nil {
		t.Fatalf("channel stats: %v", err)
	}
	if len(stats.Videos) != StatsVideoLimit {
		t.Fatalf("expected %d videos, got %d", StatsVideoLimit, len(stats.Videos))
	}
	if stats.Videos[0].Title != fmt.Sprintf("Video %02d", StatsVideoLimit+1) {
		t.Fatalf("expected newest video first, got %q", stats.Videos[0].Title)
	}
	for i := 1; i < len(stats.Videos); i++ {
		if stats.Videos[i].CreatedAt.After(stats.Videos[i-1].CreatedAt) {
			t.Fatalf("expected videos in descending creation order at index %d", i)
		}
	}
}

func TestChannelStatsNewSubscriberWindow(t *testing.T) {
	now := time.Date(2024, time.May, 15, 12, 0, 0, 0, time.UTC)
	current := now.Add(-40 * 24 * time.Hour)
	store := newTestStorage(t, WithClock(func() time.Time { return current }))
	author := mustCreateUser(t, store, "creator@example.com", "creator")
	oldFan := mustCreateUser(t, store, "old@example.com", "oldfan")
	newFan := mustCreateUser(t, store, "new@example.com", "newfan")
	channel, err := store.CreateChannel(CreateChannelParams{OwnerID: author.ID, Name: "My Channel"})
	if err != nil {
		t.Fatalf("create channel: %v", err)
	}

	// 40 days old, outside the window.
	if _, err := store.CreateSubscription(CreateSubscriptionParams{ChannelID: channel.ID, UserID: oldFan.ID}); err != nil {
		t.Fatalf("create old subscription: %v", err)
	}
	current = now.Add(-10 * 24 * time.Hour)
	if _, err := store.CreateSubscription(CreateSubscriptionParams{ChannelID: channel.ID, UserID: newFan.ID}); err != nil {
		t.Fatalf("create recent subscription: %v", err)
	}

	stats, err := store.ChannelStats(channel.ID, now)
	if err != nil {
		t.Fatalf("channel stats: %v", err)
	}
	if stats.NewSubscribers != 1 {
		t.Fatalf("expected 1 recent subscriber, got %d", stats.NewSubscribers)
	}
	if stats.Channel.Subscribers != 2 {
		t.Fatalf("expected lifetime count 2, got %d", stats.Channel.Subscribers)
	}
}

func TestChannelStatsUnknownChannel(t *testing.T) {
	store := newTestStorage(t)
	if _, err := store.ChannelStats("missing", time.Now().UTC()); !errors.Is(err, ErrChannelNotFound) {
		t.Fatalf("expected ErrChannelNotFound, got %v", err)
	}
}
