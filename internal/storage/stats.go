package storage

import (
	"sort"
	"time"

	"vidmill/internal/models"
)

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// statsMonthWindow returns the starts of the trailing calendar months, oldest
// first, ending with the month containing now.
func statsMonthWindow(now time.Time, months int) []time.Time {
	current := monthStart(now)
	window := make([]time.Time, months)
	for i := 0; i < months; i++ {
		window[i] = current.AddDate(0, i-(months-1), 0)
	}
	return window
}

// ChannelStats assembles the author dashboard aggregates for the provided
// channel. Sums use the fixed-precision Money type so repeated aggregation
// does not drift.
func (s *Storage) ChannelStats(channelID string, now time.Time) (ChannelStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	channel, ok := s.data.Channels[channelID]
	if !ok {
		return ChannelStats{}, ErrChannelNotFound
	}

	stats := ChannelStats{
		Channel:          channel,
		EarningsBySource: make(map[string]models.Money),
	}

	window := statsMonthWindow(now, StatsMonths)
	monthTotals := make([]models.Money, len(window))
	for _, entry := range s.data.EarningsLog {
		if entry.ChannelID != channelID {
			continue
		}
		stats.EarningsBySource[entry.Source] = stats.EarningsBySource[entry.Source].Add(entry.Amount)
		entryMonth := monthStart(entry.CreatedAt)
		for i, start := range window {
			if entryMonth.Equal(start) {
				monthTotals[i] = monthTotals[i].Add(entry.Amount)
				break
			}
		}
	}
	stats.MonthlyEarnings = make([]MonthlyEarnings, len(window))
	for i, start := range window {
		stats.MonthlyEarnings[i] = MonthlyEarnings{Month: start.Format("Jan"), Amount: monthTotals[i]}
	}

	videos := make([]models.Video, 0)
	for _, video := range s.data.Videos {
		if video.ChannelID == channelID {
			videos = append(videos, video)
		}
	}
	sort.Slice(videos, func(i, j int) bool {
		if videos[i].CreatedAt.Equal(videos[j].CreatedAt) {
			return videos[i].ID > videos[j].ID
		}
		return videos[i].CreatedAt.After(videos[j].CreatedAt)
	})
	if len(videos) > StatsVideoLimit {
		videos = videos[:StatsVideoLimit]
	}
	stats.Videos = videos

	cutoff := now.Add(-NewSubscriberWindow)
	for _, sub := range s.data.Subscriptions {
		if sub.ChannelID == channelID && !sub.CreatedAt.Before(cutoff) {
			stats.NewSubscribers++
		}
	}

	return stats, nil
}
