package smartnotify_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/smartnotify/pkg/notifications"
	"github.com/dmitrymomot/smartnotify/pkg/smartnotify"
)

func TestBuildProfiles(t *testing.T) {
	t.Parallel()

	day := func(d, h int) time.Time { return time.Date(2026, 3, d, h, 0, 0, 0, time.UTC) }
	items := []notifications.Interaction{
		interaction("u1", "risk_alert", notifications.PriorityHigh, day(2, 9), 20*time.Minute),
		interaction("u1", "risk_alert", notifications.PriorityHigh, day(3, 9), 10*time.Minute),
		interaction("u1", "risk_alert", notifications.PriorityHigh, day(4, 14), 30*time.Minute),
		interaction("u1", "policy_update", notifications.PriorityLow, day(5, 16), -1),
		interaction("u2", "policy_update", notifications.PriorityLow, day(5, 16), -1),
	}
	// A click on the 14:00 notification.
	items[2].ClickedAt = ptr(day(4, 15))
	// Delivery time falls back to creation when SentAt is missing.
	items = append(items, notifications.Interaction{
		UserID:    "u1",
		Type:      "policy_update",
		Priority:  notifications.PriorityLow,
		CreatedAt: day(6, 7),
		ReadAt:    ptr(day(6, 8)),
	})

	store := smartnotify.BuildProfiles(items, time.UTC)
	assert.Equal(t, 2, store.Len())

	p, ok := store.Get("u1")
	require.True(t, ok)
	assert.Equal(t, 5, p.TotalNotifications)
	assert.InDelta(t, 0.8, p.ReadRate, 1e-9)
	assert.InDelta(t, 0.2, p.ClickRate, 1e-9)
	assert.InDelta(t, (20.0+10+30+60)/4, p.AvgResponseMinutes, 1e-9)
	assert.Equal(t, []int{9, 7, 14}, p.PreferredHours)
	assert.Equal(t, []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Friday}, p.PreferredDays)

	assert.Equal(t, smartnotify.Engagement{ReadRate: 1, Count: 3}, p.PerTypeEngagement["risk_alert"])
	assert.Equal(t, smartnotify.Engagement{ReadRate: 0.5, Count: 2}, p.PerTypeEngagement["policy_update"])

	high := p.PerPriorityEngagement[notifications.PriorityHigh]
	assert.Equal(t, 3, high.Count)
	assert.Equal(t, 3, high.Responded)
	assert.InDelta(t, 20, high.AvgResponseMinutes, 1e-9)

	p2, ok := store.Get("u2")
	require.True(t, ok)
	assert.Zero(t, p2.ReadRate)
	assert.Empty(t, p2.PreferredHours)

	_, ok = store.Get("nobody")
	assert.False(t, ok)
}

func TestBuildProfiles_PreferredHoursCapped(t *testing.T) {
	t.Parallel()

	var items []notifications.Interaction
	// Hour h gets h reads, so higher hours rank first.
	for h := 1; h <= 8; h++ {
		items = append(items, engagedHistory("u1", "t", notifications.PriorityLow, h, h, h)...)
	}
	p, ok := smartnotify.BuildProfiles(items, time.UTC).Get("u1")
	require.True(t, ok)
	assert.Equal(t, []int{8, 7, 6, 5, 4, 3}, p.PreferredHours)
}

func TestBuildProfiles_Location(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC+3", 3*60*60)
	items := []notifications.Interaction{
		interaction("u1", "t", notifications.PriorityLow, at(22, 0), time.Minute),
	}
	p, ok := smartnotify.BuildProfiles(items, loc).Get("u1")
	require.True(t, ok)
	assert.Equal(t, []int{1}, p.PreferredHours)
	assert.Equal(t, []time.Weekday{time.Wednesday}, p.PreferredDays)
}

func TestBuildPatterns(t *testing.T) {
	t.Parallel()

	var items []notifications.Interaction
	items = append(items, engagedHistory("u1", "task_assigned", notifications.PriorityLow, 10, 4, 4)...) // 100%
	items = append(items, engagedHistory("u2", "task_assigned", notifications.PriorityLow, 11, 4, 2)...) // 50%
	items = append(items, engagedHistory("u3", "task_assigned", notifications.PriorityLow, 12, 8, 4)...) // 50%, more samples
	items = append(items, engagedHistory("u1", "task_assigned", notifications.PriorityLow, 13, 2, 2)...) // below min samples
	items = append(items, engagedHistory("u1", "task_assigned", notifications.PriorityLow, 15, 3, 0)...) // 0%
	items = append(items, engagedHistory("u1", "task_assigned", notifications.PriorityLow, 16, 3, 3)...) // 100%, fewer samples
	items = append(items, engagedHistory("u4", "task_assigned", notifications.PriorityHigh, 9, 5, 5)...)

	catalog := smartnotify.BuildPatterns(items, time.UTC, 3)
	assert.Equal(t, 2, catalog.Len())

	p, ok := catalog.Lookup("task_assigned", notifications.PriorityLow)
	require.True(t, ok)
	assert.Equal(t, 24, p.TotalSamples)
	assert.Equal(t, []int{10, 16, 12, 11}, p.BestHours)

	stats := p.HourlyStats[12]
	assert.Equal(t, 8, stats.TotalCount)
	assert.InDelta(t, 0.5, stats.ReadRate, 1e-9)
	assert.InDelta(t, 10, stats.AvgResponseMinutes, 1e-9)
	assert.Contains(t, p.HourlyStats, 13)

	_, ok = catalog.Lookup("task_assigned", notifications.PriorityMedium)
	assert.False(t, ok)
}
