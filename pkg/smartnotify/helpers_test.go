package smartnotify_test

import (
	"time"

	"github.com/dmitrymomot/smartnotify/pkg/notifications"
	"github.com/dmitrymomot/smartnotify/pkg/smartnotify"
)

// at returns 2026-03-10 (a Tuesday) at hour:minute UTC.
func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 10, hour, minute, 0, 0, time.UTC)
}

func ptr[T any](v T) *T { return &v }

// interaction builds a history record delivered at sentAt and read after
// readAfter (not read when readAfter < 0).
func interaction(userID, typ string, level notifications.Priority, sentAt time.Time, readAfter time.Duration) notifications.Interaction {
	it := notifications.Interaction{
		UserID:    userID,
		Type:      typ,
		Priority:  level,
		CreatedAt: sentAt,
		SentAt:    ptr(sentAt),
	}
	if readAfter >= 0 {
		it.ReadAt = ptr(sentAt.Add(readAfter))
	}
	return it
}

// snapshotFrom builds a snapshot with the default models from items.
func snapshotFrom(items []notifications.Interaction) *smartnotify.Snapshot {
	models, err := smartnotify.DefaultModels()
	if err != nil {
		panic(err)
	}
	return &smartnotify.Snapshot{
		Profiles: smartnotify.BuildProfiles(items, time.UTC),
		Patterns: smartnotify.BuildPatterns(items, time.UTC, 3),
		Models:   models,
	}
}

// engagedHistory yields count notifications of typ for userID, of which
// read are read within 10 minutes, all delivered at hour.
func engagedHistory(userID, typ string, level notifications.Priority, hour, count, read int) []notifications.Interaction {
	items := make([]notifications.Interaction, 0, count)
	for i := range count {
		sent := time.Date(2026, 2, 1+i%28, hour, 0, 0, 0, time.UTC)
		after := time.Duration(-1)
		if i < read {
			after = 10 * time.Minute
		}
		items = append(items, interaction(userID, typ, level, sent, after))
	}
	return items
}
