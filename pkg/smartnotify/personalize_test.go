package smartnotify_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/smartnotify/pkg/notifications"
	"github.com/dmitrymomot/smartnotify/pkg/smartnotify"
)

func TestPersonalize(t *testing.T) {
	t.Parallel()

	req := smartnotify.Request{Type: "task_assigned", Title: "Review vendor contract"}

	tests := []struct {
		name    string
		profile *smartnotify.UserProfile
		level   notifications.Priority
		want    smartnotify.Personalization
	}{
		{
			name:  "no profile",
			level: notifications.PriorityMedium,
			want:  smartnotify.Personalization{Title: "Review vendor contract"},
		},
		{
			name:    "low reader gets prefix",
			profile: &smartnotify.UserProfile{ReadRate: 0.2},
			level:   notifications.PriorityMedium,
			want:    smartnotify.Personalization{Title: "[Action Required] Review vendor contract"},
		},
		{
			name: "engaged type includes details",
			profile: &smartnotify.UserProfile{
				ReadRate:          0.9,
				PerTypeEngagement: map[string]smartnotify.Engagement{"task_assigned": {ReadRate: 0.85, Count: 10}},
			},
			level: notifications.PriorityMedium,
			want:  smartnotify.Personalization{Title: "Review vendor contract", IncludeDetails: true},
		},
		{
			name: "fast responder gets urgency indicator",
			profile: &smartnotify.UserProfile{
				ReadRate: 0.5,
				PerPriorityEngagement: map[notifications.Priority]smartnotify.PriorityEngagement{
					notifications.PriorityHigh: {ReadRate: 1, AvgResponseMinutes: 12, Count: 4, Responded: 4},
				},
			},
			level: notifications.PriorityHigh,
			want:  smartnotify.Personalization{Title: "Review vendor contract", AddUrgencyIndicator: true},
		},
		{
			name: "no responses means no urgency indicator",
			profile: &smartnotify.UserProfile{
				ReadRate: 0.5,
				PerPriorityEngagement: map[notifications.Priority]smartnotify.PriorityEngagement{
					notifications.PriorityHigh: {Count: 4},
				},
			},
			level: notifications.PriorityHigh,
			want:  smartnotify.Personalization{Title: "Review vendor contract"},
		},
		{
			name: "slow responder",
			profile: &smartnotify.UserProfile{
				ReadRate: 0.5,
				PerPriorityEngagement: map[notifications.Priority]smartnotify.PriorityEngagement{
					notifications.PriorityHigh: {ReadRate: 1, AvgResponseMinutes: 45, Count: 4, Responded: 4},
				},
			},
			level: notifications.PriorityHigh,
			want:  smartnotify.Personalization{Title: "Review vendor contract"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, smartnotify.Personalize(tt.profile, req, tt.level))
		})
	}
}

func TestPersonalize_PrefixNotDuplicated(t *testing.T) {
	t.Parallel()
	req := smartnotify.Request{Type: "risk_alert", Title: smartnotify.UrgencyPrefix + "Vendor risk"}
	got := smartnotify.Personalize(&smartnotify.UserProfile{ReadRate: 0}, req, notifications.PriorityLow)
	assert.Equal(t, "[Action Required] Vendor risk", got.Title)
}
