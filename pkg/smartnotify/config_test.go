package smartnotify_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/smartnotify/pkg/config"
	"github.com/dmitrymomot/smartnotify/pkg/notifications"
	"github.com/dmitrymomot/smartnotify/pkg/smartnotify"
)

func TestConfig_Load(t *testing.T) {
	t.Setenv("NOTIFY_MAX_PER_HOUR", "3")
	t.Setenv("NOTIFY_THRESHOLD_HIGH", "75")
	t.Setenv("NOTIFY_BATCH_LEVELS", "low,medium")
	t.Setenv("NOTIFY_BATCHING_WINDOW", "2m")

	var cfg smartnotify.Config
	require.NoError(t, config.Load(&cfg))

	assert.Equal(t, 3, cfg.MaxPerHour)
	assert.Equal(t, 20, cfg.MaxPerDay)
	assert.Equal(t, 22, cfg.QuietHoursStart)
	assert.Equal(t, 7, cfg.QuietHoursEnd)
	assert.Equal(t, 2*time.Minute, cfg.BatchingWindow)
	assert.Equal(t, smartnotify.Thresholds{Critical: 90, High: 75, Medium: 40, Low: 0}, cfg.Thresholds)
	assert.Equal(t, []string{"low", "medium"}, cfg.BatchLevels)
	assert.Equal(t, 720*time.Hour, cfg.HistoryWindow)
	assert.Equal(t, time.Hour, cfg.RefreshInterval)
	assert.False(t, cfg.SMSEnabled)
}

func TestConfig_LoadRejectsInvalid(t *testing.T) {
	t.Setenv("NOTIFY_QUIET_HOURS_START", "24")

	var cfg smartnotify.Config
	err := config.Load(&cfg)
	require.ErrorIs(t, err, config.ErrInvalidConfig)
	assert.ErrorIs(t, err, smartnotify.ErrInvalidConfig)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*smartnotify.Config)
		wantErr bool
	}{
		{"defaults", func(*smartnotify.Config) {}, false},
		{"zero hourly limit", func(c *smartnotify.Config) { c.MaxPerHour = 0 }, true},
		{"negative daily limit", func(c *smartnotify.Config) { c.MaxPerDay = -1 }, true},
		{"quiet end out of range", func(c *smartnotify.Config) { c.QuietHoursEnd = 25 }, true},
		{"thresholds not descending", func(c *smartnotify.Config) { c.Thresholds.High = 95 }, true},
		{"threshold above 100", func(c *smartnotify.Config) { c.Thresholds.Critical = 120 }, true},
		{"unknown timezone", func(c *smartnotify.Config) { c.Timezone = "Mars/Olympus" }, true},
		{"unknown batch level", func(c *smartnotify.Config) { c.BatchLevels = []string{"urgent"} }, true},
		{"critical batch level", func(c *smartnotify.Config) { c.BatchLevels = []string{"low", "critical"} }, true},
		{"high batch level", func(c *smartnotify.Config) { c.BatchLevels = []string{"low", "high"} }, false},
		{"zero batching window", func(c *smartnotify.Config) { c.BatchingWindow = 0 }, true},
		{"non wrapping quiet hours", func(c *smartnotify.Config) { c.QuietHoursStart, c.QuietHoursEnd = 1, 5 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := smartnotify.DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, smartnotify.ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestThresholds_Level(t *testing.T) {
	t.Parallel()
	th := smartnotify.DefaultConfig().Thresholds

	tests := []struct {
		score float64
		want  notifications.Priority
	}{
		{100, notifications.PriorityCritical},
		{90, notifications.PriorityCritical},
		{89.99, notifications.PriorityHigh},
		{70, notifications.PriorityHigh},
		{69.9, notifications.PriorityMedium},
		{40, notifications.PriorityMedium},
		{39.9, notifications.PriorityLow},
		{0, notifications.PriorityLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, th.Level(tt.score), "score %v", tt.score)
	}
}
