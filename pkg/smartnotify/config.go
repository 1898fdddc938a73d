package smartnotify

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrymomot/smartnotify/pkg/notifications"
)

// Config holds the engine configuration.
type Config struct {
	MaxPerHour        int           `env:"NOTIFY_MAX_PER_HOUR" envDefault:"5"`
	MaxPerDay         int           `env:"NOTIFY_MAX_PER_DAY" envDefault:"20"`
	QuietHoursStart   int           `env:"NOTIFY_QUIET_HOURS_START" envDefault:"22"`
	QuietHoursEnd     int           `env:"NOTIFY_QUIET_HOURS_END" envDefault:"7"`
	BatchingWindow    time.Duration `env:"NOTIFY_BATCHING_WINDOW" envDefault:"5m"`
	Thresholds        Thresholds    `envPrefix:"NOTIFY_THRESHOLD_"`
	SMSEnabled        bool          `env:"NOTIFY_SMS_ENABLED" envDefault:"false"`
	HistoryWindow     time.Duration `env:"NOTIFY_HISTORY_WINDOW" envDefault:"720h"`
	Timezone          string        `env:"NOTIFY_TIMEZONE" envDefault:"UTC"`
	PatternMinSamples int           `env:"NOTIFY_PATTERN_MIN_SAMPLES" envDefault:"3"`
	ModelsFile        string        `env:"NOTIFY_MODELS_FILE"`
	BatchLevels       []string      `env:"NOTIFY_BATCH_LEVELS" envDefault:"low" envSeparator:","`
	RefreshInterval   time.Duration `env:"NOTIFY_REFRESH_INTERVAL" envDefault:"1h"`
}

// Thresholds map a score to a level. A score at or above a bound gets that level.
type Thresholds struct {
	Critical float64 `env:"CRITICAL" envDefault:"90"`
	High     float64 `env:"HIGH" envDefault:"70"`
	Medium   float64 `env:"MEDIUM" envDefault:"40"`
	Low      float64 `env:"LOW" envDefault:"0"`
}

// Level returns the priority level for score.
func (t Thresholds) Level(score float64) notifications.Priority {
	switch {
	case score >= t.Critical:
		return notifications.PriorityCritical
	case score >= t.High:
		return notifications.PriorityHigh
	case score >= t.Medium:
		return notifications.PriorityMedium
	default:
		return notifications.PriorityLow
	}
}

// DefaultConfig returns the configuration used when no environment is set.
func DefaultConfig() Config {
	return Config{
		MaxPerHour:        5,
		MaxPerDay:         20,
		QuietHoursStart:   22,
		QuietHoursEnd:     7,
		BatchingWindow:    5 * time.Minute,
		Thresholds:        Thresholds{Critical: 90, High: 70, Medium: 40, Low: 0},
		HistoryWindow:     30 * 24 * time.Hour,
		Timezone:          "UTC",
		PatternMinSamples: 3,
		BatchLevels:       []string{string(notifications.PriorityLow)},
		RefreshInterval:   time.Hour,
	}
}

// Validate is called by config.Load after parsing.
func (c Config) Validate() error {
	var errs []error
	if c.MaxPerHour <= 0 {
		errs = append(errs, fmt.Errorf("NOTIFY_MAX_PER_HOUR must be positive, got %d", c.MaxPerHour))
	}
	if c.MaxPerDay <= 0 {
		errs = append(errs, fmt.Errorf("NOTIFY_MAX_PER_DAY must be positive, got %d", c.MaxPerDay))
	}
	if c.QuietHoursStart < 0 || c.QuietHoursStart > 23 {
		errs = append(errs, fmt.Errorf("NOTIFY_QUIET_HOURS_START must be within 0-23, got %d", c.QuietHoursStart))
	}
	if c.QuietHoursEnd < 0 || c.QuietHoursEnd > 23 {
		errs = append(errs, fmt.Errorf("NOTIFY_QUIET_HOURS_END must be within 0-23, got %d", c.QuietHoursEnd))
	}
	if c.BatchingWindow <= 0 {
		errs = append(errs, errors.New("NOTIFY_BATCHING_WINDOW must be positive"))
	}
	if c.HistoryWindow <= 0 {
		errs = append(errs, errors.New("NOTIFY_HISTORY_WINDOW must be positive"))
	}
	if c.PatternMinSamples < 1 {
		errs = append(errs, errors.New("NOTIFY_PATTERN_MIN_SAMPLES must be at least 1"))
	}
	t := c.Thresholds
	if !(t.Critical > t.High && t.High > t.Medium && t.Medium > t.Low) {
		errs = append(errs, fmt.Errorf("thresholds must be strictly descending, got %v/%v/%v/%v", t.Critical, t.High, t.Medium, t.Low))
	}
	if t.Critical > 100 || t.Low < 0 {
		errs = append(errs, errors.New("thresholds must lie within 0-100"))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("NOTIFY_TIMEZONE: %w", err))
	}
	for _, l := range c.BatchLevels {
		switch p := notifications.Priority(l); {
		case !p.Valid():
			errs = append(errs, fmt.Errorf("NOTIFY_BATCH_LEVELS: unknown level %q", l))
		case p == notifications.PriorityCritical:
			errs = append(errs, errors.New("NOTIFY_BATCH_LEVELS: critical notifications are always delivered immediately"))
		}
	}
	if len(errs) > 0 {
		return errors.Join(ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Location resolves Timezone, falling back to UTC when it is empty.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}
	return loc, nil
}
