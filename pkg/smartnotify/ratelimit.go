package smartnotify

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrymomot/smartnotify/pkg/notifications"
)

// Rate limit reasons recorded in notification metadata.
const (
	ReasonRateLimitedDaily  = "rate_limited_daily"
	ReasonRateLimitedHourly = "rate_limited_hourly"
	ReasonRateLimited       = "rate_limited"
)

// rateLimitRetryDelay is used when neither window is exhausted but admission
// was still refused.
const rateLimitRetryDelay = 15 * time.Minute

// dailyResumeHour is the local hour deliveries resume after a daily limit.
const dailyResumeHour = 9

// Counter counts notifications a user received since a point in time.
type Counter interface {
	CountSince(ctx context.Context, userID string, since time.Time) (int, error)
}

// RateLimitResult is the per-request view of a user's rate windows.
type RateLimitResult struct {
	Allowed     bool
	HourlyCount int
	DailyCount  int
	HourlyLimit int
	DailyLimit  int
}

// Admission is the rate limiter's verdict for one notification.
type Admission struct {
	Allowed      bool
	Bypassed     bool
	RescheduleTo *time.Time
	Reason       string
}

// RateLimiter enforces hourly and daily per-user limits from stored counts.
// Counts are recomputed per request and never cached.
type RateLimiter struct {
	counter     Counter
	hourlyLimit int
	dailyLimit  int
	loc         *time.Location
}

// NewRateLimiter creates a limiter. Windows start at the top of the hour and
// at midnight in loc.
func NewRateLimiter(counter Counter, hourlyLimit, dailyLimit int, loc *time.Location) *RateLimiter {
	if loc == nil {
		loc = time.UTC
	}
	return &RateLimiter{
		counter:     counter,
		hourlyLimit: hourlyLimit,
		dailyLimit:  dailyLimit,
		loc:         loc,
	}
}

// Check counts the user's notifications in the current hour and day.
func (r *RateLimiter) Check(ctx context.Context, userID string, now time.Time) (RateLimitResult, error) {
	local := now.In(r.loc)
	hourStart := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, r.loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, r.loc)

	hourly, err := r.counter.CountSince(ctx, userID, hourStart)
	if err != nil {
		return RateLimitResult{}, fmt.Errorf("count hourly notifications: %w", err)
	}
	daily, err := r.counter.CountSince(ctx, userID, dayStart)
	if err != nil {
		return RateLimitResult{}, fmt.Errorf("count daily notifications: %w", err)
	}

	return RateLimitResult{
		Allowed:     hourly < r.hourlyLimit && daily < r.dailyLimit,
		HourlyCount: hourly,
		DailyCount:  daily,
		HourlyLimit: r.hourlyLimit,
		DailyLimit:  r.dailyLimit,
	}, nil
}

// Resolve turns a check result into an admission decision. Critical
// notifications bypass the limiter; others are rescheduled to tomorrow 09:00
// when the daily limit is exhausted, else to the next hour.
func (r *RateLimiter) Resolve(res RateLimitResult, level notifications.Priority, now time.Time) Admission {
	if res.Allowed {
		return Admission{Allowed: true}
	}
	if level == notifications.PriorityCritical {
		return Admission{Allowed: true, Bypassed: true}
	}

	local := now.In(r.loc)
	var (
		at     time.Time
		reason string
	)
	switch {
	case res.DailyCount >= res.DailyLimit:
		at = time.Date(local.Year(), local.Month(), local.Day()+1, dailyResumeHour, 0, 0, 0, r.loc)
		reason = ReasonRateLimitedDaily
	case res.HourlyCount >= res.HourlyLimit:
		at = time.Date(local.Year(), local.Month(), local.Day(), local.Hour()+1, 0, 0, 0, r.loc)
		reason = ReasonRateLimitedHourly
	default:
		at = now.Add(rateLimitRetryDelay)
		reason = ReasonRateLimited
	}
	return Admission{RescheduleTo: &at, Reason: reason}
}
