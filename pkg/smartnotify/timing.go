package smartnotify

import (
	"slices"
	"time"

	"github.com/dmitrymomot/smartnotify/pkg/notifications"
)

// Timing decision reasons.
const (
	ReasonCriticalPriority  = "critical_priority"
	ReasonQuietHours        = "quiet_hours"
	ReasonUserPreference    = "user_preference"
	ReasonOptimalEngagement = "optimal_engagement"
	ReasonDefaultImmediate  = "default_immediate"
)

// TimingDecision says whether to deliver now or at ScheduledFor.
type TimingDecision struct {
	Immediate    bool
	ScheduledFor *time.Time
	Reason       string
}

// TimingOptimizer picks a delivery time from quiet hours, the user's
// preferred hours and global best hours.
type TimingOptimizer struct {
	QuietStart int
	QuietEnd   int
	Location   *time.Location
}

// IsQuietHour reports whether hour falls into the quiet range. A range with
// start > end wraps past midnight; start == end disables quiet hours.
func (o TimingOptimizer) IsQuietHour(hour int) bool {
	switch {
	case o.QuietStart == o.QuietEnd:
		return false
	case o.QuietStart > o.QuietEnd:
		return hour >= o.QuietStart || hour < o.QuietEnd
	default:
		return hour >= o.QuietStart && hour < o.QuietEnd
	}
}

// Optimize applies the timing rules in order. The first matching rule wins.
func (o TimingOptimizer) Optimize(snap *Snapshot, req Request, result PriorityResult, now time.Time) TimingDecision {
	local := o.local(now)

	if result.Level == notifications.PriorityCritical {
		return immediate(ReasonCriticalPriority)
	}

	if o.IsQuietHour(local.Hour()) {
		at := nextHourAt(local, o.QuietEnd)
		return TimingDecision{ScheduledFor: &at, Reason: ReasonQuietHours}
	}

	if snap == nil {
		return immediate(ReasonDefaultImmediate)
	}

	if p, ok := snap.Profiles.Get(req.RecipientUserID); ok && len(p.PreferredHours) > 0 && result.Level != notifications.PriorityHigh {
		return deferToNext(local, p.PreferredHours, ReasonUserPreference)
	}

	if result.Level == notifications.PriorityLow {
		if pat, ok := snap.Patterns.Lookup(req.Type, result.Level); ok && len(pat.BestHours) > 0 {
			return deferToNext(local, pat.BestHours, ReasonOptimalEngagement)
		}
	}

	return immediate(ReasonDefaultImmediate)
}

func (o TimingOptimizer) local(now time.Time) time.Time {
	if o.Location != nil {
		return now.In(o.Location)
	}
	return now
}

// deferToNext picks the first hour >= the current hour, wrapping to the
// earliest hour tomorrow. A match on the current hour is delivered now.
func deferToNext(local time.Time, hours []int, reason string) TimingDecision {
	sorted := slices.Sorted(slices.Values(hours))
	current := local.Hour()
	for _, h := range sorted {
		if h == current {
			return immediate(reason)
		}
		if h > current {
			at := nextHourAt(local, h)
			return TimingDecision{ScheduledFor: &at, Reason: reason}
		}
	}
	at := nextHourAt(local, sorted[0])
	return TimingDecision{ScheduledFor: &at, Reason: reason}
}

// nextHourAt returns the next hour:00 strictly after local.
func nextHourAt(local time.Time, hour int) time.Time {
	at := time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, local.Location())
	if !at.After(local) {
		at = time.Date(local.Year(), local.Month(), local.Day()+1, hour, 0, 0, 0, local.Location())
	}
	return at
}

func immediate(reason string) TimingDecision {
	return TimingDecision{Immediate: true, Reason: reason}
}
