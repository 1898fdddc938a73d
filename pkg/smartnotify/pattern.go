package smartnotify

import (
	"cmp"
	"slices"
	"time"

	"github.com/dmitrymomot/smartnotify/pkg/notifications"
)

// maxBestHours caps Pattern.BestHours.
const maxBestHours = 4

// PatternKey identifies a global pattern.
type PatternKey struct {
	Type     string
	Priority notifications.Priority
}

// HourStats is engagement for notifications delivered in one hour of day.
type HourStats struct {
	TotalCount         int
	ReadRate           float64
	ClickRate          float64
	AvgResponseMinutes float64
}

// Pattern is cross-user engagement for one (type, priority) pair.
type Pattern struct {
	HourlyStats  map[int]HourStats
	BestHours    []int
	TotalSamples int
}

// PatternCatalog is an immutable set of global patterns.
type PatternCatalog struct {
	patterns map[PatternKey]Pattern
}

// Lookup returns the pattern for (typ, level).
func (c *PatternCatalog) Lookup(typ string, level notifications.Priority) (Pattern, bool) {
	if c == nil {
		return Pattern{}, false
	}
	p, ok := c.patterns[PatternKey{Type: typ, Priority: level}]
	return p, ok
}

// Len returns the number of patterns.
func (c *PatternCatalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.patterns)
}

type hourAcc struct {
	total, read, clicked int
	responseSum          float64
}

// BuildPatterns aggregates interactions per (type, priority) and hour of
// delivery in loc. Best hours are ranked by read rate, then sample count,
// then lower hour, among hours with at least minSamples notifications.
func BuildPatterns(items []notifications.Interaction, loc *time.Location, minSamples int) *PatternCatalog {
	if loc == nil {
		loc = time.UTC
	}
	minSamples = max(minSamples, 1)

	accs := make(map[PatternKey]map[int]*hourAcc)
	for _, it := range items {
		key := PatternKey{Type: it.Type, Priority: it.Priority}
		hours := accs[key]
		if hours == nil {
			hours = make(map[int]*hourAcc)
			accs[key] = hours
		}
		delivered := deliveredAt(it)
		h := delivered.In(loc).Hour()
		a := hours[h]
		if a == nil {
			a = &hourAcc{}
			hours[h] = a
		}
		a.total++
		if it.ClickedAt != nil {
			a.clicked++
		}
		if it.ReadAt != nil {
			a.read++
			a.responseSum += responseMinutes(delivered, *it.ReadAt)
		}
	}

	patterns := make(map[PatternKey]Pattern, len(accs))
	for key, hours := range accs {
		p := Pattern{HourlyStats: make(map[int]HourStats, len(hours))}
		var eligible []int
		for h, a := range hours {
			p.TotalSamples += a.total
			p.HourlyStats[h] = HourStats{
				TotalCount:         a.total,
				ReadRate:           ratio(a.read, a.total),
				ClickRate:          ratio(a.clicked, a.total),
				AvgResponseMinutes: avg(a.responseSum, a.read),
			}
			if a.total >= minSamples {
				eligible = append(eligible, h)
			}
		}
		slices.SortFunc(eligible, func(a, b int) int {
			sa, sb := p.HourlyStats[a], p.HourlyStats[b]
			if c := cmp.Compare(sb.ReadRate, sa.ReadRate); c != 0 {
				return c
			}
			if c := cmp.Compare(sb.TotalCount, sa.TotalCount); c != 0 {
				return c
			}
			return cmp.Compare(a, b)
		})
		if len(eligible) > maxBestHours {
			eligible = eligible[:maxBestHours]
		}
		p.BestHours = eligible
		patterns[key] = p
	}
	return &PatternCatalog{patterns: patterns}
}
