package smartnotify

import (
	"cmp"
	"slices"
	"time"

	"github.com/dmitrymomot/smartnotify/pkg/notifications"
)

// maxPreferredHours caps UserProfile.PreferredHours.
const maxPreferredHours = 6

// Engagement is read behavior for one notification type.
type Engagement struct {
	ReadRate float64
	Count    int
}

// PriorityEngagement is read behavior for one priority level.
type PriorityEngagement struct {
	ReadRate           float64
	AvgResponseMinutes float64
	Count              int
	Responded          int
}

// UserProfile aggregates a user's historical engagement. Profiles are
// shared by the engine state snapshot and must be treated as read-only.
type UserProfile struct {
	UserID                string
	TotalNotifications    int
	ReadRate              float64
	ClickRate             float64
	AvgResponseMinutes    float64
	PreferredHours        []int
	PreferredDays         []time.Weekday
	PerTypeEngagement     map[string]Engagement
	PerPriorityEngagement map[notifications.Priority]PriorityEngagement
}

// ProfileStore is an immutable set of user profiles.
type ProfileStore struct {
	profiles map[string]*UserProfile
}

// Get returns the profile for userID.
func (s *ProfileStore) Get(userID string) (*UserProfile, bool) {
	if s == nil {
		return nil, false
	}
	p, ok := s.profiles[userID]
	return p, ok
}

// Len returns the number of profiles.
func (s *ProfileStore) Len() int {
	if s == nil {
		return 0
	}
	return len(s.profiles)
}

type profileAcc struct {
	total, read, clicked int
	responseSum          float64
	hours                map[int]int
	days                 map[time.Weekday]int
	types                map[string]*rateAcc
	priorities           map[notifications.Priority]*rateAcc
}

type rateAcc struct {
	total, read int
	responseSum float64
}

// BuildProfiles aggregates interactions per user. Hours and weekdays are
// taken in loc from the delivery time (SentAt, or CreatedAt when missing).
func BuildProfiles(items []notifications.Interaction, loc *time.Location) *ProfileStore {
	if loc == nil {
		loc = time.UTC
	}
	accs := make(map[string]*profileAcc)
	for _, it := range items {
		a := accs[it.UserID]
		if a == nil {
			a = &profileAcc{
				hours:      make(map[int]int),
				days:       make(map[time.Weekday]int),
				types:      make(map[string]*rateAcc),
				priorities: make(map[notifications.Priority]*rateAcc),
			}
			accs[it.UserID] = a
		}

		ta := a.types[it.Type]
		if ta == nil {
			ta = &rateAcc{}
			a.types[it.Type] = ta
		}
		pa := a.priorities[it.Priority]
		if pa == nil {
			pa = &rateAcc{}
			a.priorities[it.Priority] = pa
		}

		a.total++
		ta.total++
		pa.total++
		if it.ClickedAt != nil {
			a.clicked++
		}
		if it.ReadAt == nil {
			continue
		}

		delivered := deliveredAt(it)
		resp := responseMinutes(delivered, *it.ReadAt)
		a.read++
		a.responseSum += resp
		ta.read++
		ta.responseSum += resp
		pa.read++
		pa.responseSum += resp

		local := delivered.In(loc)
		a.hours[local.Hour()]++
		a.days[local.Weekday()]++
	}

	profiles := make(map[string]*UserProfile, len(accs))
	for userID, a := range accs {
		p := &UserProfile{
			UserID:                userID,
			TotalNotifications:    a.total,
			ReadRate:              ratio(a.read, a.total),
			ClickRate:             ratio(a.clicked, a.total),
			AvgResponseMinutes:    avg(a.responseSum, a.read),
			PreferredHours:        rankByVolume(a.hours, maxPreferredHours),
			PreferredDays:         rankByVolume(a.days, 0),
			PerTypeEngagement:     make(map[string]Engagement, len(a.types)),
			PerPriorityEngagement: make(map[notifications.Priority]PriorityEngagement, len(a.priorities)),
		}
		for typ, t := range a.types {
			p.PerTypeEngagement[typ] = Engagement{ReadRate: ratio(t.read, t.total), Count: t.total}
		}
		for level, pr := range a.priorities {
			p.PerPriorityEngagement[level] = PriorityEngagement{
				ReadRate:           ratio(pr.read, pr.total),
				AvgResponseMinutes: avg(pr.responseSum, pr.read),
				Count:              pr.total,
				Responded:          pr.read,
			}
		}
		profiles[userID] = p
	}
	return &ProfileStore{profiles: profiles}
}

// rankByVolume orders keys by descending count, lower key first on ties.
// limit <= 0 keeps every key.
func rankByVolume[K cmp.Ordered](counts map[K]int, limit int) []K {
	keys := make([]K, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b K) int {
		if c := cmp.Compare(counts[b], counts[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	return keys
}

func deliveredAt(it notifications.Interaction) time.Time {
	if it.SentAt != nil {
		return *it.SentAt
	}
	return it.CreatedAt
}

func responseMinutes(from, to time.Time) float64 {
	d := to.Sub(from).Minutes()
	if d < 0 {
		return 0
	}
	return d
}

func ratio(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}

func avg(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
