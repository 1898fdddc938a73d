package smartnotify

import (
	"strings"

	"github.com/dmitrymomot/smartnotify/pkg/notifications"
)

// UrgencyPrefix is prepended to titles for users who rarely read notifications.
const UrgencyPrefix = "[Action Required] "

// Personalization is the content adjustment for one recipient.
type Personalization struct {
	Title               string
	IncludeDetails      bool
	AddUrgencyIndicator bool
}

// Personalize adjusts content to the recipient's engagement. Without a
// profile the title is returned unchanged.
func Personalize(profile *UserProfile, req Request, level notifications.Priority) Personalization {
	out := Personalization{Title: req.Title}
	if profile == nil {
		return out
	}

	if profile.ReadRate < 0.3 && !strings.HasPrefix(out.Title, UrgencyPrefix) {
		out.Title = UrgencyPrefix + out.Title
	}
	if e, ok := profile.PerTypeEngagement[req.Type]; ok && e.ReadRate > 0.8 {
		out.IncludeDetails = true
	}
	if pe, ok := profile.PerPriorityEngagement[level]; ok && pe.Count > 0 && pe.Responded > 0 && pe.AvgResponseMinutes < 30 {
		out.AddUrgencyIndicator = true
	}
	return out
}
