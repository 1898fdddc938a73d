package smartnotify

import (
	"fmt"
	"maps"
	"strings"

	"github.com/dmitrymomot/smartnotify/pkg/notifications"
)

// ContextKeyDigestCount is set on digest notifications' context data.
const ContextKeyDigestCount = "digestCount"

// groupForDigest splits a user's queue into (type, level) groups, keeping
// the order in which each group was first seen.
func groupForDigest(queue []notifications.Notification) [][]notifications.Notification {
	index := make(map[PatternKey]int)
	var groups [][]notifications.Notification
	for _, n := range queue {
		key := PatternKey{Type: n.Type, Priority: n.Priority}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], n)
	}
	return groups
}

// buildDigest synthesizes one notification from a group of at least two.
// Channels are the union of the members', the score is the highest member
// score and the context carries the first member's data plus the count.
func buildDigest(group []notifications.Notification) notifications.Notification {
	first := group[0]

	ids := make([]string, 0, len(group))
	var (
		channels []notifications.Channel
		score    float64
		body     strings.Builder
	)
	for i, n := range group {
		ids = append(ids, n.ID)
		channels = append(channels, n.Channels...)
		if i == 0 || n.Score > score {
			score = n.Score
		}
		fmt.Fprintf(&body, "- %s\n", n.Title)
	}

	ctx := maps.Clone(first.Context)
	if ctx == nil {
		ctx = make(map[string]any, 1)
	}
	ctx[ContextKeyDigestCount] = len(group)

	return notifications.Notification{
		UserID:      first.UserID,
		Type:        first.Type,
		Title:       fmt.Sprintf("%d new %s notifications", len(group), humanizeType(first.Type)),
		Message:     strings.TrimRight(body.String(), "\n"),
		Priority:    first.Priority,
		Score:       score,
		Channels:    notifications.NormalizeChannels(channels),
		Context:     ctx,
		AIProcessed: true,
		IsDigest:    true,
		DigestOf:    ids,
		Metadata: notifications.Metadata{
			TimingReason: ReasonDigest,
			Confidence:   first.Metadata.Confidence,
		},
	}
}

// ReasonDigest marks notifications synthesized by the digest sweep.
const ReasonDigest = "digest"

func humanizeType(typ string) string {
	return strings.ReplaceAll(typ, "_", " ")
}
