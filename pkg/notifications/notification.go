package notifications

import (
	"maps"
	"slices"
	"time"
)

// Priority is the discrete priority level of a notification.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Valid reports whether p is one of the four known levels.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Rank orders levels from low (0) to critical (3). Unknown levels rank -1.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityMedium:
		return 1
	case PriorityHigh:
		return 2
	case PriorityCritical:
		return 3
	}
	return -1
}

// Channel is a delivery channel.
type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// channelOrder is the canonical ordering used when channel sets are listed.
var channelOrder = []Channel{ChannelInApp, ChannelEmail, ChannelSMS}

// NormalizeChannels de-duplicates chs and returns them in canonical order.
// Unknown channels are kept after the known ones. An empty input yields
// in_app only, since every notification has at least one channel.
func NormalizeChannels(chs []Channel) []Channel {
	seen := make(map[Channel]bool, len(chs))
	for _, c := range chs {
		seen[c] = true
	}
	out := make([]Channel, 0, len(seen))
	for _, c := range channelOrder {
		if seen[c] {
			out = append(out, c)
			delete(seen, c)
		}
	}
	rest := slices.Sorted(maps.Keys(seen))
	out = append(out, rest...)
	if len(out) == 0 {
		out = append(out, ChannelInApp)
	}
	return out
}

// Status is the delivery lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusScheduled Status = "scheduled"
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
)

// DeliveryResult is the outcome of one channel's delivery attempt.
type DeliveryResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Metadata records how the engine arrived at its decisions.
type Metadata struct {
	TimingReason        string             `json:"timing_reason,omitempty"`
	RateLimited         bool               `json:"rate_limited,omitempty"`
	RateLimitBypassed   bool               `json:"rate_limit_bypassed,omitempty"`
	IncludeDetails      bool               `json:"include_details,omitempty"`
	AddUrgencyIndicator bool               `json:"add_urgency_indicator,omitempty"`
	Confidence          float64            `json:"confidence,omitempty"`
	FactorBreakdown     map[string]float64 `json:"factor_breakdown,omitempty"`
	FallbackReason      string             `json:"fallback_reason,omitempty"`
	ContextDropped      bool               `json:"context_dropped,omitempty"`
}

// Notification is the persisted record of one notification and its outcome.
type Notification struct {
	ID              string                     `json:"id"`
	UserID          string                     `json:"recipient_user_id"`
	Type            string                     `json:"type"`
	Title           string                     `json:"title"`
	Message         string                     `json:"message"`
	Priority        Priority                   `json:"priority_level"`
	Score           float64                    `json:"priority_score"`
	Channels        []Channel                  `json:"delivery_channels"`
	Context         map[string]any             `json:"context_data,omitempty"`
	AIProcessed     bool                       `json:"ai_processed"`
	IsDigest        bool                       `json:"is_digest"`
	DigestOf        []string                   `json:"digest_of,omitempty"`
	DigestID        string                     `json:"digest_id,omitempty"`
	Metadata        Metadata                   `json:"metadata"`
	Status          Status                     `json:"status"`
	ScheduledFor    *time.Time                 `json:"scheduled_for,omitempty"`
	SentAt          *time.Time                 `json:"sent_at,omitempty"`
	ReadAt          *time.Time                 `json:"read_at,omitempty"`
	ClickedAt       *time.Time                 `json:"clicked_at,omitempty"`
	DeliveryResults map[Channel]DeliveryResult `json:"delivery_results"`
	CreatedAt       time.Time                  `json:"created_at"`
}

// HasChannel reports whether c is one of the notification's channels.
func (n *Notification) HasChannel(c Channel) bool {
	return slices.Contains(n.Channels, c)
}

// Clone returns a deep copy so stored records cannot be mutated by callers.
func (n Notification) Clone() Notification {
	c := n
	c.Channels = slices.Clone(n.Channels)
	c.DigestOf = slices.Clone(n.DigestOf)
	c.Context = maps.Clone(n.Context)
	c.DeliveryResults = maps.Clone(n.DeliveryResults)
	c.Metadata.FactorBreakdown = maps.Clone(n.Metadata.FactorBreakdown)
	c.ScheduledFor = cloneTime(n.ScheduledFor)
	c.SentAt = cloneTime(n.SentAt)
	c.ReadAt = cloneTime(n.ReadAt)
	c.ClickedAt = cloneTime(n.ClickedAt)
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
