package notifications

import (
	"context"
	"time"
)

// Patch describes a partial update. Nil fields are left untouched and
// DeliveryResults are merged into the stored map key by key.
type Patch struct {
	Status          *Status
	SentAt          *time.Time
	ReadAt          *time.Time
	ClickedAt       *time.Time
	ScheduledFor    *time.Time
	DigestID        *string
	DeliveryResults map[Channel]DeliveryResult
}

// Interaction is the slice of a historical notification used to derive
// behavior profiles and global patterns.
type Interaction struct {
	UserID    string
	Type      string
	Priority  Priority
	CreatedAt time.Time
	SentAt    *time.Time
	ReadAt    *time.Time
	ClickedAt *time.Time
}

// Storage is the persistence boundary for notifications.
type Storage interface {
	// Insert persists a new notification. The ID must already be assigned.
	Insert(ctx context.Context, n Notification) error

	// Get returns ErrNotificationNotFound when id is unknown.
	Get(ctx context.Context, id string) (*Notification, error)

	// Update applies patch and returns the updated record.
	Update(ctx context.Context, id string, patch Patch) (*Notification, error)

	// CountSince counts non-digest notifications for userID created at or after since.
	CountSince(ctx context.Context, userID string, since time.Time) (int, error)

	// Interactions returns delivered non-digest notifications created at or
	// after since. Rows without SentAt have no engagement to learn from.
	Interactions(ctx context.Context, since time.Time) ([]Interaction, error)

	// ListScheduled returns notifications still waiting for deferred delivery.
	ListScheduled(ctx context.Context) ([]Notification, error)

	// ListPending returns non-digest notifications that never had a delivery
	// attempt and were not folded into a digest, oldest first.
	ListPending(ctx context.Context) ([]Notification, error)
}
