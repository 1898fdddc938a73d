package notifications

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Store owns the notification lifecycle on top of a Storage backend.
type Store struct {
	storage Storage
	now     func() time.Time
	newID   func() string
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithStoreClock overrides the time source.
func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides the id generator.
func WithIDGenerator(fn func() string) StoreOption {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewStore creates a Store over storage.
func NewStore(storage Storage, opts ...StoreOption) *Store {
	s := &Store{
		storage: storage,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create assigns an id, the creation time and the initial status, then
// persists n. Status is scheduled when ScheduledFor lies in the future.
func (s *Store) Create(ctx context.Context, n Notification) (*Notification, error) {
	if n.UserID == "" || n.Type == "" {
		return nil, errors.Join(ErrInvalidNotification, errors.New("recipient and type are required"))
	}

	now := s.now()
	n = n.Clone()
	n.ID = s.newID()
	n.CreatedAt = now
	n.Channels = NormalizeChannels(n.Channels)
	n.DeliveryResults = map[Channel]DeliveryResult{}
	n.SentAt, n.ReadAt, n.ClickedAt = nil, nil, nil
	n.Status = StatusPending
	if n.ScheduledFor != nil && n.ScheduledFor.After(now) {
		n.Status = StatusScheduled
	}

	if err := s.storage.Insert(ctx, n); err != nil {
		return nil, errors.Join(ErrFailedToCreate, err)
	}
	created := n.Clone()
	return &created, nil
}

// Get returns the notification with the given id.
func (s *Store) Get(ctx context.Context, id string) (*Notification, error) {
	return s.storage.Get(ctx, id)
}

// RecordDeliveryResult stores per-channel outcomes. The notification becomes
// sent when any channel succeeded and failed otherwise.
func (s *Store) RecordDeliveryResult(ctx context.Context, id string, results map[Channel]DeliveryResult, at time.Time) (*Notification, error) {
	status := StatusFailed
	for _, r := range results {
		if r.Success {
			status = StatusSent
			break
		}
	}

	patch := Patch{Status: &status, DeliveryResults: results}
	if status == StatusSent {
		patch.SentAt = &at
	}
	n, err := s.storage.Update(ctx, id, patch)
	if err != nil {
		return nil, wrapUpdate(err)
	}
	return n, nil
}

// MarkRead records the first read acknowledgement. Later calls keep the
// original timestamp.
func (s *Store) MarkRead(ctx context.Context, id string) (*Notification, error) {
	n, err := s.storage.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.ReadAt != nil {
		return n, nil
	}
	now := s.now()
	n, err = s.storage.Update(ctx, id, Patch{ReadAt: &now})
	if err != nil {
		return nil, wrapUpdate(err)
	}
	return n, nil
}

// MarkClicked records the first click. A click implies a read, so ReadAt is
// filled in when still empty.
func (s *Store) MarkClicked(ctx context.Context, id string) (*Notification, error) {
	n, err := s.storage.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.ClickedAt != nil {
		return n, nil
	}
	now := s.now()
	patch := Patch{ClickedAt: &now}
	if n.ReadAt == nil {
		patch.ReadAt = &now
	}
	n, err = s.storage.Update(ctx, id, patch)
	if err != nil {
		return nil, wrapUpdate(err)
	}
	return n, nil
}

// AttachToDigest links members to the digest and copies its delivery outcome.
func (s *Store) AttachToDigest(ctx context.Context, memberIDs []string, digest *Notification) error {
	var errs []error
	for _, id := range memberIDs {
		status := digest.Status
		digestID := digest.ID
		patch := Patch{Status: &status, DigestID: &digestID}
		if digest.SentAt != nil {
			sentAt := *digest.SentAt
			patch.SentAt = &sentAt
		}
		if _, err := s.storage.Update(ctx, id, patch); err != nil {
			errs = append(errs, wrapUpdate(err))
		}
	}
	return errors.Join(errs...)
}

// Reschedule moves a notification to a new delivery time and marks it scheduled.
func (s *Store) Reschedule(ctx context.Context, id string, at time.Time) (*Notification, error) {
	status := StatusScheduled
	n, err := s.storage.Update(ctx, id, Patch{Status: &status, ScheduledFor: &at})
	if err != nil {
		return nil, wrapUpdate(err)
	}
	return n, nil
}

// CountSince counts notifications the user received at or after since.
func (s *Store) CountSince(ctx context.Context, userID string, since time.Time) (int, error) {
	return s.storage.CountSince(ctx, userID, since)
}

// Interactions returns historical interactions within the window ending now.
func (s *Store) Interactions(ctx context.Context, window time.Duration) ([]Interaction, error) {
	return s.storage.Interactions(ctx, s.now().Add(-window))
}

// ListScheduled returns notifications waiting for deferred delivery.
func (s *Store) ListScheduled(ctx context.Context) ([]Notification, error) {
	return s.storage.ListScheduled(ctx)
}

// ListPending returns notifications created but never dispatched, such as
// members of a digest queue lost to a restart.
func (s *Store) ListPending(ctx context.Context) ([]Notification, error) {
	return s.storage.ListPending(ctx)
}

func wrapUpdate(err error) error {
	if errors.Is(err, ErrNotificationNotFound) {
		return err
	}
	return errors.Join(ErrFailedToUpdate, err)
}
