package notifications

import (
	"context"
	"errors"
	"maps"
	"sort"
	"sync"
	"time"
)

// MemoryStorage is an in-memory implementation of the Storage interface.
// Suitable for development and testing.
type MemoryStorage struct {
	mu    sync.RWMutex
	byID  map[string]*Notification
	order []string // insertion order
}

// NewMemoryStorage creates a new in-memory notification storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		byID: make(map[string]*Notification),
	}
}

func (s *MemoryStorage) Insert(ctx context.Context, n Notification) error {
	if n.ID == "" {
		return errors.Join(ErrInvalidNotification, errors.New("notification ID is required"))
	}
	if n.UserID == "" {
		return errors.Join(ErrInvalidNotification, errors.New("user ID is required"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[n.ID]; exists {
		return errors.Join(ErrInvalidNotification, errors.New("duplicate notification ID"))
	}
	stored := n.Clone()
	s.byID[n.ID] = &stored
	s.order = append(s.order, n.ID)
	return nil
}

func (s *MemoryStorage) Get(ctx context.Context, id string) (*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.byID[id]
	if !ok {
		return nil, ErrNotificationNotFound
	}
	// Return a copy to prevent external mutation of stored data
	c := n.Clone()
	return &c, nil
}

func (s *MemoryStorage) Update(ctx context.Context, id string, patch Patch) (*Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.byID[id]
	if !ok {
		return nil, ErrNotificationNotFound
	}

	if patch.Status != nil {
		n.Status = *patch.Status
	}
	if patch.SentAt != nil {
		n.SentAt = cloneTime(patch.SentAt)
	}
	if patch.ReadAt != nil {
		n.ReadAt = cloneTime(patch.ReadAt)
	}
	if patch.ClickedAt != nil {
		n.ClickedAt = cloneTime(patch.ClickedAt)
	}
	if patch.ScheduledFor != nil {
		n.ScheduledFor = cloneTime(patch.ScheduledFor)
	}
	if patch.DigestID != nil {
		n.DigestID = *patch.DigestID
	}
	if len(patch.DeliveryResults) > 0 {
		if n.DeliveryResults == nil {
			n.DeliveryResults = make(map[Channel]DeliveryResult, len(patch.DeliveryResults))
		}
		maps.Copy(n.DeliveryResults, patch.DeliveryResults)
	}

	c := n.Clone()
	return &c, nil
}

func (s *MemoryStorage) CountSince(ctx context.Context, userID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, n := range s.byID {
		if n.UserID == userID && !n.IsDigest && !n.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStorage) Interactions(ctx context.Context, since time.Time) ([]Interaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Interaction, 0, len(s.order))
	for _, id := range s.order {
		n := s.byID[id]
		if n.IsDigest || n.SentAt == nil || n.CreatedAt.Before(since) {
			continue
		}
		out = append(out, Interaction{
			UserID:    n.UserID,
			Type:      n.Type,
			Priority:  n.Priority,
			CreatedAt: n.CreatedAt,
			SentAt:    cloneTime(n.SentAt),
			ReadAt:    cloneTime(n.ReadAt),
			ClickedAt: cloneTime(n.ClickedAt),
		})
	}
	return out, nil
}

func (s *MemoryStorage) ListScheduled(ctx context.Context) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Notification
	for _, id := range s.order {
		n := s.byID[id]
		if n.Status == StatusScheduled && n.ScheduledFor != nil {
			out = append(out, n.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ScheduledFor.Before(*out[j].ScheduledFor)
	})
	return out, nil
}

func (s *MemoryStorage) ListPending(ctx context.Context) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Notification
	for _, id := range s.order {
		n := s.byID[id]
		if n.Status == StatusPending && !n.IsDigest && n.DigestID == "" {
			out = append(out, n.Clone())
		}
	}
	return out, nil
}
