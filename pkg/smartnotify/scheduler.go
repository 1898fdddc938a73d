package smartnotify

import (
	"container/heap"
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/smartnotify/pkg/logger"
	"github.com/dmitrymomot/smartnotify/pkg/notifications"
)

// Dispatcher delivers a stored notification. *notifications.Dispatcher
// satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, n *notifications.Notification) (*notifications.Notification, error)
}

// NotificationStore is the subset of *notifications.Store used by the engine
// and the scheduler.
type NotificationStore interface {
	Counter
	InteractionSource
	Create(ctx context.Context, n notifications.Notification) (*notifications.Notification, error)
	Get(ctx context.Context, id string) (*notifications.Notification, error)
	ListScheduled(ctx context.Context) ([]notifications.Notification, error)
	ListPending(ctx context.Context) ([]notifications.Notification, error)
	AttachToDigest(ctx context.Context, memberIDs []string, digest *notifications.Notification) error
}

type dueEntry struct {
	minute int64
	seq    uint64
	id     string
}

// dueHeap orders entries by epoch minute, then insertion order.
type dueHeap []dueEntry

func (h dueHeap) Len() int { return len(h) }
func (h dueHeap) Less(i, j int) bool {
	if h[i].minute != h[j].minute {
		return h[i].minute < h[j].minute
	}
	return h[i].seq < h[j].seq
}
func (h dueHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *dueHeap) Push(x any)   { *h = append(*h, x.(dueEntry)) }
func (h *dueHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// BatchScheduler delivers deferred notifications when their minute arrives
// and collapses queued low-priority notifications into digests.
//
// Both structures share one mutex. Run owns both timers, so due checks and
// digest sweeps never overlap.
type BatchScheduler struct {
	store      NotificationStore
	dispatcher Dispatcher
	window     time.Duration
	tick       time.Duration
	logger     *slog.Logger
	now        func() time.Time

	mu      sync.Mutex
	due     dueHeap
	pending map[string]struct{}
	queues  map[string][]notifications.Notification
	userSeq []string
	seq     uint64
}

// SchedulerOption configures a BatchScheduler.
type SchedulerOption func(*BatchScheduler)

// WithBatchingWindow sets the digest sweep interval.
func WithBatchingWindow(d time.Duration) SchedulerOption {
	return func(s *BatchScheduler) {
		if d > 0 {
			s.window = d
		}
	}
}

// WithDueCheckInterval sets how often due notifications are checked.
func WithDueCheckInterval(d time.Duration) SchedulerOption {
	return func(s *BatchScheduler) {
		if d > 0 {
			s.tick = d
		}
	}
}

// WithSchedulerLogger sets the logger for the scheduler.
func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(s *BatchScheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSchedulerClock overrides the time source.
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *BatchScheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// NewBatchScheduler creates a scheduler.
func NewBatchScheduler(store NotificationStore, dispatcher Dispatcher, opts ...SchedulerOption) *BatchScheduler {
	s := &BatchScheduler{
		store:      store,
		dispatcher: dispatcher,
		window:     5 * time.Minute,
		tick:       time.Minute,
		logger:     slog.Default(),
		now:        time.Now,
		pending:    make(map[string]struct{}),
		queues:     make(map[string][]notifications.Notification),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule queues id for delivery in the minute containing at.
// Scheduling an id that is already queued is a no-op.
func (s *BatchScheduler) Schedule(id string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pending[id]; ok {
		return
	}
	s.pending[id] = struct{}{}
	s.seq++
	heap.Push(&s.due, dueEntry{minute: epochMinute(at), seq: s.seq, id: id})
}

// Enqueue adds n to its recipient's digest queue.
func (s *BatchScheduler) Enqueue(n notifications.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.queues[n.UserID]; !ok {
		s.userSeq = append(s.userSeq, n.UserID)
	}
	s.queues[n.UserID] = append(s.queues[n.UserID], n.Clone())
}

// Pending returns the number of scheduled and digest-queued notifications.
func (s *BatchScheduler) Pending() (scheduled, queued int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, q := range s.queues {
		queued += len(q)
	}
	return s.due.Len(), queued
}

// Restore reloads deferred deliveries and never-dispatched notifications
// from the store, so neither is lost across a restart. Pending ones go to
// the digest queue and are delivered by the next sweep. Call it before the
// engine accepts requests, or in-flight immediate deliveries may be queued too.
func (s *BatchScheduler) Restore(ctx context.Context) (int, error) {
	scheduled, err := s.store.ListScheduled(ctx)
	if err != nil {
		return 0, err
	}
	for _, n := range scheduled {
		s.Schedule(n.ID, *n.ScheduledFor)
	}

	pending, err := s.store.ListPending(ctx)
	if err != nil {
		return len(scheduled), err
	}
	for _, n := range pending {
		s.Enqueue(n)
	}

	s.logger.LogAttrs(ctx, slog.LevelInfo, "restored notifications",
		logger.Component("scheduler"),
		slog.Int("scheduled", len(scheduled)),
		slog.Int("queued", len(pending)),
	)
	return len(scheduled) + len(pending), nil
}

// Run drives due checks and digest sweeps until ctx is cancelled. Due
// notifications are checked once on start. Queued digests are flushed on exit.
func (s *BatchScheduler) Run(ctx context.Context) error {
	dueTicker := time.NewTicker(s.tick)
	defer dueTicker.Stop()
	sweepTicker := time.NewTicker(s.window)
	defer sweepTicker.Stop()

	s.DeliverDue(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.LogAttrs(ctx, slog.LevelInfo, "scheduler shutting down", logger.Component("scheduler"))
			// Best effort flush with a detached context; the parent is already cancelled.
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			s.SweepDigests(flushCtx)
			cancel()
			return ctx.Err()
		case <-dueTicker.C:
			s.DeliverDue(ctx)
		case <-sweepTicker.C:
			s.SweepDigests(ctx)
		}
	}
}

// DeliverDue dispatches every notification whose minute is at or before now
// and returns how many were dispatched. Entries that fail to load or dispatch
// are kept for the next check.
func (s *BatchScheduler) DeliverDue(ctx context.Context) int {
	now := s.now()
	nowMinute := epochMinute(now)

	s.mu.Lock()
	var ids []string
	for s.due.Len() > 0 && s.due[0].minute <= nowMinute {
		e := heap.Pop(&s.due).(dueEntry)
		delete(s.pending, e.id)
		ids = append(ids, e.id)
	}
	s.mu.Unlock()

	delivered := 0
	for _, id := range ids {
		ok, retry := s.deliverScheduled(ctx, id)
		if ok {
			delivered++
		}
		if retry {
			s.Schedule(id, now)
		}
	}
	return delivered
}

// deliverScheduled reports whether id was dispatched and, if not, whether
// the failure is worth retrying.
func (s *BatchScheduler) deliverScheduled(ctx context.Context, id string) (ok, retry bool) {
	n, err := s.store.Get(ctx, id)
	if err != nil {
		s.logger.LogAttrs(ctx, slog.LevelError, "failed to load scheduled notification",
			logger.Component("scheduler"),
			logger.NotificationID(id),
			logger.Stage("deliver_due"),
			logger.Error(err),
		)
		return false, !errors.Is(err, notifications.ErrNotificationNotFound)
	}
	if n.Status != notifications.StatusScheduled && n.Status != notifications.StatusPending {
		return false, false
	}
	if _, err := s.dispatcher.Dispatch(ctx, n); err != nil {
		s.logger.LogAttrs(ctx, slog.LevelError, "failed to dispatch scheduled notification",
			logger.Component("scheduler"),
			logger.NotificationID(n.ID),
			logger.UserID(n.UserID),
			logger.NotificationType(n.Type),
			logger.Stage("deliver_due"),
			logger.Error(err),
		)
		return false, true
	}
	return true, false
}

// SweepDigests drains every user's digest queue. Groups of one are delivered
// as-is; larger groups become a single digest notification. Groups that fail
// go back to the queue for the next sweep. It returns the number of
// notifications dispatched, digests counting once.
func (s *BatchScheduler) SweepDigests(ctx context.Context) int {
	s.mu.Lock()
	users := s.userSeq
	queues := s.queues
	s.userSeq = nil
	s.queues = make(map[string][]notifications.Notification)
	s.mu.Unlock()

	dispatched := 0
	for _, userID := range users {
		for _, group := range groupForDigest(queues[userID]) {
			if s.deliverGroup(ctx, group) {
				dispatched++
				continue
			}
			for _, n := range group {
				s.Enqueue(n)
			}
		}
	}
	return dispatched
}

func (s *BatchScheduler) deliverGroup(ctx context.Context, group []notifications.Notification) bool {
	first := group[0]
	if len(group) == 1 {
		if _, err := s.dispatcher.Dispatch(ctx, &first); err != nil {
			s.logGroupError(ctx, first, "dispatch queued notification", err)
			return false
		}
		return true
	}

	digest, err := s.store.Create(ctx, buildDigest(group))
	if err != nil {
		s.logGroupError(ctx, first, "create digest", err)
		return false
	}
	sent, err := s.dispatcher.Dispatch(ctx, digest)
	if err != nil {
		s.logGroupError(ctx, first, "dispatch digest", err)
		return false
	}
	if err := s.store.AttachToDigest(ctx, digest.DigestOf, sent); err != nil {
		s.logGroupError(ctx, first, "attach digest members", err)
	}

	s.logger.LogAttrs(ctx, slog.LevelDebug, "digest delivered",
		logger.Component("scheduler"),
		logger.NotificationID(sent.ID),
		logger.UserID(sent.UserID),
		logger.NotificationType(sent.Type),
		logger.Count(len(group)),
	)
	return true
}

func (s *BatchScheduler) logGroupError(ctx context.Context, n notifications.Notification, msg string, err error) {
	s.logger.LogAttrs(ctx, slog.LevelError, "failed to "+msg,
		logger.Component("scheduler"),
		logger.UserID(n.UserID),
		logger.NotificationType(n.Type),
		logger.PriorityLevel(string(n.Priority)),
		logger.Stage("digest_sweep"),
		logger.Error(err),
	)
}

func epochMinute(t time.Time) int64 {
	return t.Unix() / 60
}
