package smartnotify_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/smartnotify/pkg/logger"
	"github.com/dmitrymomot/smartnotify/pkg/notifications"
	"github.com/dmitrymomot/smartnotify/pkg/smartnotify"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// recorder is a transport that records the notifications it delivers.
type recorder struct {
	channel notifications.Channel

	mu   sync.Mutex
	sent []notifications.Notification
}

func (r *recorder) Channel() notifications.Channel { return r.channel }

func (r *recorder) Deliver(_ context.Context, n notifications.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recorder) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sent))
	for _, n := range r.sent {
		ids = append(ids, n.ID)
	}
	return ids
}

type harness struct {
	clock      *testClock
	store      *notifications.Store
	dispatcher *notifications.Dispatcher
	scheduler  *smartnotify.BatchScheduler
	state      *smartnotify.State
	engine     *smartnotify.Engine
	inApp      *recorder
	email      *recorder
}

type harnessOptions struct {
	cfg     *smartnotify.Config
	history []notifications.Interaction
	unload  bool
	wrap    func(*notifications.Store) smartnotify.NotificationStore
}

func newHarness(t *testing.T, start time.Time, o harnessOptions) *harness {
	t.Helper()

	cfg := smartnotify.DefaultConfig()
	if o.cfg != nil {
		cfg = *o.cfg
	}

	h := &harness{
		clock: &testClock{now: start},
		inApp: &recorder{channel: notifications.ChannelInApp},
		email: &recorder{channel: notifications.ChannelEmail},
	}
	h.store = notifications.NewStore(notifications.NewMemoryStorage(), notifications.WithStoreClock(h.clock.Now))
	h.dispatcher = notifications.NewDispatcher(h.store,
		[]notifications.Transport{h.inApp, h.email},
		notifications.WithDispatcherLogger(logger.Noop()),
		notifications.WithDispatcherClock(h.clock.Now),
	)

	var store smartnotify.NotificationStore = h.store
	if o.wrap != nil {
		store = o.wrap(h.store)
	}

	h.scheduler = smartnotify.NewBatchScheduler(store, h.dispatcher,
		smartnotify.WithSchedulerLogger(logger.Noop()),
		smartnotify.WithSchedulerClock(h.clock.Now),
	)

	history := o.history
	source := sourceFunc(func(context.Context, time.Duration) ([]notifications.Interaction, error) {
		return history, nil
	})
	state, err := smartnotify.NewState(source, cfg, smartnotify.WithStateLogger(logger.Noop()))
	require.NoError(t, err)
	if !o.unload {
		require.NoError(t, state.Load(context.Background()))
	}
	h.state = state

	h.engine, err = smartnotify.New(cfg, state, store, h.dispatcher, h.scheduler,
		smartnotify.WithLogger(logger.Noop()),
		smartnotify.WithClock(h.clock.Now),
	)
	require.NoError(t, err)
	return h
}

func (h *harness) send(t *testing.T, req smartnotify.Request) *notifications.Notification {
	t.Helper()
	n, err := h.engine.Send(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, n)
	return n
}

func (h *harness) get(t *testing.T, id string) *notifications.Notification {
	t.Helper()
	n, err := h.store.Get(context.Background(), id)
	require.NoError(t, err)
	return n
}

// hinted builds a request for a type without a model, so the level follows
// the priority hint.
func hinted(userID string, level notifications.Priority, title string) smartnotify.Request {
	return smartnotify.Request{
		Type:            "custom_alert",
		RecipientUserID: userID,
		Title:           title,
		Message:         "details",
		Priority:        level,
	}
}
