package notifications_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/smartnotify/pkg/logger"
	"github.com/dmitrymomot/smartnotify/pkg/notifications"
)

// MockTransport for testing Dispatcher
type MockTransport struct {
	mock.Mock
	channel notifications.Channel
}

func (m *MockTransport) Channel() notifications.Channel { return m.channel }

func (m *MockTransport) Deliver(ctx context.Context, n notifications.Notification) error {
	return m.Called(ctx, n).Error(0)
}

type panicTransport struct{}

func (panicTransport) Channel() notifications.Channel { return notifications.ChannelSMS }

func (panicTransport) Deliver(context.Context, notifications.Notification) error {
	panic("gateway exploded")
}

func TestDispatcher_Dispatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		channels   []notifications.Channel
		setup      func(inApp, email *MockTransport)
		extra      []notifications.Transport
		wantStatus notifications.Status
		want       map[notifications.Channel]notifications.DeliveryResult
	}{
		{
			name:     "all channels succeed",
			channels: []notifications.Channel{notifications.ChannelInApp, notifications.ChannelEmail},
			setup: func(inApp, email *MockTransport) {
				inApp.On("Deliver", mock.Anything, mock.Anything).Return(nil)
				email.On("Deliver", mock.Anything, mock.Anything).Return(nil)
			},
			wantStatus: notifications.StatusSent,
			want: map[notifications.Channel]notifications.DeliveryResult{
				notifications.ChannelInApp: {Success: true},
				notifications.ChannelEmail: {Success: true},
			},
		},
		{
			name:     "one failure does not affect siblings",
			channels: []notifications.Channel{notifications.ChannelInApp, notifications.ChannelEmail},
			setup: func(inApp, email *MockTransport) {
				inApp.On("Deliver", mock.Anything, mock.Anything).Return(nil)
				email.On("Deliver", mock.Anything, mock.Anything).Return(errors.New("mailbox full"))
			},
			wantStatus: notifications.StatusSent,
			want: map[notifications.Channel]notifications.DeliveryResult{
				notifications.ChannelInApp: {Success: true},
				notifications.ChannelEmail: {Error: "mailbox full"},
			},
		},
		{
			name:     "every channel failed",
			channels: []notifications.Channel{notifications.ChannelEmail},
			setup: func(_, email *MockTransport) {
				email.On("Deliver", mock.Anything, mock.Anything).Return(errors.New("rejected"))
			},
			wantStatus: notifications.StatusFailed,
			want: map[notifications.Channel]notifications.DeliveryResult{
				notifications.ChannelEmail: {Error: "rejected"},
			},
		},
		{
			name:     "channel without transport",
			channels: []notifications.Channel{notifications.ChannelInApp, notifications.ChannelSMS},
			setup: func(inApp, _ *MockTransport) {
				inApp.On("Deliver", mock.Anything, mock.Anything).Return(nil)
			},
			wantStatus: notifications.StatusSent,
			want: map[notifications.Channel]notifications.DeliveryResult{
				notifications.ChannelInApp: {Success: true},
				notifications.ChannelSMS:   {Error: notifications.ErrNoTransport.Error()},
			},
		},
		{
			name:     "panicking transport is contained",
			channels: []notifications.Channel{notifications.ChannelInApp, notifications.ChannelSMS},
			setup: func(inApp, _ *MockTransport) {
				inApp.On("Deliver", mock.Anything, mock.Anything).Return(nil)
			},
			extra:      []notifications.Transport{panicTransport{}},
			wantStatus: notifications.StatusSent,
			want: map[notifications.Channel]notifications.DeliveryResult{
				notifications.ChannelInApp: {Success: true},
				notifications.ChannelSMS:   {Error: "transport panic: gateway exploded"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			store, _, _ := newTestStore(t)

			inApp := &MockTransport{channel: notifications.ChannelInApp}
			email := &MockTransport{channel: notifications.ChannelEmail}
			tt.setup(inApp, email)

			transports := append([]notifications.Transport{inApp, email}, tt.extra...)
			d := notifications.NewDispatcher(store, transports,
				notifications.WithDispatcherLogger(logger.Noop()),
				notifications.WithDispatcherClock(func() time.Time { return baseTime }),
			)

			n, err := store.Create(ctx, notifications.Notification{UserID: "u1", Type: "risk_alert", Channels: tt.channels})
			require.NoError(t, err)

			got, err := d.Dispatch(ctx, n)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.want, got.DeliveryResults)

			inApp.AssertExpectations(t)
			email.AssertExpectations(t)
		})
	}
}

func TestDispatcher_DeliversConcurrently(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, _, _ := newTestStore(t)

	// Each transport waits for the other, so sequential delivery would deadlock.
	var started atomic.Int32
	release := make(chan struct{})
	wait := func(context.Context, notifications.Notification) error {
		if started.Add(1) == 2 {
			close(release)
		}
		<-release
		return nil
	}

	d := notifications.NewDispatcher(store, []notifications.Transport{
		transportFunc{notifications.ChannelInApp, wait},
		transportFunc{notifications.ChannelEmail, wait},
	}, notifications.WithDispatcherLogger(logger.Noop()))

	n, err := store.Create(ctx, notifications.Notification{
		UserID:   "u1",
		Type:     "risk_alert",
		Channels: []notifications.Channel{notifications.ChannelInApp, notifications.ChannelEmail},
	})
	require.NoError(t, err)

	got, err := d.Dispatch(ctx, n)
	require.NoError(t, err)
	assert.Equal(t, notifications.StatusSent, got.Status)
	require.NotNil(t, got.SentAt)
}

func TestDispatcher_UnknownNotification(t *testing.T) {
	t.Parallel()
	store, _, _ := newTestStore(t)
	d := notifications.NewDispatcher(store, nil, notifications.WithDispatcherLogger(logger.Noop()))

	_, err := d.Dispatch(context.Background(), &notifications.Notification{ID: "missing", Channels: []notifications.Channel{notifications.ChannelInApp}})
	assert.ErrorIs(t, err, notifications.ErrNotificationNotFound)
}

type transportFunc struct {
	ch notifications.Channel
	fn func(context.Context, notifications.Notification) error
}

func (t transportFunc) Channel() notifications.Channel { return t.ch }

func (t transportFunc) Deliver(ctx context.Context, n notifications.Notification) error {
	return t.fn(ctx, n)
}
