package notifyapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/smartnotify/modules/notifyapi"
	"github.com/dmitrymomot/smartnotify/pkg/logger"
	"github.com/dmitrymomot/smartnotify/pkg/notifications"
	"github.com/dmitrymomot/smartnotify/pkg/smartnotify"
)

type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, req smartnotify.Request) (*notifications.Notification, error) {
	args := m.Called(ctx, req)
	n, _ := args.Get(0).(*notifications.Notification)
	return n, args.Error(1)
}

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Get(ctx context.Context, id string) (*notifications.Notification, error) {
	args := m.Called(ctx, id)
	n, _ := args.Get(0).(*notifications.Notification)
	return n, args.Error(1)
}

func (m *MockStore) MarkRead(ctx context.Context, id string) (*notifications.Notification, error) {
	args := m.Called(ctx, id)
	n, _ := args.Get(0).(*notifications.Notification)
	return n, args.Error(1)
}

func (m *MockStore) MarkClicked(ctx context.Context, id string) (*notifications.Notification, error) {
	args := m.Called(ctx, id)
	n, _ := args.Get(0).(*notifications.Notification)
	return n, args.Error(1)
}

type MockState struct {
	mock.Mock
}

func (m *MockState) Refresh(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockState) Snapshot() *smartnotify.Snapshot {
	snap, _ := m.Called().Get(0).(*smartnotify.Snapshot)
	return snap
}

type pendingStub struct{ scheduled, queued int }

func (p pendingStub) Pending() (int, int) { return p.scheduled, p.queued }

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string              `json:"code"`
		Details map[string][]string `json:"details"`
	} `json:"error"`
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func newService(sender *MockSender, store *MockStore, state *MockState, opts ...notifyapi.Option) http.Handler {
	opts = append([]notifyapi.Option{notifyapi.WithLogger(logger.Noop())}, opts...)
	return notifyapi.New(sender, store, state, opts...).Handle()
}

func TestCreateNotification(t *testing.T) {
	t.Parallel()

	t.Run("created", func(t *testing.T) {
		t.Parallel()
		sender := &MockSender{}
		want := smartnotify.Request{
			Type:            "risk_alert",
			RecipientUserID: "u1",
			Title:           "Vendor risk raised",
			Priority:        notifications.PriorityHigh,
			Context:         map[string]any{"riskLevel": "high"},
		}
		sender.On("Send", mock.Anything, want).Return(&notifications.Notification{
			ID: "n1", UserID: "u1", Type: "risk_alert", Status: notifications.StatusSent,
		}, nil).Once()

		h := newService(sender, &MockStore{}, &MockState{})
		rec, env := do(t, h, http.MethodPost, "/v1/notifications",
			`{"type":"risk_alert","recipient_user_id":"u1","title":"Vendor risk raised","priority":"high","context":{"riskLevel":"high"}}`)

		assert.Equal(t, http.StatusCreated, rec.Code)
		var n notifications.Notification
		require.NoError(t, json.Unmarshal(env.Data, &n))
		assert.Equal(t, "n1", n.ID)
		assert.Equal(t, notifications.StatusSent, n.Status)
		sender.AssertExpectations(t)
	})

	t.Run("validation details", func(t *testing.T) {
		t.Parallel()
		h := notifyapi.New(
			mustEngine(t), &MockStore{}, &MockState{},
			notifyapi.WithLogger(logger.Noop()),
		).Handle()

		rec, env := do(t, h, http.MethodPost, "/v1/notifications", `{"type":"risk_alert","priority":"urgent"}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "validation_error", env.Error.Code)
		assert.Contains(t, env.Error.Details, "recipient_user_id")
		assert.Contains(t, env.Error.Details, "title")
		assert.Contains(t, env.Error.Details, "priority")
	})

	t.Run("unknown field", func(t *testing.T) {
		t.Parallel()
		h := newService(&MockSender{}, &MockStore{}, &MockState{})
		rec, env := do(t, h, http.MethodPost, "/v1/notifications", `{"type":"x","bogus":true}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "bad_request", env.Error.Code)
	})

	t.Run("fallback failed", func(t *testing.T) {
		t.Parallel()
		sender := &MockSender{}
		sender.On("Send", mock.Anything, mock.Anything).Return(nil, errors.Join(smartnotify.ErrFallbackFailed, errors.New("db down")))

		h := newService(sender, &MockStore{}, &MockState{})
		rec, env := do(t, h, http.MethodPost, "/v1/notifications", `{"type":"risk_alert","recipient_user_id":"u1","title":"t"}`)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "service_unavailable", env.Error.Code)
		assert.NotContains(t, rec.Body.String(), "db down")
	})
}

// mustEngine builds a real engine over memory storage, so validation runs
// through the engine's own validator.
func mustEngine(t *testing.T) *smartnotify.Engine {
	t.Helper()
	store := notifications.NewStore(notifications.NewMemoryStorage())
	dispatcher := notifications.NewDispatcher(store, nil, notifications.WithDispatcherLogger(logger.Noop()))
	cfg := smartnotify.DefaultConfig()
	state, err := smartnotify.NewState(store, cfg, smartnotify.WithStateLogger(logger.Noop()))
	require.NoError(t, err)
	scheduler := smartnotify.NewBatchScheduler(store, dispatcher, smartnotify.WithSchedulerLogger(logger.Noop()))
	engine, err := smartnotify.New(cfg, state, store, dispatcher, scheduler, smartnotify.WithLogger(logger.Noop()))
	require.NoError(t, err)
	return engine
}

func TestAcknowledgements(t *testing.T) {
	t.Parallel()

	readAt := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name       string
		method     string
		path       string
		setup      func(*MockStore)
		wantStatus int
		wantCode   string
	}{
		{
			name:   "get",
			method: http.MethodGet,
			path:   "/v1/notifications/n1",
			setup: func(s *MockStore) {
				s.On("Get", mock.Anything, "n1").Return(&notifications.Notification{ID: "n1"}, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:   "get missing",
			method: http.MethodGet,
			path:   "/v1/notifications/nope",
			setup: func(s *MockStore) {
				s.On("Get", mock.Anything, "nope").Return(nil, notifications.ErrNotificationNotFound)
			},
			wantStatus: http.StatusNotFound,
			wantCode:   "not_found",
		},
		{
			name:   "read",
			method: http.MethodPost,
			path:   "/v1/notifications/n1/read",
			setup: func(s *MockStore) {
				s.On("MarkRead", mock.Anything, "n1").Return(&notifications.Notification{ID: "n1", ReadAt: &readAt}, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:   "click",
			method: http.MethodPost,
			path:   "/v1/notifications/n1/click",
			setup: func(s *MockStore) {
				s.On("MarkClicked", mock.Anything, "n1").Return(&notifications.Notification{ID: "n1", ReadAt: &readAt, ClickedAt: &readAt}, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:   "click storage failure",
			method: http.MethodPost,
			path:   "/v1/notifications/n1/click",
			setup: func(s *MockStore) {
				s.On("MarkClicked", mock.Anything, "n1").Return(nil, errors.Join(notifications.ErrFailedToUpdate, errors.New("timeout")))
			},
			wantStatus: http.StatusInternalServerError,
			wantCode:   "internal_server_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store := &MockStore{}
			tt.setup(store)

			rec, env := do(t, newService(&MockSender{}, store, &MockState{}), tt.method, tt.path, "")
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantCode != "" {
				require.NotNil(t, env.Error)
				assert.Equal(t, tt.wantCode, env.Error.Code)
				return
			}
			var n notifications.Notification
			require.NoError(t, json.Unmarshal(env.Data, &n))
			assert.Equal(t, "n1", n.ID)
			store.AssertExpectations(t)
		})
	}
}

func TestEngineRoutes(t *testing.T) {
	t.Parallel()

	models, err := smartnotify.DefaultModels()
	require.NoError(t, err)
	loadedAt := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	snap := &smartnotify.Snapshot{
		Profiles: smartnotify.BuildProfiles(nil, time.UTC),
		Patterns: smartnotify.BuildPatterns(nil, time.UTC, 3),
		Models:   models,
		LoadedAt: loadedAt,
	}

	t.Run("state before load", func(t *testing.T) {
		t.Parallel()
		state := &MockState{}
		state.On("Snapshot").Return(nil)

		rec, env := do(t, newService(&MockSender{}, &MockStore{}, state, notifyapi.WithPendingCounter(pendingStub{2, 3})),
			http.MethodGet, "/v1/engine/state", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"loaded":false,"profiles":0,"patterns":0,"models":[],"scheduled":2,"queued":3}`, string(env.Data))
	})

	t.Run("refresh", func(t *testing.T) {
		t.Parallel()
		state := &MockState{}
		state.On("Refresh", mock.Anything).Return(nil).Once()
		state.On("Snapshot").Return(snap)

		rec, env := do(t, newService(&MockSender{}, &MockStore{}, state), http.MethodPost, "/v1/engine/refresh", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		var got notifyapi.EngineState
		require.NoError(t, json.Unmarshal(env.Data, &got))
		assert.True(t, got.Loaded)
		require.NotNil(t, got.LoadedAt)
		assert.True(t, loadedAt.Equal(*got.LoadedAt))
		assert.Equal(t, models.Types(), got.Models)
		state.AssertExpectations(t)
	})

	t.Run("refresh failure", func(t *testing.T) {
		t.Parallel()
		state := &MockState{}
		state.On("Refresh", mock.Anything).Return(errors.Join(smartnotify.ErrStateLoad, errors.New("db down")))

		rec, env := do(t, newService(&MockSender{}, &MockStore{}, state), http.MethodPost, "/v1/engine/refresh", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "service_unavailable", env.Error.Code)
	})
}

func TestStream(t *testing.T) {
	t.Parallel()

	t.Run("disabled without subscriber", func(t *testing.T) {
		t.Parallel()
		rec, _ := do(t, newService(&MockSender{}, &MockStore{}, &MockState{}), http.MethodGet, "/v1/users/u1/stream", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("streams hub notifications", func(t *testing.T) {
		t.Parallel()
		hub := notifications.NewHub(4)
		var gotUser string
		subscribe := func(ctx context.Context, userID string) (<-chan notifications.Notification, error) {
			gotUser = userID
			ch := hub.Subscribe(ctx, userID)
			require.NoError(t, hub.Publish(ctx, notifications.Notification{ID: "n1", UserID: userID, Title: "Hello"}))
			require.NoError(t, hub.Close())
			return ch, nil
		}

		rec, _ := do(t, newService(&MockSender{}, &MockStore{}, &MockState{}, notifyapi.WithSubscriber(subscribe)),
			http.MethodGet, "/v1/users/u1/stream", "")
		assert.Equal(t, "u1", gotUser)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Body.String(), "event: notification\ndata: {\"id\":\"n1\"")
	})

	t.Run("subscribe failure", func(t *testing.T) {
		t.Parallel()
		subscribe := func(context.Context, string) (<-chan notifications.Notification, error) {
			return nil, errors.New("redis unavailable")
		}
		rec, env := do(t, newService(&MockSender{}, &MockStore{}, &MockState{}, notifyapi.WithSubscriber(subscribe)),
			http.MethodGet, "/v1/users/u1/stream", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		require.NotNil(t, env.Error)
	})
}
