package notifyapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/smartnotify/pkg/handler"
	"github.com/dmitrymomot/smartnotify/pkg/notifications"
	"github.com/dmitrymomot/smartnotify/pkg/smartnotify"
)

// Sender submits requests. *smartnotify.Engine satisfies it.
type Sender interface {
	Send(ctx context.Context, req smartnotify.Request) (*notifications.Notification, error)
}

// Store is the acknowledgement side of the notification store.
// *notifications.Store satisfies it.
type Store interface {
	Get(ctx context.Context, id string) (*notifications.Notification, error)
	MarkRead(ctx context.Context, id string) (*notifications.Notification, error)
	MarkClicked(ctx context.Context, id string) (*notifications.Notification, error)
}

// StateManager exposes the engine state lifecycle. *smartnotify.State satisfies it.
type StateManager interface {
	Refresh(ctx context.Context) error
	Snapshot() *smartnotify.Snapshot
}

// PendingCounter reports scheduler backlog. *smartnotify.BatchScheduler satisfies it.
type PendingCounter interface {
	Pending() (scheduled, queued int)
}

// SubscribeFunc opens a stream of in-app notifications for userID that ends
// when ctx is done.
type SubscribeFunc func(ctx context.Context, userID string) (<-chan notifications.Notification, error)

// Service serves the notification API.
type Service struct {
	sender    Sender
	store     Store
	state     StateManager
	pending   PendingCounter
	subscribe SubscribeFunc
	logger    *slog.Logger
	onError   handler.ErrorHandler
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSubscriber enables the in-app event stream route.
func WithSubscriber(fn SubscribeFunc) Option {
	return func(s *Service) {
		s.subscribe = fn
	}
}

// WithPendingCounter adds scheduler backlog to the engine state route.
func WithPendingCounter(p PendingCounter) Option {
	return func(s *Service) {
		s.pending = p
	}
}

// New creates a Service.
func New(sender Sender, store Store, state StateManager, opts ...Option) *Service {
	s := &Service{
		sender: sender,
		store:  store,
		state:  state,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.onError = handler.DefaultErrorHandler(s.logger)
	return s
}

// Handle returns the API router.
func (s *Service) Handle() http.Handler {
	r := chi.NewRouter()
	errs := handler.WithErrorHandler(s.onError)
	path := handler.BindPath(chi.URLParam)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/notifications", func(r chi.Router) {
			r.Post("/", handler.Wrap(s.create, handler.WithBinders(handler.BindJSON()), errs))
			r.Get("/{id}", handler.Wrap(s.get, handler.WithBinders(path), errs))
			r.Post("/{id}/read", handler.Wrap(s.markRead, handler.WithBinders(path), errs))
			r.Post("/{id}/click", handler.Wrap(s.markClicked, handler.WithBinders(path), errs))
		})
		if s.subscribe != nil {
			r.Get("/users/{user_id}/stream", handler.Wrap(s.stream, handler.WithBinders(path), errs))
		}
		r.Get("/engine/state", handler.Wrap(s.engineState, errs))
		r.Post("/engine/refresh", handler.Wrap(s.refresh, errs))
	})
	return r
}

type idRequest struct {
	ID string `path:"id"`
}

type userRequest struct {
	UserID string `path:"user_id"`
}

func (s *Service) create(r *http.Request, req smartnotify.Request) handler.Response {
	n, err := s.sender.Send(r.Context(), req)
	if err != nil {
		return handler.Fail(mapError(err))
	}
	return handler.JSON(n, handler.WithJSONStatus(http.StatusCreated))
}

func (s *Service) get(r *http.Request, req idRequest) handler.Response {
	n, err := s.store.Get(r.Context(), req.ID)
	if err != nil {
		return handler.Fail(mapError(err))
	}
	return handler.JSON(n)
}

func (s *Service) markRead(r *http.Request, req idRequest) handler.Response {
	n, err := s.store.MarkRead(r.Context(), req.ID)
	if err != nil {
		return handler.Fail(mapError(err))
	}
	return handler.JSON(n)
}

func (s *Service) markClicked(r *http.Request, req idRequest) handler.Response {
	n, err := s.store.MarkClicked(r.Context(), req.ID)
	if err != nil {
		return handler.Fail(mapError(err))
	}
	return handler.JSON(n)
}

func (s *Service) stream(r *http.Request, req userRequest) handler.Response {
	events, err := s.subscribe(r.Context(), req.UserID)
	if err != nil {
		return handler.Fail(errors.Join(handler.ErrServiceUnavailable, fmt.Errorf("subscribe %s: %w", req.UserID, err)))
	}
	return handler.EventStream("notification", events)
}

// EngineState is the body of the engine state routes.
type EngineState struct {
	Loaded    bool       `json:"loaded"`
	LoadedAt  *time.Time `json:"loaded_at,omitempty"`
	Profiles  int        `json:"profiles"`
	Patterns  int        `json:"patterns"`
	Models    []string   `json:"models"`
	Scheduled int        `json:"scheduled"`
	Queued    int        `json:"queued"`
}

func (s *Service) engineState(*http.Request, struct{}) handler.Response {
	return handler.JSON(s.describe())
}

func (s *Service) refresh(r *http.Request, _ struct{}) handler.Response {
	if err := s.state.Refresh(r.Context()); err != nil {
		return handler.Fail(errors.Join(handler.ErrServiceUnavailable, err))
	}
	return handler.JSON(s.describe())
}

func (s *Service) describe() EngineState {
	out := EngineState{Models: []string{}}
	if snap := s.state.Snapshot(); snap != nil {
		loadedAt := snap.LoadedAt
		out.Loaded = true
		out.LoadedAt = &loadedAt
		out.Profiles = snap.Profiles.Len()
		out.Patterns = snap.Patterns.Len()
		if snap.Models != nil {
			out.Models = snap.Models.Types()
		}
	}
	if s.pending != nil {
		out.Scheduled, out.Queued = s.pending.Pending()
	}
	return out
}

// mapError attaches the HTTP status for domain errors. Validation details
// inside err are kept so the response lists the failing fields.
func mapError(err error) error {
	switch {
	case errors.Is(err, smartnotify.ErrInvalidRequest):
		if verr, ok := handler.ValidationErrorFrom(err); ok {
			return verr
		}
		return errors.Join(handler.ErrUnprocessableEntity, err)
	case errors.Is(err, notifications.ErrNotificationNotFound):
		return errors.Join(handler.ErrNotFound, err)
	case errors.Is(err, smartnotify.ErrFallbackFailed):
		return errors.Join(handler.ErrServiceUnavailable, err)
	}
	return err
}
