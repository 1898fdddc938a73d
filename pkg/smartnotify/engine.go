package smartnotify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/dmitrymomot/smartnotify/pkg/logger"
	"github.com/dmitrymomot/smartnotify/pkg/notifications"
)

// Fallback reasons recorded in Metadata.FallbackReason.
const (
	FallbackStateNotLoaded = "state_not_loaded"
	FallbackStageFailed    = "stage_failed"
)

// StageError identifies the pipeline stage that failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return e.Stage + ": " + e.Err.Error() }
func (e *StageError) Unwrap() error { return e.Err }

// Engine scores, schedules, rate limits, personalizes and routes notifications.
type Engine struct {
	cfg        Config
	state      *State
	store      NotificationStore
	dispatcher Dispatcher
	scheduler  *BatchScheduler
	limiter    *RateLimiter
	locker     Locker
	calc       PriorityCalculator
	timing     TimingOptimizer
	batch      map[notifications.Priority]bool
	validate   *validator.Validate
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLocker sets the admission locker. Defaults to a MemoryLocker; use a
// RedisLocker when several processes share a store.
func WithLocker(l Locker) Option {
	return func(e *Engine) {
		if l != nil {
			e.locker = l
		}
	}
}

// New creates an engine. state may be unloaded, in which case every request
// takes the basic path until State.Load succeeds.
func New(cfg Config, state *State, store NotificationStore, dispatcher Dispatcher, scheduler *BatchScheduler, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if state == nil || store == nil || dispatcher == nil || scheduler == nil {
		return nil, errors.Join(ErrInvalidConfig, errors.New("state, store, dispatcher and scheduler are required"))
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	batch := make(map[notifications.Priority]bool, len(cfg.BatchLevels))
	for _, l := range cfg.BatchLevels {
		batch[notifications.Priority(l)] = true
	}

	e := &Engine{
		cfg:        cfg,
		state:      state,
		store:      store,
		dispatcher: dispatcher,
		scheduler:  scheduler,
		limiter:    NewRateLimiter(store, cfg.MaxPerHour, cfg.MaxPerDay, loc),
		locker:     NewMemoryLocker(),
		calc:       PriorityCalculator{Thresholds: cfg.Thresholds, Location: loc},
		timing:     TimingOptimizer{QuietStart: cfg.QuietHoursStart, QuietEnd: cfg.QuietHoursEnd, Location: loc},
		batch:      batch,
		validate:   newRequestValidator(),
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// submission carries one request through the pipeline stages.
type submission struct {
	req       Request
	now       time.Time
	snap      *Snapshot
	profile   *UserProfile
	priority  PriorityResult
	timing    TimingDecision
	limit     RateLimitResult
	admission Admission
	content   Personalization
	channels  []notifications.Channel
	release   func(context.Context) error
	stored    *notifications.Notification
}

type stage struct {
	name string
	run  func(ctx context.Context, s *submission) error
}

func (e *Engine) stages() []stage {
	return []stage{
		{"priority", e.scorePriority},
		{"timing", e.optimizeTiming},
		{"rate_limit", e.admit},
		{"personalize", e.personalize},
		{"channels", e.selectChannels},
		{"persist", e.persist},
	}
}

// Send processes req and returns the persisted notification. Any stage
// failure, including a panic, falls back to a basic in-app notification
// delivered immediately. An error is returned only for an invalid request
// or when even the basic notification could not be stored.
func (e *Engine) Send(ctx context.Context, req Request) (*notifications.Notification, error) {
	if err := e.validate.StructCtx(ctx, req); err != nil {
		return nil, errors.Join(ErrInvalidRequest, err)
	}

	now := e.now()
	snap := e.state.Snapshot()
	if snap == nil {
		e.logger.LogAttrs(ctx, slog.LevelWarn, "engine state not loaded, using basic delivery",
			logger.UserID(req.RecipientUserID),
			logger.NotificationType(req.Type),
			logger.Stage("state"),
		)
		return e.sendBasic(ctx, req, FallbackStateNotLoaded)
	}

	sub := &submission{req: req, now: now, snap: snap}
	if err := e.runStages(ctx, sub); err != nil {
		stageName := "unknown"
		var se *StageError
		if errors.As(err, &se) {
			stageName = se.Stage
		}
		e.logger.LogAttrs(ctx, slog.LevelError, "notification pipeline failed, using basic delivery",
			logger.UserID(req.RecipientUserID),
			logger.NotificationType(req.Type),
			logger.Stage(stageName),
			logger.Error(err),
		)
		return e.sendBasic(ctx, req, FallbackStageFailed+":"+stageName)
	}

	return e.route(ctx, sub.stored), nil
}

// runStages is the single recovery boundary of the pipeline.
func (e *Engine) runStages(ctx context.Context, sub *submission) (err error) {
	current := ""
	defer func() {
		if r := recover(); r != nil {
			err = &StageError{Stage: current, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	defer e.unlock(ctx, sub)

	for _, st := range e.stages() {
		current = st.name
		if err := st.run(ctx, sub); err != nil {
			return &StageError{Stage: st.name, Err: err}
		}
	}
	return nil
}

func (e *Engine) scorePriority(_ context.Context, s *submission) error {
	s.profile, _ = s.snap.Profiles.Get(s.req.RecipientUserID)
	s.priority = e.calc.Calculate(s.snap, s.req, s.now)
	return nil
}

func (e *Engine) optimizeTiming(_ context.Context, s *submission) error {
	s.timing = e.timing.Optimize(s.snap, s.req, s.priority, s.now)
	return nil
}

// admit takes the per-user admission lock. It stays held until persist has
// stored the notification, so the count it checks includes every earlier one.
func (e *Engine) admit(ctx context.Context, s *submission) error {
	release, err := e.locker.Acquire(ctx, s.req.RecipientUserID)
	if err != nil {
		return err
	}
	s.release = release

	s.limit, err = e.limiter.Check(ctx, s.req.RecipientUserID, s.now)
	if err != nil {
		return err
	}
	s.admission = e.limiter.Resolve(s.limit, s.priority.Level, s.now)
	return nil
}

func (e *Engine) personalize(_ context.Context, s *submission) error {
	s.content = Personalize(s.profile, s.req, s.priority.Level)
	return nil
}

func (e *Engine) selectChannels(_ context.Context, s *submission) error {
	s.channels = SelectChannels(s.profile, s.priority.Level, e.cfg.SMSEnabled)
	return nil
}

func (e *Engine) persist(ctx context.Context, s *submission) error {
	scheduledFor, reason := s.timing.ScheduledFor, s.timing.Reason
	if at := s.admission.RescheduleTo; at != nil {
		if scheduledFor == nil || !scheduledFor.After(*at) {
			scheduledFor, reason = at, s.admission.Reason
		}
	}

	n := notifications.Notification{
		UserID:      s.req.RecipientUserID,
		Type:        s.req.Type,
		Title:       s.content.Title,
		Message:     s.req.Message,
		Priority:    s.priority.Level,
		Score:       s.priority.Score,
		Channels:    s.channels,
		Context:     maps.Clone(s.req.Context),
		AIProcessed: true,
		Metadata: notifications.Metadata{
			TimingReason:        reason,
			RateLimited:         s.admission.RescheduleTo != nil,
			RateLimitBypassed:   s.admission.Bypassed,
			IncludeDetails:      s.content.IncludeDetails,
			AddUrgencyIndicator: s.content.AddUrgencyIndicator,
			Confidence:          s.priority.Confidence,
			FactorBreakdown:     s.priority.FactorBreakdown,
		},
		ScheduledFor: scheduledFor,
	}

	stored, err := e.store.Create(ctx, n)
	if err != nil {
		return err
	}
	s.stored = stored
	return nil
}

func (e *Engine) unlock(ctx context.Context, s *submission) {
	if s.release == nil {
		return
	}
	release := s.release
	s.release = nil
	if err := release(context.WithoutCancel(ctx)); err != nil {
		e.logger.LogAttrs(ctx, slog.LevelWarn, "failed to release admission lock",
			logger.UserID(s.req.RecipientUserID),
			logger.Stage("rate_limit"),
			logger.Error(err),
		)
	}
}

// route hands a stored notification to the scheduler or delivers it now.
func (e *Engine) route(ctx context.Context, n *notifications.Notification) *notifications.Notification {
	switch {
	case n.Status == notifications.StatusScheduled && n.ScheduledFor != nil:
		e.scheduler.Schedule(n.ID, *n.ScheduledFor)
		e.logger.LogAttrs(ctx, slog.LevelDebug, "notification scheduled",
			logger.NotificationID(n.ID),
			logger.UserID(n.UserID),
			logger.NotificationType(n.Type),
			logger.ScheduledFor(*n.ScheduledFor),
			logger.Reason(n.Metadata.TimingReason),
		)
		return n
	case e.batch[n.Priority] && batchable(n):
		e.scheduler.Enqueue(*n)
		return n
	}
	return e.deliver(ctx, n)
}

// batchable reports whether n may wait for a digest sweep. Critical and
// rate-limit-bypassing notifications never wait.
func batchable(n *notifications.Notification) bool {
	return n.Priority != notifications.PriorityCritical &&
		n.Metadata.TimingReason != ReasonCriticalPriority &&
		!n.Metadata.RateLimitBypassed
}

func (e *Engine) deliver(ctx context.Context, n *notifications.Notification) (out *notifications.Notification) {
	out = n
	defer func() {
		if r := recover(); r != nil {
			e.logDeliveryError(ctx, n, fmt.Errorf("panic: %v", r))
		}
	}()

	sent, err := e.dispatcher.Dispatch(ctx, n)
	if err != nil {
		e.logDeliveryError(ctx, n, err)
		return n
	}
	return sent
}

func (e *Engine) logDeliveryError(ctx context.Context, n *notifications.Notification, err error) {
	e.logger.LogAttrs(ctx, slog.LevelError, "failed to deliver notification",
		logger.NotificationID(n.ID),
		logger.UserID(n.UserID),
		logger.NotificationType(n.Type),
		logger.Stage("deliver"),
		logger.Error(err),
	)
}

// sendBasic stores and delivers a notification without scoring, timing or
// personalization: fallback score, in-app only, immediate.
func (e *Engine) sendBasic(ctx context.Context, req Request, reason string) (out *notifications.Notification, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, errors.Join(ErrFallbackFailed, fmt.Errorf("panic: %v", r))
		}
	}()

	level := req.Priority
	if !level.Valid() {
		level = notifications.PriorityMedium
	}
	basic := notifications.Notification{
		UserID:   req.RecipientUserID,
		Type:     req.Type,
		Title:    req.Title,
		Message:  req.Message,
		Priority: level,
		Score:    FallbackScore(level),
		Channels: []notifications.Channel{notifications.ChannelInApp},
		Context:  maps.Clone(req.Context),
		Metadata: notifications.Metadata{
			TimingReason:   ReasonDefaultImmediate,
			FallbackReason: reason,
		},
	}
	created, err := e.store.Create(ctx, basic)
	if errors.Is(err, notifications.ErrInvalidContextData) {
		e.logger.LogAttrs(ctx, slog.LevelWarn, "dropping context data of basic notification",
			logger.UserID(req.RecipientUserID),
			logger.NotificationType(req.Type),
			logger.Stage("fallback"),
			logger.Error(err),
		)
		basic.Context = nil
		basic.Metadata.ContextDropped = true
		created, err = e.store.Create(ctx, basic)
	}
	if err != nil {
		e.logger.LogAttrs(ctx, slog.LevelError, "failed to store basic notification",
			logger.UserID(req.RecipientUserID),
			logger.NotificationType(req.Type),
			logger.Stage("fallback"),
			logger.Error(err),
		)
		return nil, errors.Join(ErrFallbackFailed, err)
	}
	return e.deliver(ctx, created), nil
}
