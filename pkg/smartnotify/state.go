package smartnotify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dmitrymomot/smartnotify/pkg/logger"
	"github.com/dmitrymomot/smartnotify/pkg/notifications"
)

// InteractionSource provides historical interactions within a window
// ending now. *notifications.Store satisfies it.
type InteractionSource interface {
	Interactions(ctx context.Context, window time.Duration) ([]notifications.Interaction, error)
}

// Snapshot is one immutable generation of engine state.
type Snapshot struct {
	Profiles *ProfileStore
	Patterns *PatternCatalog
	Models   *ModelRegistry
	LoadedAt time.Time
}

// State holds the current Snapshot. Load and Refresh build a new snapshot
// and swap it in atomically, so readers never observe a partial update.
type State struct {
	source     InteractionSource
	loadModels func() (*ModelRegistry, error)
	window     time.Duration
	loc        *time.Location
	minSamples int
	logger     *slog.Logger
	now        func() time.Time

	current atomic.Pointer[Snapshot]
}

// StateOption configures a State.
type StateOption func(*State)

// WithModelLoader overrides how priority models are loaded. Defaults to the
// embedded models.
func WithModelLoader(fn func() (*ModelRegistry, error)) StateOption {
	return func(s *State) {
		if fn != nil {
			s.loadModels = fn
		}
	}
}

// WithStateLogger sets the logger.
func WithStateLogger(l *slog.Logger) StateOption {
	return func(s *State) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStateClock overrides the time source recorded in LoadedAt.
func WithStateClock(now func() time.Time) StateOption {
	return func(s *State) {
		if now != nil {
			s.now = now
		}
	}
}

// NewState creates an unloaded State. Call Load before serving to leave
// degraded mode.
func NewState(source InteractionSource, cfg Config, opts ...StateOption) (*State, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	s := &State{
		source:     source,
		loadModels: DefaultModels,
		window:     cfg.HistoryWindow,
		loc:        loc,
		minSamples: cfg.PatternMinSamples,
		logger:     slog.Default(),
		now:        time.Now,
	}
	if cfg.ModelsFile != "" {
		path := cfg.ModelsFile
		s.loadModels = func() (*ModelRegistry, error) { return LoadModels(path) }
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Load builds the first snapshot. It is equivalent to Refresh and exists to
// make start-up explicit.
func (s *State) Load(ctx context.Context) error {
	return s.Refresh(ctx)
}

// Refresh rebuilds profiles, patterns and models. On failure the previous
// snapshot, if any, stays in place.
func (s *State) Refresh(ctx context.Context) error {
	start := s.now()

	models, err := s.loadModels()
	if err != nil {
		return s.fail(ctx, "models", err)
	}
	if s.source == nil {
		return s.fail(ctx, "interactions", errors.New("no interaction source configured"))
	}
	items, err := s.source.Interactions(ctx, s.window)
	if err != nil {
		return s.fail(ctx, "interactions", err)
	}

	snap := &Snapshot{
		Profiles: BuildProfiles(items, s.loc),
		Patterns: BuildPatterns(items, s.loc, s.minSamples),
		Models:   models,
		LoadedAt: start,
	}
	s.current.Store(snap)

	s.logger.LogAttrs(ctx, slog.LevelInfo, "engine state loaded",
		logger.Component("state"),
		logger.Count(len(items)),
		slog.Int("profiles", snap.Profiles.Len()),
		slog.Int("patterns", snap.Patterns.Len()),
		slog.Int("models", len(models.Types())),
		logger.Duration(s.now().Sub(start)),
	)
	return nil
}

// Snapshot returns the current snapshot, or nil while unloaded.
func (s *State) Snapshot() *Snapshot {
	return s.current.Load()
}

// Loaded reports whether a snapshot is available.
func (s *State) Loaded() bool {
	return s.current.Load() != nil
}

func (s *State) fail(ctx context.Context, stage string, err error) error {
	s.logger.LogAttrs(ctx, slog.LevelError, "failed to load engine state",
		logger.Component("state"),
		logger.Stage(stage),
		slog.Bool("keeping_previous", s.Loaded()),
		logger.Error(err),
	)
	return errors.Join(ErrStateLoad, fmt.Errorf("%s: %w", stage, err))
}
