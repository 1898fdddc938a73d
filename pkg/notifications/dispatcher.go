package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/smartnotify/pkg/logger"
)

// Dispatcher delivers a stored notification over each of its channels and
// records the per-channel outcome.
type Dispatcher struct {
	store      *Store
	transports map[Channel]Transport
	logger     *slog.Logger
	now        func() time.Time
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger sets the logger for the Dispatcher.
func WithDispatcherLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithDispatcherClock overrides the time source used for SentAt.
func WithDispatcherClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// NewDispatcher creates a dispatcher. A later transport for the same channel
// replaces an earlier one; nil transports are ignored.
func NewDispatcher(store *Store, transports []Transport, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		store:      store,
		transports: make(map[Channel]Transport, len(transports)),
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, t := range transports {
		if t != nil {
			d.transports[t.Channel()] = t
		}
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch delivers n on all its channels concurrently. One channel's failure
// never affects another. The returned record carries the merged results.
func (d *Dispatcher) Dispatch(ctx context.Context, n *Notification) (*Notification, error) {
	var (
		mu      sync.Mutex
		results = make(map[Channel]DeliveryResult, len(n.Channels))
		g       errgroup.Group
	)

	for _, ch := range n.Channels {
		g.Go(func() error {
			res := d.deliver(ctx, ch, *n)
			mu.Lock()
			results[ch] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	updated, err := d.store.RecordDeliveryResult(ctx, n.ID, results, d.now())
	if err != nil {
		d.logger.LogAttrs(ctx, slog.LevelError, "failed to record delivery result",
			logger.NotificationID(n.ID),
			logger.UserID(n.UserID),
			logger.NotificationType(n.Type),
			logger.Error(err),
		)
		return nil, err
	}
	return updated, nil
}

func (d *Dispatcher) deliver(ctx context.Context, ch Channel, n Notification) (res DeliveryResult) {
	t, ok := d.transports[ch]
	if !ok {
		return DeliveryResult{Error: ErrNoTransport.Error()}
	}

	defer func() {
		if r := recover(); r != nil {
			res = DeliveryResult{Error: fmt.Sprintf("transport panic: %v", r)}
			d.logFailure(ctx, ch, n, fmt.Errorf("%s", res.Error))
		}
	}()

	if err := t.Deliver(ctx, n); err != nil {
		d.logFailure(ctx, ch, n, err)
		return DeliveryResult{Error: err.Error()}
	}
	return DeliveryResult{Success: true}
}

func (d *Dispatcher) logFailure(ctx context.Context, ch Channel, n Notification, err error) {
	d.logger.LogAttrs(ctx, slog.LevelWarn, "channel delivery failed",
		logger.NotificationID(n.ID),
		logger.UserID(n.UserID),
		logger.NotificationType(n.Type),
		logger.Channel(string(ch)),
		logger.Stage("deliver"),
		logger.Error(err),
	)
}
