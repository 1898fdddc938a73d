package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Publisher pushes an in-app notification to connected clients.
type Publisher interface {
	Publish(ctx context.Context, n Notification) error
}

// InAppTransport delivers to the in-app inbox. The persisted record is the
// inbox entry, so delivery succeeds without a publisher; with one, connected
// clients are notified in real time.
type InAppTransport struct {
	pub Publisher
}

// NewInAppTransport creates the in-app transport. pub may be nil.
func NewInAppTransport(pub Publisher) *InAppTransport {
	return &InAppTransport{pub: pub}
}

func (t *InAppTransport) Channel() Channel { return ChannelInApp }

func (t *InAppTransport) Deliver(ctx context.Context, n Notification) error {
	if t.pub == nil {
		return nil
	}
	return t.pub.Publish(ctx, n)
}

// Hub is an in-memory per-user fan-out for a single process.
// Slow subscribers miss messages instead of blocking publishers.
type Hub struct {
	mu         sync.RWMutex
	subs       map[string]map[chan Notification]struct{}
	bufferSize int
	closed     bool
}

// NewHub creates a hub. Each subscriber gets a buffer of bufferSize (min 1).
func NewHub(bufferSize int) *Hub {
	return &Hub{
		subs:       make(map[string]map[chan Notification]struct{}),
		bufferSize: max(bufferSize, 1),
	}
}

// Subscribe returns a channel receiving userID's notifications until ctx is
// cancelled or the hub is closed, after which the channel is closed.
func (h *Hub) Subscribe(ctx context.Context, userID string) <-chan Notification {
	ch := make(chan Notification, h.bufferSize)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		close(ch)
		return ch
	}
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[chan Notification]struct{})
	}
	h.subs[userID][ch] = struct{}{}

	if ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			h.unsubscribe(userID, ch)
		}()
	}

	return ch
}

// Publish sends n to every subscriber of n.UserID without blocking.
func (h *Hub) Publish(_ context.Context, n Notification) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs[n.UserID] {
		select {
		case ch <- n.Clone():
		default:
		}
	}
	return nil
}

// Subscribers returns the number of active subscriptions for userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

// Close closes every subscription. Safe to call more than once.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	for userID, set := range h.subs {
		for ch := range set {
			close(ch)
		}
		delete(h.subs, userID)
	}
	return nil
}

func (h *Hub) unsubscribe(userID string, ch chan Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.subs[userID]
	if !ok {
		return
	}
	if _, ok := set[ch]; !ok {
		return
	}
	delete(set, ch)
	close(ch)
	if len(set) == 0 {
		delete(h.subs, userID)
	}
}

// DefaultRedisChannelPrefix prefixes per-user Pub/Sub channels.
const DefaultRedisChannelPrefix = "notifications:"

// RedisPublisher publishes in-app notifications over Redis Pub/Sub so every
// process serving a user's connections receives them.
type RedisPublisher struct {
	client redis.UniversalClient
	prefix string
}

// RedisPublisherOption configures a RedisPublisher.
type RedisPublisherOption func(*RedisPublisher)

// WithChannelPrefix overrides DefaultRedisChannelPrefix.
func WithChannelPrefix(prefix string) RedisPublisherOption {
	return func(p *RedisPublisher) {
		p.prefix = prefix
	}
}

// NewRedisPublisher creates a publisher on client.
func NewRedisPublisher(client redis.UniversalClient, opts ...RedisPublisherOption) *RedisPublisher {
	p := &RedisPublisher{client: client, prefix: DefaultRedisChannelPrefix}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ChannelName is the Pub/Sub channel carrying userID's notifications.
func (p *RedisPublisher) ChannelName(userID string) string {
	return p.prefix + userID
}

func (p *RedisPublisher) Publish(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := p.client.Publish(ctx, p.ChannelName(n.UserID), payload).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Subscribe relays userID's notifications from Redis until ctx is cancelled.
// Malformed payloads are skipped.
func (p *RedisPublisher) Subscribe(ctx context.Context, userID string) (<-chan Notification, error) {
	ps := p.client.Subscribe(ctx, p.ChannelName(userID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	out := make(chan Notification)
	go func() {
		defer close(out)
		defer ps.Close()

		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var n Notification
				if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
					continue
				}
				select {
				case out <- n:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
