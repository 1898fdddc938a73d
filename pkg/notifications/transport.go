package notifications

import (
	"context"
	"fmt"
	"strings"
)

// Transport delivers a notification over one channel.
type Transport interface {
	Channel() Channel
	Deliver(ctx context.Context, n Notification) error
}

// AddressResolver returns the destination address (email, phone) for n.
type AddressResolver func(ctx context.Context, n Notification) (string, error)

// Context keys read by the default address resolvers.
const (
	ContextKeyRecipientEmail = "recipientEmail"
	ContextKeyRecipientPhone = "recipientPhone"
)

// ContextAddress resolves the address from a string value in the
// notification context data.
func ContextAddress(key string) AddressResolver {
	return func(_ context.Context, n Notification) (string, error) {
		v, ok := n.Context[key]
		if !ok || v == nil {
			return "", fmt.Errorf("%w: %s missing from context", ErrNoAddress, key)
		}
		s, ok := v.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return "", fmt.Errorf("%w: %s is not a non-empty string", ErrNoAddress, key)
		}
		return strings.TrimSpace(s), nil
	}
}
