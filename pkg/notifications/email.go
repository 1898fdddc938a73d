package notifications

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/dmitrymomot/smartnotify/pkg/email"
)

// EmailTransport delivers notifications through an email.Sender.
type EmailTransport struct {
	sender  email.Sender
	resolve AddressResolver
}

// EmailTransportOption configures an EmailTransport.
type EmailTransportOption func(*EmailTransport)

// WithEmailAddressResolver overrides how recipient addresses are found.
func WithEmailAddressResolver(fn AddressResolver) EmailTransportOption {
	return func(t *EmailTransport) {
		if fn != nil {
			t.resolve = fn
		}
	}
}

// NewEmailTransport creates the email channel. By default the address is read
// from the recipientEmail context key.
func NewEmailTransport(sender email.Sender, opts ...EmailTransportOption) *EmailTransport {
	t := &EmailTransport{
		sender:  sender,
		resolve: ContextAddress(ContextKeyRecipientEmail),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *EmailTransport) Channel() Channel { return ChannelEmail }

func (t *EmailTransport) Deliver(ctx context.Context, n Notification) error {
	to, err := t.resolve(ctx, n)
	if err != nil {
		return err
	}
	return t.sender.SendEmail(ctx, email.Message{
		To:       to,
		Subject:  n.Title,
		TextBody: n.Message,
		HTMLBody: renderHTML(n),
		Tag:      n.Type,
	})
}

func renderHTML(n Notification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<h2>%s</h2>", html.EscapeString(n.Title))
	for line := range strings.SplitSeq(n.Message, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fmt.Fprintf(&b, "<p>%s</p>", html.EscapeString(line))
	}
	return b.String()
}
