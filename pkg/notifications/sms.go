package notifications

import (
	"context"

	"github.com/dmitrymomot/smartnotify/pkg/sms"
)

// maxSMSLength keeps a message within a single GSM-7 segment.
const maxSMSLength = 160

// SMSTransport delivers notifications through an sms.Sender.
type SMSTransport struct {
	sender  sms.Sender
	resolve AddressResolver
}

// SMSTransportOption configures an SMSTransport.
type SMSTransportOption func(*SMSTransport)

// WithPhoneResolver overrides how recipient phone numbers are found.
func WithPhoneResolver(fn AddressResolver) SMSTransportOption {
	return func(t *SMSTransport) {
		if fn != nil {
			t.resolve = fn
		}
	}
}

// NewSMSTransport creates the SMS channel. By default the number is read from
// the recipientPhone context key.
func NewSMSTransport(sender sms.Sender, opts ...SMSTransportOption) *SMSTransport {
	t := &SMSTransport{
		sender:  sender,
		resolve: ContextAddress(ContextKeyRecipientPhone),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *SMSTransport) Channel() Channel { return ChannelSMS }

func (t *SMSTransport) Deliver(ctx context.Context, n Notification) error {
	to, err := t.resolve(ctx, n)
	if err != nil {
		return err
	}
	return t.sender.SendSMS(ctx, sms.Message{
		To:        to,
		Body:      smsBody(n),
		Reference: n.ID,
	})
}

func smsBody(n Notification) string {
	body := n.Title
	if n.Message != "" {
		body += ": " + n.Message
	}
	r := []rune(body)
	if len(r) <= maxSMSLength {
		return body
	}
	return string(r[:maxSMSLength-3]) + "..."
}
