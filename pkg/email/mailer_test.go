package email_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/smartnotify/pkg/email"
)

func TestMessage_Validate(t *testing.T) {
	t.Parallel()

	valid := email.Message{To: "user@example.com", Subject: "Assessment due", TextBody: "Due in 2 days"}

	tests := []struct {
		name    string
		mutate  func(m *email.Message)
		wantErr bool
	}{
		{name: "valid", mutate: func(m *email.Message) {}},
		{name: "missing recipient", mutate: func(m *email.Message) { m.To = "" }, wantErr: true},
		{name: "malformed recipient", mutate: func(m *email.Message) { m.To = "not-an-email" }, wantErr: true},
		{name: "missing subject", mutate: func(m *email.Message) { m.Subject = " " }, wantErr: true},
		{name: "missing body", mutate: func(m *email.Message) { m.TextBody = "" }, wantErr: true},
		{name: "html only", mutate: func(m *email.Message) { m.TextBody = ""; m.HTMLBody = "<p>x</p>" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			msg := valid
			tt.mutate(&msg)
			err := msg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, email.ErrInvalidMessage)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNewPostmarkSender(t *testing.T) {
	t.Parallel()

	base := email.Config{
		PostmarkServerToken:  "server",
		PostmarkAccountToken: "account",
		SenderEmail:          "notifications@example.com",
	}

	s, err := email.NewPostmarkSender(base)
	require.NoError(t, err)
	assert.NotNil(t, s)

	noToken := base
	noToken.PostmarkServerToken = ""
	_, err = email.NewPostmarkSender(noToken)
	assert.ErrorIs(t, err, email.ErrInvalidConfig)

	badSender := base
	badSender.SenderEmail = "nope"
	_, err = email.NewPostmarkSender(badSender)
	assert.ErrorIs(t, err, email.ErrInvalidConfig)

	assert.True(t, base.Enabled())
	assert.False(t, noToken.Enabled())
}

func TestLogSender(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	s := email.NewLogSender(slog.New(slog.NewTextHandler(buf, nil)))

	err := s.SendEmail(context.Background(), email.Message{To: "user@example.com", Subject: "Hi", TextBody: "body"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "user@example.com")

	err = s.SendEmail(context.Background(), email.Message{})
	assert.ErrorIs(t, err, email.ErrInvalidMessage)
}
