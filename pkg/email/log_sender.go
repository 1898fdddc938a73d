package email

import (
	"context"
	"log/slog"
)

// LogSender writes emails to a logger instead of sending them.
// Used when Postmark tokens are not configured.
type LogSender struct {
	log *slog.Logger
}

// NewLogSender returns a Sender that logs each message at info level.
func NewLogSender(log *slog.Logger) *LogSender {
	if log == nil {
		log = slog.Default()
	}
	return &LogSender{log: log}
}

func (s *LogSender) SendEmail(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "email not sent, log sender in use",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("tag", msg.Tag),
	)
	return nil
}
