package sms

import "time"

// Config describes an HTTP SMS gateway that accepts JSON POSTs.
type Config struct {
	GatewayURL     string        `env:"SMS_GATEWAY_URL"`
	APIKey         string        `env:"SMS_GATEWAY_API_KEY"`
	SenderID       string        `env:"SMS_SENDER_ID" envDefault:"GRC"`
	Timeout        time.Duration `env:"SMS_TIMEOUT" envDefault:"10s"`
	MaxRetries     int           `env:"SMS_MAX_RETRIES" envDefault:"2"`
	InitialBackoff time.Duration `env:"SMS_INITIAL_BACKOFF" envDefault:"500ms"`
	MaxBackoff     time.Duration `env:"SMS_MAX_BACKOFF" envDefault:"10s"`
}
