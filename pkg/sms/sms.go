package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Sender sends a text message to a phone number.
type Sender interface {
	SendSMS(ctx context.Context, msg Message) error
}

// Message is one outbound SMS.
type Message struct {
	To        string `json:"to"`
	Body      string `json:"body"`
	Reference string `json:"reference,omitempty"`
}

// Validate checks the recipient and body.
func (m Message) Validate() error {
	to := strings.TrimSpace(m.To)
	if to == "" {
		return fmt.Errorf("%w: recipient is required", ErrInvalidMessage)
	}
	digits := strings.TrimPrefix(to, "+")
	if len(digits) < 6 || strings.Trim(digits, "0123456789") != "" {
		return fmt.Errorf("%w: recipient %q is not a phone number", ErrInvalidMessage, m.To)
	}
	if strings.TrimSpace(m.Body) == "" {
		return fmt.Errorf("%w: body is required", ErrInvalidMessage)
	}
	return nil
}

// GatewayClient posts messages to an HTTP SMS gateway and retries transient
// failures.
type GatewayClient struct {
	cfg     Config
	client  *http.Client
	backoff Backoff
}

// Option configures a GatewayClient.
type Option func(*GatewayClient)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(g *GatewayClient) {
		if c != nil {
			g.client = c
		}
	}
}

// WithBackoff overrides the retry backoff.
func WithBackoff(b Backoff) Option {
	return func(g *GatewayClient) {
		if b != nil {
			g.backoff = b
		}
	}
}

// NewGatewayClient validates cfg and builds a client.
func NewGatewayClient(cfg Config, opts ...Option) (*GatewayClient, error) {
	u, err := url.Parse(cfg.GatewayURL)
	if err != nil || cfg.GatewayURL == "" {
		return nil, fmt.Errorf("%w: gateway URL is required", ErrInvalidConfig)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: gateway URL must be an absolute http(s) URL", ErrInvalidConfig)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	g := &GatewayClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		backoff: ExponentialBackoff{
			InitialInterval: cfg.InitialBackoff,
			MaxInterval:     cfg.MaxBackoff,
			Multiplier:      2,
			JitterFactor:    0.1,
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

type gatewayRequest struct {
	From      string `json:"from,omitempty"`
	To        string `json:"to"`
	Body      string `json:"body"`
	Reference string `json:"reference,omitempty"`
}

// SendSMS delivers msg, retrying network errors, 5xx, 408, 425 and 429
// responses up to MaxRetries times. Other 4xx responses fail immediately.
func (g *GatewayClient) SendSMS(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	payload, err := json.Marshal(gatewayRequest{
		From:      g.cfg.SenderID,
		To:        msg.To,
		Body:      msg.Body,
		Reference: msg.Reference,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	var lastErr error
	for attempt := 0; attempt <= g.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return errors.Join(ErrDeliveryFailed, ctx.Err())
			case <-time.After(g.backoff.NextInterval(attempt)):
			}
		}

		status, err := g.post(ctx, payload)
		if err == nil {
			return nil
		}
		lastErr = err
		if isPermanent(status) {
			return fmt.Errorf("%w: %w", ErrPermanentFailure, err)
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrDeliveryFailed, g.cfg.MaxRetries+1, lastErr)
}

func (g *GatewayClient) post(ctx context.Context, payload []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.GatewayURL, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "smartnotify-sms/1.0")
	if g.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, fmt.Errorf("%w: %w", ErrGatewayTimeout, err)
		}
		return 0, fmt.Errorf("%w: %w", ErrTemporaryFailure, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	detail := strings.ReplaceAll(strings.TrimSpace(string(body)), "\n", " ")
	if len(detail) > 200 {
		detail = detail[:200] + "..."
	}
	return resp.StatusCode, fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, detail)
}

func isPermanent(status int) bool {
	if status < 400 || status >= 500 {
		return false
	}
	switch status {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return false
	}
	return true
}
