package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/time/rate"
)

const defaultTimeout = 15 * time.Second

// Message is one outbound email or push.
type Message struct {
	Channel string         `json:"channel"`
	To      string         `json:"to"`
	Title   string         `json:"title"`
	Body    string         `json:"body"`
	Data    map[string]any `json:"data,omitempty"`
	// IdempotencyKey lets the delivery service drop a resend of the same task.
	IdempotencyKey string `json:"-"`
}

// Sender delivers messages to the outbound delivery service.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// HTTPSender posts messages to a delivery HTTP API (POST {BaseURL}/v1/{channel}).
type HTTPSender struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	limiter    *rate.Limiter
}

// NewHTTPSender returns a sender that uses the given API key and base URL, limited to ratePerSec requests.
func NewHTTPSender(apiKey, baseURL string, ratePerSec float64) *HTTPSender {
	if ratePerSec <= 0 {
		ratePerSec = 20
	}
	burst := int(ratePerSec)
	if burst < 1 {
		burst = 1
	}
	return &HTTPSender{
		APIKey:     apiKey,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: defaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(ratePerSec), burst),
	}
}

// Send posts m. 4xx responses are not retried.
func (c *HTTPSender) Send(ctx context.Context, m Message) error {
	if c.BaseURL == "" {
		return fmt.Errorf("delivery: base URL not configured: %w", asynq.SkipRetry)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/"+m.Channel, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	if m.IdempotencyKey != "" {
		req.Header.Set("Idempotency-Key", m.IdempotencyKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	err = fmt.Errorf("delivery: request failed status=%d body=%s", resp.StatusCode, string(b))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return err
}

// LogSender writes messages to the log instead of sending them. cmd/worker uses it in development
// when no delivery service is configured. Bodies are not logged.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Send(ctx context.Context, m Message) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "delivery: message not sent (log sender)",
		"channel", m.Channel,
		"to", m.To,
		"title", m.Title,
	)
	return nil
}
