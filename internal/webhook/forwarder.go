package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"chatforms-backend/internal/metrics"
)

// DefaultTimeout bounds every outbound webhook call.
const DefaultTimeout = 60 * time.Second

const maxReplyBytes int64 = 1 << 20 // 1 MiB

var (
	ErrTimeout    = errors.New("webhook did not respond in time")
	ErrInvalidURL = errors.New("invalid webhook url")
)

// Reply is the raw outcome of an outbound call that produced an HTTP response.
type Reply struct {
	Status     int
	StatusText string
	Body       []byte
}

func (r *Reply) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Forwarder performs outbound webhook POSTs with a hard timeout.
type Forwarder struct {
	client  *http.Client
	timeout time.Duration
	logger  zerolog.Logger
}

func NewForwarder(timeout time.Duration, logger zerolog.Logger) *Forwarder {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Forwarder{
		client:  &http.Client{},
		timeout: timeout,
		logger:  logger.With().Str("component", "webhook_forwarder").Logger(),
	}
}

func (f *Forwarder) Timeout() time.Duration {
	return f.timeout
}

// PostJSON posts payload to target. kind labels the call in metrics.
func (f *Forwarder) PostJSON(ctx context.Context, kind, target string, payload any) (*Reply, error) {
	if err := validateURL(target); err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			metrics.WebhookCalls.WithLabelValues(kind, "timeout").Inc()
			f.logger.Warn().Str("kind", kind).Dur("timeout", f.timeout).Msg("webhook call timed out")
			return nil, fmt.Errorf("%w after %s", ErrTimeout, f.timeout)
		}
		metrics.WebhookCalls.WithLabelValues(kind, "error").Inc()
		return nil, fmt.Errorf("failed to call webhook: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			metrics.WebhookCalls.WithLabelValues(kind, "timeout").Inc()
			return nil, fmt.Errorf("%w after %s", ErrTimeout, f.timeout)
		}
		metrics.WebhookCalls.WithLabelValues(kind, "error").Inc()
		return nil, fmt.Errorf("failed to read webhook reply: %w", err)
	}

	reply := &Reply{
		Status:     resp.StatusCode,
		StatusText: statusText(resp),
		Body:       data,
	}

	outcome := "ok"
	if !reply.OK() {
		outcome = "error"
	}
	metrics.WebhookCalls.WithLabelValues(kind, outcome).Inc()
	f.logger.Debug().
		Str("kind", kind).
		Int("status", reply.Status).
		Dur("latency", time.Since(start)).
		Msg("webhook call completed")

	return reply, nil
}

func statusText(resp *http.Response) string {
	text := strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode))
	text = strings.TrimSpace(text)
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}

func validateURL(target string) error {
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, target)
	}
	return nil
}
