package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/iiitp-spms/spms-workflow/internal/application/eventhandler"
	"github.com/iiitp-spms/spms-workflow/pkg/circuitbreaker"
	"github.com/iiitp-spms/spms-workflow/pkg/logger"
	"github.com/iiitp-spms/spms-workflow/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// WebhookConfig contains configuration for the webhook notifier.
type WebhookConfig struct {
	// URL is the notification gateway endpoint.
	URL string

	// APIKey authenticates against the gateway (sent as a bearer token).
	APIKey string

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration
}

// DefaultWebhookConfig returns sensible defaults for the given endpoint.
func DefaultWebhookConfig(url, apiKey string) WebhookConfig {
	return WebhookConfig{
		URL:     url,
		APIKey:  apiKey,
		Timeout: 10 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// WEBHOOK NOTIFIER
// ══════════════════════════════════════════════════════════════════════════════

// WebhookNotifier delivers notifications to the institute notification
// gateway over HTTP. Transient failures are retried with backoff; a failing
// gateway trips the circuit breaker so handlers stop waiting on it.
type WebhookNotifier struct {
	config  WebhookConfig
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
	retrier *retry.Retrier
	log     *logger.Logger
}

// NewWebhookNotifier creates a WebhookNotifier.
func NewWebhookNotifier(cfg WebhookConfig, log *logger.Logger) (*WebhookNotifier, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook notifier: URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	componentLog := log.With(logger.Component("webhook_notifier"))

	breaker := circuitbreaker.NotificationGatewayBreaker(func(name string, from, to circuitbreaker.State) {
		componentLog.Warn("circuit state changed",
			logger.String("breaker", name),
			logger.String("from", from.String()),
			logger.String("to", to.String()))
	})

	return &WebhookNotifier{
		config:  cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: breaker,
		retrier: retry.NotificationRetrier(),
		log:     componentLog,
	}, nil
}

// webhookPayload is the gateway wire format.
type webhookPayload struct {
	RecipientID string            `json:"recipient_id"`
	Kind        string            `json:"kind"`
	Message     string            `json:"message"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	SentAt      time.Time         `json:"sent_at"`
}

// Notify implements eventhandler.Notifier.
func (n *WebhookNotifier) Notify(ctx context.Context, msg eventhandler.Notification) error {
	body, err := json.Marshal(webhookPayload{
		RecipientID: msg.RecipientID,
		Kind:        string(msg.Kind),
		Message:     msg.Message,
		Metadata:    msg.Metadata,
		SentAt:      time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	return n.breaker.Execute(ctx, func(ctx context.Context) error {
		return n.retrier.Do(ctx, func(ctx context.Context) error {
			return n.post(ctx, body)
		})
	})
}

// post performs one HTTP delivery attempt.
func (n *WebhookNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.config.URL, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+n.config.APIKey)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return retry.Retryable(err)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused.
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return retry.Retryable(fmt.Errorf("gateway returned %d", resp.StatusCode))
	default:
		return retry.Permanent(fmt.Errorf("gateway returned %d", resp.StatusCode))
	}
}

// State exposes the breaker state for health reporting.
func (n *WebhookNotifier) State() circuitbreaker.State {
	return n.breaker.State()
}
