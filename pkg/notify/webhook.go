// Package notify posts event triggers to the automation webhook that fans them out to
// e-mail campaigns and CRM updates.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/eduplan-api/pkg/retry"
)

// StatusError reports a non-2xx webhook answer.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook responded %d", e.StatusCode)
}

// WebhookClient posts JSON payloads with the shared retry policy. An empty URL turns the
// client into a no-op.
type WebhookClient struct {
	url    string
	http   *http.Client
	policy retry.Policy
	logger *zap.Logger
}

// NewWebhookClient constructs a client for url.
func NewWebhookClient(url string, timeout time.Duration, policy retry.Policy, logger *zap.Logger) *WebhookClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookClient{
		url:    url,
		http:   &http.Client{Timeout: timeout},
		policy: policy,
		logger: logger,
	}
}

// Enabled reports whether a webhook URL is configured.
func (c *WebhookClient) Enabled() bool {
	return c != nil && c.url != ""
}

// Post delivers payload as JSON.
func (c *WebhookClient) Post(ctx context.Context, payload interface{}) error {
	if !c.Enabled() {
		return nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	return retry.Do(ctx, c.policy, isRetryable, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return retry.Permanent(fmt.Errorf("build webhook request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")

		res, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer res.Body.Close() //nolint:errcheck
		_, _ = io.Copy(io.Discard, res.Body)

		if res.StatusCode >= http.StatusMultipleChoices {
			return &StatusError{StatusCode: res.StatusCode}
		}
		return nil
	}, func(err error, attempt int, next time.Duration) {
		c.logger.Warn("webhook delivery failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("next", next),
			zap.Error(err),
		)
	})
}

func isRetryable(err error) bool {
	if statusErr, ok := err.(*StatusError); ok {
		return retry.RetryableStatus(statusErr.StatusCode)
	}
	return true
}
