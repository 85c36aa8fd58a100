// Package ai is the thin boundary around the Anthropic Messages API used for content
// generation and answer-sheet grading.
package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/noah-isme/eduplan-api/pkg/config"
	"github.com/noah-isme/eduplan-api/pkg/retry"
)

var (
	// ErrEmptyResponse is returned when the model answers without a text block.
	ErrEmptyResponse = errors.New("no text content in model response")
	// ErrUnsupportedAttachment is returned for attachment media types the model cannot read.
	ErrUnsupportedAttachment = errors.New("unsupported attachment type")
)

var imageTypes = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
	"image/gif":  {},
	"image/webp": {},
}

// MessageCreator is the subset of the SDK message service the client needs.
type MessageCreator interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Attachment is a file sent alongside the prompt. Plain text is inlined, images are sent as
// base64 image blocks.
type Attachment struct {
	Name      string
	MediaType string
	Data      []byte
}

// Request describes one completion.
type Request struct {
	Model       string
	System      string
	Prompt      string
	Attachments []Attachment
	MaxTokens   int64
}

// Completion is the text returned by the model together with token usage.
type Completion struct {
	Text         string
	Model        string
	InputTokens  int64
	OutputTokens int64
}

// Client calls the Messages API with a per-attempt timeout and a retry policy. SDK level
// retries are disabled so the shared policy is the only one in effect.
type Client struct {
	messages  MessageCreator
	policy    retry.Policy
	timeout   time.Duration
	maxTokens int64
	logger    *zap.Logger
}

// NewClient builds a client backed by the Anthropic SDK.
func NewClient(cfg config.AIConfig, policy retry.Policy, logger *zap.Logger) *Client {
	sdk := anthropic.NewClient(option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0))
	return NewClientWith(&sdk.Messages, policy, cfg.Timeout, cfg.MaxTokens, logger)
}

// NewClientWith builds a client on top of any MessageCreator.
func NewClientWith(messages MessageCreator, policy retry.Policy, timeout time.Duration, maxTokens int64, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{messages: messages, policy: policy, timeout: timeout, maxTokens: maxTokens, logger: logger}
}

// Complete sends req and returns the first text block of the answer.
func (c *Client) Complete(ctx context.Context, req Request) (*Completion, error) {
	params, err := c.params(req)
	if err != nil {
		return nil, err
	}

	var message *anthropic.Message
	err = retry.Do(ctx, c.policy, IsRetryable, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		m, err := c.messages.New(attemptCtx, params)
		if err != nil {
			return err
		}
		message = m
		return nil
	}, func(err error, attempt int, next time.Duration) {
		c.logger.Warn("anthropic call failed, retrying",
			zap.String("model", req.Model),
			zap.Int("attempt", attempt),
			zap.Duration("next", next),
			zap.Error(err),
		)
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic messages: %w", err)
	}

	completion := &Completion{
		Model:        string(message.Model),
		InputTokens:  message.Usage.InputTokens,
		OutputTokens: message.Usage.OutputTokens,
	}
	for _, block := range message.Content {
		if block.Type == "text" {
			completion.Text = block.Text
			c.logger.Debug("anthropic response",
				zap.String("model", completion.Model),
				zap.Int("size", len(block.Text)),
				zap.Int64("tokens_in", completion.InputTokens),
				zap.Int64("tokens_out", completion.OutputTokens),
			)
			return completion, nil
		}
	}
	return nil, ErrEmptyResponse
}

func (c *Client) params(req Request) (anthropic.MessageNewParams, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(req.Attachments)+1)
	prompt := req.Prompt
	for _, att := range req.Attachments {
		mediaType := strings.ToLower(strings.TrimSpace(strings.Split(att.MediaType, ";")[0]))
		switch {
		case strings.HasPrefix(mediaType, "text/"):
			prompt += fmt.Sprintf("\n\n--- %s ---\n%s", att.Name, string(att.Data))
		case isImage(mediaType):
			blocks = append(blocks, anthropic.NewImageBlockBase64(mediaType, base64.StdEncoding.EncodeToString(att.Data)))
		default:
			return anthropic.MessageNewParams{}, fmt.Errorf("%w: %s", ErrUnsupportedAttachment, att.MediaType)
		}
	}
	blocks = append(blocks, anthropic.NewTextBlock(prompt))

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.System, CacheControl: anthropic.NewCacheControlEphemeralParam()},
		}
	}
	return params, nil
}

// IsRetryable reports whether an SDK error is transient: throttling, overload, server
// failures, attempt timeouts and network errors.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 409 || retry.RetryableStatus(apiErr.StatusCode)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsImage reports whether the media type can be sent as an image block.
func IsImage(mediaType string) bool {
	return isImage(strings.ToLower(mediaType))
}

func isImage(mediaType string) bool {
	_, ok := imageTypes[mediaType]
	return ok
}
