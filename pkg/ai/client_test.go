package ai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/eduplan-api/pkg/retry"
)

type stubMessages struct {
	responses []*anthropic.Message
	errs      []error
	calls     int
	last      anthropic.MessageNewParams
}

func (s *stubMessages) New(ctx context.Context, body anthropic.MessageNewParams, _ ...option.RequestOption) (*anthropic.Message, error) {
	idx := s.calls
	s.calls++
	s.last = body
	if idx < len(s.errs) && s.errs[idx] != nil {
		return nil, s.errs[idx]
	}
	return s.responses[len(s.responses)-1], nil
}

func apiError(status int) error {
	return &anthropic.Error{
		StatusCode: status,
		Request:    httptest.NewRequest(http.MethodPost, "https://api.anthropic.com/v1/messages", nil),
		Response:   &http.Response{StatusCode: status},
	}
}

func textMessage(text string) *anthropic.Message {
	return &anthropic.Message{
		Model:   anthropic.Model("claude-test"),
		Content: []anthropic.ContentBlockUnion{{Type: "text", Text: text}},
		Usage:   anthropic.Usage{InputTokens: 12, OutputTokens: 34},
	}
}

var fastPolicy = retry.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}

func TestCompleteReturnsText(t *testing.T) {
	stub := &stubMessages{responses: []*anthropic.Message{textMessage("lesson plan")}}
	client := NewClientWith(stub, fastPolicy, time.Second, 0, nil)

	out, err := client.Complete(context.Background(), Request{Model: "claude-test", System: "sys", Prompt: "plan"})
	require.NoError(t, err)
	assert.Equal(t, "lesson plan", out.Text)
	assert.Equal(t, int64(12), out.InputTokens)
	assert.Equal(t, int64(34), out.OutputTokens)
	assert.Equal(t, int64(4096), stub.last.MaxTokens)
	require.Len(t, stub.last.System, 1)
}

func TestCompleteRetriesTransientErrors(t *testing.T) {
	stub := &stubMessages{
		errs:      []error{apiError(529), apiError(http.StatusTooManyRequests)},
		responses: []*anthropic.Message{textMessage("ok")},
	}
	client := NewClientWith(stub, fastPolicy, time.Second, 100, nil)

	out, err := client.Complete(context.Background(), Request{Model: "m", Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Text)
	assert.Equal(t, 3, stub.calls)
}

func TestCompleteTerminalErrorStops(t *testing.T) {
	stub := &stubMessages{errs: []error{apiError(http.StatusBadRequest)}, responses: []*anthropic.Message{textMessage("never")}}
	client := NewClientWith(stub, fastPolicy, time.Second, 100, nil)

	_, err := client.Complete(context.Background(), Request{Model: "m", Prompt: "p"})
	require.Error(t, err)
	var apiErr *anthropic.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, 1, stub.calls)
}

func TestCompleteWithoutTextBlock(t *testing.T) {
	stub := &stubMessages{responses: []*anthropic.Message{{Content: []anthropic.ContentBlockUnion{{Type: "tool_use"}}}}}
	client := NewClientWith(stub, fastPolicy, time.Second, 100, nil)

	_, err := client.Complete(context.Background(), Request{Model: "m", Prompt: "p"})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestCompleteAttachments(t *testing.T) {
	stub := &stubMessages{responses: []*anthropic.Message{textMessage("graded")}}
	client := NewClientWith(stub, fastPolicy, time.Second, 100, nil)

	_, err := client.Complete(context.Background(), Request{
		Model:  "m",
		Prompt: "grade",
		Attachments: []Attachment{
			{Name: "answers.txt", MediaType: "text/plain; charset=utf-8", Data: []byte("1. A")},
			{Name: "page.png", MediaType: "image/png", Data: []byte{0x89, 0x50}},
		},
	})
	require.NoError(t, err)
	require.Len(t, stub.last.Messages, 1)
	blocks := stub.last.Messages[0].Content
	require.Len(t, blocks, 2)
	require.NotNil(t, blocks[0].OfImage)
	require.NotNil(t, blocks[1].OfText)
	assert.Contains(t, blocks[1].OfText.Text, "1. A")

	_, err = client.Complete(context.Background(), Request{
		Model:       "m",
		Attachments: []Attachment{{Name: "a.zip", MediaType: "application/zip"}},
	})
	assert.ErrorIs(t, err, ErrUnsupportedAttachment)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(apiError(529)))
	assert.True(t, IsRetryable(apiError(http.StatusInternalServerError)))
	assert.True(t, IsRetryable(context.DeadlineExceeded))
	assert.False(t, IsRetryable(apiError(http.StatusUnauthorized)))
	assert.False(t, IsRetryable(context.Canceled))
	assert.False(t, IsRetryable(nil))
}

func TestExtractJSON(t *testing.T) {
	raw, err := ExtractJSON("```json\n{\"a\": 1}\n```")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(raw))

	raw, err = ExtractJSON("Here you go: {\"b\": {\"c\": 2}} hope it helps")
	require.NoError(t, err)
	assert.JSONEq(t, `{"b":{"c":2}}`, string(raw))

	_, err = ExtractJSON("no json here")
	assert.ErrorIs(t, err, ErrNoJSON)
}
