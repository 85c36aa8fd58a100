package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/eduplan-api/pkg/retry"
)

var fastPolicy = retry.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}

func TestWebhookClientPostsJSON(t *testing.T) {
	var calls int32
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewWebhookClient(srv.URL, time.Second, fastPolicy, nil)
	err := client.Post(context.Background(), map[string]string{"event": "usage.threshold_80"})
	require.NoError(t, err)
	assert.Equal(t, "usage.threshold_80", got["event"])
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestWebhookClientClientErrorIsTerminal(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	client := NewWebhookClient(srv.URL, time.Second, fastPolicy, nil)
	err := client.Post(context.Background(), map[string]string{})

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestWebhookClientDisabled(t *testing.T) {
	client := NewWebhookClient("", 0, fastPolicy, nil)
	assert.False(t, client.Enabled())
	assert.NoError(t, client.Post(context.Background(), map[string]string{}))
}
