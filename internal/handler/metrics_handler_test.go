package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/eduplan-api/internal/service"
)

type pingStub struct {
	err error
}

func (p pingStub) PingContext(ctx context.Context) error {
	return p.err
}

func TestMetricsHandlerPrometheus(t *testing.T) {
	metrics := service.NewMetricsService()
	metrics.ObserveHTTPRequest(http.MethodGet, "/api/v1/usage", http.StatusOK, 0)

	c, rec := newTestContext(http.MethodGet, "/metrics", nil)
	NewMetricsHandler(metrics, nil).Prometheus(c)

	assertStatus(t, rec, http.StatusOK)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestMetricsHandlerPrometheusDisabled(t *testing.T) {
	c, rec := newTestContext(http.MethodGet, "/metrics", nil)
	NewMetricsHandler(nil, nil).Prometheus(c)
	c.Writer.WriteHeaderNow()

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsHandlerReady(t *testing.T) {
	c, rec := newTestContext(http.MethodGet, "/readyz", nil)
	NewMetricsHandler(nil, pingStub{}).Ready(c)
	assertStatus(t, rec, http.StatusOK)

	c, rec = newTestContext(http.MethodGet, "/readyz", nil)
	NewMetricsHandler(nil, pingStub{err: errors.New("connection refused")}).Ready(c)
	assertStatus(t, rec, http.StatusServiceUnavailable)
	assert.Contains(t, rec.Body.String(), "connection refused")

	c, rec = newTestContext(http.MethodGet, "/healthz", nil)
	NewMetricsHandler(nil, nil).Health(c)
	assertStatus(t, rec, http.StatusOK)
}
