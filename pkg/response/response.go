package response

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/eduplan-api/internal/models"
	appErrors "github.com/noah-isme/eduplan-api/pkg/errors"
)

// Rate-limit headers attached to metered responses.
const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"

	unlimitedHeaderValue = "unlimited"
)

// Envelope represents the common response contract.
type Envelope struct {
	Data       interface{}            `json:"data,omitempty"`
	Error      *appErrors.Error       `json:"error,omitempty"`
	Pagination *models.Pagination     `json:"pagination,omitempty"`
	Meta       map[string]interface{} `json:"meta,omitempty"`
}

// LimitPayload is the body returned when a usage limit denies a request. The UI keys its
// upgrade prompt on LimitType, so the shape is emitted as-is rather than inside Envelope.
type LimitPayload struct {
	Error        string `json:"error"`
	LimitType    string `json:"limit_type"`
	CurrentUsage int64  `json:"current_usage"`
	Limit        int64  `json:"limit"`
	Tier         string `json:"tier"`
}

// RateLimit describes the values rendered into the X-RateLimit-* headers. RemainingUnknown
// omits X-RateLimit-Remaining.
type RateLimit struct {
	Limit            int64
	Remaining        int64
	Unlimited        bool
	RemainingUnknown bool
	Reset            time.Time
}

// JSON sends a success response with optional pagination metadata.
func JSON(c *gin.Context, status int, data interface{}, pagination *models.Pagination, meta ...map[string]interface{}) {
	noStore(c)
	envelope := Envelope{Data: data, Pagination: pagination}
	if len(meta) > 0 && meta[0] != nil {
		envelope.Meta = meta[0]
	}
	c.JSON(status, envelope)
}

// Created responds with HTTP 201 Created.
func Created(c *gin.Context, data interface{}) {
	JSON(c, http.StatusCreated, data, nil)
}

// Accepted responds with HTTP 202 Accepted.
func Accepted(c *gin.Context, data interface{}) {
	JSON(c, http.StatusAccepted, data, nil)
}

// Error sends an error response converting the error to the common structure.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	noStore(c)
	c.JSON(appErr.Status, Envelope{Error: appErr})
}

// LimitExceeded sends the 402 usage-limit payload.
func LimitExceeded(c *gin.Context, payload LimitPayload) {
	noStore(c)
	if payload.Error == "" {
		payload.Error = "Usage limit exceeded"
	}
	c.AbortWithStatusJSON(http.StatusPaymentRequired, payload)
}

// SetRateLimit writes the X-RateLimit-* headers.
func SetRateLimit(c *gin.Context, rl RateLimit) {
	if rl.Unlimited {
		c.Header(HeaderRateLimitLimit, unlimitedHeaderValue)
		c.Header(HeaderRateLimitRemaining, unlimitedHeaderValue)
	} else {
		remaining := rl.Remaining
		if remaining < 0 {
			remaining = 0
		}
		c.Header(HeaderRateLimitLimit, strconv.FormatInt(rl.Limit, 10))
		if !rl.RemainingUnknown {
			c.Header(HeaderRateLimitRemaining, strconv.FormatInt(remaining, 10))
		}
	}
	c.Header(HeaderRateLimitReset, rl.Reset.UTC().Format(time.RFC3339))
}

// NoContent sends a 204 response.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func noStore(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
}
