package handler

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/eduplan-api/internal/middleware"
	"github.com/noah-isme/eduplan-api/internal/models"
	"github.com/noah-isme/eduplan-api/internal/service"
	"github.com/noah-isme/eduplan-api/internal/usage"
	"github.com/noah-isme/eduplan-api/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.ClaimsFromContext(c)
}

func profileFromContext(c *gin.Context) *models.Profile {
	return middleware.ProfileFromContext(c)
}

// setRateLimit renders the usage position of a metered call. Results without a category
// (the request failed before metering) are skipped.
func setRateLimit(c *gin.Context, result usage.LimitCheckResult) {
	if result.Category == "" {
		return
	}
	_, reset := usage.PeriodBounds(time.Now())
	response.SetRateLimit(c, response.RateLimit{
		Limit:            int64(result.Limit),
		Remaining:        result.Remaining(),
		Unlimited:        result.Unlimited(),
		RemainingUnknown: result.CountUnknown,
		Reset:            reset,
	})
}

// meteredError writes err for a metered endpoint. Usage denials get the 402 limit payload
// instead of the error envelope.
func meteredError(c *gin.Context, result usage.LimitCheckResult, err error) {
	setRateLimit(c, result)
	var limitErr *service.LimitExceededError
	if errors.As(err, &limitErr) {
		denied := limitErr.Result
		response.LimitExceeded(c, response.LimitPayload{
			LimitType:    string(denied.Category),
			CurrentUsage: denied.CurrentUsage,
			Limit:        int64(denied.Limit),
			Tier:         string(denied.Tier),
		})
		return
	}
	response.Error(c, err)
}
