package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/eduplan-api/internal/models"
	appErrors "github.com/noah-isme/eduplan-api/pkg/errors"
	"github.com/noah-isme/eduplan-api/pkg/response"
)

// ContextProfileKey is the gin context key storing the caller's profile.
const ContextProfileKey = "currentProfile"

type profileResolver interface {
	Get(ctx context.Context, userID string) (*models.Profile, error)
}

// Profile loads the caller's profile after JWT. Tier, role and school always come from the
// profile row, never from token claims.
func Profile(profiles profileResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := ClaimsFromContext(c)
		if claims == nil || claims.UserID() == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		profile, err := profiles.Get(c.Request.Context(), claims.UserID())
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextProfileKey, profile)
		c.Next()
	}
}

// ProfileFromContext returns the profile stored by Profile.
func ProfileFromContext(c *gin.Context) *models.Profile {
	value, exists := c.Get(ContextProfileKey)
	if !exists {
		return nil
	}
	profile, _ := value.(*models.Profile)
	return profile
}
