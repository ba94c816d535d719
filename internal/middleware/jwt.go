package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arkadesain/design-desk-api/internal/models"
	"github.com/arkadesain/design-desk-api/internal/service"
	appErrors "github.com/arkadesain/design-desk-api/pkg/errors"
	"github.com/arkadesain/design-desk-api/pkg/response"
)

// ContextUserKey is the gin context key storing JWT claims.
const ContextUserKey = "currentUser"

// JWT protects routes by requiring a valid access token.
func JWT(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			c.Abort()
			return
		}

		claims, err := authService.ValidateToken(parts[1])
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Next()
	}
}

// CurrentUser extracts the authenticated actor from the gin context. The
// second return is false when the JWT middleware did not run.
func CurrentUser(c *gin.Context) (models.UserInfo, bool) {
	claimsValue, exists := c.Get(ContextUserKey)
	if !exists {
		return models.UserInfo{}, false
	}
	claims, ok := claimsValue.(*models.JWTClaims)
	if !ok {
		return models.UserInfo{}, false
	}
	return models.UserInfo{
		ID:       claims.UserID,
		Email:    claims.Email,
		FullName: claims.FullName,
		Role:     claims.Role,
	}, true
}
