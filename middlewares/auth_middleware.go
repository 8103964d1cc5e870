package middlewares

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yeremiapane/omnipos/models"
	"github.com/yeremiapane/omnipos/utils"
)

const principalKey = "principal"

// ReasonUnauthorized is sent with every 401.
const ReasonUnauthorized = "Unauthorized"

// AuthMiddleware resolves the bearer token into a Principal. Every route
// behind it can rely on GetPrincipal.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.RespondReason(c, http.StatusUnauthorized, ReasonUnauthorized, errors.New("Authorization header missing"))
			c.Abort()
			return
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			utils.RespondReason(c, http.StatusUnauthorized, ReasonUnauthorized, errors.New("Authorization header must use the Bearer scheme"))
			c.Abort()
			return
		}

		p, err := principalFromToken(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			utils.RespondReason(c, http.StatusUnauthorized, ReasonUnauthorized, err)
			c.Abort()
			return
		}

		c.Set(principalKey, p)
		c.Next()
	}
}

// GetPrincipal returns the principal stored by AuthMiddleware or
// WebSocketAuthMiddleware.
func GetPrincipal(c *gin.Context) (models.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return models.Principal{}, false
	}
	p, ok := v.(models.Principal)
	return p, ok
}

func principalFromToken(token string) (models.Principal, error) {
	claims, err := utils.ParseToken(token)
	if err != nil || claims == nil {
		return models.Principal{}, errors.New("Invalid or expired token")
	}
	if claims.Subject == "" {
		return models.Principal{}, errors.New("Invalid subject in token")
	}
	if claims.TenantID == "" {
		return models.Principal{}, errors.New("Invalid tenant in token")
	}
	role, err := models.ParseRole(claims.Role)
	if err != nil {
		return models.Principal{}, errors.New("Invalid role in token")
	}
	return models.Principal{Subject: claims.Subject, Role: role, TenantID: claims.TenantID}, nil
}
