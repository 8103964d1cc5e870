package middlewares

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeremiapane/omnipos/models"
	"github.com/yeremiapane/omnipos/utils"
)

// RequireRole lets the request through only for the listed roles.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := GetPrincipal(c)
		if !ok {
			utils.RespondReason(c, http.StatusUnauthorized, ReasonUnauthorized, fmt.Errorf("unauthorized"))
			c.Abort()
			return
		}

		for _, r := range roles {
			if p.Role == r {
				c.Next()
				return
			}
		}
		utils.RespondReason(c, http.StatusForbidden, "Forbidden", fmt.Errorf("role %s may not do this", p.Role))
		c.Abort()
	}
}
