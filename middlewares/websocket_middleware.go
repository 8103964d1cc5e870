package middlewares

import (
	"github.com/gin-gonic/gin"
)

// WebSocketAuthMiddleware reads the token from the query string, since
// browsers cannot set headers on a websocket handshake.
func WebSocketAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.AbortWithStatus(401)
			return
		}

		p, err := principalFromToken(token)
		if err != nil {
			c.AbortWithStatus(401)
			return
		}

		c.Set(principalKey, p)
		c.Next()
	}
}
