package middlewares

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/yeremiapane/omnipos/utils"
)

func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := logrus.Fields{
			"method":  c.Request.Method,
			"status":  c.Writer.Status(),
			"latency": time.Since(start),
			"ip":      c.ClientIP(),
		}
		if id, ok := c.Get("request_id"); ok {
			fields["request_id"] = id
		}
		if p, ok := GetPrincipal(c); ok {
			fields["tenant"] = p.TenantID
			fields["sub"] = p.Subject
		}
		utils.InfoLogger.WithFields(fields).Info(path)
	}
}
