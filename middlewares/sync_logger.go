package middlewares

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/yeremiapane/omnipos/utils"
)

// DeviceIDHeader identifies the device sending a sync batch.
const DeviceIDHeader = "X-Device-ID"

// SyncLogger records each sync batch with the device that sent it, at
// error level when the batch as a whole failed.
func SyncLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		fields := logrus.Fields{
			"device":   c.GetHeader(DeviceIDHeader),
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
			"bytes":    c.Request.ContentLength,
		}
		if p, ok := GetPrincipal(c); ok {
			fields["tenant"] = p.TenantID
		}
		if c.Writer.Status() >= 400 {
			utils.ErrorLogger.WithFields(fields).Error("Sync batch failed")
			return
		}
		utils.InfoLogger.WithFields(fields).Info("Sync batch handled")
	}
}
