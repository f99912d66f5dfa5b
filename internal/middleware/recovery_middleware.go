// internal/middleware/recovery_middleware.go
package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pos-device-service/internal/utils"
)

// RecoveryMiddleware creates panic recovery middleware
func RecoveryMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		utils.LoggerWithRequestID(logger, c.GetString("request_id")).Error("Panic recovered",
			zap.Any("panic", recovered),
			zap.String("path", c.Request.URL.Path),
			zap.String("method", c.Request.Method),
			zap.Stack("stacktrace"),
		)

		utils.ErrorResponse(c, utils.ClassInternal, "Internal server error", nil)
		c.Abort()
	})
}
