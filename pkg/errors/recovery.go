package errors

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"character-nexus/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// RecoveryWithLogger returns a middleware that recovers from any panics
// and logs the error with the request logger
func RecoveryWithLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())

				logger.FromContext(c).Error("Panic recovered",
					"error", fmt.Sprintf("%v", r),
					"stack", stack,
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)

				appErr := NewInternalServerError(CodeInternal, "The server encountered an unexpected error")
				if gin.Mode() == gin.DebugMode {
					appErr.Details = fmt.Sprintf("Panic: %v", r)
				}

				c.AbortWithStatusJSON(http.StatusInternalServerError, ToResponse(appErr))
			}
		}()

		c.Next()
	}
}
