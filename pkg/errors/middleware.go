package errors

import (
	"character-nexus/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ErrorHandler returns a middleware that catches and formats application errors
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors[0].Err
		appErr := FromError(err)

		log := logger.FromContext(c)
		args := []any{
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
			"status_code", appErr.StatusCode,
			"kind", string(appErr.Kind),
			"error_code", appErr.Code,
			"message", appErr.Message,
		}
		if cause := appErr.Unwrap(); cause != nil {
			args = append(args, "cause", cause.Error())
		}
		if appErr.StatusCode >= 500 {
			log.Error("Request error", args...)
		} else {
			log.Warn("Request rejected", args...)
		}

		if c.Writer.Written() {
			return
		}
		c.AbortWithStatusJSON(appErr.StatusCode, ToResponse(appErr))
	}
}
