package middleware

import (
	"github.com/gin-gonic/gin"

	"client-directory/utils"
)

var captureError = utils.CaptureError

// ErrorHandler reports errors attached with c.Error once the handlers have
// run. Client errors (4xx) are not reported.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if status < 500 {
			return
		}
		for _, ginErr := range c.Errors {
			captureError(ginErr.Err, map[string]interface{}{
				"endpoint":  c.FullPath(),
				"method":    c.Request.Method,
				"status":    status,
				"client_id": c.Param("id"),
			})
		}
	}
}
