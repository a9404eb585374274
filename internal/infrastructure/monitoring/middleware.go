package monitoring

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware recording request counts.
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		metrics.RequestsTotal.WithLabelValues(method, path, status).Inc()
	}
}
