package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/intern-bli-api/internal/service"
)

// Metrics records one HTTP observation per request. The route template
// is preferred over the raw path so document and application IDs do
// not explode the label cardinality.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
