package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/farhanpavel/cognit-api/internal/service"
)

// unmatchedRoute labels requests that hit no route so raw ids never become label values.
const unmatchedRoute = "unmatched"

// Metrics returns middleware that captures request metrics using the provided service.
// Websocket status streams are recorded as sessions rather than request latency.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		stream := c.IsWebsocket()
		c.Next()
		duration := time.Since(start)
		if stream {
			metricsSvc.ObserveStreamSession(duration)
			return
		}
		path := c.FullPath()
		if path == "" {
			path = unmatchedRoute
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), duration)
	}
}
