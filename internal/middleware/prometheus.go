package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/persistorai/cadence/internal/metrics"
)

// unmatchedRoute labels requests that hit no registered route, keeping
// scanner traffic out of per-path series.
const unmatchedRoute = "unmatched"

// unobserved routes are probes and scrapes that would drown out API traffic.
var unobserved = map[string]bool{
	"/metrics": true,
	"/health":  true,
	"/ready":   true,
}

// PrometheusMiddleware records request duration and count per route
// template, method and status.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if unobserved[route] {
			return
		}
		if route == "" {
			route = unmatchedRoute
		}

		status := strconv.Itoa(c.Writer.Status())
		metrics.RequestDuration.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
		metrics.RequestsTotal.WithLabelValues(c.Request.Method, route, status).Inc()
	}
}
