package observability

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// unmatchedRoute labels requests that hit no route, keeping raw paths out of
// metric labels.
const unmatchedRoute = "unmatched"

func routeOf(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return unmatchedRoute
}

// appOf names the provider or consumer an app-scoped admin route touched.
func appOf(c *gin.Context) string {
	if id := c.Param("provider"); id != "" {
		return id
	}
	return c.Param("consumer")
}

// AccessLog writes one line per admin request, at warn for 4xx and error for
// 5xx.
func AccessLog(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := logger.Debug()
		switch {
		case status >= 500:
			event = logger.Error()
		case status >= 400:
			event = logger.Warn()
		}
		if app := appOf(c); app != "" {
			event = event.Str("app", app)
		}
		if action := c.Param("action"); action != "" {
			event = event.Str("action", action)
		}
		event.
			Int("status", status).
			Dur("took", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msgf("admin.request method=%s route=%s", c.Request.Method, routeOf(c))
	}
}

// RequestMetrics counts admin requests per device and route.
func RequestMetrics(device string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		RecordHTTPRequest(device, c.Request.Method, routeOf(c), c.Writer.Status(), time.Since(start))
	}
}
