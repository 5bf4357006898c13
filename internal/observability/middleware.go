package observability

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// routeParams are tagged onto request logs when the route carries them.
var routeParams = []string{"peer", "conn"}

// RequestLogger logs admin requests. Successes go to debug since call
// manager watches are long polls.
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	logger = logger.With().Str("component", "admin.http").Logger()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		var event *zerolog.Event
		switch {
		case status >= 500:
			event = logger.Error()
		case status >= 400:
			event = logger.Warn()
		default:
			event = logger.Debug()
		}
		for _, name := range routeParams {
			if v := c.Param(name); v != "" {
				event = event.Str(name, v)
			}
		}
		if errs := c.Errors.ByType(gin.ErrorTypeAny); len(errs) > 0 {
			event = event.Str("errors", errs.String())
		}
		event.
			Str("method", c.Request.Method).
			Str("route", routeLabel(c)).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("admin.http request")
	}
}

// RequestMetricsMiddleware records every request except scrapes of the
// metrics route itself.
func RequestMetricsMiddleware(node string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := routeLabel(c)
		if route == "/metrics" {
			return
		}
		RecordHTTPRequest(node, c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}

// routeLabel keeps metric cardinality bounded by peer and connection IDs.
func routeLabel(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return "unmatched"
}
