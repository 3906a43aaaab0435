package log

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

var httpLogger = GetLogger("HTTP")

// GinLogger returns a Gin middleware that logs requests using zerolog.
// Paths with one of the quiet prefixes are logged at debug level only
// (SSE streams and polling endpoints would otherwise flood the log).
func GinLogger(quietPrefixes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String()

		if raw != "" {
			path = path + "?" + raw
		}

		event := httpLogger.Info()
		switch {
		case status >= 500:
			event = httpLogger.Error()
		case status >= 400:
			event = httpLogger.Warn()
		case isQuiet(c.Request.URL.Path, quietPrefixes):
			event = httpLogger.Debug()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("latency", latency).
			Str("ip", c.ClientIP())

		if errorMessage != "" {
			event.Str("error", errorMessage)
		}

		event.Msg("request")
	}
}

func isQuiet(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
