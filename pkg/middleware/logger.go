package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// quietPrefixes are probed constantly by orchestrators and scrapers; successful hits are not logged.
var quietPrefixes = []string{"/health", "/metrics"}

// Logger writes one access log line per request after the error handler has rendered the response.
func Logger(logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			began := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}

			req, res := c.Request(), c.Response()
			if res.Status < http.StatusBadRequest && isQuiet(req.URL.Path) {
				return nil
			}

			ctx := req.Context()
			entry := logger.WithContext(ctx).WithFields(map[string]any{
				"request_id": context.GetRequestID(ctx),
				"user_id":    context.GetUserID(ctx),
				"trace_id":   tracing.GetTraceID(ctx),
				"span_id":    tracing.GetSpanID(ctx),
				"method":     req.Method,
				"route":      c.Path(),
				"uri":        req.RequestURI,
				"status":     res.Status,
				"bytes_out":  res.Size,
				"remote_ip":  c.RealIP(),
				"elapsed_ms": time.Since(began).Milliseconds(),
			})
			if res.Status >= http.StatusInternalServerError {
				entry.Warn("request failed")
				return nil
			}
			entry.Info("request served")
			return nil
		}
	}
}

func isQuiet(path string) bool {
	for _, prefix := range quietPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
