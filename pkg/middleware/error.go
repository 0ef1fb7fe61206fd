package middleware

import (
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/context"
	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Message   string         `json:"message"`
	RequestID string         `json:"request_id"`
	TraceID   string         `json:"trace_id,omitempty"`
	Meta      map[string]any `json:"meta"`
}

// Error renders handler errors as ErrorResponse. Internal failures never leak their message.
func Error(logger ectologger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		ctx := c.Request().Context()
		status, body := describe(err)
		body.RequestID = context.GetRequestID(ctx)
		body.TraceID = tracing.GetTraceID(ctx)

		entry := logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"status":     status,
			"request_id": body.RequestID,
		})
		if status >= http.StatusInternalServerError {
			entry.Error("request returned a server error")
		} else {
			entry.Warn("request rejected")
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, body)
	}
}

func describe(err error) (int, ErrorResponse) {
	body := ErrorResponse{Message: http.StatusText(http.StatusInternalServerError), Meta: map[string]any{}}

	var echoErr *echo.HTTPError
	if errors.As(err, &echoErr) {
		if msg, ok := echoErr.Message.(string); ok {
			body.Message = msg
		} else {
			body.Message = http.StatusText(echoErr.Code)
		}
		return echoErr.Code, body
	}

	mapped := fernerrors.ToHTTPError(err)
	if !httperror.IsHTTPError(mapped) {
		return http.StatusInternalServerError, body
	}
	status := httperror.GetStatusCode(mapped)
	httpErr := httperror.ToHTTPError(mapped)
	if status < http.StatusInternalServerError {
		body.Message = httpErr.Error()
	}
	if httpErr.Meta != nil {
		body.Meta = httpErr.Meta
	}
	return status, body
}
