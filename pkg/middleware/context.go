package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/context"
)

// HeaderUserID names the header set by the authenticating gateway in front of fern.
const HeaderUserID = "X-User-ID"

// Context attaches a context.Request to every request and echoes its id back to the caller.
func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			r := context.Request{
				ID:       req.Header.Get(echo.HeaderXRequestID),
				UserID:   req.Header.Get(HeaderUserID),
				Method:   req.Method,
				Route:    c.Path(),
				RemoteIP: c.RealIP(),
			}
			if r.ID == "" {
				r.ID = uuid.NewString()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, r.ID)
			c.SetRequest(req.WithContext(context.WithRequest(req.Context(), r)))
			return next(c)
		}
	}
}
