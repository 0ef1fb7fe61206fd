package utils

import (
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"
)

var bodyBinder = &echo.DefaultBinder{}

// BindRequest decodes a JSON request body into T and runs its validate tags.
// Path and query parameters are never bound into T; handlers read those explicitly.
func BindRequest[T any](c echo.Context) (T, error) {
	var v T

	req := c.Request()
	if req.ContentLength != 0 {
		if ct := req.Header.Get(echo.HeaderContentType); ct != "" && !strings.HasPrefix(ct, echo.MIMEApplicationJSON) {
			return v, httperror.NewHTTPErrorf(http.StatusUnsupportedMediaType, "expected %s body, got %s", echo.MIMEApplicationJSON, ct)
		}
	}
	if err := bodyBinder.BindBody(c, &v); err != nil {
		return v, httperror.WrapError(http.StatusBadRequest, err)
	}

	valid, err := Validate(v)
	if err != nil {
		return valid, httperror.WrapError(http.StatusBadRequest, err)
	}
	return valid, nil
}
