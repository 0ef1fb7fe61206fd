package handlers

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	appctx "github.com/Ramsey-B/fern/pkg/context"
)

// callerID returns the user every handler scopes its work to.
func callerID(c echo.Context) (string, error) {
	if id := appctx.GetUserID(c.Request().Context()); id != "" {
		return id, nil
	}
	return "", httperror.NewHTTPError(http.StatusUnauthorized, "authentication required")
}

// idParam reads a UUID path parameter in canonical form.
func idParam(c echo.Context, name string) (string, error) {
	raw := c.Param(name)
	id, err := uuid.Parse(raw)
	if raw == "" || err != nil {
		return "", httperror.NewHTTPErrorf(http.StatusBadRequest, "%s must be a UUID, got %q", name, raw)
	}
	return id.String(), nil
}

// intQuery reads a non-negative integer query parameter, returning def when absent.
func intQuery(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, httperror.NewHTTPErrorf(http.StatusBadRequest, "%s must be a non-negative integer, got %q", name, raw)
	}
	return n, nil
}

func ok(c echo.Context, body any) error {
	return c.JSON(http.StatusOK, body)
}

func created(c echo.Context, body any) error {
	return c.JSON(http.StatusCreated, body)
}
