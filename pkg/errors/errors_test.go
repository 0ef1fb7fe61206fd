package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/stretchr/testify/assert"
)

func TestToHTTPError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"unauthenticated", ErrUnauthenticated, http.StatusUnauthorized},
		{"wrapped not found", fmt.Errorf("get operation: %w", ErrNotFound), http.StatusNotFound},
		{"already reverted", ErrAlreadyReverted, http.StatusConflict},
		{"import in progress", ErrImportInProgress, http.StatusConflict},
		{"mapping error", NewMappingError("unknown field").AddColumn("Biz").AddField("bogus"), http.StatusBadRequest},
		{"http error passes through", httperror.NewHTTPError(http.StatusTeapot, "tea"), http.StatusTeapot},
		{"anything else", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, httperror.GetStatusCode(ToHTTPError(tt.err)))
		})
	}
	assert.Nil(t, ToHTTPError(nil))
}

func TestMappingError_Error(t *testing.T) {
	assert.Equal(t, "bad", NewMappingError("bad").Error())
	assert.Equal(t,
		"row 3 -> column 'Biz' -> field 'company_name': value required",
		NewMappingErrorf("value %s", "required").AddRow(3).AddColumn("Biz").AddField("company_name").Error(),
	)
}
