// Package errors holds the sentinel errors shared by the import pipeline and their
// mapping onto HTTP status codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
)

var (
	// ErrUnauthenticated is returned before any mutation when no user owns the request.
	ErrUnauthenticated = errors.New("authenticated user required")
	// ErrNotFound is returned when a lead or import operation does not exist for the user.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyReverted is returned when an import operation has already been reverted.
	ErrAlreadyReverted = errors.New("import operation already reverted")
	// ErrImportInProgress is returned when another import or undo holds the user's lock.
	ErrImportInProgress = errors.New("another import is in progress for this user")
)

// MappingError describes a field mapping that cannot be applied to a lead.
type MappingError struct {
	Column  string
	Field   string
	Row     *int
	Message string
}

func NewMappingError(msg string) *MappingError {
	return &MappingError{Message: msg}
}

func NewMappingErrorf(format string, args ...any) *MappingError {
	return &MappingError{Message: fmt.Sprintf(format, args...)}
}

func (e *MappingError) Error() string {
	path := []string{}
	if e.Row != nil {
		path = append(path, fmt.Sprintf("row %d", *e.Row))
	}
	if e.Column != "" {
		path = append(path, fmt.Sprintf("column '%s'", e.Column))
	}
	if e.Field != "" {
		path = append(path, fmt.Sprintf("field '%s'", e.Field))
	}

	if len(path) == 0 {
		return e.Message
	}

	return strings.Join(path, " -> ") + ": " + e.Message
}

func (e *MappingError) AddColumn(column string) *MappingError {
	e.Column = column
	return e
}

func (e *MappingError) AddField(field string) *MappingError {
	e.Field = field
	return e
}

func (e *MappingError) AddRow(row int) *MappingError {
	e.Row = &row
	return e
}

func (e *MappingError) ToHTTPError() error {
	row := 0
	if e.Row != nil {
		row = *e.Row
	}
	return httperror.NewHTTPError(http.StatusBadRequest, e.Error()).AddMetaValue("column", e.Column).AddMetaValue("field", e.Field).AddMetaValue("row", row)
}

// ToHTTPError converts pipeline errors into HTTP errors. Errors that already carry a
// status code are returned unchanged.
func ToHTTPError(err error) error {
	if err == nil {
		return nil
	}

	if httperror.IsHTTPError(err) {
		return err
	}

	var mappingErr *MappingError
	if errors.As(err, &mappingErr) {
		return mappingErr.ToHTTPError()
	}

	switch {
	case errors.Is(err, ErrUnauthenticated):
		return httperror.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrNotFound):
		return httperror.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrAlreadyReverted), errors.Is(err, ErrImportInProgress):
		return httperror.NewHTTPError(http.StatusConflict, err.Error())
	}

	return httperror.WrapError(http.StatusInternalServerError, err)
}
