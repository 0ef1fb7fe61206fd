package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/executor"
	"github.com/Ramsey-B/fern/pkg/importer"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/undo"
	"github.com/Ramsey-B/fern/pkg/utils"
)

type Importer interface {
	Import(ctx context.Context, req importer.Request, progress executor.Progress) (*importer.Result, error)
}

type Operations interface {
	List(ctx context.Context, userID string, limit int) ([]models.ImportOperation, error)
	Get(ctx context.Context, userID, id string) (*models.ImportOperation, error)
}

type Reverter interface {
	CanUndo(op *models.ImportOperation) bool
	RevertByID(ctx context.Context, userID, operationID, actor string) (*undo.Result, error)
	RevertLast(ctx context.Context, userID, actor string) (*undo.Result, error)
}

// ImportHandler handles imports, the import history and undo
type ImportHandler struct {
	importer   Importer
	operations Operations
	reverter   Reverter
}

// NewImportHandler creates a new import handler
func NewImportHandler(
	importer Importer,
	operations Operations,
	reverter Reverter,
) *ImportHandler {
	return &ImportHandler{
		importer:   importer,
		operations: operations,
		reverter:   reverter,
	}
}

// OperationResponse is a ledger entry plus whether it can still be undone
type OperationResponse struct {
	models.ImportOperation
	CanUndo bool `json:"can_undo"`
}

// IncompleteImportResponse is returned when an import stops partway. Result counts the
// rows already written and carries the operation id that undoes them.
type IncompleteImportResponse struct {
	Message string           `json:"message"`
	Result  *importer.Result `json:"result"`
}

// RegisterRoutes registers the import routes
func (h *ImportHandler) RegisterRoutes(g *echo.Group) {
	imports := g.Group("/imports")
	imports.POST("", h.Import)
	imports.GET("", h.List)
	imports.POST("/undo-last", h.UndoLast)
	imports.GET("/:id", h.Get)
	imports.POST("/:id/undo", h.Undo)
}

// Import runs an import
// POST /api/v1/imports
func (h *ImportHandler) Import(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := callerID(c)
	if err != nil {
		return err
	}

	req, err := utils.BindRequest[importer.Request](c)
	if err != nil {
		return err
	}
	req.UserID = userID

	result, err := h.importer.Import(ctx, req, nil)
	var incomplete *importer.IncompleteError
	if errors.As(err, &incomplete) {
		return c.JSON(http.StatusServiceUnavailable, IncompleteImportResponse{
			Message: "import stopped before all rows were written",
			Result:  incomplete.Result,
		})
	}
	if err != nil {
		return err
	}

	return created(c, result)
}

// List returns the most recent import operations
// GET /api/v1/imports
func (h *ImportHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := callerID(c)
	if err != nil {
		return err
	}

	limit, err := intQuery(c, "limit", 0)
	if err != nil {
		return err
	}

	ops, err := h.operations.List(ctx, userID, limit)
	if err != nil {
		return err
	}

	resp := make([]OperationResponse, len(ops))
	for i := range ops {
		resp[i] = OperationResponse{ImportOperation: ops[i], CanUndo: h.reverter.CanUndo(&ops[i])}
	}
	return ok(c, resp)
}

// Get returns one import operation
// GET /api/v1/imports/:id
func (h *ImportHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := callerID(c)
	if err != nil {
		return err
	}

	id, err := idParam(c, "id")
	if err != nil {
		return err
	}

	op, err := h.operations.Get(ctx, userID, id)
	if err != nil {
		return err
	}

	return ok(c, OperationResponse{ImportOperation: *op, CanUndo: h.reverter.CanUndo(op)})
}

// Undo reverts one import operation
// POST /api/v1/imports/:id/undo
func (h *ImportHandler) Undo(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := callerID(c)
	if err != nil {
		return err
	}

	id, err := idParam(c, "id")
	if err != nil {
		return err
	}

	result, err := h.reverter.RevertByID(ctx, userID, id, userID)
	if err != nil {
		return err
	}

	return ok(c, result)
}

// UndoLast reverts the user's most recent import operation
// POST /api/v1/imports/undo-last
func (h *ImportHandler) UndoLast(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := callerID(c)
	if err != nil {
		return err
	}

	result, err := h.reverter.RevertLast(ctx, userID, userID)
	if err != nil {
		return err
	}

	return ok(c, result)
}
