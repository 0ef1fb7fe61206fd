package handlers

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/models"
)

type Normalizer interface {
	EnsureNormalized(ctx context.Context, userID string) (*models.NormalizationJob, error)
}

type NormalizationHandler struct {
	normalizer Normalizer
}

func NewNormalizationHandler(normalizer Normalizer) *NormalizationHandler {
	return &NormalizationHandler{
		normalizer: normalizer,
	}
}

func (h *NormalizationHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/normalization", h.Run)
}

// Run backfills the user's match keys once; later calls return the finished job
// POST /api/v1/normalization
func (h *NormalizationHandler) Run(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := callerID(c)
	if err != nil {
		return err
	}

	job, err := h.normalizer.EnsureNormalized(ctx, userID)
	if err != nil {
		return err
	}

	return ok(c, job)
}
