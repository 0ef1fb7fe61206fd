package handlers

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/utils"
)

type Duplicates interface {
	FindDuplicates(ctx context.Context, userID string) ([]models.DuplicateGroup, error)
	MergeGroup(ctx context.Context, userID string, ids []string, masterID string) (*models.Lead, error)
}

// DuplicateHandler lists duplicate groups and merges them on request
type DuplicateHandler struct {
	duplicates Duplicates
}

func NewDuplicateHandler(duplicates Duplicates) *DuplicateHandler {
	return &DuplicateHandler{
		duplicates: duplicates,
	}
}

// MergeRequest is the request body for merging a duplicate group
type MergeRequest struct {
	LeadIDs  []string `json:"lead_ids" validate:"required,min=2,dive,uuid"`
	MasterID string   `json:"master_id" validate:"required,uuid"`
}

// RegisterRoutes registers the duplicate routes
func (h *DuplicateHandler) RegisterRoutes(g *echo.Group) {
	duplicates := g.Group("/duplicates")
	duplicates.GET("", h.Find)
	duplicates.POST("/merge", h.Merge)
}

// Find handles GET /duplicates
func (h *DuplicateHandler) Find(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := callerID(c)
	if err != nil {
		return err
	}

	groups, err := h.duplicates.FindDuplicates(ctx, userID)
	if err != nil {
		return err
	}

	return ok(c, groups)
}

// Merge handles POST /duplicates/merge
func (h *DuplicateHandler) Merge(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := callerID(c)
	if err != nil {
		return err
	}

	req, err := utils.BindRequest[MergeRequest](c)
	if err != nil {
		return err
	}

	master, err := h.duplicates.MergeGroup(ctx, userID, req.LeadIDs, req.MasterID)
	if err != nil {
		return err
	}

	return ok(c, master)
}
