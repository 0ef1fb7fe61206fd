package handlers

import (
	"context"

	"github.com/labstack/echo/v4"
)

type Lineage interface {
	MergeHistory(ctx context.Context, userID, leadID string) ([]string, error)
}

// LineageHandler answers provenance questions from the lineage graph. It is only
// registered when a graph database is configured.
type LineageHandler struct {
	lineage Lineage
}

func NewLineageHandler(lineage Lineage) *LineageHandler {
	return &LineageHandler{lineage: lineage}
}

func (h *LineageHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/leads/:id/merge-history", h.MergeHistory)
}

type MergeHistoryResponse struct {
	LeadID    string   `json:"lead_id"`
	MergedIDs []string `json:"merged_ids"`
}

// MergeHistory lists every lead folded into :id, directly or through earlier merges.
// GET /api/v1/leads/:id/merge-history
func (h *LineageHandler) MergeHistory(c echo.Context) error {
	userID, err := callerID(c)
	if err != nil {
		return err
	}
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}

	merged, err := h.lineage.MergeHistory(c.Request().Context(), userID, id)
	if err != nil {
		return err
	}
	return ok(c, MergeHistoryResponse{LeadID: id, MergedIDs: merged})
}
