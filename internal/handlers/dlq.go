package handlers

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/redis"
)

type DeadLetters interface {
	List(ctx context.Context, count int64) ([]redis.DLQEntry, error)
	Count(ctx context.Context) (int64, error)
}

// DLQHandler exposes maps-import messages that could not be imported
type DLQHandler struct {
	dlq DeadLetters
}

func NewDLQHandler(dlq DeadLetters) *DLQHandler {
	return &DLQHandler{
		dlq: dlq,
	}
}

// DLQListResponse represents the response for listing DLQ entries
type DLQListResponse struct {
	Entries []redis.DLQEntry `json:"entries"`
	Count   int              `json:"count"`
	Total   int64            `json:"total"`
}

// RegisterRoutes registers the DLQ routes
func (h *DLQHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/dlq", h.List)
}

// List returns parked entries for the caller
// GET /api/v1/dlq
func (h *DLQHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := callerID(c)
	if err != nil {
		return err
	}

	count, err := intQuery(c, "count", 100)
	if err != nil {
		return err
	}

	entries, err := h.dlq.List(ctx, int64(count))
	if err != nil {
		return err
	}

	// Entries of other users are never shown.
	own := make([]redis.DLQEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.UserID == userID {
			own = append(own, entry)
		}
	}

	total, _ := h.dlq.Count(ctx)

	return ok(c, DLQListResponse{
		Entries: own,
		Count:   len(own),
		Total:   total,
	})
}
