// Package undo reverts import operations by deleting the leads they created, as long
// as the operation is recent and the leads were not edited since.
package undo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	ReasonExpired         = "expired"
	ReasonAlreadyReverted = "already_reverted"
	ReasonNothingToDelete = "nothing_to_delete"
)

// LeadStore reads and deletes the leads tagged with an import operation.
type LeadStore interface {
	// ListByImportOperation pages leads of an operation ordered by id, after afterID.
	ListByImportOperation(ctx context.Context, userID, operationID, afterID string, limit int) ([]models.Lead, error)
	// DeleteMany deletes the given leads whose updated_at is not after notModifiedAfter
	// and returns the ids it removed.
	DeleteMany(ctx context.Context, userID string, ids []string, notModifiedAfter time.Time) ([]string, error)
	// Now reads the clock that stamps updated_at.
	Now(ctx context.Context) (time.Time, error)
}

type Ledger interface {
	Get(ctx context.Context, userID, id string) (*models.ImportOperation, error)
	Latest(ctx context.Context, userID string) (*models.ImportOperation, error)
	MarkReverted(ctx context.Context, id, actor string, at time.Time) error
}

type Lineage interface {
	RemoveImport(ctx context.Context, userID, operationID string, deletedIDs []string) error
}

type Events interface {
	ImportReverted(ctx context.Context, userID string, event events.ImportRevertedEvent) error
}

type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error
}

type Config struct {
	Window                time.Duration
	ModificationTolerance time.Duration
	PageSize              int
	DeleteBatchSize       int
	LockTTL               time.Duration
}

func DefaultConfig() Config {
	return Config{
		Window:                5 * time.Minute,
		ModificationTolerance: 2 * time.Second,
		PageSize:              500,
		DeleteBatchSize:       100,
		LockTTL:               5 * time.Minute,
	}
}

// Result is the outcome of one revert. Reason is set when nothing was reverted.
type Result struct {
	Success      bool   `json:"success"`
	DeletedCount int    `json:"deleted_count"`
	Reason       string `json:"reason,omitempty"`
}

// Controller reverts import operations.
type Controller struct {
	logger  ectologger.Logger
	leads   LeadStore
	ledger  Ledger
	lineage Lineage
	events  Events
	locker  Locker
	config  Config
	now     func() time.Time
}

// NewController creates an undo controller. lineage, emitter and locker may be nil.
func NewController(logger ectologger.Logger, leads LeadStore, ledger Ledger, lineage Lineage, emitter Events, locker Locker, config Config) *Controller {
	defaults := DefaultConfig()
	if config.Window <= 0 {
		config.Window = defaults.Window
	}
	if config.ModificationTolerance < 0 {
		config.ModificationTolerance = 0
	}
	if config.PageSize <= 0 {
		config.PageSize = defaults.PageSize
	}
	if config.DeleteBatchSize <= 0 {
		config.DeleteBatchSize = defaults.DeleteBatchSize
	}
	if config.LockTTL <= 0 {
		config.LockTTL = defaults.LockTTL
	}
	return &Controller{
		logger:  logger,
		leads:   leads,
		ledger:  ledger,
		lineage: lineage,
		events:  emitter,
		locker:  locker,
		config:  config,
		now:     time.Now,
	}
}

// CanUndo reports whether op is still active and inside the undo window.
func (c *Controller) CanUndo(op *models.ImportOperation) bool {
	return c.canUndoAt(op, c.now())
}

func (c *Controller) canUndoAt(op *models.ImportOperation, now time.Time) bool {
	if op == nil || op.IsReverted() {
		return false
	}
	return now.Sub(op.CreatedAt) <= c.config.Window
}

// RevertByID loads the user's operation and reverts it.
func (c *Controller) RevertByID(ctx context.Context, userID, operationID, actor string) (*Result, error) {
	if userID == "" {
		return nil, fernerrors.ErrUnauthenticated
	}
	op, err := c.ledger.Get(ctx, userID, operationID)
	if err != nil {
		return nil, err
	}
	return c.Revert(ctx, op, actorOrUser(actor, userID))
}

// RevertLast reverts the user's most recent operation.
func (c *Controller) RevertLast(ctx context.Context, userID, actor string) (*Result, error) {
	if userID == "" {
		return nil, fernerrors.ErrUnauthenticated
	}
	op, err := c.ledger.Latest(ctx, userID)
	if err != nil {
		return nil, err
	}
	return c.Revert(ctx, op, actorOrUser(actor, userID))
}

// Revert deletes the leads op created that nobody modified afterwards, then marks op
// reverted. When op cannot be undone or no lead qualifies, the ledger is left as is
// and the result is unsuccessful.
func (c *Controller) Revert(ctx context.Context, op *models.ImportOperation, actor string) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "undo.Controller.Revert")
	defer span.End()

	if op == nil {
		return nil, fmt.Errorf("revert: %w", fernerrors.ErrNotFound)
	}
	if op.UserID == "" {
		return nil, fernerrors.ErrUnauthenticated
	}

	// Invocation time comes from the store so it is comparable with updated_at.
	now, err := c.leads.Now(ctx)
	if err != nil {
		return nil, err
	}
	switch {
	case op.IsReverted():
		return c.refuse(ctx, op, ReasonAlreadyReverted), nil
	case !c.canUndoAt(op, now):
		return c.refuse(ctx, op, ReasonExpired), nil
	}

	var result *Result
	run := func(ctx context.Context) error {
		var err error
		result, err = c.revert(ctx, op, actorOrUser(actor, op.UserID), now)
		return err
	}

	if c.locker == nil {
		if err := run(ctx); err != nil {
			return nil, err
		}
		return result, nil
	}

	if err := c.locker.WithLock(ctx, redis.ImportLockKey(op.UserID), c.config.LockTTL, run); err != nil {
		if errors.Is(err, redis.ErrLockNotAcquired) {
			return nil, fernerrors.ErrImportInProgress
		}
		return nil, err
	}
	return result, nil
}

func (c *Controller) revert(ctx context.Context, op *models.ImportOperation, actor string, now time.Time) (*Result, error) {
	log := c.logger.WithContext(ctx).WithFields(map[string]any{
		"user_id":      op.UserID,
		"operation_id": op.ID,
		"reverted_by":  actor,
	})

	ids, err := c.eligible(ctx, op, now)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return c.refuse(ctx, op, ReasonNothingToDelete), nil
	}

	deleted := make([]string, 0, len(ids))
	for start := 0; start < len(ids); start += c.config.DeleteBatchSize {
		batch := ids[start:min(start+c.config.DeleteBatchSize, len(ids))]
		removed, err := c.leads.DeleteMany(ctx, op.UserID, batch, now)
		if err != nil {
			log.WithError(err).WithField("deleted", len(deleted)).Error("Failed to delete imported leads")
			return nil, err
		}
		deleted = append(deleted, removed...)
	}
	if len(deleted) == 0 {
		return c.refuse(ctx, op, ReasonNothingToDelete), nil
	}

	if err := c.ledger.MarkReverted(ctx, op.ID, actor, now); err != nil {
		log.WithError(err).Error("Deleted imported leads but failed to mark the operation reverted")
		return nil, err
	}
	metrics.RecordUndo("reverted", len(deleted))

	if c.lineage != nil {
		if err := c.lineage.RemoveImport(ctx, op.UserID, op.ID, deleted); err != nil {
			log.WithError(err).Warn("Failed to remove import lineage")
		}
	}
	if c.events != nil {
		if err := c.events.ImportReverted(ctx, op.UserID, events.ImportRevertedEvent{
			OperationID:  op.ID,
			RevertedBy:   actor,
			DeletedCount: len(deleted),
		}); err != nil {
			log.WithError(err).Warn("Failed to emit import.reverted event")
		}
	}

	log.WithFields(map[string]any{
		"eligible": len(ids),
		"deleted":  len(deleted),
	}).Info("Reverted import operation")
	return &Result{Success: true, DeletedCount: len(deleted)}, nil
}

// eligible pages through the operation's leads and keeps the unmodified ones.
func (c *Controller) eligible(ctx context.Context, op *models.ImportOperation, now time.Time) ([]string, error) {
	var ids []string
	afterID := ""
	for {
		page, err := c.leads.ListByImportOperation(ctx, op.UserID, op.ID, afterID, c.config.PageSize)
		if err != nil {
			return nil, err
		}
		for i := range page {
			if c.unmodified(&page[i], now) {
				ids = append(ids, page[i].ID)
			}
		}
		if len(page) < c.config.PageSize {
			return ids, nil
		}
		afterID = page[len(page)-1].ID
	}
}

func (c *Controller) unmodified(lead *models.Lead, now time.Time) bool {
	if lead.UpdatedAt.After(now) {
		return false
	}
	return !lead.UpdatedAt.After(lead.CreatedAt.Add(c.config.ModificationTolerance))
}

func (c *Controller) refuse(ctx context.Context, op *models.ImportOperation, reason string) *Result {
	metrics.RecordUndo(reason, 0)
	c.logger.WithContext(ctx).WithFields(map[string]any{
		"user_id":      op.UserID,
		"operation_id": op.ID,
		"reason":       reason,
	}).Info("Import operation not reverted")
	return &Result{Success: false, DeletedCount: 0, Reason: reason}
}

func actorOrUser(actor, userID string) string {
	if actor == "" {
		return userID
	}
	return actor
}
