// Package ledger records import operations so they can be listed and reverted.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	DefaultListLimit = 10
	MaxListLimit     = 100
)

// Store persists ledger entries.
type Store interface {
	// Create inserts op. Inserting an id that already exists is not an error.
	Create(ctx context.Context, op *models.ImportOperation) error
	List(ctx context.Context, userID string, limit int) ([]models.ImportOperation, error)
	Get(ctx context.Context, userID, id string) (*models.ImportOperation, error)
	Latest(ctx context.Context, userID string) (*models.ImportOperation, error)
	// MarkReverted sets reverted_at and reverted_by when the entry is still active.
	// It reports whether a row changed.
	MarkReverted(ctx context.Context, id, actor string, at time.Time) (bool, error)
}

type Config struct {
	CreateAttempts   int
	CreateRetryDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		CreateAttempts:   3,
		CreateRetryDelay: 200 * time.Millisecond,
	}
}

// Ledger is the append-only log of import operations.
type Ledger struct {
	logger ectologger.Logger
	store  Store
	config Config
	now    func() time.Time
}

func New(logger ectologger.Logger, store Store, config Config) *Ledger {
	if config.CreateAttempts < 1 {
		config.CreateAttempts = DefaultConfig().CreateAttempts
	}
	if config.CreateRetryDelay < 0 {
		config.CreateRetryDelay = 0
	}
	return &Ledger{
		logger: logger,
		store:  store,
		config: config,
		now:    time.Now,
	}
}

// Create records a new import operation and returns its id. The id is chosen once so
// a retried insert that already landed is not duplicated.
func (l *Ledger) Create(ctx context.Context, userID string, operationType models.OperationType, source string, leadCount int, metadata models.ImportMetadata) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "ledger.Ledger.Create")
	defer span.End()

	if userID == "" {
		return "", fernerrors.ErrUnauthenticated
	}

	op := &models.ImportOperation{
		ID:            uuid.NewString(),
		UserID:        userID,
		OperationType: operationType,
		Source:        source,
		LeadCount:     leadCount,
		Metadata:      database.NewJSONB(metadata),
		CreatedAt:     l.now().UTC(),
	}

	log := l.logger.WithContext(ctx).WithFields(map[string]any{
		"user_id":        userID,
		"operation_id":   op.ID,
		"operation_type": operationType,
	})

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(l.config.CreateRetryDelay), uint64(l.config.CreateAttempts-1)),
		ctx,
	)
	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		return l.store.Create(ctx, op)
	}, bo, func(err error, wait time.Duration) {
		log.WithError(err).WithField("attempt", attempt).Debugf("Ledger create failed, retrying in %s", wait)
	})
	if err != nil {
		metrics.LedgerCreateFailuresTotal.Inc()
		log.WithError(err).WithField("attempts", attempt).Warn("Failed to record import operation, continuing without undo")
		return "", fmt.Errorf("record import operation after %d attempts: %w", attempt, err)
	}

	log.Debug("Recorded import operation")
	return op.ID, nil
}

// List returns the user's most recent operations, newest first.
func (l *Ledger) List(ctx context.Context, userID string, limit int) ([]models.ImportOperation, error) {
	if userID == "" {
		return nil, fernerrors.ErrUnauthenticated
	}
	return l.store.List(ctx, userID, ClampLimit(limit))
}

func (l *Ledger) Get(ctx context.Context, userID, id string) (*models.ImportOperation, error) {
	if userID == "" {
		return nil, fernerrors.ErrUnauthenticated
	}
	return l.store.Get(ctx, userID, id)
}

// Latest returns the user's most recent operation.
func (l *Ledger) Latest(ctx context.Context, userID string) (*models.ImportOperation, error) {
	if userID == "" {
		return nil, fernerrors.ErrUnauthenticated
	}
	return l.store.Latest(ctx, userID)
}

// MarkReverted moves an active entry to reverted. It fails with ErrAlreadyReverted
// when the entry was reverted before.
func (l *Ledger) MarkReverted(ctx context.Context, id, actor string, at time.Time) error {
	changed, err := l.store.MarkReverted(ctx, id, actor, at)
	if err != nil {
		return err
	}
	if !changed {
		return fernerrors.ErrAlreadyReverted
	}

	l.logger.WithContext(ctx).WithFields(map[string]any{
		"operation_id": id,
		"reverted_by":  actor,
	}).Info("Import operation reverted")
	return nil
}

// ClampLimit bounds a list size to [1, MaxListLimit], using DefaultListLimit for zero.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}
