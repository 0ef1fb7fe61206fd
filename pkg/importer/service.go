// Package importer runs one lead import end to end: mapping, partitioning against the
// user's existing leads, recording the ledger entry and writing the batches.
package importer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/executor"
	"github.com/Ramsey-B/fern/pkg/mapping"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/partition"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/utils"
)

// LeadStore loads the user's leads for matching.
type LeadStore interface {
	SelectAll(ctx context.Context, userID string) ([]models.Lead, error)
}

type Ledger interface {
	Create(ctx context.Context, userID string, operationType models.OperationType, source string, leadCount int, metadata models.ImportMetadata) (string, error)
}

type Executor interface {
	Execute(ctx context.Context, userID string, operationID *string, plan executor.Plan, progress executor.Progress) (*executor.Summary, error)
}

type Normalizer interface {
	EnsureNormalized(ctx context.Context, userID string) (*models.NormalizationJob, error)
}

type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error
}

type Lineage interface {
	ProjectImport(ctx context.Context, userID, operationID string, leadIDs []string) error
}

type Events interface {
	ImportCompleted(ctx context.Context, userID string, event events.ImportCompletedEvent) error
}

// Request is one import run. Rows map input column names to raw values.
type Request struct {
	UserID        string                `json:"-"`
	OperationType models.OperationType  `json:"operation_type" validate:"required,oneof=csv maps-import api"`
	Filename      string                `json:"filename,omitempty" validate:"max=255"`
	Rows          []map[string]string   `json:"rows"`
	Mappings      []models.FieldMapping `json:"mappings,omitempty" validate:"dive"`
	Defaults      models.ImportDefaults `json:"defaults"`
}

// Result summarizes an import run.
type Result struct {
	OperationID  string                    `json:"operation_id,omitempty"`
	NewCount     int                       `json:"new_count"`
	MergedCount  int                       `json:"merged_count"`
	FailedCount  int                       `json:"failed_count"`
	SkippedCount int                       `json:"skipped_count"`
	Invalid      []partition.InvalidRecord `json:"invalid"`
	Skipped      []partition.SkippedRecord `json:"skipped,omitempty"`
	Warnings     []string                  `json:"warnings,omitempty"`
}

// IncompleteError reports an import that stopped before every batch was written.
// Result holds what was committed, including the operation id that undoes it.
type IncompleteError struct {
	Result *Result
	Err    error
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("import stopped after %d new and %d merged leads (operation %q): %s",
		e.Result.NewCount, e.Result.MergedCount, e.Result.OperationID, e.Err)
}

func (e *IncompleteError) Unwrap() error {
	return e.Err
}

type Config struct {
	LockTTL time.Duration
}

// Service orchestrates import runs. normalizer, locker, lineage and emitter may be nil.
type Service struct {
	logger      ectologger.Logger
	leads       LeadStore
	partitioner *partition.Partitioner
	ledger      Ledger
	executor    Executor
	normalizer  Normalizer
	locker      Locker
	lineage     Lineage
	events      Events
	config      Config
}

func NewService(
	logger ectologger.Logger,
	leads LeadStore,
	engine *matching.Engine,
	ledger Ledger,
	exec Executor,
	normalizer Normalizer,
	locker Locker,
	lineage Lineage,
	emitter Events,
	config Config,
) *Service {
	if config.LockTTL <= 0 {
		config.LockTTL = 10 * time.Minute
	}
	return &Service{
		logger:      logger,
		leads:       leads,
		partitioner: partition.New(engine),
		ledger:      ledger,
		executor:    exec,
		normalizer:  normalizer,
		locker:      locker,
		lineage:     lineage,
		events:      emitter,
		config:      config,
	}
}

// Import runs req. progress, when set, receives a percentage after every batch.
// Concurrent imports for the same user fail fast with ErrImportInProgress. When the
// run stops partway, the partial result is returned along with an *IncompleteError.
func (s *Service) Import(ctx context.Context, req Request, progress executor.Progress) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "importer.Service.Import")
	defer span.End()

	if req.UserID == "" {
		return nil, fernerrors.ErrUnauthenticated
	}
	if _, err := utils.Validate(req); err != nil {
		return nil, httperror.WrapError(http.StatusBadRequest, err)
	}
	mapper, err := mapping.NewMapper(req.Mappings)
	if err != nil {
		return nil, err
	}

	if s.locker == nil {
		return s.run(ctx, req, mapper, progress)
	}

	var result *Result
	err = s.locker.WithLock(ctx, redis.ImportLockKey(req.UserID), s.config.LockTTL, func(ctx context.Context) error {
		var err error
		result, err = s.run(ctx, req, mapper, progress)
		return err
	})
	if errors.Is(err, redis.ErrLockNotAcquired) {
		return nil, fernerrors.ErrImportInProgress
	}
	return result, err
}

func (s *Service) run(ctx context.Context, req Request, mapper *mapping.Mapper, progress executor.Progress) (*Result, error) {
	started := time.Now()
	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"user_id":        req.UserID,
		"operation_type": req.OperationType,
		"rows":           len(req.Rows),
	})
	result := &Result{Invalid: []partition.InvalidRecord{}}

	if s.normalizer != nil {
		if _, err := s.normalizer.EnsureNormalized(ctx, req.UserID); err != nil {
			log.WithError(err).Warn("Lead normalization failed, matching against stored keys")
			result.Warnings = append(result.Warnings, "existing leads could not be normalized; some duplicates may be missed")
		}
	}

	existing, err := s.leads.SelectAll(ctx, req.UserID)
	if err != nil {
		log.WithError(err).Error("Failed to load existing leads")
		metrics.RecordImport(string(req.OperationType), "error", time.Since(started).Seconds(), 0, 0, 0, 0, 0)
		return nil, err
	}

	parts := s.partitioner.Partition(mapper.MapRows(req.Rows), matching.NewIndex(existing), req.Defaults)
	result.Invalid = append(result.Invalid, parts.Invalid...)
	result.Skipped = parts.Skipped
	result.SkippedCount = len(parts.Skipped)

	var operationID *string
	id, err := s.ledger.Create(ctx, req.UserID, req.OperationType, req.Defaults.Source, len(req.Rows), models.ImportMetadata{
		Filename:         req.Filename,
		OverrideLocation: req.Defaults.OverrideLocation,
		Defaults:         req.Defaults,
		NewCount:         len(parts.ToInsert),
		MergedCount:      len(parts.ToUpdate),
		SkippedCount:     len(parts.Skipped),
		InvalidCount:     len(parts.Invalid),
	})
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("import history unavailable, this import cannot be undone: %s", err))
	} else {
		operationID = &id
		result.OperationID = id
	}

	summary, err := s.executor.Execute(ctx, req.UserID, operationID, executor.Plan{
		Updates: parts.ToUpdate,
		Inserts: parts.ToInsert,
	}, progress)
	if summary != nil {
		result.NewCount = summary.NewCount
		result.MergedCount = summary.MergedCount
		result.FailedCount = summary.FailedCount
	}
	if err != nil {
		log.WithError(err).WithFields(map[string]any{
			"operation_id": result.OperationID,
			"new_count":    result.NewCount,
			"merged_count": result.MergedCount,
		}).Error("Import stopped before all batches were written")
		metrics.RecordImport(string(req.OperationType), "error", time.Since(started).Seconds(),
			result.NewCount, result.MergedCount, result.SkippedCount, len(result.Invalid), result.FailedCount)
		return result, &IncompleteError{Result: result, Err: err}
	}

	status := "success"
	if result.FailedCount > 0 {
		status = "partial"
	}
	metrics.RecordImport(string(req.OperationType), status, time.Since(started).Seconds(),
		result.NewCount, result.MergedCount, result.SkippedCount, len(result.Invalid), result.FailedCount)

	s.publish(ctx, req, result, summary.Inserted)

	log.WithFields(map[string]any{
		"operation_id":  result.OperationID,
		"new_count":     result.NewCount,
		"merged_count":  result.MergedCount,
		"failed_count":  result.FailedCount,
		"skipped_count": result.SkippedCount,
		"invalid_count": len(result.Invalid),
	}).Info("Import completed")
	return result, nil
}

// publish projects lineage and emits import.completed. Both are best effort.
func (s *Service) publish(ctx context.Context, req Request, result *Result, inserted []models.Lead) {
	log := s.logger.WithContext(ctx).WithField("operation_id", result.OperationID)

	if s.lineage != nil && result.OperationID != "" && len(inserted) > 0 {
		ids := make([]string, len(inserted))
		for i, lead := range inserted {
			ids[i] = lead.ID
		}
		if err := s.lineage.ProjectImport(ctx, req.UserID, result.OperationID, ids); err != nil {
			log.WithError(err).Warn("Failed to project import lineage")
		}
	}

	if s.events != nil {
		if err := s.events.ImportCompleted(ctx, req.UserID, events.ImportCompletedEvent{
			OperationID:   result.OperationID,
			OperationType: string(req.OperationType),
			Source:        req.Defaults.Source,
			NewCount:      result.NewCount,
			MergedCount:   result.MergedCount,
			SkippedCount:  result.SkippedCount,
			InvalidCount:  len(result.Invalid),
			FailedCount:   result.FailedCount,
		}); err != nil {
			log.WithError(err).Warn("Failed to emit import.completed event")
		}
	}
}
