// Package normalizationjob persists the per-user backfill markers.
package normalizationjob

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/pkg/database"
	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	table     = "normalization_jobs"
	returning = " RETURNING id, user_id, job_key, started_at, completed_at, processed_count"
)

type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) Get(ctx context.Context, userID, jobKey string) (*models.NormalizationJob, error) {
	ctx, span := tracing.StartSpan(ctx, "normalizationjob.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "user_id", "job_key", "started_at", "completed_at", "processed_count")
	sb.From(table)
	sb.Where(sb.Equal("user_id", userID), sb.Equal("job_key", jobKey))

	query, args := sb.Build()
	var job models.NormalizationJob
	if err := database.Conn(ctx, r.db).GetContext(ctx, &job, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("normalization job %s: %w", jobKey, fernerrors.ErrNotFound)
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get normalization job")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get normalization job")
	}
	return &job, nil
}

// Start creates the job, or restarts it when a previous run never completed.
func (r *Repository) Start(ctx context.Context, userID, jobKey string, at time.Time) (*models.NormalizationJob, error) {
	ctx, span := tracing.StartSpan(ctx, "normalizationjob.Repository.Start")
	defer span.End()

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols("id", "user_id", "job_key", "started_at")
	ib.Values(uuid.NewString(), userID, jobKey, at)

	query, args := ib.Build()
	query += " ON CONFLICT (user_id, job_key) DO UPDATE SET started_at = EXCLUDED.started_at, completed_at = NULL, processed_count = 0" + returning

	var job models.NormalizationJob
	if err := database.Conn(ctx, r.db).GetContext(ctx, &job, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("job_key", jobKey).Error("Failed to start normalization job")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start normalization job")
	}
	return &job, nil
}

func (r *Repository) Complete(ctx context.Context, id string, processed int, at time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "normalizationjob.Repository.Complete")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(table)
	ub.Set(ub.Assign("completed_at", at), ub.Assign("processed_count", processed))
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("job_id", id).Error("Failed to complete normalization job")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to complete normalization job")
	}
	return nil
}
