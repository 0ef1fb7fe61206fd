// Package importoperation persists the import ledger.
package importoperation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/pkg/database"
	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const table = "import_operations"

var columns = []string{
	"id", "user_id", "operation_type", "source", "lead_count", "metadata", "created_at", "reverted_at", "reverted_by",
}

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

// Create inserts op. A retried insert of the same id is a no-op.
func (r *Repository) Create(ctx context.Context, op *models.ImportOperation) error {
	ctx, span := tracing.StartSpan(ctx, "importoperation.Repository.Create")
	defer span.End()

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols("id", "user_id", "operation_type", "source", "lead_count", "metadata", "created_at")
	ib.Values(op.ID, op.UserID, op.OperationType, op.Source, op.LeadCount, op.Metadata, op.CreatedAt)

	query, args := ib.Build()
	query += " ON CONFLICT (id) DO NOTHING"

	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("operation_id", op.ID).Error("Failed to create import operation")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create import operation")
	}
	return nil
}

// List returns the user's most recent operations first.
func (r *Repository) List(ctx context.Context, userID string, limit int) ([]models.ImportOperation, error) {
	ctx, span := tracing.StartSpan(ctx, "importoperation.Repository.List")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("user_id", userID))
	sb.OrderBy("created_at").Desc()
	sb.Limit(limit)

	query, args := sb.Build()
	ops := []models.ImportOperation{}
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &ops, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list import operations")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list import operations")
	}
	return ops, nil
}

func (r *Repository) Get(ctx context.Context, userID, id string) (*models.ImportOperation, error) {
	ctx, span := tracing.StartSpan(ctx, "importoperation.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("user_id", userID), sb.Equal("id", id))

	return r.get(ctx, sb, id)
}

// Latest returns the user's most recent operation, reverted or not.
func (r *Repository) Latest(ctx context.Context, userID string) (*models.ImportOperation, error) {
	ctx, span := tracing.StartSpan(ctx, "importoperation.Repository.Latest")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("user_id", userID))
	sb.OrderBy("created_at").Desc()
	sb.Limit(1)

	return r.get(ctx, sb, "latest")
}

func (r *Repository) get(ctx context.Context, sb *sqlbuilder.SelectBuilder, label string) (*models.ImportOperation, error) {
	query, args := sb.Build()
	var op models.ImportOperation
	if err := database.Conn(ctx, r.db).GetContext(ctx, &op, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("import operation %s: %w", label, fernerrors.ErrNotFound)
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get import operation")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get import operation")
	}
	return &op, nil
}

// MarkReverted closes an active operation. It reports false when the operation was
// already reverted or does not exist.
func (r *Repository) MarkReverted(ctx context.Context, id, actor string, at time.Time) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "importoperation.Repository.MarkReverted")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(table)
	ub.Set(ub.Assign("reverted_at", at), ub.Assign("reverted_by", actor))
	ub.Where(ub.Equal("id", id), ub.IsNull("reverted_at"))

	query, args := ub.Build()
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("operation_id", id).Error("Failed to mark import operation reverted")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark import operation reverted")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark import operation reverted")
	}
	return affected > 0, nil
}
