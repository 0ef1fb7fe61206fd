// Package lead is the postgres persistence for leads.
package lead

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/pkg/database"
	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const table = "leads"

// insertColumns are written on insert; timestamps come from column defaults.
var insertColumns = func() []string {
	cols := make([]string, 0, len(models.LeadColumns))
	for _, col := range models.LeadColumns {
		if col != "created_at" && col != "updated_at" {
			cols = append(cols, col)
		}
	}
	return cols
}()

// upsertClause fills only empty columns of an existing row and bumps updated_at
// only when something was filled.
var upsertClause = func() string {
	var fills, before, after []string
	for _, field := range models.LeadFields {
		if field.Column == "external_source_id" {
			continue
		}
		fill := fmt.Sprintf("COALESCE(NULLIF(leads.%[1]s, ''), EXCLUDED.%[1]s)", field.Column)
		fills = append(fills, fmt.Sprintf("%s = %s", field.Column, fill))
		before = append(before, "leads."+field.Column)
		after = append(after, fill)
	}
	return fmt.Sprintf(" ON CONFLICT (user_id, external_source_id) DO UPDATE SET %s, updated_at = CASE WHEN ROW(%s) IS DISTINCT FROM ROW(%s) THEN now() ELSE leads.updated_at END",
		strings.Join(fills, ", "), strings.Join(before, ", "), strings.Join(after, ", "))
}()

var returning = " RETURNING " + strings.Join(models.LeadColumns, ", ")

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

func (r *Repository) selectLeads() *sqlbuilder.SelectBuilder {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(models.LeadColumns...)
	sb.From(table)
	return sb
}

// SelectAll returns every lead the user owns.
func (r *Repository) SelectAll(ctx context.Context, userID string) ([]models.Lead, error) {
	ctx, span := tracing.StartSpan(ctx, "lead.Repository.SelectAll")
	defer span.End()

	sb := r.selectLeads()
	sb.Where(sb.Equal("user_id", userID))
	sb.OrderBy("created_at", "id")

	query, args := sb.Build()
	leads := []models.Lead{}
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &leads, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to select leads")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to load leads")
	}
	return leads, nil
}

func (r *Repository) Get(ctx context.Context, userID, id string) (*models.Lead, error) {
	ctx, span := tracing.StartSpan(ctx, "lead.Repository.Get")
	defer span.End()

	sb := r.selectLeads()
	sb.Where(sb.Equal("user_id", userID), sb.Equal("id", id))

	query, args := sb.Build()
	var lead models.Lead
	if err := database.Conn(ctx, r.db).GetContext(ctx, &lead, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("lead %s: %w", id, fernerrors.ErrNotFound)
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get lead")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get lead")
	}
	return &lead, nil
}

func (r *Repository) GetMany(ctx context.Context, userID string, ids []string) ([]models.Lead, error) {
	ctx, span := tracing.StartSpan(ctx, "lead.Repository.GetMany")
	defer span.End()

	if len(ids) == 0 {
		return []models.Lead{}, nil
	}

	sb := r.selectLeads()
	sb.Where(sb.Equal("user_id", userID), sb.In("id", sqlbuilder.Flatten(ids)...))
	sb.OrderBy("created_at", "id")

	query, args := sb.Build()
	leads := []models.Lead{}
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &leads, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get leads")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get leads")
	}
	return leads, nil
}

// FindByIdentityKey returns the user's leads stored under an identity key.
func (r *Repository) FindByIdentityKey(ctx context.Context, userID, identityKey string) ([]models.Lead, error) {
	ctx, span := tracing.StartSpan(ctx, "lead.Repository.FindByIdentityKey")
	defer span.End()

	if identityKey == "" {
		return []models.Lead{}, nil
	}

	sb := r.selectLeads()
	sb.Where(sb.Equal("user_id", userID), sb.Equal("identity_key", identityKey))
	sb.OrderBy("created_at", "id")

	query, args := sb.Build()
	leads := []models.Lead{}
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &leads, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to find leads by identity key")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find leads")
	}
	return leads, nil
}

// ListPage pages the user's leads by id.
func (r *Repository) ListPage(ctx context.Context, userID, afterID string, limit int) ([]models.Lead, error) {
	ctx, span := tracing.StartSpan(ctx, "lead.Repository.ListPage")
	defer span.End()

	sb := r.selectLeads()
	sb.Where(sb.Equal("user_id", userID))
	return r.page(ctx, sb, afterID, limit)
}

// ListByImportOperation pages the leads an import operation created, by id.
func (r *Repository) ListByImportOperation(ctx context.Context, userID, operationID, afterID string, limit int) ([]models.Lead, error) {
	ctx, span := tracing.StartSpan(ctx, "lead.Repository.ListByImportOperation")
	defer span.End()

	sb := r.selectLeads()
	sb.Where(sb.Equal("user_id", userID), sb.Equal("import_operation_id", operationID))
	return r.page(ctx, sb, afterID, limit)
}

func (r *Repository) page(ctx context.Context, sb *sqlbuilder.SelectBuilder, afterID string, limit int) ([]models.Lead, error) {
	if afterID != "" {
		sb.Where(sb.GreaterThan("id", afterID))
	}
	sb.OrderBy("id")
	sb.Limit(limit)

	query, args := sb.Build()
	leads := []models.Lead{}
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &leads, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to page leads")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list leads")
	}
	return leads, nil
}

// InsertMany inserts leads, merging into existing rows with the same
// (user_id, external_source_id) by filling their empty columns.
func (r *Repository) InsertMany(ctx context.Context, leads []models.Lead) ([]models.UpsertedLead, error) {
	ctx, span := tracing.StartSpan(ctx, "lead.Repository.InsertMany")
	defer span.End()

	rows := make([]models.UpsertedLead, 0, len(leads))
	// A single statement cannot upsert the same key twice.
	for _, round := range rounds(leads) {
		ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
		ib.InsertInto(table)
		ib.Cols(insertColumns...)
		for i := range round {
			ib.Values(insertValues(&round[i])...)
		}

		query, args := ib.Build()
		query += upsertClause + returning + ", (xmax = 0) AS inserted"

		var written []models.UpsertedLead
		if err := database.Conn(ctx, r.db).SelectContext(ctx, &written, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithField("count", len(round)).Error("Failed to insert leads")
			return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert leads")
		}
		rows = append(rows, written...)
	}
	return rows, nil
}

// rounds splits leads so that no natural key appears twice in one round.
func rounds(leads []models.Lead) [][]models.Lead {
	var out [][]models.Lead
	seen := map[string]int{}
	for _, lead := range leads {
		key := lead.UserID + "\x00" + lead.ExternalSourceID
		n := seen[key]
		seen[key] = n + 1
		if n == len(out) {
			out = append(out, nil)
		}
		out[n] = append(out[n], lead)
	}
	return out
}

func insertValues(lead *models.Lead) []any {
	values := make([]any, 0, len(insertColumns))
	for _, col := range insertColumns {
		switch col {
		case "id":
			values = append(values, lead.ID)
		case "user_id":
			values = append(values, lead.UserID)
		case "import_operation_id":
			values = append(values, lead.ImportOperationID)
		default:
			field, _ := models.FindLeadField(col)
			values = append(values, field.Get(lead))
		}
	}
	return values
}

// UpdateOne writes the changed columns of one lead. updated_at only moves when a
// value actually changed.
func (r *Repository) UpdateOne(ctx context.Context, userID string, update models.LeadUpdate) (*models.Lead, error) {
	ctx, span := tracing.StartSpan(ctx, "lead.Repository.UpdateOne")
	defer span.End()

	columns := make([]string, 0, len(update.Fields))
	for column := range update.Fields {
		field, ok := models.FindLeadField(column)
		if !ok || field.Policy == models.MergePolicyKeepMaster {
			return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "column %s cannot be updated", column)
		}
		columns = append(columns, column)
	}
	if len(columns) == 0 {
		return r.Get(ctx, userID, update.ID)
	}
	sort.Strings(columns)

	values := make([]any, len(columns))
	for i, column := range columns {
		values[i] = update.Fields[column]
	}
	return r.update(ctx, userID, update.ID, columns, values)
}

// UpdateMany applies updates in one transaction and returns how many rows changed.
func (r *Repository) UpdateMany(ctx context.Context, userID string, updates []models.LeadUpdate) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "lead.Repository.UpdateMany")
	defer span.End()

	updated := 0
	err := database.WithTx(ctx, r.db, func(ctx context.Context, _ database.Tx) error {
		for _, update := range updates {
			if _, err := r.UpdateOne(ctx, userID, update); err != nil {
				return err
			}
			updated++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

func (r *Repository) update(ctx context.Context, userID, id string, columns []string, values []any) (*models.Lead, error) {
	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(table)

	assignments := make([]string, 0, len(columns)+1)
	before := make([]string, len(columns))
	after := make([]string, len(columns))
	for i, column := range columns {
		assignments = append(assignments, ub.Assign(column, values[i]))
		before[i] = column
		after[i] = ub.Var(values[i])
	}
	assignments = append(assignments, fmt.Sprintf("updated_at = CASE WHEN ROW(%s) IS DISTINCT FROM ROW(%s) THEN now() ELSE updated_at END",
		strings.Join(before, ", "), strings.Join(after, ", ")))
	ub.Set(assignments...)
	ub.Where(ub.Equal("user_id", userID), ub.Equal("id", id))

	query, args := ub.Build()
	query += returning

	var lead models.Lead
	if err := database.Conn(ctx, r.db).GetContext(ctx, &lead, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("lead %s: %w", id, fernerrors.ErrNotFound)
		}
		r.logger.WithContext(ctx).WithError(err).WithField("lead_id", id).Error("Failed to update lead")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update lead")
	}
	return &lead, nil
}

// UpdateKeys rewrites the stored match keys without touching updated_at.
func (r *Repository) UpdateKeys(ctx context.Context, userID, id, identityKey, phoneDigits string) error {
	ctx, span := tracing.StartSpan(ctx, "lead.Repository.UpdateKeys")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(table)
	ub.Set(ub.Assign("identity_key", identityKey), ub.Assign("phone_digits", phoneDigits))
	ub.Where(ub.Equal("user_id", userID), ub.Equal("id", id))

	query, args := ub.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("lead_id", id).Error("Failed to update lead keys")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update lead keys")
	}
	return nil
}

// MergeInto saves master and deletes removeIDs in one transaction.
func (r *Repository) MergeInto(ctx context.Context, userID string, master models.Lead, removeIDs []string) (*models.Lead, error) {
	ctx, span := tracing.StartSpan(ctx, "lead.Repository.MergeInto")
	defer span.End()

	columns := make([]string, 0, len(models.LeadFields))
	values := make([]any, 0, len(models.LeadFields))
	for _, field := range models.LeadFields {
		columns = append(columns, field.Column)
		values = append(values, field.Get(&master))
	}

	var saved *models.Lead
	err := database.WithTx(ctx, r.db, func(ctx context.Context, tx database.Tx) error {
		var err error
		saved, err = r.update(ctx, userID, master.ID, columns, values)
		if err != nil {
			return err
		}
		if len(removeIDs) == 0 {
			return nil
		}

		db := sqlbuilder.PostgreSQL.NewDeleteBuilder()
		db.DeleteFrom(table)
		db.Where(db.Equal("user_id", userID), db.In("id", sqlbuilder.Flatten(removeIDs)...))

		query, args := db.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).Error("Failed to delete merged leads")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete merged leads")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// Now returns the database clock, the one that stamps updated_at.
func (r *Repository) Now(ctx context.Context) (time.Time, error) {
	var now time.Time
	if err := database.Conn(ctx, r.db).GetContext(ctx, &now, "SELECT now()"); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to read database clock")
		return time.Time{}, httperror.NewHTTPError(http.StatusInternalServerError, "failed to read database clock")
	}
	return now, nil
}

// DeleteMany deletes the listed leads that were not modified after notModifiedAfter
// and returns the deleted ids.
func (r *Repository) DeleteMany(ctx context.Context, userID string, ids []string, notModifiedAfter time.Time) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "lead.Repository.DeleteMany")
	defer span.End()

	if len(ids) == 0 {
		return []string{}, nil
	}

	db := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	db.DeleteFrom(table)
	db.Where(
		db.Equal("user_id", userID),
		db.In("id", sqlbuilder.Flatten(ids)...),
		db.LessEqualThan("updated_at", notModifiedAfter),
	)

	query, args := db.Build()
	query += " RETURNING id"

	deleted := []string{}
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &deleted, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("count", len(ids)).Error("Failed to delete leads")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete leads")
	}
	return deleted, nil
}
