package lead_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/internal/repositories/lead"
	"github.com/Ramsey-B/fern/internal/repositories/repotest"
	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
)

func newLead(userID, company, externalID string) models.Lead {
	return models.Lead{
		ID:               uuid.NewString(),
		UserID:           userID,
		CompanyName:      company,
		ExternalSourceID: externalID,
	}
}

func TestRepository_InsertMany(t *testing.T) {
	db := repotest.Open(t)
	repo := lead.NewRepository(db, repotest.Logger())
	ctx := context.Background()
	userID := uuid.NewString()

	first := newLead(userID, "Acme Roofing", "ext-1")
	first.Phone = "555-0100"
	rows, err := repo.InsertMany(ctx, []models.Lead{first})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Inserted)

	t.Run("conflict fills only empty columns", func(t *testing.T) {
		again := newLead(userID, "Acme Roofing LLC", "ext-1")
		again.Phone = "555-9999"
		again.Email = "info@acme.com"

		rows, err := repo.InsertMany(ctx, []models.Lead{again})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.False(t, rows[0].Inserted)
		assert.Equal(t, first.ID, rows[0].ID)
		assert.Equal(t, "Acme Roofing", rows[0].CompanyName)
		assert.Equal(t, "555-0100", rows[0].Phone)
		assert.Equal(t, "info@acme.com", rows[0].Email)
	})

	t.Run("repeated keys in one batch", func(t *testing.T) {
		a := newLead(userID, "Bolt Electric", "ext-2")
		b := newLead(userID, "Bolt Electric", "ext-2")
		b.Website = "bolt.com"

		rows, err := repo.InsertMany(ctx, []models.Lead{a, b})
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.True(t, rows[0].Inserted)
		assert.False(t, rows[1].Inserted)
		assert.Equal(t, "bolt.com", rows[1].Website)
	})

	all, err := repo.SelectAll(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRepository_UpdateOne(t *testing.T) {
	db := repotest.Open(t)
	repo := lead.NewRepository(db, repotest.Logger())
	ctx := context.Background()
	userID := uuid.NewString()

	rows, err := repo.InsertMany(ctx, []models.Lead{newLead(userID, "Acme", "ext-1")})
	require.NoError(t, err)
	created := rows[0].Lead

	updated, err := repo.UpdateOne(ctx, userID, models.LeadUpdate{ID: created.ID, Fields: map[string]string{"email": "a@acme.com"}})
	require.NoError(t, err)
	assert.Equal(t, "a@acme.com", updated.Email)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt) || updated.UpdatedAt.Equal(created.UpdatedAt))

	unchanged, err := repo.UpdateOne(ctx, userID, models.LeadUpdate{ID: created.ID, Fields: map[string]string{"email": "a@acme.com"}})
	require.NoError(t, err)
	assert.Equal(t, updated.UpdatedAt, unchanged.UpdatedAt)

	_, err = repo.UpdateOne(ctx, uuid.NewString(), models.LeadUpdate{ID: created.ID, Fields: map[string]string{"email": "x@y.com"}})
	assert.ErrorIs(t, err, fernerrors.ErrNotFound)

	_, err = repo.UpdateOne(ctx, userID, models.LeadUpdate{ID: created.ID, Fields: map[string]string{"external_source_id": "other"}})
	assert.Error(t, err)
}

func TestRepository_MergeInto(t *testing.T) {
	db := repotest.Open(t)
	repo := lead.NewRepository(db, repotest.Logger())
	ctx := context.Background()
	userID := uuid.NewString()

	rows, err := repo.InsertMany(ctx, []models.Lead{
		newLead(userID, "Acme", "ext-1"),
		newLead(userID, "Acme Inc", "ext-2"),
	})
	require.NoError(t, err)
	master := rows[0].Lead
	master.Notes = "merged"

	saved, err := repo.MergeInto(ctx, userID, master, []string{rows[1].ID})
	require.NoError(t, err)
	assert.Equal(t, "merged", saved.Notes)

	remaining, err := repo.GetMany(ctx, userID, []string{rows[0].ID, rows[1].ID})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, master.ID, remaining[0].ID)
}

func TestRepository_DeleteMany(t *testing.T) {
	db := repotest.Open(t)
	repo := lead.NewRepository(db, repotest.Logger())
	ctx := context.Background()
	userID := uuid.NewString()
	operationID := uuid.NewString()

	leads := []models.Lead{newLead(userID, "A", "ext-1"), newLead(userID, "B", "ext-2"), newLead(userID, "C", "ext-3")}
	for i := range leads {
		leads[i].ImportOperationID = &operationID
	}
	_, err := repo.InsertMany(ctx, leads)
	require.NoError(t, err)

	page, err := repo.ListByImportOperation(ctx, userID, operationID, "", 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	rest, err := repo.ListByImportOperation(ctx, userID, operationID, page[1].ID, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)

	deleted, err := repo.DeleteMany(ctx, userID, []string{page[0].ID}, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, deleted)

	deleted, err = repo.DeleteMany(ctx, userID, []string{page[0].ID, page[1].ID}, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{page[0].ID, page[1].ID}, deleted)

	_, err = repo.Get(ctx, userID, page[0].ID)
	assert.ErrorIs(t, err, fernerrors.ErrNotFound)

	dbNow, err := repo.Now(ctx)
	require.NoError(t, err)
	deleted, err = repo.DeleteMany(ctx, userID, []string{rest[0].ID}, dbNow)
	require.NoError(t, err)
	assert.Equal(t, []string{rest[0].ID}, deleted)
}

func TestRepository_Keys(t *testing.T) {
	db := repotest.Open(t)
	repo := lead.NewRepository(db, repotest.Logger())
	ctx := context.Background()
	userID := uuid.NewString()

	rows, err := repo.InsertMany(ctx, []models.Lead{newLead(userID, "Acme", "ext-1")})
	require.NoError(t, err)

	require.NoError(t, repo.UpdateKeys(ctx, userID, rows[0].ID, "acme|austin|tx", "5550100"))

	found, err := repo.FindByIdentityKey(ctx, userID, "acme|austin|tx")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "5550100", found[0].PhoneDigits)
	assert.Equal(t, rows[0].UpdatedAt, found[0].UpdatedAt)

	page, err := repo.ListPage(ctx, userID, "", 10)
	require.NoError(t, err)
	assert.Len(t, page, 1)
}
