package importoperation_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/internal/repositories/importoperation"
	"github.com/Ramsey-B/fern/internal/repositories/repotest"
	"github.com/Ramsey-B/fern/pkg/database"
	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
)

func TestRepository_Lifecycle(t *testing.T) {
	db := repotest.Open(t)
	repo := importoperation.NewRepository(db, repotest.Logger())
	ctx := context.Background()
	userID := uuid.NewString()
	base := time.Now().UTC().Truncate(time.Millisecond)

	older := &models.ImportOperation{
		ID:            uuid.NewString(),
		UserID:        userID,
		OperationType: models.OperationTypeCSV,
		Source:        "leads.csv",
		LeadCount:     3,
		Metadata:      database.NewJSONB(models.ImportMetadata{Filename: "leads.csv", NewCount: 3}),
		CreatedAt:     base.Add(-time.Minute),
	}
	newer := &models.ImportOperation{
		ID:            uuid.NewString(),
		UserID:        userID,
		OperationType: models.OperationTypeMapsImport,
		LeadCount:     1,
		CreatedAt:     base,
	}
	require.NoError(t, repo.Create(ctx, older))
	require.NoError(t, repo.Create(ctx, newer))
	require.NoError(t, repo.Create(ctx, older), "retried create is a no-op")

	ops, err := repo.List(ctx, userID, 10)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, newer.ID, ops[0].ID)
	assert.Equal(t, "leads.csv", ops[1].Metadata.Data.Filename)

	latest, err := repo.Latest(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, latest.ID)

	_, err = repo.Get(ctx, uuid.NewString(), older.ID)
	assert.ErrorIs(t, err, fernerrors.ErrNotFound)

	changed, err := repo.MarkReverted(ctx, newer.ID, userID, base.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.MarkReverted(ctx, newer.ID, userID, base.Add(2*time.Minute))
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := repo.Get(ctx, userID, newer.ID)
	require.NoError(t, err)
	assert.True(t, got.IsReverted())
	require.NotNil(t, got.RevertedBy)
	assert.Equal(t, userID, *got.RevertedBy)
}

func TestRepository_LatestEmpty(t *testing.T) {
	db := repotest.Open(t)
	repo := importoperation.NewRepository(db, repotest.Logger())

	_, err := repo.Latest(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, fernerrors.ErrNotFound)
}
