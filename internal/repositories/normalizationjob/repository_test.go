package normalizationjob_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/internal/repositories/normalizationjob"
	"github.com/Ramsey-B/fern/internal/repositories/repotest"
	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
)

func TestRepository_StartComplete(t *testing.T) {
	db := repotest.Open(t)
	repo := normalizationjob.NewRepository(db, repotest.Logger())
	ctx := context.Background()
	userID := uuid.NewString()
	now := time.Now().UTC()

	_, err := repo.Get(ctx, userID, "lead-identity-v1")
	assert.ErrorIs(t, err, fernerrors.ErrNotFound)

	job, err := repo.Start(ctx, userID, "lead-identity-v1", now)
	require.NoError(t, err)
	assert.False(t, job.IsCompleted())

	restarted, err := repo.Start(ctx, userID, "lead-identity-v1", now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, job.ID, restarted.ID)

	require.NoError(t, repo.Complete(ctx, job.ID, 12, now.Add(2*time.Second)))

	done, err := repo.Get(ctx, userID, "lead-identity-v1")
	require.NoError(t, err)
	assert.True(t, done.IsCompleted())
	assert.Equal(t, 12, done.ProcessedCount)
}
