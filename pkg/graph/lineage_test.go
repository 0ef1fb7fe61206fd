package graph

import (
	"context"
	"os"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_URI(t *testing.T) {
	assert.Equal(t, "bolt://memgraph:7687", Config{Host: "memgraph", Port: 7687}.uri())
}

func TestLineageService_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping graph integration test in short mode")
	}
	host := os.Getenv("GRAPH_HOST")
	if host == "" {
		t.Skip("GRAPH_HOST not set")
	}

	ctx := context.Background()
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	client, err := NewClient(Config{Host: host, Port: 7687}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close(ctx) })
	require.NoError(t, client.VerifyConnectivity(ctx))

	svc := NewLineageService(client, logger)
	userID := uuid.NewString()
	opID := uuid.NewString()
	master, a, b := uuid.NewString(), uuid.NewString(), uuid.NewString()

	require.NoError(t, svc.ProjectImport(ctx, userID, opID, []string{master, a, b}))
	require.NoError(t, svc.ProjectMerge(ctx, userID, master, []string{a}))
	require.NoError(t, svc.ProjectMerge(ctx, userID, a, []string{b}))

	history, err := svc.MergeHistory(ctx, userID, master)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a, b}, history)

	require.NoError(t, svc.RemoveImport(ctx, userID, opID, []string{b}))
	history, err = svc.MergeHistory(ctx, userID, master)
	require.NoError(t, err)
	assert.Equal(t, []string{a}, history)
}

func TestLineageService_NoopInputs(t *testing.T) {
	svc := NewLineageService(nil, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
	assert.NoError(t, svc.ProjectImport(context.Background(), "user", "", []string{"a"}))
	assert.NoError(t, svc.ProjectImport(context.Background(), "user", "op", nil))
	assert.NoError(t, svc.ProjectMerge(context.Background(), "user", "m", nil))
}
