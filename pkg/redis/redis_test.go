package redis

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T) *Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		t.Skip("REDIS_HOST not set")
	}
	port := 6379
	if p, err := strconv.Atoi(os.Getenv("REDIS_PORT")); err == nil {
		port = p
	}

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	client, err := NewClient(context.Background(), Config{Host: host, Port: port}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestLocker_AcquireIsExclusive(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()
	locker := NewLocker(client, "fern:test:lock:")
	key := "import:" + strconv.FormatInt(time.Now().UnixNano(), 10)

	lock, err := locker.Acquire(ctx, key, 5*time.Second)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, key, 5*time.Second)
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	require.NoError(t, lock.Extend(ctx, 10*time.Second))
	require.NoError(t, lock.Release(ctx))
	assert.ErrorIs(t, lock.Release(ctx), ErrLockNotHeld)

	ran := false
	err = locker.WithLock(ctx, key, time.Second, func(ctx context.Context) error {
		ran = true
		_, err := locker.Acquire(ctx, key, time.Second)
		assert.ErrorIs(t, err, ErrLockNotAcquired)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)

	lock, err = locker.Acquire(ctx, key, time.Second)
	require.NoError(t, err, "WithLock releases on return")
	require.NoError(t, lock.Release(ctx))
}

func TestLocker_WithLockRenewsLongWork(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()
	locker := NewLocker(client, "fern:test:lock:")
	key := "renew:" + strconv.FormatInt(time.Now().UnixNano(), 10)

	err := locker.WithLock(ctx, key, 300*time.Millisecond, func(ctx context.Context) error {
		time.Sleep(700 * time.Millisecond)
		_, err := locker.Acquire(ctx, key, time.Second)
		assert.ErrorIs(t, err, ErrLockNotAcquired)
		return ctx.Err()
	})
	require.NoError(t, err)
}

func TestDeadLetterQueue_AddAndList(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()
	stream := "fern:test:dlq:" + strconv.FormatInt(time.Now().UnixNano(), 10)
	t.Cleanup(func() { client.rdb.Del(context.Background(), stream) })

	dlq := NewDeadLetterQueue(client, stream, client.logger)
	_, err := dlq.Add(ctx, &DLQEntry{
		UserID:       "user-1",
		Topic:        "maps-import",
		Offset:       42,
		Payload:      json.RawMessage(`{"rows":[]}`),
		ErrorMessage: "boom",
	})
	require.NoError(t, err)

	entries, err := dlq.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "user-1", entries[0].UserID)
	assert.Equal(t, int64(42), entries[0].Offset)
	assert.Equal(t, "maps-import", entries[0].Topic)
	assert.JSONEq(t, `{"rows":[]}`, string(entries[0].Payload))
	assert.False(t, entries[0].CreatedAt.IsZero())

	count, err := dlq.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
