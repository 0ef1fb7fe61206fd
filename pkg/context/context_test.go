package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestRoundTrip(t *testing.T) {
	ctx := context.Background()
	_, ok := RequestFrom(ctx)
	assert.False(t, ok)
	assert.Empty(t, GetUserID(ctx))
	assert.Empty(t, GetRequestID(ctx))

	ctx = WithRequest(ctx, Request{ID: "req-1", UserID: "user-1", Method: "POST", Route: "/api/v1/imports"})
	r, ok := RequestFrom(ctx)
	assert.True(t, ok)
	assert.Equal(t, "POST", r.Method)
	assert.Equal(t, "user-1", GetUserID(ctx))
	assert.Equal(t, "req-1", GetRequestID(ctx))
}

func TestWithUserID(t *testing.T) {
	ctx := WithRequest(context.Background(), Request{ID: "req-1", UserID: "user-1"})
	ctx = WithUserID(ctx, "user-2")

	assert.Equal(t, "user-2", GetUserID(ctx))
	assert.Equal(t, "req-1", GetRequestID(ctx))

	assert.Equal(t, "user-3", GetUserID(WithUserID(context.Background(), "user-3")))
}
