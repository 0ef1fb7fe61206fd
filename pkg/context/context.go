// Package context carries who a unit of work runs for, whether it arrived over HTTP,
// Kafka or the CLI.
package context

import "context"

type key struct{}

// Request describes the caller of the current unit of work. Only UserID is required;
// the HTTP fields stay empty for Kafka deliveries and CLI runs.
type Request struct {
	ID       string
	UserID   string
	Method   string
	Route    string
	RemoteIP string
}

// WithRequest stores r in ctx, replacing any request already there.
func WithRequest(ctx context.Context, r Request) context.Context {
	return context.WithValue(ctx, key{}, r)
}

// RequestFrom returns the request stored in ctx.
func RequestFrom(ctx context.Context) (Request, bool) {
	r, ok := ctx.Value(key{}).(Request)
	return r, ok
}

// WithUserID scopes ctx to userID and keeps the rest of the request untouched.
func WithUserID(ctx context.Context, userID string) context.Context {
	r, _ := RequestFrom(ctx)
	r.UserID = userID
	return WithRequest(ctx, r)
}

func GetUserID(ctx context.Context) string {
	r, _ := RequestFrom(ctx)
	return r.UserID
}

func GetRequestID(ctx context.Context) string {
	r, _ := RequestFrom(ctx)
	return r.ID
}
