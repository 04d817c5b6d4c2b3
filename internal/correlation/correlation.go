package correlation

import (
	"context"

	"github.com/google/uuid"
)

type key int

const RunIDKey key = 0

// Ensure returns ctx unchanged when it already carries a run id, otherwise
// a child context with a fresh one.
func Ensure(ctx context.Context) (context.Context, string) {
	if id, ok := ctx.Value(RunIDKey).(string); ok && id != "" {
		return ctx, id
	}
	id := uuid.New().String()
	return WithRunID(ctx, id), id
}

func GetRunID(ctx context.Context) string {
	if id, ok := ctx.Value(RunIDKey).(string); ok {
		return id
	}
	return "unknown"
}

func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RunIDKey, id)
}
