package common

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const contextKeyJobID contextKey = "job_id"

// WithJobID tags the context with the job a stage execution belongs to, so
// downstream clients can correlate their logs without threading the ID
// through every call.
func WithJobID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, contextKeyJobID, id)
}

// JobIDFromContext extracts the job ID set by WithJobID, or uuid.Nil.
func JobIDFromContext(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(contextKeyJobID).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}
