package logger

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type contextKey string

const (
	runIDContextKey contextKey = "runID"
)

// NewRunID returns a fresh identifier for one apply run. Every log line of
// the run carries it, which is what makes interleaved CI logs greppable.
func NewRunID() string {
	return uuid.NewString()
}

// WithRunID stores the run ID in the context for later extraction.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDContextKey, runID)
}

// GetRunID extracts the run ID from the context. The run ID is set by the
// CLI entrypoint before any stage executes.
func GetRunID(ctx context.Context) string {
	if runID, ok := ctx.Value(runIDContextKey).(string); ok {
		return runID
	}

	return ""
}

// DeriveRunLogger returns a logger enriched with run-scoped fields available
// in the provided context. Additional fields can be added here without
// changing call sites across the codebase.
func DeriveRunLogger(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}

	if runID := GetRunID(ctx); runID != "" {
		return base.With("runID", runID)
	}

	return base
}

// GetDeadlineInfo returns logging attributes for context deadline information.
// Returns the absolute deadline time and remaining duration if set, or "none" if no deadline.
func GetDeadlineInfo(ctx context.Context) []any {
	deadline, ok := ctx.Deadline()
	if !ok {
		return []any{"deadline", "none", "deadline_remaining", "none"}
	}

	remaining := time.Until(deadline)
	return []any{
		"deadline", deadline.Format(time.RFC3339),
		"deadline_remaining", remaining.String(),
	}
}
