// Package store defines the storage contracts the automation engine is built
// against. Postgres implementations live in store/postgres; mutex-guarded
// in-memory implementations for tests and local development live in
// store/memory.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/stageflow/stageflow/pkg/model"
)

// EventQueue is the durable, at-least-once queue of domain events awaiting
// trigger evaluation. All coordination between overlapping consumers happens
// through the lock fields with token-scoped conditional updates; no external
// lock service is involved.
type EventQueue interface {
	// Enqueue appends a new unprocessed, unlocked item. No deduplication is
	// performed; producers are responsible for not enqueueing the same fact
	// twice.
	Enqueue(ctx context.Context, event *model.AutomationEvent) error

	// LockBatch atomically claims up to limit items that are unprocessed and
	// either unlocked or locked longer ago than the stale-lock timeout,
	// oldest first. Two concurrent callers never both claim the same item.
	// Fewer items than requested is normal under contention.
	LockBatch(ctx context.Context, limit int, token uuid.UUID) ([]model.AutomationEvent, error)

	// Complete marks items processed. Scoped to token and to still-unprocessed
	// items, so it is idempotent and a no-op for items whose lock has been
	// reassigned.
	Complete(ctx context.Context, ids []uuid.UUID, token uuid.UUID) error

	// Release clears the lock, making items immediately eligible for the next
	// LockBatch. Same ownership predicate as Complete; safe to call
	// speculatively.
	Release(ctx context.Context, ids []uuid.UUID, token uuid.UUID) error

	// Depth counts unprocessed items (locked or not).
	Depth(ctx context.Context) (int64, error)

	// RecordDropped writes a diagnostic trace for an event completed without
	// evaluation.
	RecordDropped(ctx context.Context, dropped *model.DroppedEvent) error
}

// WorkflowStore is the engine's read-only view of the authoring subsystem.
type WorkflowStore interface {
	// ListActive returns the workspace's active workflows with nodes and
	// edges loaded. Draft and paused workflows do not participate in
	// matching.
	ListActive(ctx context.Context, workspaceID uuid.UUID) ([]model.Workflow, error)
}

// RunStore owns materialized run state.
type RunStore interface {
	// CreateRun persists a run and its steps as one atomic unit. Returns
	// (false, nil) when a run for the same (source event, trigger node) pair
	// already exists, which makes re-materialization after an ambiguous
	// failure a no-op.
	CreateRun(ctx context.Context, run *model.Run, steps []model.RunStep) (bool, error)

	// ListUndispatchedSteps returns queued steps not yet exported to the
	// step topic, oldest first.
	ListUndispatchedSteps(ctx context.Context, limit int) ([]model.RunStep, error)

	// MarkStepDispatched stamps the step's export time.
	MarkStepDispatched(ctx context.Context, stepID uuid.UUID, dispatchedAt time.Time) error
}
