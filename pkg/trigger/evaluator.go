package trigger

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/stageflow/stageflow/pkg/eventbus"
	"github.com/stageflow/stageflow/pkg/metrics"
	"github.com/stageflow/stageflow/pkg/model"
	"github.com/stageflow/stageflow/pkg/store"
)

// Evaluator is the trigger evaluation entrypoint: load the workspace's
// active graphs, match the event against their trigger nodes, materialize a
// run per match, and report how many runs were created.
type Evaluator struct {
	workflows    store.WorkflowStore
	materializer *Materializer
	bus          *eventbus.Bus
	logger       *zap.Logger
}

// NewEvaluator wires the evaluation path. bus may be nil when no
// notification fan-out is configured.
func NewEvaluator(workflows store.WorkflowStore, runs store.RunStore, bus *eventbus.Bus, logger *zap.Logger) *Evaluator {
	return &Evaluator{
		workflows:    workflows,
		materializer: NewMaterializer(runs),
		bus:          bus,
		logger:       logger,
	}
}

// Evaluate returns the number of runs created for the event. Any storage
// error aborts evaluation and is reported to the caller; the consumer treats
// it as transient and releases the queue item for retry. Matches already
// materialized before the error stand — the idempotent run insert makes the
// retry converge instead of duplicating them.
func (e *Evaluator) Evaluate(ctx context.Context, event *model.AutomationEvent) (int, error) {
	workflows, err := e.workflows.ListActive(ctx, event.WorkspaceID)
	if err != nil {
		return 0, fmt.Errorf("list active workflows: %w", err)
	}

	matches := MatchEvent(event, workflows)
	if len(matches) == 0 {
		return 0, nil
	}

	byID := make(map[string]*model.Workflow, len(workflows))
	for i := range workflows {
		byID[workflows[i].ID.String()] = &workflows[i]
	}

	created := 0
	for _, match := range matches {
		workflow := byID[match.WorkflowID.String()]
		run, err := e.materializer.Materialize(ctx, workflow, match, event)
		if err != nil {
			return created, err
		}
		if run == nil {
			continue
		}
		created++

		metrics.RunsCreated.WithLabelValues(event.WorkspaceID.String()).Inc()
		e.logger.Info("run created",
			zap.String("run_id", run.ID.String()),
			zap.String("workflow_id", run.WorkflowID.String()),
			zap.String("event_id", event.ID.String()),
			zap.Int("steps", len(run.Steps)),
		)
		e.publishRunCreated(ctx, run)
	}

	return created, nil
}

func (e *Evaluator) publishRunCreated(ctx context.Context, run *model.Run) {
	if e.bus == nil {
		return
	}
	notification := eventbus.RunEvent{
		RunID:       run.ID.String(),
		WorkflowID:  run.WorkflowID.String(),
		WorkspaceID: run.WorkspaceID.String(),
		Status:      string(run.Status),
	}
	event, err := eventbus.NewEvent("run_created", notification)
	if err != nil {
		return
	}
	if err := e.bus.Publish(ctx, eventbus.ChannelRun, event); err != nil {
		e.logger.Warn("failed to publish run notification", zap.Error(err), zap.String("run_id", run.ID.String()))
	}
}
