package trigger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stageflow/stageflow/pkg/model"
	"github.com/stageflow/stageflow/pkg/store"
)

// Materializer turns one trigger match into executable run state: a Run
// snapshotting the event payload, plus one queued RunStep per edge directly
// downstream of the trigger node. Only the first hop is materialized here;
// deeper traversal belongs to the step executors.
type Materializer struct {
	runs store.RunStore
}

func NewMaterializer(runs store.RunStore) *Materializer {
	return &Materializer{runs: runs}
}

// Materialize creates the run and its steps as one atomic unit. A trigger
// with no outgoing edges performs no work and returns (nil, nil) — that is
// an authored-but-unwired graph, not an error. Returns (nil, nil) as well
// when a run for this (event, trigger node) pair already exists.
func (m *Materializer) Materialize(ctx context.Context, workflow *model.Workflow, match Match, event *model.AutomationEvent) (*model.Run, error) {
	edges := workflow.OutgoingEdges(match.TriggerNodeID)
	if len(edges) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	run := &model.Run{
		ID:            uuid.New(),
		WorkflowID:    match.WorkflowID,
		WorkspaceID:   event.WorkspaceID,
		TriggerNodeID: match.TriggerNodeID,
		SourceEventID: event.ID,
		Status:        model.RunRunning,
		Context:       event.Payload,
	}

	steps := make([]model.RunStep, 0, len(edges))
	for _, edge := range edges {
		steps = append(steps, model.RunStep{
			ID:           uuid.New(),
			RunID:        run.ID,
			NodeID:       edge.ToNodeID,
			Status:       model.StepQueued,
			ScheduledFor: now,
		})
	}

	created, err := m.runs.CreateRun(ctx, run, steps)
	if err != nil {
		return nil, fmt.Errorf("materialize run for workflow %s: %w", match.WorkflowID, err)
	}
	if !created {
		return nil, nil
	}
	run.Steps = steps
	return run, nil
}
