package trigger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/stageflow/stageflow/pkg/model"
	"github.com/stageflow/stageflow/pkg/store/memory"
)

func buildWorkflow(workspaceID uuid.UUID, edgeCount int) (*model.Workflow, model.Node) {
	workflowID := uuid.New()
	trigger := model.Node{
		ID:         uuid.New(),
		WorkflowID: workflowID,
		Kind:       model.NodeTrigger,
		Config:     model.JSONB{"event": model.EventStageChanged},
	}
	workflow := &model.Workflow{
		ID:          workflowID,
		WorkspaceID: workspaceID,
		Status:      model.WorkflowActive,
		Nodes:       []model.Node{trigger},
	}
	for i := 0; i < edgeCount; i++ {
		action := model.Node{
			ID:         uuid.New(),
			WorkflowID: workflowID,
			Kind:       model.NodeAction,
			Config:     model.JSONB{"type": "send_email"},
		}
		workflow.Nodes = append(workflow.Nodes, action)
		workflow.Edges = append(workflow.Edges, model.Edge{
			ID:         uuid.New(),
			WorkflowID: workflowID,
			FromNodeID: trigger.ID,
			ToNodeID:   action.ID,
		})
	}
	return workflow, trigger
}

func TestMaterializeCreatesRunWithAllSteps(t *testing.T) {
	st := memory.NewStore(time.Minute)
	workspaceID := uuid.New()
	workflow, triggerNode := buildWorkflow(workspaceID, 2)
	event := stageChangedEvent(model.JSONB{"entityId": "e1", "containerId": "b1", "toStageId": "S2"})
	event.WorkspaceID = workspaceID

	m := NewMaterializer(st)
	run, err := m.Materialize(context.Background(), workflow, Match{WorkflowID: workflow.ID, TriggerNodeID: triggerNode.ID}, event)
	if err != nil {
		t.Fatalf("Materialize() error: %v", err)
	}
	if run == nil {
		t.Fatal("expected a run to be created")
	}
	if run.Status != model.RunRunning {
		t.Fatalf("expected running status, got %s", run.Status)
	}
	if run.Context["toStageId"] != "S2" {
		t.Fatalf("run context should snapshot the event payload, got %v", run.Context)
	}

	steps := st.StepsForRun(run.ID)
	if len(steps) != 2 {
		t.Fatalf("expected exactly 2 steps for 2 edges, got %d", len(steps))
	}
	for _, step := range steps {
		if step.Status != model.StepQueued {
			t.Fatalf("expected queued step, got %s", step.Status)
		}
	}
}

// A trigger with no downstream action performs no work; that is an
// authored-but-unwired graph, not an error.
func TestMaterializeNoEdges(t *testing.T) {
	st := memory.NewStore(time.Minute)
	workflow, triggerNode := buildWorkflow(uuid.New(), 0)
	event := stageChangedEvent(model.JSONB{"entityId": "e1", "containerId": "b1", "toStageId": "S2"})

	m := NewMaterializer(st)
	run, err := m.Materialize(context.Background(), workflow, Match{WorkflowID: workflow.ID, TriggerNodeID: triggerNode.ID}, event)
	if err != nil {
		t.Fatalf("Materialize() error: %v", err)
	}
	if run != nil {
		t.Fatal("expected no run for a trigger without edges")
	}
	if len(st.Runs()) != 0 {
		t.Fatalf("expected no runs stored, got %d", len(st.Runs()))
	}
}

// Re-materializing the same (event, trigger node) pair after an ambiguous
// failure must not duplicate the run.
func TestMaterializeIdempotent(t *testing.T) {
	st := memory.NewStore(time.Minute)
	workflow, triggerNode := buildWorkflow(uuid.New(), 1)
	event := stageChangedEvent(model.JSONB{"entityId": "e1", "containerId": "b1", "toStageId": "S2"})
	match := Match{WorkflowID: workflow.ID, TriggerNodeID: triggerNode.ID}

	m := NewMaterializer(st)
	first, err := m.Materialize(context.Background(), workflow, match, event)
	if err != nil {
		t.Fatalf("first Materialize() error: %v", err)
	}
	if first == nil {
		t.Fatal("expected first materialization to create a run")
	}

	second, err := m.Materialize(context.Background(), workflow, match, event)
	if err != nil {
		t.Fatalf("second Materialize() error: %v", err)
	}
	if second != nil {
		t.Fatal("expected second materialization to be a no-op")
	}
	if len(st.Runs()) != 1 {
		t.Fatalf("expected exactly 1 run, got %d", len(st.Runs()))
	}
}
