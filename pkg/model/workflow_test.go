package model

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
)

func TestJSONBValueAndScan(t *testing.T) {
	original := JSONB{"name": "stageflow", "count": 2}

	value, err := original.Value()
	if err != nil {
		t.Fatalf("Value() error: %v", err)
	}

	data, ok := value.([]byte)
	if !ok {
		t.Fatalf("expected []byte value, got %T", value)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal value error: %v", err)
	}

	if decoded["name"] != "stageflow" {
		t.Fatalf("expected name stageflow, got %v", decoded["name"])
	}

	var scanned JSONB
	if err := scanned.Scan(data); err != nil {
		t.Fatalf("Scan() error: %v", err)
	}

	if scanned["name"] != "stageflow" {
		t.Fatalf("expected scanned name stageflow, got %v", scanned["name"])
	}
}

func TestJSONBGormDataType(t *testing.T) {
	value := JSONB{"ok": true}
	if value.GormDataType() != "jsonb" {
		t.Fatalf("expected jsonb data type, got %q", value.GormDataType())
	}
}

func TestTriggerConfigDecode(t *testing.T) {
	node := Node{
		ID:   uuid.New(),
		Kind: NodeTrigger,
		Config: JSONB{
			"event": EventStageChanged,
			"filter": map[string]interface{}{
				"field":  "toStageId",
				"equals": "S2",
			},
		},
	}

	cfg, err := node.TriggerConfig()
	if err != nil {
		t.Fatalf("TriggerConfig() error: %v", err)
	}
	if cfg.Event != EventStageChanged {
		t.Fatalf("expected event %q, got %q", EventStageChanged, cfg.Event)
	}
	if cfg.Filter == nil || cfg.Filter.Field != "toStageId" || cfg.Filter.Equals != "S2" {
		t.Fatalf("unexpected filter: %+v", cfg.Filter)
	}
}

func TestTriggerConfigRejectsActionNode(t *testing.T) {
	node := Node{ID: uuid.New(), Kind: NodeAction, Config: JSONB{"event": "x"}}
	if _, err := node.TriggerConfig(); err == nil {
		t.Fatal("expected error for action node")
	}
}

func TestTriggerConfigRequiresEvent(t *testing.T) {
	node := Node{ID: uuid.New(), Kind: NodeTrigger, Config: JSONB{}}
	if _, err := node.TriggerConfig(); err == nil {
		t.Fatal("expected error for trigger without event")
	}
}

func TestOutgoingEdges(t *testing.T) {
	from := uuid.New()
	other := uuid.New()
	workflow := Workflow{
		Edges: []Edge{
			{ID: uuid.New(), FromNodeID: from, ToNodeID: uuid.New()},
			{ID: uuid.New(), FromNodeID: other, ToNodeID: uuid.New()},
			{ID: uuid.New(), FromNodeID: from, ToNodeID: uuid.New()},
		},
	}

	out := workflow.OutgoingEdges(from)
	if len(out) != 2 {
		t.Fatalf("expected 2 outgoing edges, got %d", len(out))
	}
	for _, edge := range out {
		if edge.FromNodeID != from {
			t.Fatalf("edge %s does not leave node %s", edge.ID, from)
		}
	}
}
