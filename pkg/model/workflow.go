package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type WorkflowStatus string

const (
	WorkflowDraft  WorkflowStatus = "DRAFT"
	WorkflowActive WorkflowStatus = "ACTIVE"
	WorkflowPaused WorkflowStatus = "PAUSED"
)

type NodeKind string

const (
	NodeTrigger NodeKind = "trigger"
	NodeAction  NodeKind = "action"
)

// Workflow is a user-authored automation graph. The engine only reads graphs;
// node/edge CRUD and canvas layout belong to the builder UI.
type Workflow struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	WorkspaceID uuid.UUID `gorm:"type:uuid;not null;index"`
	Name        string    `gorm:"not null"`
	Description string
	Status      WorkflowStatus `gorm:"type:varchar(50);default:'DRAFT';index"`
	Nodes       []Node         `gorm:"foreignKey:WorkflowID"`
	Edges       []Edge         `gorm:"foreignKey:WorkflowID"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   gorm.DeletedAt `gorm:"index"`
}

// Node is one vertex of a workflow graph. Trigger nodes declare the event
// shape they react to in Config; action node config is opaque to the engine.
type Node struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	WorkflowID uuid.UUID `gorm:"type:uuid;not null;index"`
	Kind       NodeKind  `gorm:"type:varchar(50);not null"`
	Config     JSONB     `gorm:"type:jsonb;default:'{}'"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Edge is a directed connection between two nodes of the same workflow.
// ConditionKey is reserved for conditional branching in the step executor;
// trigger materialization ignores it.
type Edge struct {
	ID           uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	WorkflowID   uuid.UUID `gorm:"type:uuid;not null;index"`
	FromNodeID   uuid.UUID `gorm:"type:uuid;not null;index"`
	ToNodeID     uuid.UUID `gorm:"type:uuid;not null"`
	ConditionKey string
	CreatedAt    time.Time
}

// TriggerConfig is the decoded shape of a trigger node's Config:
// {"event": "...", "filter": {"field": "...", "equals": ...}}.
type TriggerConfig struct {
	Event  string         `json:"event"`
	Filter *TriggerFilter `json:"filter,omitempty"`
}

type TriggerFilter struct {
	Field  string      `json:"field"`
	Equals interface{} `json:"equals"`
}

// TriggerConfig decodes the node config as a trigger declaration. Returns an
// error for non-trigger nodes and for configs without an event name.
func (n *Node) TriggerConfig() (*TriggerConfig, error) {
	if n.Kind != NodeTrigger {
		return nil, fmt.Errorf("node %s is not a trigger node", n.ID)
	}
	raw, err := json.Marshal(map[string]interface{}(n.Config))
	if err != nil {
		return nil, err
	}
	var cfg TriggerConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("invalid trigger config on node %s: %w", n.ID, err)
	}
	if cfg.Event == "" {
		return nil, fmt.Errorf("trigger node %s declares no event", n.ID)
	}
	return &cfg, nil
}

// OutgoingEdges returns the edges leaving the given node.
func (w *Workflow) OutgoingEdges(nodeID uuid.UUID) []Edge {
	var out []Edge
	for _, edge := range w.Edges {
		if edge.FromNodeID == nodeID {
			out = append(out, edge)
		}
	}
	return out
}

type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to scan JSONB: %v", value)
	}
	return json.Unmarshal(bytes, j)
}

func (j JSONB) GormDataType() string {
	return "jsonb"
}
