package model

import (
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	RunRunning   RunStatus = "RUNNING"
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
)

type RunStepStatus string

const (
	StepQueued  RunStepStatus = "QUEUED"
	StepRunning RunStepStatus = "RUNNING"
	StepDone    RunStepStatus = "DONE"
	StepFailed  RunStepStatus = "FAILED"
)

// Run is one instantiated execution of a workflow, created when a trigger
// node matched an event. Context snapshots the triggering event's payload so
// the run's lifecycle is decoupled from the queue item's. The
// (SourceEventID, TriggerNodeID) pair is unique: re-evaluating the same
// event after an ambiguous failure cannot double-create a run.
type Run struct {
	ID            uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	WorkflowID    uuid.UUID `gorm:"type:uuid;not null;index"`
	WorkspaceID   uuid.UUID `gorm:"type:uuid;not null;index"`
	TriggerNodeID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_run_source_trigger"`
	SourceEventID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_run_source_trigger"`
	Status        RunStatus `gorm:"type:varchar(50);default:'RUNNING';index"`
	Context       JSONB     `gorm:"type:jsonb;default:'{}'"`
	Steps         []RunStep `gorm:"foreignKey:RunID"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (Run) TableName() string {
	return "automation_runs"
}

// RunStep is one queued unit of work within a run, one per edge directly
// downstream of the matched trigger node. Step execution is owned by the
// step executors; the engine only creates steps and, via the dispatch relay,
// exports them. DispatchedAt records export to the step topic.
type RunStep struct {
	ID           uuid.UUID     `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	RunID        uuid.UUID     `gorm:"type:uuid;not null;index"`
	NodeID       uuid.UUID     `gorm:"type:uuid;not null"`
	Status       RunStepStatus `gorm:"type:varchar(50);default:'QUEUED';index"`
	ScheduledFor time.Time     `gorm:"not null"`
	DispatchedAt *time.Time    `gorm:"index"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (RunStep) TableName() string {
	return "automation_run_steps"
}
