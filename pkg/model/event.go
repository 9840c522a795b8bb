package model

import (
	"time"

	"github.com/google/uuid"
)

// Event types recognized by the engine. Producers may enqueue types the
// engine does not know yet; those are completed as no-ops on consumption.
const (
	EventStageChanged = "entity.stage_changed"
)

// Dropped-event reasons.
const (
	DropReasonMalformed   = "malformed"
	DropReasonUnknownType = "unknown_type"
)

// AutomationEvent is one queue item: an immutable domain event plus the
// lock/completion metadata the consumer protocol operates on.
//
// Lifecycle invariants:
//   - ProcessedAt transitions unset -> set exactly once; a processed item is
//     terminal and never returned by a batch claim again.
//   - LockedAt and LockToken are set and cleared together. An item with
//     LockedAt set and ProcessedAt unset is in flight and owned by exactly
//     one consumer token.
type AutomationEvent struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	WorkspaceID uuid.UUID `gorm:"type:uuid;not null;index"`
	EventType   string    `gorm:"not null;index"`
	EntityID    uuid.UUID `gorm:"type:uuid;not null"`
	Payload     JSONB     `gorm:"type:jsonb;not null"`
	CreatedAt   time.Time `gorm:"autoCreateTime;not null;index"`
	ProcessedAt *time.Time
	LockedAt    *time.Time `gorm:"index"`
	LockToken   *uuid.UUID `gorm:"type:uuid"`
}

func (AutomationEvent) TableName() string {
	return "automation_events"
}

// InFlight reports whether the item is currently claimed by a consumer.
func (e *AutomationEvent) InFlight() bool {
	return e.ProcessedAt == nil && e.LockedAt != nil
}

// DroppedEvent is the diagnostic trace left behind when the consumer
// completes an event without evaluating it (unknown type or malformed
// payload). Purely observational; nothing in the engine reads it back.
type DroppedEvent struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	EventID     uuid.UUID `gorm:"type:uuid;not null;index"`
	WorkspaceID uuid.UUID `gorm:"type:uuid;not null;index"`
	EventType   string    `gorm:"not null"`
	Reason      string    `gorm:"type:varchar(50);not null"`
	Detail      string
	CreatedAt   time.Time `gorm:"autoCreateTime;not null"`
}

func (DroppedEvent) TableName() string {
	return "automation_dropped_events"
}
