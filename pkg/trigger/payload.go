package trigger

import (
	"errors"
	"fmt"

	"github.com/stageflow/stageflow/pkg/model"
)

var ErrUnknownEventType = errors.New("unknown event type")

// payloadValidators maps each recognized event type to its structural check.
// Adding an event type means adding one entry here; nothing else in the
// engine changes.
var payloadValidators = map[string]func(model.JSONB) error{
	model.EventStageChanged: validateStageChanged,
}

// KnownEventType reports whether the engine can evaluate the type. Producers
// may enqueue newer types ahead of engine support; those are dropped as
// completed no-ops by the consumer, never failed.
func KnownEventType(eventType string) bool {
	_, ok := payloadValidators[eventType]
	return ok
}

// ValidatePayload structurally checks the payload of a recognized event
// type. Malformed payloads cannot self-heal on retry, so the consumer drops
// them permanently.
func ValidatePayload(eventType string, payload model.JSONB) error {
	validate, ok := payloadValidators[eventType]
	if !ok {
		return ErrUnknownEventType
	}
	return validate(payload)
}

// entity.stage_changed payload: {entityId, containerId, fromStageId?, toStageId}.
func validateStageChanged(payload model.JSONB) error {
	if payload == nil {
		return errors.New("payload is required")
	}
	for _, field := range []string{"entityId", "containerId", "toStageId"} {
		value, ok := payload[field]
		if !ok {
			return fmt.Errorf("missing required field %q", field)
		}
		str, ok := value.(string)
		if !ok || str == "" {
			return fmt.Errorf("field %q must be a non-empty string", field)
		}
	}
	return nil
}
