package trigger

import (
	"github.com/google/uuid"

	"github.com/stageflow/stageflow/pkg/model"
)

// Match identifies one trigger node that reacted to an event.
type Match struct {
	WorkflowID    uuid.UUID
	TriggerNodeID uuid.UUID
}

// MatchEvent returns every trigger node across the given workflows whose
// declared event matches, in workflow order. All matches are returned: one
// event may fire in several workflows, and several trigger nodes within one
// workflow may all fire; each match is materialized independently. That
// fan-out is the contract, not an accident.
//
// A trigger matches iff its event name equals the event's type and its
// filter, when present, equals the corresponding payload field.
func MatchEvent(event *model.AutomationEvent, workflows []model.Workflow) []Match {
	var matches []Match
	for _, workflow := range workflows {
		for _, node := range workflow.Nodes {
			if node.Kind != model.NodeTrigger {
				continue
			}
			cfg, err := node.TriggerConfig()
			if err != nil {
				// A broken trigger config never matches; the graph stays
				// usable for its other triggers.
				continue
			}
			if cfg.Event != event.EventType {
				continue
			}
			if cfg.Filter != nil && !filterMatches(cfg.Filter, event.Payload) {
				continue
			}
			matches = append(matches, Match{
				WorkflowID:    workflow.ID,
				TriggerNodeID: node.ID,
			})
		}
	}
	return matches
}

// filterMatches compares the payload field against the filter literal. Only
// scalar comparisons are supported; a missing field or a non-scalar value
// never matches.
func filterMatches(filter *model.TriggerFilter, payload model.JSONB) bool {
	if payload == nil {
		return false
	}
	value, ok := payload[filter.Field]
	if !ok {
		return false
	}
	switch value.(type) {
	case map[string]interface{}, []interface{}:
		return false
	}
	switch filter.Equals.(type) {
	case map[string]interface{}, []interface{}:
		return false
	}
	return value == filter.Equals
}
