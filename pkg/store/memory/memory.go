// Package memory holds goroutine-safe in-memory implementations of the
// store interfaces, used by tests and local single-process development. The
// lock protocol semantics match the postgres repositories: the claim is one
// critical section, and complete/release are conditional on token ownership.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stageflow/stageflow/pkg/model"
	"github.com/stageflow/stageflow/pkg/store"
)

type Store struct {
	mu          sync.Mutex
	lockTimeout time.Duration

	events    map[uuid.UUID]*model.AutomationEvent
	dropped   []model.DroppedEvent
	workflows map[uuid.UUID]model.Workflow
	runs      map[uuid.UUID]*model.Run
	steps     map[uuid.UUID]*model.RunStep

	// (sourceEventID, triggerNodeID) -> runID, the uniqueness the postgres
	// schema enforces with an index.
	runKeys map[runKey]uuid.UUID
}

type runKey struct {
	sourceEventID uuid.UUID
	triggerNodeID uuid.UUID
}

func NewStore(lockTimeout time.Duration) *Store {
	if lockTimeout <= 0 {
		lockTimeout = 5 * time.Minute
	}
	return &Store{
		lockTimeout: lockTimeout,
		events:      make(map[uuid.UUID]*model.AutomationEvent),
		workflows:   make(map[uuid.UUID]model.Workflow),
		runs:        make(map[uuid.UUID]*model.Run),
		steps:       make(map[uuid.UUID]*model.RunStep),
		runKeys:     make(map[runKey]uuid.UUID),
	}
}

var _ store.EventQueue = (*Store)(nil)

var _ store.WorkflowStore = (*Store)(nil)

var _ store.RunStore = (*Store)(nil)

func (s *Store) Enqueue(ctx context.Context, event *model.AutomationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	clone := *event
	s.events[clone.ID] = &clone
	return nil
}

func (s *Store) LockBatch(ctx context.Context, limit int, token uuid.UUID) ([]model.AutomationEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 25
	}

	now := time.Now().UTC()
	staleBefore := now.Add(-s.lockTimeout)

	var candidates []*model.AutomationEvent
	for _, event := range s.events {
		if event.ProcessedAt != nil {
			continue
		}
		if event.LockedAt != nil && event.LockedAt.After(staleBefore) {
			continue
		}
		candidates = append(candidates, event)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	locked := make([]model.AutomationEvent, 0, len(candidates))
	for _, event := range candidates {
		lockedAt := now
		tokenCopy := token
		event.LockedAt = &lockedAt
		event.LockToken = &tokenCopy
		locked = append(locked, *event)
	}
	return locked, nil
}

func (s *Store) Complete(ctx context.Context, ids []uuid.UUID, token uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, id := range ids {
		event, ok := s.events[id]
		if !ok || event.ProcessedAt != nil {
			continue
		}
		if event.LockToken == nil || *event.LockToken != token {
			continue
		}
		processedAt := now
		event.ProcessedAt = &processedAt
		event.LockedAt = nil
		event.LockToken = nil
	}
	return nil
}

func (s *Store) Release(ctx context.Context, ids []uuid.UUID, token uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		event, ok := s.events[id]
		if !ok || event.ProcessedAt != nil {
			continue
		}
		if event.LockToken == nil || *event.LockToken != token {
			continue
		}
		event.LockedAt = nil
		event.LockToken = nil
	}
	return nil
}

func (s *Store) Depth(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for _, event := range s.events {
		if event.ProcessedAt == nil {
			count++
		}
	}
	return count, nil
}

func (s *Store) RecordDropped(ctx context.Context, dropped *model.DroppedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dropped.ID == uuid.Nil {
		dropped.ID = uuid.New()
	}
	if dropped.CreatedAt.IsZero() {
		dropped.CreatedAt = time.Now().UTC()
	}
	s.dropped = append(s.dropped, *dropped)
	return nil
}

// GetEvent returns a copy of the queue item, for tests.
func (s *Store) GetEvent(id uuid.UUID) (model.AutomationEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[id]
	if !ok {
		return model.AutomationEvent{}, false
	}
	return *event, true
}

// DroppedEvents returns a copy of the diagnostic records, for tests.
func (s *Store) DroppedEvents() []model.DroppedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.DroppedEvent, len(s.dropped))
	copy(out, s.dropped)
	return out
}

func (s *Store) SaveWorkflow(workflow model.Workflow) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.workflows[workflow.ID] = workflow
}

func (s *Store) ListActive(ctx context.Context, workspaceID uuid.UUID) ([]model.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Workflow
	for _, workflow := range s.workflows {
		if workflow.WorkspaceID == workspaceID && workflow.Status == model.WorkflowActive {
			out = append(out, workflow)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) CreateRun(ctx context.Context, run *model.Run, steps []model.RunStep) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := runKey{sourceEventID: run.SourceEventID, triggerNodeID: run.TriggerNodeID}
	if _, exists := s.runKeys[key]; exists {
		return false, nil
	}

	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	clone := *run
	s.runs[clone.ID] = &clone
	s.runKeys[key] = clone.ID

	for i := range steps {
		if steps[i].ID == uuid.Nil {
			steps[i].ID = uuid.New()
		}
		if steps[i].CreatedAt.IsZero() {
			steps[i].CreatedAt = time.Now().UTC()
		}
		step := steps[i]
		s.steps[step.ID] = &step
	}
	return true, nil
}

func (s *Store) ListUndispatchedSteps(ctx context.Context, limit int) ([]model.RunStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 100
	}

	now := time.Now().UTC()
	var out []model.RunStep
	for _, step := range s.steps {
		if step.Status != model.StepQueued || step.DispatchedAt != nil {
			continue
		}
		if step.ScheduledFor.After(now) {
			continue
		}
		out = append(out, *step)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkStepDispatched(ctx context.Context, stepID uuid.UUID, dispatchedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	step, ok := s.steps[stepID]
	if !ok {
		return nil
	}
	at := dispatchedAt
	step.DispatchedAt = &at
	return nil
}

// Runs returns copies of all runs, for tests.
func (s *Store) Runs() []model.Run {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Run, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, *run)
	}
	return out
}

// StepsForRun returns copies of the run's steps, for tests.
func (s *Store) StepsForRun(runID uuid.UUID) []model.RunStep {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.RunStep
	for _, step := range s.steps {
		if step.RunID == runID {
			out = append(out, *step)
		}
	}
	return out
}
