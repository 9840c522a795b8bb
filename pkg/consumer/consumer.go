// Package consumer orchestrates one processing tick over the automation
// event queue: claim a batch under a fresh lock token, evaluate each event,
// then batch-complete the successes and batch-release the transient
// failures under that same token.
package consumer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stageflow/stageflow/pkg/metrics"
	"github.com/stageflow/stageflow/pkg/model"
	"github.com/stageflow/stageflow/pkg/store"
	"github.com/stageflow/stageflow/pkg/trigger"
)

// Evaluator is the trigger evaluation call the consumer drives. Implemented
// by trigger.Evaluator; stubbed in tests.
type Evaluator interface {
	Evaluate(ctx context.Context, event *model.AutomationEvent) (int, error)
}

const defaultBatchSize = 25

type Consumer struct {
	queue     store.EventQueue
	evaluator Evaluator
	logger    *zap.Logger
	batchSize int
}

// Result reports how one tick resolved its batch. Dropped events count as
// processed: they are completed, just without evaluation.
type Result struct {
	Processed int `json:"processed"`
	Released  int `json:"released"`
}

func New(queue store.EventQueue, evaluator Evaluator, logger *zap.Logger, batchSize int) *Consumer {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Consumer{
		queue:     queue,
		evaluator: evaluator,
		logger:    logger,
		batchSize: batchSize,
	}
}

// Tick runs one full claim-evaluate-resolve cycle. A storage error while
// claiming aborts the tick; an error while evaluating a single item is
// contained to that item and the rest of the batch proceeds. A crash
// mid-tick leaves the claimed items locked until the stale-lock timeout
// makes them claimable again.
func (c *Consumer) Tick(ctx context.Context) (Result, error) {
	start := time.Now()
	defer func() {
		metrics.TickDuration.Observe(time.Since(start).Seconds())
	}()

	token := uuid.New()
	items, err := c.queue.LockBatch(ctx, c.batchSize, token)
	if err != nil {
		return Result{}, fmt.Errorf("lock batch: %w", err)
	}
	if len(items) == 0 {
		return Result{}, nil
	}

	var completed, released []uuid.UUID
	for i := range items {
		item := &items[i]
		if c.evaluateItem(ctx, item) {
			completed = append(completed, item.ID)
		} else {
			released = append(released, item.ID)
		}
	}

	if err := c.queue.Complete(ctx, completed, token); err != nil {
		return Result{}, fmt.Errorf("complete batch: %w", err)
	}
	if err := c.queue.Release(ctx, released, token); err != nil {
		return Result{}, fmt.Errorf("release batch: %w", err)
	}

	metrics.EventsProcessed.WithLabelValues("completed").Add(float64(len(completed)))
	metrics.EventsProcessed.WithLabelValues("released").Add(float64(len(released)))

	result := Result{Processed: len(completed), Released: len(released)}
	c.logger.Info("tick finished",
		zap.String("lock_token", token.String()),
		zap.Int("processed", result.Processed),
		zap.Int("released", result.Released),
	)
	return result, nil
}

// evaluateItem resolves one claimed item and reports whether it should be
// completed (true) or released for retry (false).
func (c *Consumer) evaluateItem(ctx context.Context, item *model.AutomationEvent) bool {
	// Unknown types are not errors: producers may enqueue event types ahead
	// of engine support. Drop them as completed no-ops.
	if !trigger.KnownEventType(item.EventType) {
		c.drop(ctx, item, model.DropReasonUnknownType, "")
		return true
	}

	// Malformed payloads cannot self-heal by retrying. Same treatment.
	if err := trigger.ValidatePayload(item.EventType, item.Payload); err != nil {
		c.drop(ctx, item, model.DropReasonMalformed, err.Error())
		return true
	}

	if _, err := c.evaluator.Evaluate(ctx, item); err != nil {
		c.logger.Warn("trigger evaluation failed, releasing item for retry",
			zap.Error(err),
			zap.String("event_id", item.ID.String()),
			zap.String("event_type", item.EventType),
		)
		return false
	}
	return true
}

// drop records the diagnostic trace for an event completed without
// evaluation. Recording is best effort; a diagnostics write failure never
// turns a permanent drop into a retry.
func (c *Consumer) drop(ctx context.Context, item *model.AutomationEvent, reason, detail string) {
	metrics.EventsDropped.WithLabelValues(reason).Inc()
	c.logger.Warn("dropping event",
		zap.String("event_id", item.ID.String()),
		zap.String("event_type", item.EventType),
		zap.String("reason", reason),
	)

	dropped := &model.DroppedEvent{
		EventID:     item.ID,
		WorkspaceID: item.WorkspaceID,
		EventType:   item.EventType,
		Reason:      reason,
		Detail:      detail,
	}
	if err := c.queue.RecordDropped(ctx, dropped); err != nil {
		c.logger.Warn("failed to record dropped event", zap.Error(err), zap.String("event_id", item.ID.String()))
	}
}
