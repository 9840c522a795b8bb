// Package dispatch exports queued run steps to the step topic, where the
// step executors pick them up. The relay does not execute steps or walk the
// workflow graph; it only moves the first-hop work queue onto the broker.
package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/stageflow/stageflow/pkg/metrics"
	"github.com/stageflow/stageflow/pkg/model"
	"github.com/stageflow/stageflow/pkg/store"
)

type Relay struct {
	runs         store.RunStore
	writer       *kafka.Writer
	dlqWriter    *kafka.Writer
	logger       *zap.Logger
	pollInterval time.Duration
	batchSize    int
}

type StepMessage struct {
	StepID       string    `json:"step_id"`
	RunID        string    `json:"run_id"`
	NodeID       string    `json:"node_id"`
	Status       string    `json:"status"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

type DLQMessage struct {
	Step     StepMessage `json:"step"`
	Error    string      `json:"error"`
	FailedAt time.Time   `json:"failed_at"`
}

func NewRelay(runs store.RunStore, writer, dlqWriter *kafka.Writer, logger *zap.Logger, pollInterval time.Duration, batchSize int) *Relay {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Relay{
		runs:         runs,
		writer:       writer,
		dlqWriter:    dlqWriter,
		logger:       logger,
		pollInterval: pollInterval,
		batchSize:    batchSize,
	}
}

func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info("step relay starting",
		zap.Duration("poll_interval", r.pollInterval),
		zap.Int("batch_size", r.batchSize),
	)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	r.processPending(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("step relay shutting down")
			return ctx.Err()
		case <-ticker.C:
			r.processPending(ctx)
		}
	}
}

func (r *Relay) processPending(ctx context.Context) {
	steps, err := r.runs.ListUndispatchedSteps(ctx, r.batchSize)
	if err != nil {
		r.logger.Warn("failed to list undispatched steps", zap.Error(err))
		return
	}

	for _, step := range steps {
		if err := r.publishStep(ctx, step); err != nil {
			r.logger.Warn("failed to publish step", zap.Error(err), zap.String("step_id", step.ID.String()))
		}
	}
}

func (r *Relay) publishStep(ctx context.Context, step model.RunStep) error {
	message := StepMessage{
		StepID:       step.ID.String(),
		RunID:        step.RunID.String(),
		NodeID:       step.NodeID.String(),
		Status:       string(step.Status),
		ScheduledFor: step.ScheduledFor,
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}

	kafkaMessage := kafka.Message{
		Key:   []byte(step.RunID.String()),
		Value: payload,
		Time:  time.Now(),
	}

	if err := r.writer.WriteMessages(ctx, kafkaMessage); err != nil {
		r.logger.Warn("failed to publish to step topic, sending to DLQ", zap.Error(err), zap.String("step_id", step.ID.String()))
		return r.publishDLQ(ctx, message, err, step)
	}

	metrics.StepsDispatched.WithLabelValues("published").Inc()
	if err := r.runs.MarkStepDispatched(ctx, step.ID, time.Now().UTC()); err != nil {
		r.logger.Warn("failed to mark step dispatched", zap.Error(err), zap.String("step_id", step.ID.String()))
		return err
	}

	return nil
}

func (r *Relay) publishDLQ(ctx context.Context, message StepMessage, publishErr error, step model.RunStep) error {
	dlq := DLQMessage{
		Step:     message,
		Error:    publishErr.Error(),
		FailedAt: time.Now(),
	}

	payload, err := json.Marshal(dlq)
	if err != nil {
		return err
	}

	kafkaMessage := kafka.Message{
		Key:   []byte(message.StepID),
		Value: payload,
		Time:  time.Now(),
	}

	if err := r.dlqWriter.WriteMessages(ctx, kafkaMessage); err != nil {
		return err
	}

	metrics.StepsDispatched.WithLabelValues("dlq").Inc()
	if err := r.runs.MarkStepDispatched(ctx, step.ID, time.Now().UTC()); err != nil {
		r.logger.Warn("failed to mark step dispatched", zap.Error(err), zap.String("step_id", step.ID.String()))
		return err
	}

	return nil
}
