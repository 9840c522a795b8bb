package postgres

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/stageflow/stageflow/pkg/model"
)

// QueueRepository is the postgres EventQueue. The claim is a single
// conditional UPDATE over a SKIP LOCKED subselect, so selection and lock
// assignment are one atomic step per row and two overlapping consumers can
// never both claim the same item.
type QueueRepository struct {
	db          *gorm.DB
	lockTimeout time.Duration
}

func NewQueueRepository(db *gorm.DB, lockTimeout time.Duration) *QueueRepository {
	if lockTimeout <= 0 {
		lockTimeout = 5 * time.Minute
	}
	return &QueueRepository{db: db, lockTimeout: lockTimeout}
}

func (r *QueueRepository) Enqueue(ctx context.Context, event *model.AutomationEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *QueueRepository) LockBatch(ctx context.Context, limit int, token uuid.UUID) ([]model.AutomationEvent, error) {
	if limit <= 0 {
		limit = 25
	}

	now := time.Now().UTC()
	staleBefore := now.Add(-r.lockTimeout)

	var events []model.AutomationEvent
	err := r.db.WithContext(ctx).Raw(`
		UPDATE automation_events
		SET locked_at = ?, lock_token = ?
		WHERE id IN (
			SELECT id FROM automation_events
			WHERE processed_at IS NULL
			  AND (locked_at IS NULL OR locked_at < ?)
			ORDER BY created_at ASC
			LIMIT ?
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *
	`, now, token, staleBefore, limit).Scan(&events).Error
	if err != nil {
		return nil, err
	}

	// RETURNING does not guarantee row order.
	sort.Slice(events, func(i, j int) bool {
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})

	return events, nil
}

func (r *QueueRepository) Complete(ctx context.Context, ids []uuid.UUID, token uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&model.AutomationEvent{}).
		Where("id = ANY(?::uuid[]) AND lock_token = ? AND processed_at IS NULL", pq.Array(idStrings(ids)), token).
		Updates(map[string]interface{}{
			"processed_at": &now,
			"locked_at":    nil,
			"lock_token":   nil,
		}).Error
}

func (r *QueueRepository) Release(ctx context.Context, ids []uuid.UUID, token uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&model.AutomationEvent{}).
		Where("id = ANY(?::uuid[]) AND lock_token = ? AND processed_at IS NULL", pq.Array(idStrings(ids)), token).
		Updates(map[string]interface{}{
			"locked_at":  nil,
			"lock_token": nil,
		}).Error
}

func (r *QueueRepository) Depth(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.AutomationEvent{}).
		Where("processed_at IS NULL").
		Count(&count).Error
	return count, err
}

func (r *QueueRepository) RecordDropped(ctx context.Context, dropped *model.DroppedEvent) error {
	if dropped.ID == uuid.Nil {
		dropped.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(dropped).Error
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
