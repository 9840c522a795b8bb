package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stageflow/stageflow/pkg/model"
)

type RunRepository struct {
	db *gorm.DB
}

func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

// CreateRun inserts the run and all of its steps in one transaction. The
// insert is keyed on (source_event_id, trigger_node_id): if a run for that
// pair already exists the whole unit is skipped and (false, nil) is
// returned, so a retried evaluation never half-materializes or duplicates.
func (r *RunRepository) CreateRun(ctx context.Context, run *model.Run, steps []model.RunStep) (bool, error) {
	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source_event_id"}, {Name: "trigger_node_id"}},
			DoNothing: true,
		}).Create(run)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		created = true
		if len(steps) > 0 {
			if err := tx.CreateInBatches(steps, 100).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

func (r *RunRepository) ListUndispatchedSteps(ctx context.Context, limit int) ([]model.RunStep, error) {
	if limit <= 0 {
		limit = 100
	}
	var steps []model.RunStep
	err := r.db.WithContext(ctx).
		Where("status = ? AND dispatched_at IS NULL AND scheduled_for <= ?", model.StepQueued, time.Now().UTC()).
		Order("created_at ASC").
		Limit(limit).
		Find(&steps).Error
	return steps, err
}

func (r *RunRepository) MarkStepDispatched(ctx context.Context, stepID uuid.UUID, dispatchedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.RunStep{}).
		Where("id = ?", stepID).
		Update("dispatched_at", &dispatchedAt).Error
}
