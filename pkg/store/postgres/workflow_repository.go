package postgres

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stageflow/stageflow/pkg/model"
)

// WorkflowRepository is the engine's read-only view of authored workflow
// graphs. Writes go through the authoring subsystem.
type WorkflowRepository struct {
	db *gorm.DB
}

func NewWorkflowRepository(db *gorm.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

func (r *WorkflowRepository) ListActive(ctx context.Context, workspaceID uuid.UUID) ([]model.Workflow, error) {
	var workflows []model.Workflow
	err := r.db.WithContext(ctx).
		Preload("Nodes").
		Preload("Edges").
		Where("workspace_id = ? AND status = ?", workspaceID, model.WorkflowActive).
		Find(&workflows).Error
	return workflows, err
}
