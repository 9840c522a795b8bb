package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stageflow/stageflow/pkg/apiserver/middleware"
	"github.com/stageflow/stageflow/pkg/consumer"
	"github.com/stageflow/stageflow/pkg/model"
	"github.com/stageflow/stageflow/pkg/store"
	"github.com/stageflow/stageflow/pkg/trigger"
)

type AutomationHandler struct {
	queue     store.EventQueue
	consumer  *consumer.Consumer
	evaluator consumer.Evaluator
	logger    *zap.Logger
}

func NewAutomationHandler(queue store.EventQueue, cons *consumer.Consumer, evaluator consumer.Evaluator, logger *zap.Logger) *AutomationHandler {
	return &AutomationHandler{
		queue:     queue,
		consumer:  cons,
		evaluator: evaluator,
		logger:    logger,
	}
}

// Tick runs one consumer cycle. Invoked by the external scheduler, directly
// or through the cron wrapper route; both land here and return the tick
// counts verbatim.
func (h *AutomationHandler) Tick(c *gin.Context) {
	result, err := h.consumer.Tick(c.Request.Context())
	if err != nil {
		h.logger.Error("tick failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tick failed"})
		return
	}
	c.JSON(http.StatusOK, result)
}

type enqueueRequest struct {
	EventType string                 `json:"event_type" binding:"required"`
	EntityID  string                 `json:"entity_id" binding:"required"`
	Payload   map[string]interface{} `json:"payload" binding:"required"`
}

// Enqueue is the producer contract over HTTP: any component that detects a
// qualifying state transition posts a well-formed event here. No
// deduplication happens on this path.
func (h *AutomationHandler) Enqueue(c *gin.Context) {
	workspaceID, ok := requestWorkspace(c)
	if !ok {
		return
	}

	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	entityID, err := uuid.Parse(req.EntityID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid entity_id"})
		return
	}

	event := &model.AutomationEvent{
		ID:          uuid.New(),
		WorkspaceID: workspaceID,
		EventType:   req.EventType,
		EntityID:    entityID,
		Payload:     model.JSONB(req.Payload),
	}
	if err := h.queue.Enqueue(c.Request.Context(), event); err != nil {
		h.logger.Error("failed to enqueue event", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue event"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"id": event.ID.String()})
}

type evaluateRequest struct {
	EntityID    string `json:"entity_id" binding:"required"`
	ContainerID string `json:"container_id" binding:"required"`
	FromStageID string `json:"from_stage_id"`
	ToStageID   string `json:"to_stage_id" binding:"required"`
}

// Evaluate runs trigger evaluation synchronously for a stage-change fact,
// bypassing the queue, and returns how many runs were created.
func (h *AutomationHandler) Evaluate(c *gin.Context) {
	workspaceID, ok := requestWorkspace(c)
	if !ok {
		return
	}

	var req evaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	entityID, err := uuid.Parse(req.EntityID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid entity_id"})
		return
	}

	payload := model.JSONB{
		"entityId":    req.EntityID,
		"containerId": req.ContainerID,
		"toStageId":   req.ToStageID,
	}
	if req.FromStageID != "" {
		payload["fromStageId"] = req.FromStageID
	}

	event := &model.AutomationEvent{
		ID:          uuid.New(),
		WorkspaceID: workspaceID,
		EventType:   model.EventStageChanged,
		EntityID:    entityID,
		Payload:     payload,
	}
	if err := trigger.ValidatePayload(event.EventType, event.Payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload", "details": err.Error()})
		return
	}

	triggered, err := h.evaluator.Evaluate(c.Request.Context(), event)
	if err != nil {
		h.logger.Error("trigger evaluation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "trigger evaluation failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"triggered": triggered})
}

func requestWorkspace(c *gin.Context) (uuid.UUID, bool) {
	value := c.GetString(middleware.ContextWorkspaceID)
	workspaceID, err := uuid.Parse(value)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid workspace"})
		return uuid.Nil, false
	}
	return workspaceID, true
}
