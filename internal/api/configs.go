package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/boardwatch/boardwatch/internal/scheduler"
	"github.com/boardwatch/boardwatch/internal/store"
)

// ConfigHandler manages watch configurations and their execution history
type ConfigHandler struct {
	configs    store.ConfigRepositoryInterface
	executions store.ExecutionRepositoryInterface
}

// NewConfigHandler creates a watch configuration handler
func NewConfigHandler(configs store.ConfigRepositoryInterface, executions store.ExecutionRepositoryInterface) *ConfigHandler {
	return &ConfigHandler{
		configs:    configs,
		executions: executions,
	}
}

// ConfigDTO is a watch configuration with its computed next execution
type ConfigDTO struct {
	*store.WatchConfig
	NextExecutionAt *time.Time `json:"next_execution_at,omitempty"`
}

func toConfigDTO(config *store.WatchConfig) ConfigDTO {
	return ConfigDTO{
		WatchConfig:     config,
		NextExecutionAt: scheduler.NextExecution(config, time.Now()),
	}
}

// ListConfigs returns all watch configurations
func (h *ConfigHandler) ListConfigs(c *gin.Context) {
	configs, err := h.configs.List(c.Request.Context())
	if err != nil {
		ErrorResponseFromError(c, err)
		return
	}

	dtos := make([]ConfigDTO, len(configs))
	for i, config := range configs {
		dtos[i] = toConfigDTO(config)
	}
	SuccessResponse(c, dtos)
}

// GetConfig returns one watch configuration
func (h *ConfigHandler) GetConfig(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		BadRequestResponse(c, "invalid configuration ID")
		return
	}

	config, err := h.configs.GetByID(c.Request.Context(), id)
	if err != nil {
		ErrorResponseFromError(c, err)
		return
	}
	SuccessResponse(c, toConfigDTO(config))
}

// CreateConfigRequest is the POST body for creating a configuration
type CreateConfigRequest struct {
	Name      string         `json:"name" binding:"required"`
	Board     string         `json:"board" binding:"required"`
	Keywords  []string       `json:"keywords" binding:"required"`
	PostCount int            `json:"post_count" binding:"required"`
	ChatID    string         `json:"chat_id" binding:"required"`
	Schedule  store.Schedule `json:"schedule" binding:"required"`
	IsActive  *bool          `json:"is_active"`
}

// CreateConfig creates a watch configuration
func (h *ConfigHandler) CreateConfig(c *gin.Context) {
	var req CreateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestResponse(c, err.Error())
		return
	}

	config := &store.WatchConfig{
		Name:      req.Name,
		Board:     req.Board,
		Keywords:  req.Keywords,
		PostCount: req.PostCount,
		ChatID:    req.ChatID,
		Schedule:  req.Schedule,
		IsActive:  true,
	}
	if req.IsActive != nil {
		config.IsActive = *req.IsActive
	}

	if err := h.configs.Create(c.Request.Context(), config); err != nil {
		ErrorResponseFromError(c, err)
		return
	}
	CreatedResponse(c, toConfigDTO(config))
}

// UpdateConfig replaces a watch configuration
func (h *ConfigHandler) UpdateConfig(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		BadRequestResponse(c, "invalid configuration ID")
		return
	}

	var req CreateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestResponse(c, err.Error())
		return
	}

	config, err := h.configs.GetByID(c.Request.Context(), id)
	if err != nil {
		ErrorResponseFromError(c, err)
		return
	}

	config.Name = req.Name
	config.Board = req.Board
	config.Keywords = req.Keywords
	config.PostCount = req.PostCount
	config.ChatID = req.ChatID
	config.Schedule = req.Schedule
	if req.IsActive != nil {
		config.IsActive = *req.IsActive
	}

	if err := h.configs.Update(c.Request.Context(), config); err != nil {
		ErrorResponseFromError(c, err)
		return
	}
	SuccessResponse(c, toConfigDTO(config))
}

// DeleteConfig removes a watch configuration and its execution history
func (h *ConfigHandler) DeleteConfig(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		BadRequestResponse(c, "invalid configuration ID")
		return
	}

	if err := h.configs.Delete(c.Request.Context(), id); err != nil {
		ErrorResponseFromError(c, err)
		return
	}
	SuccessResponse(c, gin.H{"deleted": id})
}

// ListConfigExecutions returns the recent execution records for one
// configuration
func (h *ConfigHandler) ListConfigExecutions(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		BadRequestResponse(c, "invalid configuration ID")
		return
	}

	limit, err := intQuery(c, "limit", 50)
	if err != nil {
		BadRequestResponse(c, "limit must be an integer")
		return
	}

	records, err := h.executions.ListByConfig(c.Request.Context(), id, limit)
	if err != nil {
		ErrorResponseFromError(c, err)
		return
	}
	SuccessResponse(c, records)
}

// ListRecentExecutions returns recent execution records across all
// configurations
func (h *ConfigHandler) ListRecentExecutions(c *gin.Context) {
	limit, err := intQuery(c, "limit", 50)
	if err != nil {
		BadRequestResponse(c, "limit must be an integer")
		return
	}

	records, err := h.executions.ListRecent(c.Request.Context(), limit)
	if err != nil {
		ErrorResponseFromError(c, err)
		return
	}
	SuccessResponse(c, records)
}
