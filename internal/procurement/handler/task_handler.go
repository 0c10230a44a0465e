package handler

import (
	"github.com/bitfantasy/procura/internal/procurement/service"
	"github.com/gin-gonic/gin"
)

// TaskHandler 处理任务处理器
type TaskHandler struct {
	pipeline *service.PipelineService
}

func NewTaskHandler(pipeline *service.PipelineService) *TaskHandler {
	return &TaskHandler{pipeline: pipeline}
}

// Get 任务详情
// GET /api/v1/tasks/:id
func (h *TaskHandler) Get(c *gin.Context) {
	task, err := h.pipeline.GetTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	Success(c, task)
}

// Cancel 请求取消任务（协作式，阶段边界生效）
// POST /api/v1/tasks/:id/cancel
func (h *TaskHandler) Cancel(c *gin.Context) {
	task, err := h.pipeline.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	Success(c, task)
}
