package handler

import (
	"github.com/bitfantasy/procura/internal/procurement/service"
	"github.com/gin-gonic/gin"
)

// BOMHandler BOM文档处理器
type BOMHandler struct {
	svc      *service.BOMService
	pipeline *service.PipelineService
}

func NewBOMHandler(svc *service.BOMService, pipeline *service.PipelineService) *BOMHandler {
	return &BOMHandler{svc: svc, pipeline: pipeline}
}

// Upload 上传BOM文件
// POST /api/v1/boms/upload (multipart: file, name?, version?)
func (h *BOMHandler) Upload(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "缺少上传文件: "+err.Error())
		return
	}

	file, err := header.Open()
	if err != nil {
		BadRequest(c, "读取上传文件失败: "+err.Error())
		return
	}
	defer file.Close()

	userID := GetUserID(c)
	bom, err := h.svc.Upload(c.Request.Context(), userID,
		c.PostForm("name"), c.PostForm("version"), header, file)
	if err != nil {
		RespondServiceError(c, err)
		return
	}

	Created(c, bom)
}

// List BOM列表
// GET /api/v1/boms?status=xxx&processing_status=xxx&search=xxx
func (h *BOMHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	filters := map[string]string{
		"status":            c.Query("status"),
		"processing_status": c.Query("processing_status"),
		"search":            c.Query("search"),
	}

	items, total, err := h.svc.List(c.Request.Context(), page, pageSize, filters)
	if err != nil {
		InternalError(c, "获取BOM列表失败: "+err.Error())
		return
	}

	paginated(c, items, page, pageSize, total)
}

// Get BOM详情（含行项）
// GET /api/v1/boms/:id
func (h *BOMHandler) Get(c *gin.Context) {
	bom, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	Success(c, bom)
}

// Delete 删除BOM
// DELETE /api/v1/boms/:id
func (h *BOMHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		RespondServiceError(c, err)
		return
	}
	Success(c, nil)
}

// GetStatus 轮询处理状态（轻量，无行项关联）
// GET /api/v1/boms/:id/status
func (h *BOMHandler) GetStatus(c *gin.Context) {
	view, err := h.svc.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	Success(c, view)
}

// ListItems BOM行项列表
// GET /api/v1/boms/:id/items?status=xxx
func (h *BOMHandler) ListItems(c *gin.Context) {
	items, err := h.svc.ListItems(c.Request.Context(), c.Param("id"), c.Query("status"))
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	Success(c, items)
}

// UpdateItem 人工修正行项
// PUT /api/v1/bom-items/:id
func (h *BOMHandler) UpdateItem(c *gin.Context) {
	var req service.UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	item, err := h.svc.UpdateItem(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	Success(c, item)
}

// Process 启动流水线运行
// POST /api/v1/boms/:id/process
func (h *BOMHandler) Process(c *gin.Context) {
	userID := GetUserID(c)
	task, err := h.pipeline.StartRun(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	Created(c, task)
}

// ListTasks BOM历史处理任务
// GET /api/v1/boms/:id/tasks
func (h *BOMHandler) ListTasks(c *gin.Context) {
	tasks, err := h.pipeline.ListTasks(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	Success(c, tasks)
}
