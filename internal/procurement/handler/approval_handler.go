package handler

import (
	"github.com/bitfantasy/procura/internal/procurement/service"
	"github.com/gin-gonic/gin"
)

// ApprovalHandler 审批记录处理器
type ApprovalHandler struct {
	svc *service.ApprovalService
}

func NewApprovalHandler(svc *service.ApprovalService) *ApprovalHandler {
	return &ApprovalHandler{svc: svc}
}

// List 审批请求列表
// GET /api/v1/approvals?status=xxx&entity_type=xxx&entity_id=xxx
func (h *ApprovalHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	filters := map[string]string{
		"status":      c.Query("status"),
		"entity_type": c.Query("entity_type"),
		"entity_id":   c.Query("entity_id"),
	}

	items, total, err := h.svc.List(c.Request.Context(), page, pageSize, filters)
	if err != nil {
		InternalError(c, "获取审批列表失败: "+err.Error())
		return
	}

	paginated(c, items, page, pageSize, total)
}

// Get 审批请求详情
// GET /api/v1/approvals/:id
func (h *ApprovalHandler) Get(c *gin.Context) {
	req, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	Success(c, req)
}
