package handler

import (
	"github.com/bitfantasy/procura/internal/procurement/service"
	"github.com/gin-gonic/gin"
)

// ReviewHandler 人工审核处理器
type ReviewHandler struct {
	svc *service.ReviewService
}

func NewReviewHandler(svc *service.ReviewService) *ReviewHandler {
	return &ReviewHandler{svc: svc}
}

// Queue 审核队列（置信度升序）
// GET /api/v1/boms/:id/review-queue
func (h *ReviewHandler) Queue(c *gin.Context) {
	items, err := h.svc.ListQueue(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	Success(c, items)
}

// Resolve 人工裁决行项
// POST /api/v1/bom-items/:id/resolve
func (h *ReviewHandler) Resolve(c *gin.Context) {
	var req service.ResolveItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	if req.SupplierID == nil && req.ManualPrice == nil {
		BadRequest(c, "supplier_id或manual_price至少提供一项")
		return
	}

	userID := GetUserID(c)
	item, err := h.svc.ResolveItem(c.Request.Context(), c.Param("id"), userID, &req)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	Success(c, item)
}
