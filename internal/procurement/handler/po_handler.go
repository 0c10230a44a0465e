package handler

import (
	"github.com/bitfantasy/procura/internal/procurement/service"
	"github.com/gin-gonic/gin"
)

// POHandler 采购订单处理器
type POHandler struct {
	svc *service.POService
}

func NewPOHandler(svc *service.POService) *POHandler {
	return &POHandler{svc: svc}
}

// List 采购订单列表
// GET /api/v1/purchase-orders?supplier_id=xxx&bom_id=xxx&status=xxx&search=xxx
func (h *POHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	filters := map[string]string{
		"supplier_id": c.Query("supplier_id"),
		"bom_id":      c.Query("bom_id"),
		"status":      c.Query("status"),
		"search":      c.Query("search"),
	}

	items, total, err := h.svc.List(c.Request.Context(), page, pageSize, filters)
	if err != nil {
		InternalError(c, "获取采购订单列表失败: "+err.Error())
		return
	}

	paginated(c, items, page, pageSize, total)
}

// Get 采购订单详情
// GET /api/v1/purchase-orders/:id
func (h *POHandler) Get(c *gin.Context) {
	po, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	Success(c, po)
}

// Create 手工创建采购订单
// POST /api/v1/purchase-orders
func (h *POHandler) Create(c *gin.Context) {
	var req service.CreatePORequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	userID := GetUserID(c)
	po, err := h.svc.Create(c.Request.Context(), userID, &req)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	Created(c, po)
}

// Delete 删除采购订单（仅draft）
// DELETE /api/v1/purchase-orders/:id
func (h *POHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		RespondServiceError(c, err)
		return
	}
	Success(c, nil)
}

// Generate 从BOM生成采购订单（幂等）
// POST /api/v1/boms/:id/generate-pos
func (h *POHandler) Generate(c *gin.Context) {
	userID := GetUserID(c)
	result, err := h.svc.GenerateFromBOM(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	Success(c, result)
}

// Submit 提交审批
// POST /api/v1/purchase-orders/:id/submit
func (h *POHandler) Submit(c *gin.Context) {
	userID := GetUserID(c)
	po, err := h.svc.Submit(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	Success(c, po)
}

// Approve 审批决定
// POST /api/v1/purchase-orders/:id/approve
func (h *POHandler) Approve(c *gin.Context) {
	var req service.ApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	userID := GetUserID(c)
	po, err := h.svc.Approve(c.Request.Context(), c.Param("id"), userID, &req)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	Success(c, po)
}

// Send 发出订单
// POST /api/v1/purchase-orders/:id/send
func (h *POHandler) Send(c *gin.Context) {
	po, err := h.svc.Send(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	Success(c, po)
}

// Acknowledge 供应商确认
// POST /api/v1/purchase-orders/:id/acknowledge
func (h *POHandler) Acknowledge(c *gin.Context) {
	po, err := h.svc.Acknowledge(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	Success(c, po)
}

// Ship 供应商发货
// POST /api/v1/purchase-orders/:id/ship
func (h *POHandler) Ship(c *gin.Context) {
	po, err := h.svc.MarkShipped(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	Success(c, po)
}

// Receive 收货登记
// POST /api/v1/purchase-orders/:id/receive
func (h *POHandler) Receive(c *gin.Context) {
	var req service.ReceiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	po, err := h.svc.Receive(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	Success(c, po)
}

// Cancel 取消订单
// POST /api/v1/purchase-orders/:id/cancel
func (h *POHandler) Cancel(c *gin.Context) {
	po, err := h.svc.CancelPO(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	Success(c, po)
}
