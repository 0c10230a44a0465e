package handler

import (
	"github.com/bitfantasy/procura/internal/procurement/service"
	"github.com/gin-gonic/gin"
)

// SupplierHandler 供应商目录处理器
type SupplierHandler struct {
	svc *service.SupplierService
}

func NewSupplierHandler(svc *service.SupplierService) *SupplierHandler {
	return &SupplierHandler{svc: svc}
}

// List 供应商列表
// GET /api/v1/suppliers?status=xxx&search=xxx
func (h *SupplierHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	filters := map[string]string{
		"status": c.Query("status"),
		"search": c.Query("search"),
	}

	items, total, err := h.svc.List(c.Request.Context(), page, pageSize, filters)
	if err != nil {
		InternalError(c, "获取供应商列表失败: "+err.Error())
		return
	}

	paginated(c, items, page, pageSize, total)
}

// Get 供应商详情
// GET /api/v1/suppliers/:id
func (h *SupplierHandler) Get(c *gin.Context) {
	supplier, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	Success(c, supplier)
}

// Create 创建供应商
// POST /api/v1/suppliers
func (h *SupplierHandler) Create(c *gin.Context) {
	var req service.CreateSupplierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	supplier, err := h.svc.Create(c.Request.Context(), &req)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	Created(c, supplier)
}

// Update 更新供应商
// PUT /api/v1/suppliers/:id
func (h *SupplierHandler) Update(c *gin.Context) {
	var req service.UpdateSupplierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	supplier, err := h.svc.Update(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	Success(c, supplier)
}

// CreatePart 创建零件
// POST /api/v1/parts
func (h *SupplierHandler) CreatePart(c *gin.Context) {
	var req service.CreatePartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	part, err := h.svc.CreatePart(c.Request.Context(), &req)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	Created(c, part)
}

// CreateSupplierPart 登记供应商报价
// POST /api/v1/supplier-parts
func (h *SupplierHandler) CreateSupplierPart(c *gin.Context) {
	var req service.CreateSupplierPartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	sp, err := h.svc.CreateSupplierPart(c.Request.Context(), &req)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	Created(c, sp)
}
