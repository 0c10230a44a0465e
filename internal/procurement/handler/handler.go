package handler

import (
	"errors"
	"strconv"

	"github.com/bitfantasy/procura/internal/procurement/matching"
	"github.com/bitfantasy/procura/internal/procurement/parsing"
	"github.com/bitfantasy/procura/internal/procurement/service"
	"github.com/gin-gonic/gin"
)

// Handlers 采购处理器集合
type Handlers struct {
	BOM      *BOMHandler
	Task     *TaskHandler
	Review   *ReviewHandler
	PO       *POHandler
	Supplier *SupplierHandler
	Approval *ApprovalHandler
	SSE      *SSEHandler
}

// NewHandlers 创建采购处理器集合
func NewHandlers(svcs *service.Services) *Handlers {
	return &Handlers{
		BOM:      NewBOMHandler(svcs.BOM, svcs.Pipeline),
		Task:     NewTaskHandler(svcs.Pipeline),
		Review:   NewReviewHandler(svcs.Review),
		PO:       NewPOHandler(svcs.PO),
		Supplier: NewSupplierHandler(svcs.Supplier),
		Approval: NewApprovalHandler(svcs.Approval),
		SSE:      NewSSEHandler(),
	}
}

// === 响应辅助函数 ===

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type ListResponse struct {
	Items      interface{} `json:"items"`
	Pagination *Pagination `json:"pagination"`
}

type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

func Conflict(c *gin.Context, message string) {
	Error(c, 40900, message)
}

func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

// RespondServiceError 按错误类别映射响应：
// 不存在→404，运行冲突/非法流转→409，解析类→400，其余→500
func RespondServiceError(c *gin.Context, err error) {
	var parseErr *parsing.ParseError
	switch {
	case errors.Is(err, service.ErrNotFound):
		NotFound(c, err.Error())
	case errors.Is(err, service.ErrRunConflict):
		Conflict(c, err.Error())
	case service.IsInvalidState(err):
		Conflict(c, err.Error())
	case errors.Is(err, parsing.ErrUnsupportedFormat):
		BadRequest(c, err.Error())
	case errors.As(err, &parseErr):
		BadRequest(c, err.Error())
	case errors.Is(err, matching.ErrUnavailable):
		Error(c, 50300, err.Error())
	default:
		InternalError(c, err.Error())
	}
}

func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

func GetPagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}

	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}

	return page, pageSize
}

func paginated(c *gin.Context, items interface{}, page, pageSize int, total int64) {
	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}
	Success(c, ListResponse{
		Items: items,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      int(total),
			TotalPages: totalPages,
		},
	})
}
