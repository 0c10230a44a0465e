package service

import (
	"context"
	"fmt"

	"github.com/bitfantasy/procura/internal/procurement/entity"
	"github.com/bitfantasy/procura/internal/procurement/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SupplierService 供应商目录服务（目录也是匹配阶段的候选来源）
type SupplierService struct {
	repo *repository.SupplierRepository
}

// NewSupplierService 创建供应商服务
func NewSupplierService(repo *repository.SupplierRepository) *SupplierService {
	return &SupplierService{repo: repo}
}

// List 查询供应商列表
func (s *SupplierService) List(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.Supplier, int64, error) {
	return s.repo.FindAll(ctx, page, pageSize, filters)
}

// Get 查询供应商详情
func (s *SupplierService) Get(ctx context.Context, id string) (*entity.Supplier, error) {
	return s.repo.FindByID(ctx, id)
}

// CreateSupplierRequest 创建供应商请求
type CreateSupplierRequest struct {
	Code         string `json:"code" binding:"required"`
	Name         string `json:"name" binding:"required"`
	Description  string `json:"description"`
	ContactEmail string `json:"contact_email" binding:"omitempty,email"`
	ContactPhone string `json:"contact_phone"`
	PaymentTerms string `json:"payment_terms"`
	LeadTimeDays *int   `json:"lead_time_days"`
}

// Create 创建供应商
func (s *SupplierService) Create(ctx context.Context, req *CreateSupplierRequest) (*entity.Supplier, error) {
	supplier := &entity.Supplier{
		ID:           uuid.New().String()[:32],
		Code:         req.Code,
		Name:         req.Name,
		Description:  req.Description,
		ContactEmail: req.ContactEmail,
		ContactPhone: req.ContactPhone,
		PaymentTerms: req.PaymentTerms,
		LeadTimeDays: req.LeadTimeDays,
		Status:       entity.SupplierStatusActive,
	}
	if err := s.repo.Create(ctx, supplier); err != nil {
		return nil, fmt.Errorf("创建供应商失败: %w", err)
	}
	return supplier, nil
}

// UpdateSupplierRequest 更新供应商请求
type UpdateSupplierRequest struct {
	Name         *string `json:"name"`
	Description  *string `json:"description"`
	ContactEmail *string `json:"contact_email" binding:"omitempty,email"`
	ContactPhone *string `json:"contact_phone"`
	PaymentTerms *string `json:"payment_terms"`
	LeadTimeDays *int    `json:"lead_time_days"`
	Status       *string `json:"status" binding:"omitempty,oneof=active inactive pending"`
}

// Update 更新供应商
func (s *SupplierService) Update(ctx context.Context, id string, req *UpdateSupplierRequest) (*entity.Supplier, error) {
	supplier, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		supplier.Name = *req.Name
	}
	if req.Description != nil {
		supplier.Description = *req.Description
	}
	if req.ContactEmail != nil {
		supplier.ContactEmail = *req.ContactEmail
	}
	if req.ContactPhone != nil {
		supplier.ContactPhone = *req.ContactPhone
	}
	if req.PaymentTerms != nil {
		supplier.PaymentTerms = *req.PaymentTerms
	}
	if req.LeadTimeDays != nil {
		supplier.LeadTimeDays = req.LeadTimeDays
	}
	if req.Status != nil {
		supplier.Status = *req.Status
	}

	if err := s.repo.Update(ctx, supplier); err != nil {
		return nil, fmt.Errorf("更新供应商失败: %w", err)
	}
	return supplier, nil
}

// CreatePartRequest 创建零件请求
type CreatePartRequest struct {
	PartNumber  string `json:"part_number" binding:"required"`
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Unit        string `json:"unit"`
}

// CreatePart 创建零件
func (s *SupplierService) CreatePart(ctx context.Context, req *CreatePartRequest) (*entity.Part, error) {
	unit := req.Unit
	if unit == "" {
		unit = "EA"
	}
	part := &entity.Part{
		ID:          uuid.New().String()[:32],
		PartNumber:  req.PartNumber,
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Unit:        unit,
	}
	if err := s.repo.CreatePart(ctx, part); err != nil {
		return nil, fmt.Errorf("创建零件失败: %w", err)
	}
	return part, nil
}

// CreateSupplierPartRequest 创建供应商报价请求
type CreateSupplierPartRequest struct {
	SupplierID         string   `json:"supplier_id" binding:"required"`
	PartID             string   `json:"part_id" binding:"required"`
	SupplierPartNumber string   `json:"supplier_part_number"`
	UnitPrice          *float64 `json:"unit_price" binding:"omitempty,gte=0"`
	Currency           string   `json:"currency"`
	MinOrderQty        int      `json:"min_order_qty"`
	LeadTimeDays       *int     `json:"lead_time_days"`
	IsPreferred        bool     `json:"is_preferred"`
}

// CreateSupplierPart 登记供应商对零件的报价关系
func (s *SupplierService) CreateSupplierPart(ctx context.Context, req *CreateSupplierPartRequest) (*entity.SupplierPart, error) {
	if _, err := s.repo.FindByID(ctx, req.SupplierID); err != nil {
		return nil, err
	}
	if _, err := s.repo.FindPartByID(ctx, req.PartID); err != nil {
		return nil, err
	}

	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}
	minQty := req.MinOrderQty
	if minQty <= 0 {
		minQty = 1
	}

	sp := &entity.SupplierPart{
		ID:                 uuid.New().String()[:32],
		SupplierID:         req.SupplierID,
		PartID:             req.PartID,
		SupplierPartNumber: req.SupplierPartNumber,
		Currency:           currency,
		MinOrderQty:        minQty,
		LeadTimeDays:       req.LeadTimeDays,
		IsPreferred:        req.IsPreferred,
	}
	if req.UnitPrice != nil {
		price := decimal.NewFromFloat(*req.UnitPrice)
		sp.UnitPrice = &price
	}

	if err := s.repo.CreateSupplierPart(ctx, sp); err != nil {
		return nil, fmt.Errorf("创建供应商报价失败: %w", err)
	}
	return sp, nil
}
