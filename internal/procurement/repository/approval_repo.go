package repository

import (
	"context"
	"errors"

	"github.com/bitfantasy/procura/internal/procurement/entity"
	"gorm.io/gorm"
)

// ApprovalRepository 审批请求仓库
type ApprovalRepository struct {
	db *gorm.DB
}

func NewApprovalRepository(db *gorm.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

// FindAll 查询审批请求列表
func (r *ApprovalRepository) FindAll(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.ApprovalRequest, int64, error) {
	var reqs []entity.ApprovalRequest
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.ApprovalRequest{})

	if status := filters["status"]; status != "" {
		query = query.Where("status = ?", status)
	}
	if entityType := filters["entity_type"]; entityType != "" {
		query = query.Where("entity_type = ?", entityType)
	}
	if entityID := filters["entity_id"]; entityID != "" {
		query = query.Where("entity_id = ?", entityID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&reqs).Error

	return reqs, total, err
}

// FindByID 查找审批请求
func (r *ApprovalRepository) FindByID(ctx context.Context, id string) (*entity.ApprovalRequest, error) {
	var req entity.ApprovalRequest
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &req, nil
}

// FindPendingByEntity 查找实体的待决审批请求
func (r *ApprovalRepository) FindPendingByEntity(ctx context.Context, entityType, entityID string) (*entity.ApprovalRequest, error) {
	var req entity.ApprovalRequest
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ? AND status = ?", entityType, entityID, entity.ApprovalStatusPending).
		Order("created_at DESC").
		First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}

// Create 创建审批请求
func (r *ApprovalRepository) Create(ctx context.Context, req *entity.ApprovalRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

// Update 更新审批请求
func (r *ApprovalRepository) Update(ctx context.Context, req *entity.ApprovalRequest) error {
	return r.db.WithContext(ctx).Save(req).Error
}
