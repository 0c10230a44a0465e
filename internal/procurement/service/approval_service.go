package service

import (
	"context"

	"github.com/bitfantasy/procura/internal/procurement/entity"
	"github.com/bitfantasy/procura/internal/procurement/repository"
)

// ApprovalService 审批记录查询（决定本身由PO/审核服务落地，记录决后不可变）
type ApprovalService struct {
	repo *repository.ApprovalRepository
}

// NewApprovalService 创建审批查询服务
func NewApprovalService(repo *repository.ApprovalRepository) *ApprovalService {
	return &ApprovalService{repo: repo}
}

// List 查询审批请求列表
func (s *ApprovalService) List(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.ApprovalRequest, int64, error) {
	return s.repo.FindAll(ctx, page, pageSize, filters)
}

// Get 查询审批请求详情
func (s *ApprovalService) Get(ctx context.Context, id string) (*entity.ApprovalRequest, error) {
	return s.repo.FindByID(ctx, id)
}
