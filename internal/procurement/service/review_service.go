package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bitfantasy/procura/internal/procurement/entity"
	"github.com/bitfantasy/procura/internal/procurement/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ReviewService 人工审核队列：低置信度匹配的人工裁决
type ReviewService struct {
	bomRepo      *repository.BOMRepository
	supplierRepo *repository.SupplierRepository
	approvalRepo *repository.ApprovalRepository
	db           *gorm.DB
}

// NewReviewService 创建审核服务
func NewReviewService(
	bomRepo *repository.BOMRepository,
	supplierRepo *repository.SupplierRepository,
	approvalRepo *repository.ApprovalRepository,
	db *gorm.DB,
) *ReviewService {
	return &ReviewService{
		bomRepo:      bomRepo,
		supplierRepo: supplierRepo,
		approvalRepo: approvalRepo,
		db:           db,
	}
}

// ListQueue 审核队列：needs_review行项按置信度升序（最不确定的排最前）
func (s *ReviewService) ListQueue(ctx context.Context, bomID string) ([]entity.BOMItem, error) {
	if _, err := s.bomRepo.FindLean(ctx, bomID); err != nil {
		return nil, err
	}
	return s.bomRepo.ListReviewQueue(ctx, bomID)
}

// ResolveItemRequest 人工裁决请求：指定供应商（可带备选件）或直接给出人工价格，
// 二者至少其一
type ResolveItemRequest struct {
	SupplierID     *string  `json:"supplier_id"`
	SupplierPartID *string  `json:"supplier_part_id"`
	ManualPrice    *float64 `json:"manual_price" binding:"omitempty,gte=0"`
	Notes          string   `json:"notes"`
}

// ResolveItem 人工裁决行项：流转为confirmed并清除审核原因。
// 显式价格覆盖供应商目录价。已confirmed的行项可再次裁决（视为更正），
// 汇总字段由行项现状重算，绝不增减量维护
func (s *ReviewService) ResolveItem(ctx context.Context, itemID string, userID string, req *ResolveItemRequest) (*entity.BOMItem, error) {
	if req.SupplierID == nil && req.ManualPrice == nil {
		return nil, fmt.Errorf("supplier_id或manual_price至少提供一项")
	}

	item, err := s.bomRepo.FindItemByID(ctx, itemID)
	if err != nil {
		return nil, err
	}

	if req.SupplierID != nil {
		supplier, err := s.supplierRepo.FindByID(ctx, *req.SupplierID)
		if err != nil {
			return nil, err
		}
		item.MatchedSupplierID = &supplier.ID
		item.MatchedSupplierPartID = req.SupplierPartID

		// 目录有报价时自动带出价格，人工价优先
		if req.ManualPrice == nil {
			sp, err := s.supplierRepo.FindSupplierPartForItem(ctx, supplier.ID, item.PartNumberRaw)
			if err != nil && err != repository.ErrNotFound {
				return nil, err
			}
			if sp != nil {
				item.MatchedSupplierPartID = &sp.ID
				item.PartID = &sp.PartID
				if sp.UnitPrice != nil {
					price := *sp.UnitPrice
					item.UnitCost = &price
				}
				item.LeadTimeDays = sp.LeadTimeDays
			}
		}
	}

	if req.ManualPrice != nil {
		price := decimal.NewFromFloat(*req.ManualPrice)
		item.UnitCost = &price
	}

	if item.UnitCost != nil {
		ext := item.Quantity.Mul(*item.UnitCost)
		item.ExtendedCost = &ext
	}

	confidence := 1.0
	item.MatchConfidence = &confidence
	item.MatchMethod = entity.MatchMethodManual
	item.Status = entity.ItemStatusConfirmed
	item.ReviewReason = ""
	if req.Notes != "" {
		item.Notes = req.Notes
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(item).Error; err != nil {
			return fmt.Errorf("更新行项失败: %w", err)
		}
		if err := s.recordResolution(ctx, tx, item, userID, req.Notes); err != nil {
			return err
		}
		return s.bomRepo.RecomputeAggregates(ctx, tx, item.BOMID, s.costMaterialized(ctx, item.BOMID))
	})
	if err != nil {
		return nil, err
	}

	return item, nil
}

// recordResolution 裁决留痕：已有待决审批请求则结单，否则补一条已通过记录
func (s *ReviewService) recordResolution(ctx context.Context, tx *gorm.DB, item *entity.BOMItem, userID, notes string) error {
	now := time.Now()
	pending, err := s.approvalRepo.FindPendingByEntity(ctx, entity.ApprovalEntitySupplierMatch, item.ID)
	if err != nil {
		return fmt.Errorf("查询审批请求失败: %w", err)
	}
	if pending != nil {
		pending.Status = entity.ApprovalStatusApproved
		pending.ReviewedBy = &userID
		pending.ReviewedAt = &now
		pending.ReviewNotes = notes
		if err := tx.Save(pending).Error; err != nil {
			return fmt.Errorf("更新审批请求失败: %w", err)
		}
		return nil
	}

	req := &entity.ApprovalRequest{
		ID:          uuid.New().String()[:32],
		EntityType:  entity.ApprovalEntitySupplierMatch,
		EntityID:    item.ID,
		RequestType: entity.ApprovalTypeMatchReview,
		Title:       fmt.Sprintf("行项%d供应商匹配人工裁决", item.LineNumber),
		Details: entity.JSONB{
			"bom_id":      item.BOMID,
			"line_number": item.LineNumber,
			"supplier_id": item.MatchedSupplierID,
		},
		Status:      entity.ApprovalStatusApproved,
		RequestedBy: userID,
		ReviewedBy:  &userID,
		ReviewedAt:  &now,
		ReviewNotes: notes,
	}
	if err := tx.Create(req).Error; err != nil {
		return fmt.Errorf("创建审批记录失败: %w", err)
	}
	return nil
}

// costMaterialized 总成本是否已物化（优化阶段完成后的更正需要同步重算total_cost）
func (s *ReviewService) costMaterialized(ctx context.Context, bomID string) bool {
	bom, err := s.bomRepo.FindLean(ctx, bomID)
	if err != nil {
		return false
	}
	switch bom.ProcessingStatus {
	case entity.ProcessingStatusCompleted, entity.ProcessingStatusAwaitingReview:
		return true
	}
	return bom.TotalCost != nil
}
