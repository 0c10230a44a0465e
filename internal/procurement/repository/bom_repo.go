package repository

import (
	"context"
	"errors"

	"github.com/bitfantasy/procura/internal/procurement/entity"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BOMRepository 物料清单仓库
type BOMRepository struct {
	db *gorm.DB
}

func NewBOMRepository(db *gorm.DB) *BOMRepository {
	return &BOMRepository{db: db}
}

// FindAll 查询BOM列表
func (r *BOMRepository) FindAll(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.BOM, int64, error) {
	var boms []entity.BOM
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.BOM{})

	if status := filters["status"]; status != "" {
		query = query.Where("status = ?", status)
	}
	if ps := filters["processing_status"]; ps != "" {
		query = query.Where("processing_status = ?", ps)
	}
	if search := filters["search"]; search != "" {
		query = query.Where("name ILIKE ?", "%"+search+"%")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&boms).Error

	return boms, total, err
}

// FindByID 根据ID查找BOM（含行项，按行号排序）
func (r *BOMRepository) FindByID(ctx context.Context, id string) (*entity.BOM, error) {
	var bom entity.BOM
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("line_number ASC")
		}).
		Preload("Items.MatchedSupplier").
		Where("id = ?", id).
		First(&bom).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &bom, nil
}

// FindLean 根据ID查找BOM（不带行项，轮询状态用）
func (r *BOMRepository) FindLean(ctx context.Context, id string) (*entity.BOM, error) {
	var bom entity.BOM
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&bom).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &bom, nil
}

// Create 创建BOM
func (r *BOMRepository) Create(ctx context.Context, bom *entity.BOM) error {
	return r.db.WithContext(ctx).Create(bom).Error
}

// Update 更新BOM
func (r *BOMRepository) Update(ctx context.Context, bom *entity.BOM) error {
	return r.db.WithContext(ctx).Save(bom).Error
}

// Delete 删除BOM及行项
func (r *BOMRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("bom_id = ?", id).Delete(&entity.BOMItem{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&entity.BOM{}).Error
	})
}

// UpdateProcessing 更新处理状态与步骤；进度用GREATEST保证单次运行内单调不减
func (r *BOMRepository) UpdateProcessing(ctx context.Context, id, status string, progress float64, step string) error {
	return r.db.WithContext(ctx).Model(&entity.BOM{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"processing_status":   status,
			"processing_progress": gorm.Expr("GREATEST(processing_progress, ?)", progress),
			"processing_step":     step,
		}).Error
}

// ResetProcessing 新运行开始时重置处理状态（进度归零的唯一路径）
func (r *BOMRepository) ResetProcessing(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&entity.BOM{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"processing_status":   entity.ProcessingStatusPending,
			"processing_progress": 0,
			"processing_step":     "",
			"processing_error":    "",
		}).Error
}

// MarkFailed 标记处理失败
func (r *BOMRepository) MarkFailed(ctx context.Context, id, errMsg string) error {
	return r.db.WithContext(ctx).Model(&entity.BOM{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"processing_status": entity.ProcessingStatusFailed,
			"processing_error":  errMsg,
		}).Error
}

// ListItems 查询BOM行项（可按状态过滤）
func (r *BOMRepository) ListItems(ctx context.Context, bomID, status string) ([]entity.BOMItem, error) {
	var items []entity.BOMItem
	query := r.db.WithContext(ctx).Where("bom_id = ?", bomID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	err := query.Order("line_number ASC").Find(&items).Error
	return items, err
}

// ListReviewQueue 查询待审核行项，置信度升序（最不确定的排最前）
func (r *BOMRepository) ListReviewQueue(ctx context.Context, bomID string) ([]entity.BOMItem, error) {
	var items []entity.BOMItem
	err := r.db.WithContext(ctx).
		Where("bom_id = ? AND status = ?", bomID, entity.ItemStatusNeedsReview).
		Order("match_confidence ASC NULLS FIRST, line_number ASC").
		Find(&items).Error
	return items, err
}

// FindItemByID 查找行项
func (r *BOMRepository) FindItemByID(ctx context.Context, itemID string) (*entity.BOMItem, error) {
	var item entity.BOMItem
	err := r.db.WithContext(ctx).Where("id = ?", itemID).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

// UpdateItem 更新行项
func (r *BOMRepository) UpdateItem(ctx context.Context, item *entity.BOMItem) error {
	return r.db.WithContext(ctx).Save(item).Error
}

// ReplaceItems 替换BOM全部行项并更新总数（解析阶段事务内提交）
func (r *BOMRepository) ReplaceItems(ctx context.Context, bomID string, items []entity.BOMItem) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("bom_id = ?", bomID).Delete(&entity.BOMItem{}).Error; err != nil {
			return err
		}
		if len(items) > 0 {
			if err := tx.Create(&items).Error; err != nil {
				return err
			}
		}
		return tx.Model(&entity.BOM{}).Where("id = ?", bomID).
			Update("total_items", len(items)).Error
	})
}

// RecomputeAggregates 由行项现状重算BOM汇总字段（matched_items、total_cost、total_items）
// includeCost=false时total_cost保持不变（优化阶段完成前为空）
func (r *BOMRepository) RecomputeAggregates(ctx context.Context, tx *gorm.DB, bomID string, includeCost bool) error {
	if tx == nil {
		tx = r.db.WithContext(ctx)
	}

	var items []entity.BOMItem
	if err := tx.Where("bom_id = ?", bomID).Find(&items).Error; err != nil {
		return err
	}

	matched := 0
	costSum := decimal.Zero
	priced := false
	for _, it := range items {
		switch it.Status {
		case entity.ItemStatusMatched, entity.ItemStatusConfirmed, entity.ItemStatusOrdered:
			matched++
		}
		if it.ExtendedCost != nil {
			costSum = costSum.Add(*it.ExtendedCost)
			priced = true
		}
	}

	updates := map[string]interface{}{
		"total_items":   len(items),
		"matched_items": matched,
	}
	if includeCost {
		if priced {
			updates["total_cost"] = costSum
		} else {
			updates["total_cost"] = nil
		}
	}

	return tx.Model(&entity.BOM{}).Where("id = ?", bomID).Updates(updates).Error
}
