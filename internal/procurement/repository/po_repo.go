package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitfantasy/procura/internal/procurement/entity"
	"gorm.io/gorm"
)

// PORepository 采购订单仓库
type PORepository struct {
	db *gorm.DB
}

func NewPORepository(db *gorm.DB) *PORepository {
	return &PORepository{db: db}
}

// FindAll 查询采购订单列表
func (r *PORepository) FindAll(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.PurchaseOrder, int64, error) {
	var pos []entity.PurchaseOrder
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.PurchaseOrder{})

	if supplierID := filters["supplier_id"]; supplierID != "" {
		query = query.Where("supplier_id = ?", supplierID)
	}
	if bomID := filters["bom_id"]; bomID != "" {
		query = query.Where("bom_id = ?", bomID)
	}
	if status := filters["status"]; status != "" {
		query = query.Where("status = ?", status)
	}
	if search := filters["search"]; search != "" {
		query = query.Where("po_number ILIKE ?", "%"+search+"%")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Preload("Supplier").
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&pos).Error

	return pos, total, err
}

// FindByID 根据ID查找采购订单（含行项）
func (r *PORepository) FindByID(ctx context.Context, id string) (*entity.PurchaseOrder, error) {
	var po entity.PurchaseOrder
	err := r.db.WithContext(ctx).
		Preload("Supplier").
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("line_number ASC")
		}).
		Where("id = ?", id).
		First(&po).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &po, nil
}

// FindByBOMAndSupplier 按(BOM, 供应商)查找已有订单（幂等生成键）
func (r *PORepository) FindByBOMAndSupplier(ctx context.Context, bomID, supplierID string) (*entity.PurchaseOrder, error) {
	var po entity.PurchaseOrder
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("bom_id = ? AND supplier_id = ? AND status <> ?", bomID, supplierID, entity.POStatusCancelled).
		First(&po).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &po, nil
}

// Create 创建采购订单
func (r *PORepository) Create(ctx context.Context, po *entity.PurchaseOrder) error {
	return r.db.WithContext(ctx).Create(po).Error
}

// Update 更新采购订单
func (r *PORepository) Update(ctx context.Context, po *entity.PurchaseOrder) error {
	return r.db.WithContext(ctx).Save(po).Error
}

// Delete 删除采购订单及行项
func (r *PORepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("po_id = ?", id).Delete(&entity.POItem{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&entity.PurchaseOrder{}).Error
	})
}

// ReplaceItems 替换订单行项（重新生成时在事务内调用）
func (r *PORepository) ReplaceItems(tx *gorm.DB, poID string, items []entity.POItem) error {
	if err := tx.Where("po_id = ?", poID).Delete(&entity.POItem{}).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	return tx.Create(&items).Error
}

// FindItemByID 查找PO行项
func (r *PORepository) FindItemByID(ctx context.Context, itemID string) (*entity.POItem, error) {
	var item entity.POItem
	err := r.db.WithContext(ctx).Where("id = ?", itemID).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

// GenerateNumber 生成PO编号 PO-{YYYYMM}-{4位}
func (r *PORepository) GenerateNumber(ctx context.Context) (string, error) {
	month := time.Now().Format("200601")
	prefix := fmt.Sprintf("PO-%s-", month)

	var maxNumber string
	err := r.db.WithContext(ctx).
		Model(&entity.PurchaseOrder{}).
		Select("COALESCE(MAX(po_number), '')").
		Where("po_number LIKE ?", prefix+"%").
		Scan(&maxNumber).Error
	if err != nil {
		return "", err
	}

	var seq int
	if maxNumber != "" {
		fmt.Sscanf(maxNumber, "PO-"+month+"-%04d", &seq)
	}
	seq++
	return fmt.Sprintf("PO-%s-%04d", month, seq), nil
}
