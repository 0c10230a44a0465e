package repository

import (
	"context"
	"errors"

	"github.com/bitfantasy/procura/internal/procurement/entity"
	"gorm.io/gorm"
)

// SupplierRepository 供应商目录仓库
type SupplierRepository struct {
	db *gorm.DB
}

func NewSupplierRepository(db *gorm.DB) *SupplierRepository {
	return &SupplierRepository{db: db}
}

// FindAll 查询供应商列表
func (r *SupplierRepository) FindAll(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.Supplier, int64, error) {
	var suppliers []entity.Supplier
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.Supplier{})

	if status := filters["status"]; status != "" {
		query = query.Where("status = ?", status)
	}
	if search := filters["search"]; search != "" {
		query = query.Where("name ILIKE ? OR code ILIKE ?", "%"+search+"%", "%"+search+"%")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("name ASC").
		Offset(offset).
		Limit(pageSize).
		Find(&suppliers).Error

	return suppliers, total, err
}

// FindByID 查找供应商
func (r *SupplierRepository) FindByID(ctx context.Context, id string) (*entity.Supplier, error) {
	var supplier entity.Supplier
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&supplier).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &supplier, nil
}

// Create 创建供应商
func (r *SupplierRepository) Create(ctx context.Context, supplier *entity.Supplier) error {
	return r.db.WithContext(ctx).Create(supplier).Error
}

// Update 更新供应商
func (r *SupplierRepository) Update(ctx context.Context, supplier *entity.Supplier) error {
	return r.db.WithContext(ctx).Save(supplier).Error
}

// CreatePart 创建零件
func (r *SupplierRepository) CreatePart(ctx context.Context, part *entity.Part) error {
	return r.db.WithContext(ctx).Create(part).Error
}

// CreateSupplierPart 创建供应商报价
func (r *SupplierRepository) CreateSupplierPart(ctx context.Context, sp *entity.SupplierPart) error {
	return r.db.WithContext(ctx).Create(sp).Error
}

// FindSupplierPartsByPartNumber 按零件号精确检索报价（含零件号和供应商零件号，活跃供应商优先报价排前）
func (r *SupplierRepository) FindSupplierPartsByPartNumber(ctx context.Context, partNumber string, limit int) ([]entity.SupplierPart, error) {
	var sps []entity.SupplierPart
	err := r.db.WithContext(ctx).
		Preload("Supplier").
		Preload("Part").
		Joins("LEFT JOIN parts ON parts.id = supplier_parts.part_id").
		Where("supplier_parts.supplier_part_number = ? OR parts.part_number = ?", partNumber, partNumber).
		Order("supplier_parts.is_preferred DESC, supplier_parts.unit_price ASC NULLS LAST").
		Limit(limit).
		Find(&sps).Error
	return sps, err
}

// SearchSupplierPartsByDescription 按描述分词模糊检索报价
func (r *SupplierRepository) SearchSupplierPartsByDescription(ctx context.Context, tokens []string, limit int) ([]entity.SupplierPart, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	query := r.db.WithContext(ctx).
		Preload("Supplier").
		Preload("Part").
		Joins("JOIN parts ON parts.id = supplier_parts.part_id")

	for _, tok := range tokens {
		query = query.Where(
			"parts.description ILIKE ? OR parts.name ILIKE ?",
			"%"+tok+"%", "%"+tok+"%",
		)
	}

	var sps []entity.SupplierPart
	err := query.
		Order("supplier_parts.is_preferred DESC, supplier_parts.unit_price ASC NULLS LAST").
		Limit(limit).
		Find(&sps).Error
	return sps, err
}

// FindPartByID 查找零件
func (r *SupplierRepository) FindPartByID(ctx context.Context, id string) (*entity.Part, error) {
	var part entity.Part
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&part).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &part, nil
}

// FindSupplierPartForItem 为人工改派的供应商查找匹配零件号的报价
func (r *SupplierRepository) FindSupplierPartForItem(ctx context.Context, supplierID, partNumber string) (*entity.SupplierPart, error) {
	if partNumber == "" {
		return nil, nil
	}
	var sp entity.SupplierPart
	err := r.db.WithContext(ctx).
		Joins("LEFT JOIN parts ON parts.id = supplier_parts.part_id").
		Where("supplier_parts.supplier_id = ?", supplierID).
		Where("supplier_parts.supplier_part_number ILIKE ? OR parts.part_number ILIKE ?",
			"%"+partNumber+"%", "%"+partNumber+"%").
		First(&sp).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sp, nil
}
