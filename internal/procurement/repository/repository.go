package repository

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("record not found")
)

// Repositories 采购仓库集合
type Repositories struct {
	BOM      *BOMRepository
	Task     *TaskRepository
	PO       *PORepository
	Approval *ApprovalRepository
	Supplier *SupplierRepository
}

// NewRepositories 创建采购仓库集合
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		BOM:      NewBOMRepository(db),
		Task:     NewTaskRepository(db),
		PO:       NewPORepository(db),
		Approval: NewApprovalRepository(db),
		Supplier: NewSupplierRepository(db),
	}
}
