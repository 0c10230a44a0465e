package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Supplier 供应商目录
type Supplier struct {
	ID           string `json:"id" gorm:"primaryKey;size:32"`
	Code         string `json:"code" gorm:"size:50;uniqueIndex"`
	Name         string `json:"name" gorm:"size:255;not null"`
	Description  string `json:"description" gorm:"type:text"`
	ContactEmail string `json:"contact_email" gorm:"size:255"`
	ContactPhone string `json:"contact_phone" gorm:"size:50"`
	PaymentTerms string `json:"payment_terms" gorm:"size:100"`
	LeadTimeDays *int   `json:"lead_time_days"`
	Status       string `json:"status" gorm:"size:20;not null;default:active;index"` // active/inactive/pending

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Supplier) TableName() string {
	return "suppliers"
}

// 供应商状态
const (
	SupplierStatusActive   = "active"
	SupplierStatusInactive = "inactive"
	SupplierStatusPending  = "pending"
)

// Part 零件目录
type Part struct {
	ID          string `json:"id" gorm:"primaryKey;size:32"`
	PartNumber  string `json:"part_number" gorm:"size:100;uniqueIndex;not null"`
	Name        string `json:"name" gorm:"size:255;not null"`
	Description string `json:"description" gorm:"type:text"`
	Category    string `json:"category" gorm:"size:100"`
	Unit        string `json:"unit" gorm:"size:20;default:EA"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Part) TableName() string {
	return "parts"
}

// SupplierPart 供应商-零件报价关系
type SupplierPart struct {
	ID                 string           `json:"id" gorm:"primaryKey;size:32"`
	SupplierID         string           `json:"supplier_id" gorm:"size:32;not null;index:idx_supplier_parts_unique,unique"`
	PartID             string           `json:"part_id" gorm:"size:32;not null;index:idx_supplier_parts_unique,unique"`
	SupplierPartNumber string           `json:"supplier_part_number" gorm:"size:100;index"`
	UnitPrice          *decimal.Decimal `json:"unit_price" gorm:"type:decimal(15,4)"`
	Currency           string           `json:"currency" gorm:"size:3;default:USD"`
	MinOrderQty        int              `json:"min_order_qty" gorm:"default:1"`
	LeadTimeDays       *int             `json:"lead_time_days"`
	IsPreferred        bool             `json:"is_preferred" gorm:"default:false"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 关联
	Supplier *Supplier `json:"supplier,omitempty" gorm:"foreignKey:SupplierID"`
	Part     *Part     `json:"part,omitempty" gorm:"foreignKey:PartID"`
}

func (SupplierPart) TableName() string {
	return "supplier_parts"
}
