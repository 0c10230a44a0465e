package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// PurchaseOrder 采购订单
type PurchaseOrder struct {
	ID         string  `json:"id" gorm:"primaryKey;size:32"`
	PONumber   string  `json:"po_number" gorm:"size:32;uniqueIndex;not null"`
	SupplierID string  `json:"supplier_id" gorm:"size:32;not null;index"`
	BOMID      *string `json:"bom_id" gorm:"size:32;index"` // 手工PO可无来源BOM

	// 自动生成追踪
	IsAutoGenerated bool   `json:"is_auto_generated" gorm:"default:false"`
	SourceBOMName   string `json:"source_bom_name" gorm:"size:255"`

	Status string `json:"status" gorm:"size:20;not null;default:draft"` // draft/pending_approval/approved/rejected/sent/acknowledged/shipped/received/cancelled

	// 金额：total = subtotal + tax + shipping，行项变更时重算
	Subtotal *decimal.Decimal `json:"subtotal" gorm:"type:decimal(15,2)"`
	Tax      decimal.Decimal  `json:"tax" gorm:"type:decimal(15,2);default:0"`
	Shipping decimal.Decimal  `json:"shipping" gorm:"type:decimal(15,2);default:0"`
	Total    *decimal.Decimal `json:"total" gorm:"type:decimal(15,2)"`
	Currency string           `json:"currency" gorm:"size:3;default:USD"`

	RequiredDate  *time.Time `json:"required_date"`
	ShipToAddress string     `json:"ship_to_address" gorm:"size:500"`
	Notes         string     `json:"notes" gorm:"type:text"`

	// 审批
	RequiresApproval bool       `json:"requires_approval" gorm:"default:false"` // 派生：total ≥ 配置阈值
	ApprovedBy       *string    `json:"approved_by" gorm:"size:32"`
	ApprovedAt       *time.Time `json:"approved_at"`
	RejectionReason  string     `json:"rejection_reason" gorm:"type:text"`

	// 流转时间
	SentAt         *time.Time `json:"sent_at"`
	AcknowledgedAt *time.Time `json:"acknowledged_at"`
	ReceivedAt     *time.Time `json:"received_at"`

	CreatedBy string    `json:"created_by" gorm:"size:32"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 关联
	Items    []POItem  `json:"items,omitempty" gorm:"foreignKey:POID"`
	Supplier *Supplier `json:"supplier,omitempty" gorm:"foreignKey:SupplierID"`
}

func (PurchaseOrder) TableName() string {
	return "purchase_orders"
}

// PO状态
const (
	POStatusDraft           = "draft"
	POStatusPendingApproval = "pending_approval"
	POStatusApproved        = "approved"
	POStatusRejected        = "rejected"
	POStatusSent            = "sent"
	POStatusAcknowledged    = "acknowledged"
	POStatusShipped         = "shipped"
	POStatusReceived        = "received"
	POStatusCancelled       = "cancelled"
)

// POItem PO行项
type POItem struct {
	ID         string `json:"id" gorm:"primaryKey;size:32"`
	POID       string `json:"po_id" gorm:"size:32;not null;index"`
	LineNumber int    `json:"line_number" gorm:"not null"`

	BOMItemID      *string `json:"bom_item_id" gorm:"size:32"`
	PartID         *string `json:"part_id" gorm:"size:32"`
	SupplierPartID *string `json:"supplier_part_id" gorm:"size:32"`

	PartNumber  string          `json:"part_number" gorm:"size:100"`
	Description string          `json:"description" gorm:"type:text"`
	Quantity    decimal.Decimal `json:"quantity" gorm:"type:decimal(15,4);not null"`
	Unit        string          `json:"unit" gorm:"size:20;default:EA"`

	UnitPrice     decimal.Decimal `json:"unit_price" gorm:"type:decimal(15,4)"`
	ExtendedPrice decimal.Decimal `json:"extended_price" gorm:"type:decimal(15,4)"`

	ReceivedQuantity decimal.Decimal `json:"received_quantity" gorm:"type:decimal(15,4);default:0"`
	Notes            string          `json:"notes" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
}

func (POItem) TableName() string {
	return "po_items"
}
