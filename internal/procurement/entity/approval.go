package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ApprovalRequest 人工决策记录（引用任意待签核实体）
type ApprovalRequest struct {
	ID         string  `json:"id" gorm:"primaryKey;size:32"`
	TaskID     *string `json:"task_id" gorm:"size:32"`
	EntityType string  `json:"entity_type" gorm:"size:50;not null;index"` // purchase_order/supplier_match
	EntityID   string  `json:"entity_id" gorm:"size:32;not null;index"`

	RequestType string `json:"request_type" gorm:"size:50"` // po_approval/match_review
	Title       string `json:"title" gorm:"size:255"`
	Description string `json:"description" gorm:"type:text"`
	Details     JSONB  `json:"details" gorm:"type:jsonb"`

	Status string `json:"status" gorm:"size:20;not null;default:pending;index"` // pending/approved/rejected

	RequestedBy string     `json:"requested_by" gorm:"size:32"`
	ReviewedBy  *string    `json:"reviewed_by" gorm:"size:32"`
	ReviewedAt  *time.Time `json:"reviewed_at"`
	ReviewNotes string     `json:"review_notes" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
}

func (ApprovalRequest) TableName() string {
	return "approval_requests"
}

// 审批状态
const (
	ApprovalStatusPending  = "pending"
	ApprovalStatusApproved = "approved"
	ApprovalStatusRejected = "rejected"
)

// 审批实体类型
const (
	ApprovalEntityPurchaseOrder = "purchase_order"
	ApprovalEntitySupplierMatch = "supplier_match"
)

// 审批请求类型
const (
	ApprovalTypePOApproval  = "po_approval"
	ApprovalTypeMatchReview = "match_review"
)

// JSONB jsonb字段
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return "{}", nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported type for JSONB: %T", value)
	}
	return json.Unmarshal(b, j)
}
