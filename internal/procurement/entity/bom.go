package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// BOM 物料清单（采购源文档）
type BOM struct {
	ID          string `json:"id" gorm:"primaryKey;size:32"`
	Name        string `json:"name" gorm:"size:255;not null"`
	Description string `json:"description" gorm:"type:text"`
	Version     string `json:"version" gorm:"size:50;default:'1.0'"`
	Status      string `json:"status" gorm:"size:20;not null;default:draft"` // draft/active/archived

	// 源文件
	SourceFileURL  string `json:"source_file_url" gorm:"size:512"`
	SourceFileName string `json:"source_file_name" gorm:"size:255"`
	SourceFileType string `json:"source_file_type" gorm:"size:20"` // excel/csv

	// 汇总字段（始终由行项状态重算，禁止增减量更新）
	TotalItems   int              `json:"total_items" gorm:"default:0"`
	MatchedItems int              `json:"matched_items" gorm:"default:0"`
	TotalCost    *decimal.Decimal `json:"total_cost" gorm:"type:decimal(15,2)"`

	// 处理状态（与ProcessingTask生命周期解耦）
	ProcessingStatus   string  `json:"processing_status" gorm:"size:20;not null;default:pending"`
	ProcessingProgress float64 `json:"processing_progress" gorm:"default:0"` // 0-100，单次运行内单调不减
	ProcessingStep     string  `json:"processing_step" gorm:"size:255"`
	ProcessingError    string  `json:"processing_error" gorm:"type:text"`

	CreatedBy string    `json:"created_by" gorm:"size:32"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 关联
	Items []BOMItem `json:"items,omitempty" gorm:"foreignKey:BOMID"`
}

func (BOM) TableName() string {
	return "boms"
}

// BOM状态
const (
	BOMStatusDraft    = "draft"
	BOMStatusActive   = "active"
	BOMStatusArchived = "archived"
)

// BOM处理状态
const (
	ProcessingStatusPending        = "pending"
	ProcessingStatusParsing        = "parsing"
	ProcessingStatusMatching       = "matching"
	ProcessingStatusOptimizing     = "optimizing"
	ProcessingStatusGeneratingPOs  = "generating_pos"
	ProcessingStatusAwaitingReview = "awaiting_review"
	ProcessingStatusCompleted      = "completed"
	ProcessingStatusFailed         = "failed"
)

// BOMItem BOM行项
type BOMItem struct {
	ID         string `json:"id" gorm:"primaryKey;size:32"`
	BOMID      string `json:"bom_id" gorm:"size:32;not null;index"`
	LineNumber int    `json:"line_number" gorm:"not null"` // BOM内唯一，1起始，决定展示顺序

	// 解析原始数据
	PartNumberRaw  string          `json:"part_number_raw" gorm:"size:255"`
	DescriptionRaw string          `json:"description_raw" gorm:"type:text"`
	Quantity       decimal.Decimal `json:"quantity" gorm:"type:decimal(15,4);not null"`
	Unit           string          `json:"unit" gorm:"size:20;default:EA"`

	// 匹配结果
	PartID                *string          `json:"part_id" gorm:"size:32"`
	MatchedSupplierID     *string          `json:"matched_supplier_id" gorm:"size:32;index"`
	MatchedSupplierPartID *string          `json:"matched_supplier_part_id" gorm:"size:32"`
	UnitCost              *decimal.Decimal `json:"unit_cost" gorm:"type:decimal(15,4)"`
	ExtendedCost          *decimal.Decimal `json:"extended_cost" gorm:"type:decimal(15,4)"` // quantity × unit_cost
	LeadTimeDays          *int             `json:"lead_time_days"`

	// 匹配元数据
	MatchConfidence    *float64           `json:"match_confidence"`              // 0.00-1.00
	MatchMethod        string             `json:"match_method" gorm:"size:20"`   // exact/fuzzy/semantic/manual
	AlternativeMatches AlternativeMatches `json:"alternative_matches" gorm:"type:jsonb"` // 置信度降序

	Status       string `json:"status" gorm:"size:20;not null;default:pending;index"` // pending/matched/needs_review/confirmed/ordered
	ReviewReason string `json:"review_reason" gorm:"size:255"`
	Notes        string `json:"notes" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 弱引用：行项不拥有供应商
	MatchedSupplier *Supplier `json:"matched_supplier,omitempty" gorm:"foreignKey:MatchedSupplierID"`
}

func (BOMItem) TableName() string {
	return "bom_items"
}

// BOMItem状态
const (
	ItemStatusPending     = "pending"
	ItemStatusMatched     = "matched"
	ItemStatusNeedsReview = "needs_review"
	ItemStatusConfirmed   = "confirmed"
	ItemStatusOrdered     = "ordered"
)

// 匹配方式
const (
	MatchMethodExact    = "exact"
	MatchMethodFuzzy    = "fuzzy"
	MatchMethodSemantic = "semantic"
	MatchMethodManual   = "manual"
)

// AlternativeMatch 备选匹配
type AlternativeMatch struct {
	SupplierID     string           `json:"supplier_id"`
	SupplierPartID string           `json:"supplier_part_id,omitempty"`
	SupplierName   string           `json:"supplier_name,omitempty"`
	UnitPrice      *decimal.Decimal `json:"unit_price,omitempty"`
	Confidence     float64          `json:"confidence"`
}

// AlternativeMatches JSONB存储的备选匹配列表
type AlternativeMatches []AlternativeMatch

func (a AlternativeMatches) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (a *AlternativeMatches) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported type for AlternativeMatches: %T", value)
	}
	return json.Unmarshal(b, a)
}
