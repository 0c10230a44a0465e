package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bitfantasy/procura/internal/config"
	"github.com/bitfantasy/procura/internal/procurement/entity"
	"github.com/bitfantasy/procura/internal/procurement/repository"
	"github.com/bitfantasy/procura/internal/procurement/sse"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// POService 采购订单服务：聚合生成 + 审批/发送状态机
type POService struct {
	poRepo       *repository.PORepository
	bomRepo      *repository.BOMRepository
	approvalRepo *repository.ApprovalRepository
	supplierRepo *repository.SupplierRepository
	db           *gorm.DB
	cfg          config.ProcurementConfig
	logger       *zap.Logger
}

// NewPOService 创建采购订单服务
func NewPOService(
	poRepo *repository.PORepository,
	bomRepo *repository.BOMRepository,
	approvalRepo *repository.ApprovalRepository,
	supplierRepo *repository.SupplierRepository,
	db *gorm.DB,
	cfg config.ProcurementConfig,
	logger *zap.Logger,
) *POService {
	return &POService{
		poRepo:       poRepo,
		bomRepo:      bomRepo,
		approvalRepo: approvalRepo,
		supplierRepo: supplierRepo,
		db:           db,
		cfg:          cfg,
		logger:       logger,
	}
}

// GenerateResult PO生成结果。UnpricedCount是上报条件：
// 缺价的已匹配行项不会静默丢弃，调用方需显式检查
type GenerateResult struct {
	POs           []entity.PurchaseOrder `json:"purchase_orders"`
	UnpricedCount int                    `json:"unpriced_count"`
	SkippedPOs    []string               `json:"skipped_pos,omitempty"` // 已发出不可重生成的PO编号
}

// GenerateFromBOM 按供应商分组生成采购订单。
// 幂等：(BOM, 供应商)已存在订单时替换其行项并重算金额，不产生重复订单
func (s *POService) GenerateFromBOM(ctx context.Context, bomID, userID string) (*GenerateResult, error) {
	bom, err := s.bomRepo.FindLean(ctx, bomID)
	if err != nil {
		return nil, err
	}

	items, err := s.bomRepo.ListItems(ctx, bomID, "")
	if err != nil {
		return nil, fmt.Errorf("查询行项失败: %w", err)
	}

	// matched/confirmed行项按供应商分组；缺价行项计数上报
	groups := make(map[string][]entity.BOMItem)
	var order []string
	unpriced := 0
	for _, it := range items {
		if it.Status != entity.ItemStatusMatched && it.Status != entity.ItemStatusConfirmed {
			continue
		}
		if it.MatchedSupplierID == nil {
			continue
		}
		if it.UnitCost == nil || it.ExtendedCost == nil {
			unpriced++
			continue
		}
		sid := *it.MatchedSupplierID
		if _, ok := groups[sid]; !ok {
			order = append(order, sid)
		}
		groups[sid] = append(groups[sid], it)
	}

	result := &GenerateResult{UnpricedCount: unpriced}
	for _, supplierID := range order {
		po, err := s.upsertPO(ctx, bom, supplierID, groups[supplierID], userID)
		if err != nil {
			return nil, err
		}
		if po == nil {
			continue
		}
		if po.PONumber != "" && po.ID == "" {
			result.SkippedPOs = append(result.SkippedPOs, po.PONumber)
			continue
		}
		result.POs = append(result.POs, *po)
	}

	return result, nil
}

// upsertPO (BOM, 供应商)键幂等落单。已发出（sent及之后）的订单不可被重新生成覆盖
func (s *POService) upsertPO(ctx context.Context, bom *entity.BOM, supplierID string, items []entity.BOMItem, userID string) (*entity.PurchaseOrder, error) {
	existing, err := s.poRepo.FindByBOMAndSupplier(ctx, bom.ID, supplierID)
	if err != nil {
		return nil, fmt.Errorf("查询已有订单失败: %w", err)
	}
	if existing != nil {
		switch existing.Status {
		case entity.POStatusDraft, entity.POStatusPendingApproval, entity.POStatusApproved, entity.POStatusRejected:
			// 可覆盖
		default:
			s.logger.Warn("订单已发出，跳过重新生成",
				zap.String("po_number", existing.PONumber), zap.String("status", existing.Status))
			return &entity.PurchaseOrder{PONumber: existing.PONumber}, nil
		}
	}

	poItems := make([]entity.POItem, 0, len(items))
	for i, it := range items {
		bomItemID := it.ID
		poItems = append(poItems, entity.POItem{
			ID:             uuid.New().String()[:32],
			LineNumber:     i + 1,
			BOMItemID:      &bomItemID,
			PartID:         it.PartID,
			SupplierPartID: it.MatchedSupplierPartID,
			PartNumber:     it.PartNumberRaw,
			Description:    it.DescriptionRaw,
			Quantity:       it.Quantity,
			Unit:           it.Unit,
			UnitPrice:      *it.UnitCost,
			ExtendedPrice:  *it.ExtendedCost,
		})
	}

	subtotal := sumExtended(items)
	tax := subtotal.Mul(decimal.NewFromFloat(s.cfg.TaxRate)).Round(2)
	shipping := decimal.NewFromFloat(s.cfg.ShippingFlat)
	total := subtotal.Add(tax).Add(shipping)
	requiresApproval := total.GreaterThanOrEqual(decimal.NewFromFloat(s.cfg.ApprovalThreshold))

	var po *entity.PurchaseOrder
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if existing != nil {
			po = existing
			po.Items = nil // 行项由ReplaceItems整体替换，避免Save级联写回旧行项
			po.Subtotal = &subtotal
			po.Tax = tax
			po.Shipping = shipping
			po.Total = &total
			po.RequiresApproval = requiresApproval

			// 自动通过的订单重算后金额达阈值且无人工审批记录：退回审批门
			reopenGate := requiresApproval &&
				po.Status == entity.POStatusApproved && po.ApprovedBy == nil
			if reopenGate {
				po.Status = entity.POStatusPendingApproval
				po.ApprovedAt = nil
			}

			if err := s.poRepo.ReplaceItems(tx, po.ID, setPOID(poItems, po.ID)); err != nil {
				return fmt.Errorf("替换订单行项失败: %w", err)
			}
			if err := tx.Save(po).Error; err != nil {
				return fmt.Errorf("更新订单失败: %w", err)
			}
			if reopenGate {
				return s.recordApprovalGate(tx, po, userID)
			}
			return nil
		}

		number, err := s.poRepo.GenerateNumber(ctx)
		if err != nil {
			return fmt.Errorf("生成订单编号失败: %w", err)
		}

		bomID := bom.ID
		po = &entity.PurchaseOrder{
			ID:               uuid.New().String()[:32],
			PONumber:         number,
			SupplierID:       supplierID,
			BOMID:            &bomID,
			IsAutoGenerated:  true,
			SourceBOMName:    bom.Name,
			Subtotal:         &subtotal,
			Tax:              tax,
			Shipping:         shipping,
			Total:            &total,
			RequiresApproval: requiresApproval,
			CreatedBy:        userID,
			Items:            setPOID(poItems, ""),
		}

		// 金额达阈值：创建即进入审批门；未达阈值：显式记账的跳过流转
		if requiresApproval {
			po.Status = entity.POStatusPendingApproval
		} else {
			po.Status = entity.POStatusApproved
			now := time.Now()
			po.ApprovedAt = &now
		}

		for i := range po.Items {
			po.Items[i].POID = po.ID
		}
		if err := tx.Create(po).Error; err != nil {
			return fmt.Errorf("创建订单失败: %w", err)
		}

		return s.recordApprovalGate(tx, po, userID)
	})
	if err != nil {
		return nil, err
	}

	sse.PublishPOUpdate(po.ID, po.Status)
	return po, nil
}

// recordApprovalGate 审批门必须留痕：达阈值创建pending审批请求，
// 未达阈值也要落一条已通过的记录，跳过审批是显式流转而非隐式默认
func (s *POService) recordApprovalGate(tx *gorm.DB, po *entity.PurchaseOrder, userID string) error {
	req := &entity.ApprovalRequest{
		ID:          uuid.New().String()[:32],
		EntityType:  entity.ApprovalEntityPurchaseOrder,
		EntityID:    po.ID,
		RequestType: entity.ApprovalTypePOApproval,
		Title:       fmt.Sprintf("采购订单%s审批", po.PONumber),
		Details: entity.JSONB{
			"po_number":         po.PONumber,
			"supplier_id":       po.SupplierID,
			"total":             po.Total,
			"requires_approval": po.RequiresApproval,
		},
		Status:      entity.ApprovalStatusPending,
		RequestedBy: userID,
	}
	if !po.RequiresApproval {
		req.Status = entity.ApprovalStatusApproved
		now := time.Now()
		req.ReviewedAt = &now
		req.ReviewNotes = "金额低于审批阈值，自动通过"
	}
	if err := tx.Create(req).Error; err != nil {
		return fmt.Errorf("创建审批请求失败: %w", err)
	}
	return nil
}

func setPOID(items []entity.POItem, poID string) []entity.POItem {
	for i := range items {
		items[i].POID = poID
	}
	return items
}

// List 查询订单列表
func (s *POService) List(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.PurchaseOrder, int64, error) {
	return s.poRepo.FindAll(ctx, page, pageSize, filters)
}

// Get 查询订单详情
func (s *POService) Get(ctx context.Context, id string) (*entity.PurchaseOrder, error) {
	return s.poRepo.FindByID(ctx, id)
}

// CreatePORequest 手工创建订单请求
type CreatePORequest struct {
	SupplierID    string         `json:"supplier_id" binding:"required"`
	RequiredDate  *time.Time     `json:"required_date"`
	ShipToAddress string         `json:"ship_to_address"`
	Notes         string         `json:"notes"`
	Items         []CreatePOItem `json:"items" binding:"required,min=1"`
}

// CreatePOItem 手工订单行项
type CreatePOItem struct {
	PartNumber  string  `json:"part_number"`
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity" binding:"required,gt=0"`
	Unit        string  `json:"unit"`
	UnitPrice   float64 `json:"unit_price" binding:"gte=0"`
}

// Create 手工创建订单（无来源BOM，draft起步）
func (s *POService) Create(ctx context.Context, userID string, req *CreatePORequest) (*entity.PurchaseOrder, error) {
	if _, err := s.supplierRepo.FindByID(ctx, req.SupplierID); err != nil {
		return nil, err
	}

	number, err := s.poRepo.GenerateNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("生成订单编号失败: %w", err)
	}

	po := &entity.PurchaseOrder{
		ID:            uuid.New().String()[:32],
		PONumber:      number,
		SupplierID:    req.SupplierID,
		Status:        entity.POStatusDraft,
		RequiredDate:  req.RequiredDate,
		ShipToAddress: req.ShipToAddress,
		Notes:         req.Notes,
		CreatedBy:     userID,
	}

	subtotal := decimal.Zero
	for i, it := range req.Items {
		qty := decimal.NewFromFloat(it.Quantity)
		price := decimal.NewFromFloat(it.UnitPrice)
		ext := qty.Mul(price)
		subtotal = subtotal.Add(ext)
		unit := it.Unit
		if unit == "" {
			unit = "EA"
		}
		po.Items = append(po.Items, entity.POItem{
			ID:            uuid.New().String()[:32],
			POID:          po.ID,
			LineNumber:    i + 1,
			PartNumber:    it.PartNumber,
			Description:   it.Description,
			Quantity:      qty,
			Unit:          unit,
			UnitPrice:     price,
			ExtendedPrice: ext,
		})
	}
	total := subtotal.Add(po.Tax).Add(po.Shipping)
	po.Subtotal = &subtotal
	po.Total = &total
	po.RequiresApproval = total.GreaterThanOrEqual(decimal.NewFromFloat(s.cfg.ApprovalThreshold))

	if err := s.poRepo.Create(ctx, po); err != nil {
		return nil, fmt.Errorf("创建订单失败: %w", err)
	}
	return po, nil
}

// Delete 删除订单（仅draft）
func (s *POService) Delete(ctx context.Context, id string) error {
	po, err := s.poRepo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if po.Status != entity.POStatusDraft {
		return newInvalidState("purchase order", id, "delete", po.Status, entity.POStatusDraft)
	}
	return s.poRepo.Delete(ctx, id)
}

// Submit 提交审批：draft起步，金额达阈值进入pending_approval，
// 未达阈值走显式记账的跳过流转直接approved
func (s *POService) Submit(ctx context.Context, id, userID string) (*entity.PurchaseOrder, error) {
	po, err := s.poRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if po.Status != entity.POStatusDraft {
		return nil, newInvalidState("purchase order", id, "submit", po.Status, entity.POStatusDraft)
	}

	// 提交时按当前总额重算审批门，行为与落库的标志保持一致
	total := decimal.Zero
	if po.Total != nil {
		total = *po.Total
	}
	po.RequiresApproval = total.GreaterThanOrEqual(decimal.NewFromFloat(s.cfg.ApprovalThreshold))

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		po.RejectionReason = ""
		if po.RequiresApproval {
			po.Status = entity.POStatusPendingApproval
		} else {
			po.Status = entity.POStatusApproved
			now := time.Now()
			po.ApprovedAt = &now
		}
		if err := tx.Save(po).Error; err != nil {
			return fmt.Errorf("更新订单失败: %w", err)
		}
		return s.recordApprovalGate(tx, po, userID)
	})
	if err != nil {
		return nil, err
	}

	sse.PublishPOUpdate(po.ID, po.Status)
	return po, nil
}

// ApproveRequest 审批决定
type ApproveRequest struct {
	Approved bool   `json:"approved"`
	Notes    string `json:"notes"`
}

// Approve 审批决定：仅pending_approval可决。通过→approved并记录审批人/时间；
// 驳回→退回draft并记录驳回原因，审批人字段保持为空
func (s *POService) Approve(ctx context.Context, id, userID string, req *ApproveRequest) (*entity.PurchaseOrder, error) {
	po, err := s.poRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if po.Status != entity.POStatusPendingApproval {
		return nil, newInvalidState("purchase order", id, "approve", po.Status, entity.POStatusPendingApproval)
	}

	now := time.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if req.Approved {
			po.Status = entity.POStatusApproved
			po.ApprovedBy = &userID
			po.ApprovedAt = &now
		} else {
			po.Status = entity.POStatusDraft
			po.RejectionReason = req.Notes
		}
		if err := tx.Save(po).Error; err != nil {
			return fmt.Errorf("更新订单失败: %w", err)
		}

		pending, err := s.approvalRepo.FindPendingByEntity(ctx, entity.ApprovalEntityPurchaseOrder, po.ID)
		if err != nil {
			return fmt.Errorf("查询审批请求失败: %w", err)
		}
		if pending != nil {
			if req.Approved {
				pending.Status = entity.ApprovalStatusApproved
			} else {
				pending.Status = entity.ApprovalStatusRejected
			}
			pending.ReviewedBy = &userID
			pending.ReviewedAt = &now
			pending.ReviewNotes = req.Notes
			if err := tx.Save(pending).Error; err != nil {
				return fmt.Errorf("更新审批请求失败: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sse.PublishPOUpdate(po.ID, po.Status)
	return po, nil
}

// Send 发出订单：仅approved可发。来源BOM行项同步流转为ordered
func (s *POService) Send(ctx context.Context, id string) (*entity.PurchaseOrder, error) {
	po, err := s.poRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if po.Status != entity.POStatusApproved {
		return nil, newInvalidState("purchase order", id, "send", po.Status, entity.POStatusApproved)
	}

	now := time.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		po.Status = entity.POStatusSent
		po.SentAt = &now
		if err := tx.Save(po).Error; err != nil {
			return fmt.Errorf("更新订单失败: %w", err)
		}

		var bomItemIDs []string
		for _, it := range po.Items {
			if it.BOMItemID != nil {
				bomItemIDs = append(bomItemIDs, *it.BOMItemID)
			}
		}
		if len(bomItemIDs) > 0 {
			if err := tx.Model(&entity.BOMItem{}).
				Where("id IN ?", bomItemIDs).
				Update("status", entity.ItemStatusOrdered).Error; err != nil {
				return fmt.Errorf("更新BOM行项状态失败: %w", err)
			}
		}
		if po.BOMID != nil {
			if err := s.bomRepo.RecomputeAggregates(ctx, tx, *po.BOMID, true); err != nil {
				return fmt.Errorf("重算汇总字段失败: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sse.PublishPOUpdate(po.ID, po.Status)
	return po, nil
}

// Acknowledge 供应商确认：sent → acknowledged
func (s *POService) Acknowledge(ctx context.Context, id string) (*entity.PurchaseOrder, error) {
	po, err := s.poRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if po.Status != entity.POStatusSent {
		return nil, newInvalidState("purchase order", id, "acknowledge", po.Status, entity.POStatusSent)
	}

	now := time.Now()
	po.Status = entity.POStatusAcknowledged
	po.AcknowledgedAt = &now
	if err := s.poRepo.Update(ctx, po); err != nil {
		return nil, fmt.Errorf("更新订单失败: %w", err)
	}
	sse.PublishPOUpdate(po.ID, po.Status)
	return po, nil
}

// MarkShipped 供应商发货：acknowledged → shipped
func (s *POService) MarkShipped(ctx context.Context, id string) (*entity.PurchaseOrder, error) {
	po, err := s.poRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if po.Status != entity.POStatusAcknowledged {
		return nil, newInvalidState("purchase order", id, "ship", po.Status, entity.POStatusAcknowledged)
	}

	po.Status = entity.POStatusShipped
	if err := s.poRepo.Update(ctx, po); err != nil {
		return nil, fmt.Errorf("更新订单失败: %w", err)
	}
	sse.PublishPOUpdate(po.ID, po.Status)
	return po, nil
}

// ReceiveRequest 收货登记请求
type ReceiveRequest struct {
	Items []ReceiveItem `json:"items" binding:"required,min=1"`
}

// ReceiveItem 行项收货数量
type ReceiveItem struct {
	ItemID   string  `json:"item_id" binding:"required"`
	Quantity float64 `json:"quantity" binding:"required,gt=0"`
}

// Receive 收货登记：sent/acknowledged/shipped可收。
// 全部行项收满后订单流转received并记录收货时间，部分收货只累计数量
func (s *POService) Receive(ctx context.Context, id string, req *ReceiveRequest) (*entity.PurchaseOrder, error) {
	po, err := s.poRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch po.Status {
	case entity.POStatusSent, entity.POStatusAcknowledged, entity.POStatusShipped:
	default:
		return nil, newInvalidState("purchase order", id, "receive", po.Status,
			entity.POStatusSent, entity.POStatusAcknowledged, entity.POStatusShipped)
	}

	byID := make(map[string]*entity.POItem, len(po.Items))
	for i := range po.Items {
		byID[po.Items[i].ID] = &po.Items[i]
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, r := range req.Items {
			item, ok := byID[r.ItemID]
			if !ok {
				return fmt.Errorf("订单行项不存在: %s: %w", r.ItemID, ErrNotFound)
			}
			item.ReceivedQuantity = item.ReceivedQuantity.Add(decimal.NewFromFloat(r.Quantity))
			if err := tx.Save(item).Error; err != nil {
				return fmt.Errorf("更新收货数量失败: %w", err)
			}
		}

		complete := true
		for i := range po.Items {
			if po.Items[i].ReceivedQuantity.LessThan(po.Items[i].Quantity) {
				complete = false
				break
			}
		}
		if complete {
			now := time.Now()
			po.Status = entity.POStatusReceived
			po.ReceivedAt = &now
			if err := tx.Save(po).Error; err != nil {
				return fmt.Errorf("更新订单失败: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sse.PublishPOUpdate(po.ID, po.Status)
	return po, nil
}

// CancelPO 取消订单：仅未发出（draft/pending_approval/approved）可取消
func (s *POService) CancelPO(ctx context.Context, id string) (*entity.PurchaseOrder, error) {
	po, err := s.poRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch po.Status {
	case entity.POStatusDraft, entity.POStatusPendingApproval, entity.POStatusApproved:
	default:
		return nil, newInvalidState("purchase order", id, "cancel", po.Status,
			entity.POStatusDraft, entity.POStatusPendingApproval, entity.POStatusApproved)
	}

	po.Status = entity.POStatusCancelled
	if err := s.poRepo.Update(ctx, po); err != nil {
		return nil, fmt.Errorf("更新订单失败: %w", err)
	}
	sse.PublishPOUpdate(po.ID, po.Status)
	return po, nil
}
