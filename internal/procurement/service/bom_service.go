package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/bitfantasy/procura/internal/procurement/entity"
	"github.com/bitfantasy/procura/internal/procurement/parsing"
	"github.com/bitfantasy/procura/internal/procurement/repository"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 状态轮询缓存
const (
	statusCachePrefix = "procura:bom_status:"
	statusCacheTTL    = 2 * time.Second
)

// BOMService BOM文档服务
type BOMService struct {
	bomRepo  *repository.BOMRepository
	taskRepo *repository.TaskRepository
	store    ObjectStore
	rdb      *redis.Client
	db       *gorm.DB
	logger   *zap.Logger
}

// NewBOMService 创建BOM服务
func NewBOMService(
	bomRepo *repository.BOMRepository,
	taskRepo *repository.TaskRepository,
	store ObjectStore,
	rdb *redis.Client,
	db *gorm.DB,
	logger *zap.Logger,
) *BOMService {
	return &BOMService{
		bomRepo:  bomRepo,
		taskRepo: taskRepo,
		store:    store,
		rdb:      rdb,
		db:       db,
		logger:   logger,
	}
}

// Upload 上传BOM源文件并创建文档记录（不立即解析，解析由流水线运行触发）
func (s *BOMService) Upload(ctx context.Context, userID, name, version string, header *multipart.FileHeader, file io.Reader) (*entity.BOM, error) {
	ext := strings.ToLower(filepath.Ext(header.Filename))
	var fileType string
	switch ext {
	case ".xlsx":
		fileType = "excel"
	case ".csv":
		fileType = "csv"
	default:
		// 旧版二进制.xls同样拒绝，解析器只认OOXML
		return nil, fmt.Errorf("%w: %s", parsing.ErrUnsupportedFormat, ext)
	}

	if name == "" {
		name = strings.TrimSuffix(header.Filename, ext)
	}
	if version == "" {
		version = "1.0"
	}

	bom := &entity.BOM{
		ID:               uuid.New().String()[:32],
		Name:             name,
		Version:          version,
		Status:           entity.BOMStatusDraft,
		SourceFileName:   header.Filename,
		SourceFileType:   fileType,
		ProcessingStatus: entity.ProcessingStatusPending,
		CreatedBy:        userID,
	}

	key := fmt.Sprintf("boms/%s/%s", bom.ID, header.Filename)
	if err := s.store.Put(ctx, key, file, header.Size, header.Header.Get("Content-Type")); err != nil {
		return nil, err
	}
	bom.SourceFileURL = key

	if err := s.bomRepo.Create(ctx, bom); err != nil {
		return nil, fmt.Errorf("创建BOM失败: %w", err)
	}

	s.logger.Info("BOM文件已上传",
		zap.String("bom_id", bom.ID), zap.String("file", header.Filename))
	return bom, nil
}

// List 查询BOM列表
func (s *BOMService) List(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.BOM, int64, error) {
	return s.bomRepo.FindAll(ctx, page, pageSize, filters)
}

// Get 查询BOM详情（含行项）
func (s *BOMService) Get(ctx context.Context, id string) (*entity.BOM, error) {
	return s.bomRepo.FindByID(ctx, id)
}

// Delete 删除BOM（处理中不可删除）
func (s *BOMService) Delete(ctx context.Context, id string) error {
	bom, err := s.bomRepo.FindLean(ctx, id)
	if err != nil {
		return err
	}
	active, err := s.taskRepo.FindActiveByBOM(ctx, id)
	if err != nil {
		return fmt.Errorf("查询活动任务失败: %w", err)
	}
	if active != nil {
		return newInvalidState("bom", id, "delete", bom.ProcessingStatus,
			entity.ProcessingStatusPending, entity.ProcessingStatusCompleted,
			entity.ProcessingStatusAwaitingReview, entity.ProcessingStatusFailed)
	}
	return s.bomRepo.Delete(ctx, id)
}

// StatusView 轮询友好的状态视图：单行读取加阶段投影，无重关联
type StatusView struct {
	BOMID              string      `json:"bom_id"`
	ProcessingStatus   string      `json:"processing_status"`
	ProcessingProgress float64     `json:"processing_progress"`
	ProcessingStep     string      `json:"processing_step"`
	ProcessingError    string      `json:"processing_error,omitempty"`
	TotalItems         int         `json:"total_items"`
	MatchedItems       int         `json:"matched_items"`
	TotalCost          *string     `json:"total_cost,omitempty"`
	Stages             []StageView `json:"stages"`
}

// GetStatus 查询处理状态。短TTL redis缓存吸收高频轮询；
// 缓存只是优化，正确性始终以数据库为准
func (s *BOMService) GetStatus(ctx context.Context, id string) (*StatusView, error) {
	if s.rdb != nil {
		if cached, err := s.rdb.Get(ctx, statusCachePrefix+id).Result(); err == nil {
			var view StatusView
			if json.Unmarshal([]byte(cached), &view) == nil {
				return &view, nil
			}
		}
	}

	bom, err := s.bomRepo.FindLean(ctx, id)
	if err != nil {
		return nil, err
	}

	view := &StatusView{
		BOMID:              bom.ID,
		ProcessingStatus:   bom.ProcessingStatus,
		ProcessingProgress: bom.ProcessingProgress,
		ProcessingStep:     bom.ProcessingStep,
		ProcessingError:    bom.ProcessingError,
		TotalItems:         bom.TotalItems,
		MatchedItems:       bom.MatchedItems,
		Stages:             ProjectProgress(bom.ProcessingProgress),
	}
	if bom.TotalCost != nil {
		cost := bom.TotalCost.StringFixed(2)
		view.TotalCost = &cost
	}

	if s.rdb != nil {
		if b, err := json.Marshal(view); err == nil {
			s.rdb.Set(ctx, statusCachePrefix+id, b, statusCacheTTL)
		}
	}
	return view, nil
}

// ListItems 查询BOM行项
func (s *BOMService) ListItems(ctx context.Context, bomID, status string) ([]entity.BOMItem, error) {
	if _, err := s.bomRepo.FindLean(ctx, bomID); err != nil {
		return nil, err
	}
	return s.bomRepo.ListItems(ctx, bomID, status)
}

// UpdateItemRequest 行项人工修正请求
type UpdateItemRequest struct {
	Quantity *float64 `json:"quantity" binding:"omitempty,gt=0"`
	UnitCost *float64 `json:"unit_cost" binding:"omitempty,gte=0"`
	Notes    *string  `json:"notes"`
}

// UpdateItem 人工修正行项数量/单价。数量或单价任一变更都重算extended_cost，
// BOM汇总随之由行项现状重算
func (s *BOMService) UpdateItem(ctx context.Context, itemID string, req *UpdateItemRequest) (*entity.BOMItem, error) {
	item, err := s.bomRepo.FindItemByID(ctx, itemID)
	if err != nil {
		return nil, err
	}

	if req.Quantity != nil {
		item.Quantity = decimal.NewFromFloat(*req.Quantity)
	}
	if req.UnitCost != nil {
		cost := decimal.NewFromFloat(*req.UnitCost)
		item.UnitCost = &cost
	}
	if req.Notes != nil {
		item.Notes = *req.Notes
	}

	if item.UnitCost != nil {
		ext := item.Quantity.Mul(*item.UnitCost)
		item.ExtendedCost = &ext
	}

	bom, err := s.bomRepo.FindLean(ctx, item.BOMID)
	if err != nil {
		return nil, err
	}
	includeCost := bom.TotalCost != nil ||
		bom.ProcessingStatus == entity.ProcessingStatusCompleted ||
		bom.ProcessingStatus == entity.ProcessingStatusAwaitingReview

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(item).Error; err != nil {
			return fmt.Errorf("更新行项失败: %w", err)
		}
		return s.bomRepo.RecomputeAggregates(ctx, tx, item.BOMID, includeCost)
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}
