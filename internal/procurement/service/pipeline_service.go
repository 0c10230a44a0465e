package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bitfantasy/procura/internal/config"
	"github.com/bitfantasy/procura/internal/procurement/entity"
	"github.com/bitfantasy/procura/internal/procurement/matching"
	"github.com/bitfantasy/procura/internal/procurement/parsing"
	"github.com/bitfantasy/procura/internal/procurement/repository"
	"github.com/bitfantasy/procura/internal/procurement/sse"
	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// 运行锁
const (
	runLockTTL    = 10 * time.Minute
	runLockPrefix = "procura:bom_run:"
)

// PipelineService BOM处理流水线：解析→匹配→优化→生成PO
// 阶段严格有序，每个阶段可重入；进度单次运行内单调不减
type PipelineService struct {
	bomRepo      *repository.BOMRepository
	taskRepo     *repository.TaskRepository
	approvalRepo *repository.ApprovalRepository
	matcher      matching.Gateway
	store        ObjectStore
	po           *POService
	locker       *redislock.Client
	cfg          config.ProcurementConfig
	logger       *zap.Logger
}

// NewPipelineService 创建流水线服务
func NewPipelineService(
	bomRepo *repository.BOMRepository,
	taskRepo *repository.TaskRepository,
	approvalRepo *repository.ApprovalRepository,
	matcher matching.Gateway,
	store ObjectStore,
	po *POService,
	locker *redislock.Client,
	cfg config.ProcurementConfig,
	logger *zap.Logger,
) *PipelineService {
	return &PipelineService{
		bomRepo:      bomRepo,
		taskRepo:     taskRepo,
		approvalRepo: approvalRepo,
		matcher:      matcher,
		store:        store,
		po:           po,
		locker:       locker,
		cfg:          cfg,
		logger:       logger,
	}
}

// StartRun 启动一次流水线运行。同一BOM已有排队/运行中任务时返回ErrRunConflict
func (s *PipelineService) StartRun(ctx context.Context, bomID, userID string) (*entity.ProcessingTask, error) {
	bom, err := s.bomRepo.FindLean(ctx, bomID)
	if err != nil {
		return nil, err
	}

	active, err := s.taskRepo.FindActiveByBOM(ctx, bomID)
	if err != nil {
		return nil, fmt.Errorf("查询活动任务失败: %w", err)
	}
	if active != nil {
		return nil, ErrRunConflict
	}

	task := &entity.ProcessingTask{
		ID:        uuid.New().String()[:32],
		BOMID:     bom.ID,
		TaskType:  "bom_processing",
		Status:    entity.TaskStatusQueued,
		CreatedBy: userID,
	}
	if err := s.taskRepo.Create(ctx, task); err != nil {
		// 活动任务部分唯一索引兜底：并发StartRun同时通过上面的检查时，
		// 只有一个insert成功，另一个在这里收敛为冲突
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrRunConflict
		}
		return nil, fmt.Errorf("创建处理任务失败: %w", err)
	}

	// 新运行开始：进度归零的唯一路径
	if err := s.bomRepo.ResetProcessing(ctx, bomID); err != nil {
		return nil, fmt.Errorf("重置处理状态失败: %w", err)
	}

	go s.execute(context.Background(), task.ID, bom.ID)

	return task, nil
}

// Cancel 请求取消任务（协作式：流水线在阶段边界检查并停止）
func (s *PipelineService) Cancel(ctx context.Context, taskID string) (*entity.ProcessingTask, error) {
	task, err := s.taskRepo.FindByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != entity.TaskStatusQueued && task.Status != entity.TaskStatusRunning {
		return nil, newInvalidState("task", taskID, "cancel", task.Status,
			entity.TaskStatusQueued, entity.TaskStatusRunning)
	}
	if err := s.taskRepo.RequestCancel(ctx, taskID); err != nil {
		return nil, fmt.Errorf("请求取消失败: %w", err)
	}
	return s.taskRepo.FindByID(ctx, taskID)
}

// GetTask 查询任务
func (s *PipelineService) GetTask(ctx context.Context, taskID string) (*entity.ProcessingTask, error) {
	return s.taskRepo.FindByID(ctx, taskID)
}

// ListTasks 查询BOM历史任务
func (s *PipelineService) ListTasks(ctx context.Context, bomID string) ([]entity.ProcessingTask, error) {
	return s.taskRepo.ListByBOM(ctx, bomID)
}

// execute 执行完整流水线。阶段边界即安全暂停点：各阶段效果先原子提交，
// 再推进进度与状态，运行中断不会破坏已提交状态
func (s *PipelineService) execute(ctx context.Context, taskID, bomID string) {
	// 分布式互斥守护（数据库活动任务检查才是权威，锁只防进程级竞态）
	if s.locker != nil {
		lock, err := s.locker.Obtain(ctx, runLockPrefix+bomID, runLockTTL, nil)
		if err != nil {
			s.logger.Warn("获取运行锁失败，放弃本次运行",
				zap.String("bom_id", bomID), zap.Error(err))
			s.taskRepo.Finish(ctx, taskID, entity.TaskStatusFailed, "run lock held by another process", nil)
			return
		}
		defer lock.Release(ctx)
	}

	if err := s.taskRepo.MarkRunning(ctx, taskID); err != nil {
		s.logger.Error("标记任务运行失败", zap.String("task_id", taskID), zap.Error(err))
		return
	}

	type stage struct {
		name   string
		status string
		run    func(context.Context, string, string) error
	}
	stages := []stage{
		{StageParse, entity.ProcessingStatusParsing, s.stageParse},
		{StageMatch, entity.ProcessingStatusMatching, s.stageMatch},
		{StageOptimize, entity.ProcessingStatusOptimizing, s.stageOptimize},
		{StageGeneratePOs, entity.ProcessingStatusGeneratingPOs, s.stageGeneratePOs},
	}

	for _, st := range stages {
		cancelled, err := s.taskRepo.CancelRequested(ctx, taskID)
		if err != nil {
			s.failRun(ctx, taskID, bomID, fmt.Errorf("检查取消状态失败: %w", err))
			return
		}
		if cancelled {
			// BOM停留在上一个已完成阶段的状态，不强制failed
			s.taskRepo.Finish(ctx, taskID, entity.TaskStatusCancelled, "", nil)
			s.logger.Info("流水线已取消", zap.String("bom_id", bomID), zap.String("stage", st.name))
			sse.PublishBOMCompleted(bomID, "cancelled")
			return
		}

		if err := st.run(ctx, taskID, bomID); err != nil {
			s.failRun(ctx, taskID, bomID, fmt.Errorf("%s阶段失败: %w", st.name, err))
			return
		}
	}

	s.finishRun(ctx, taskID, bomID)
}

// failRun 不可恢复错误：BOM标记failed并持久化错误信息，任务failed，不自动重试
func (s *PipelineService) failRun(ctx context.Context, taskID, bomID string, err error) {
	s.logger.Error("流水线运行失败",
		zap.String("bom_id", bomID), zap.String("task_id", taskID), zap.Error(err))
	if dbErr := s.bomRepo.MarkFailed(ctx, bomID, err.Error()); dbErr != nil {
		s.logger.Error("标记BOM失败状态出错", zap.String("bom_id", bomID), zap.Error(dbErr))
	}
	s.taskRepo.Finish(ctx, taskID, entity.TaskStatusFailed, err.Error(), nil)
	sse.PublishBOMCompleted(bomID, entity.ProcessingStatusFailed)
}

// finishRun 末阶段成功：存在needs_review行项时进入awaiting_review，否则completed
func (s *PipelineService) finishRun(ctx context.Context, taskID, bomID string) {
	review, err := s.bomRepo.ListReviewQueue(ctx, bomID)
	if err != nil {
		s.failRun(ctx, taskID, bomID, fmt.Errorf("查询审核队列失败: %w", err))
		return
	}

	final := entity.ProcessingStatusCompleted
	step := "处理完成"
	if len(review) > 0 {
		final = entity.ProcessingStatusAwaitingReview
		step = fmt.Sprintf("%d个行项待人工审核", len(review))
	}

	if err := s.bomRepo.UpdateProcessing(ctx, bomID, final, ProgressGeneratePOEnd, step); err != nil {
		s.failRun(ctx, taskID, bomID, fmt.Errorf("更新最终状态失败: %w", err))
		return
	}

	s.taskRepo.Finish(ctx, taskID, entity.TaskStatusCompleted, "", entity.JSONB{
		"final_status": final,
		"review_items": len(review),
	})
	sse.PublishBOMCompleted(bomID, final)
	s.logger.Info("流水线运行完成",
		zap.String("bom_id", bomID), zap.String("final_status", final))
}

// advance 推进BOM与任务进度并广播（GREATEST保证单调）
func (s *PipelineService) advance(ctx context.Context, taskID, bomID, status string, progress float64, step string) error {
	if err := s.bomRepo.UpdateProcessing(ctx, bomID, status, progress, step); err != nil {
		return err
	}
	if err := s.taskRepo.UpdateProgress(ctx, taskID, progress, step); err != nil {
		return err
	}
	sse.PublishBOMProgress(bomID, status, step, progress)
	return nil
}

// stageParse 解析阶段：从对象存储读源文件，解析为行项。
// 可重入：行项已存在时跳过重新解析
func (s *PipelineService) stageParse(ctx context.Context, taskID, bomID string) error {
	if err := s.advance(ctx, taskID, bomID, entity.ProcessingStatusParsing,
		stageProgress(ProgressParseStart, ProgressParseEnd, 0.1), "解析BOM文件"); err != nil {
		return err
	}

	existing, err := s.bomRepo.ListItems(ctx, bomID, "")
	if err != nil {
		return fmt.Errorf("查询行项失败: %w", err)
	}
	if len(existing) > 0 {
		// 上次运行已完成解析
		return s.advance(ctx, taskID, bomID, entity.ProcessingStatusParsing,
			ProgressParseEnd, fmt.Sprintf("已解析%d个行项", len(existing)))
	}

	bom, err := s.bomRepo.FindLean(ctx, bomID)
	if err != nil {
		return err
	}
	if bom.SourceFileURL == "" {
		return &parsing.ParseError{Reason: "BOM has no source file"}
	}

	rc, err := s.store.Get(ctx, bom.SourceFileURL)
	if err != nil {
		return fmt.Errorf("读取源文件失败: %w", err)
	}
	defer rc.Close()

	raw, err := parsing.Parse(bom.SourceFileName, rc)
	if err != nil {
		return err
	}

	items := make([]entity.BOMItem, 0, len(raw))
	for _, r := range raw {
		items = append(items, entity.BOMItem{
			ID:             uuid.New().String()[:32],
			BOMID:          bomID,
			LineNumber:     r.LineNumber,
			PartNumberRaw:  r.PartNumber,
			DescriptionRaw: r.Description,
			Quantity:       r.Quantity,
			Unit:           r.Unit,
			Status:         entity.ItemStatusPending,
			Notes:          r.Reference,
		})
	}

	if err := s.bomRepo.ReplaceItems(ctx, bomID, items); err != nil {
		return fmt.Errorf("写入行项失败: %w", err)
	}

	return s.advance(ctx, taskID, bomID, entity.ProcessingStatusParsing,
		ProgressParseEnd, fmt.Sprintf("解析完成，共%d个行项", len(items)))
}

// stageMatch 匹配阶段：pending行项并发查询候选供应商并按置信度闸门分流。
// 可重入：仅处理pending行项，已匹配/已审核的不重做
func (s *PipelineService) stageMatch(ctx context.Context, taskID, bomID string) error {
	if err := s.advance(ctx, taskID, bomID, entity.ProcessingStatusMatching,
		stageProgress(ProgressParseEnd, ProgressMatchEnd, 0.02), "匹配供应商"); err != nil {
		return err
	}

	pending, err := s.bomRepo.ListItems(ctx, bomID, entity.ItemStatusPending)
	if err != nil {
		return fmt.Errorf("查询待匹配行项失败: %w", err)
	}

	if len(pending) > 0 {
		var done atomic.Int64
		total := int64(len(pending))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.cfg.MatchWorkers)
		for i := range pending {
			item := pending[i]
			g.Go(func() error {
				if err := s.matchItem(gctx, &item); err != nil {
					return err
				}
				n := done.Add(1)
				// 匹配带宽25-60按完成比例推进
				if n%5 == 0 || n == total {
					frac := float64(n) / float64(total)
					s.advance(gctx, taskID, bomID, entity.ProcessingStatusMatching,
						stageProgress(ProgressParseEnd, ProgressMatchEnd, frac),
						fmt.Sprintf("匹配供应商 %d/%d", n, total))
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}

	if err := s.bomRepo.RecomputeAggregates(ctx, nil, bomID, false); err != nil {
		return fmt.Errorf("重算汇总字段失败: %w", err)
	}

	return s.advance(ctx, taskID, bomID, entity.ProcessingStatusMatching,
		ProgressMatchEnd, "供应商匹配完成")
}

// matchItem 单行项匹配：候选置信度≥自动接受阈值→matched，
// 低于下限或无候选→保持pending，介于两者之间→needs_review进入审核队列。
// 匹配源瞬时故障带退避重试
func (s *PipelineService) matchItem(ctx context.Context, item *entity.BOMItem) error {
	var candidates []matching.Candidate
	var err error
	for attempt := 0; ; attempt++ {
		candidates, err = s.matcher.FindCandidates(ctx, item.DescriptionRaw, item.PartNumberRaw)
		if err == nil {
			break
		}
		if !errors.Is(err, matching.ErrUnavailable) || attempt >= s.cfg.MatchRetries {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 200 * time.Millisecond):
		}
	}

	if len(candidates) == 0 || candidates[0].Confidence < s.cfg.ReviewFloorConfidence {
		// 无可用匹配：保持pending，不产生审核条目
		return nil
	}

	top := candidates[0]
	applyCandidate(item, top)
	item.AlternativeMatches = toAlternatives(candidates)

	if top.Confidence >= s.cfg.AutoAcceptConfidence {
		item.Status = entity.ItemStatusMatched
		item.ReviewReason = ""
	} else {
		item.Status = entity.ItemStatusNeedsReview
		item.ReviewReason = fmt.Sprintf("匹配置信度%.2f低于自动接受阈值%.2f", top.Confidence, s.cfg.AutoAcceptConfidence)
	}

	if err := s.bomRepo.UpdateItem(ctx, item); err != nil {
		return fmt.Errorf("更新行项失败: %w", err)
	}

	if item.Status == entity.ItemStatusNeedsReview {
		if err := s.openMatchReview(ctx, item, top); err != nil {
			return err
		}
	}
	return nil
}

// openMatchReview 低置信度匹配进入审批门：留一条待决审批请求。
// 可重入：已有待决请求时不重复创建
func (s *PipelineService) openMatchReview(ctx context.Context, item *entity.BOMItem, top matching.Candidate) error {
	pending, err := s.approvalRepo.FindPendingByEntity(ctx, entity.ApprovalEntitySupplierMatch, item.ID)
	if err != nil {
		return fmt.Errorf("查询审批请求失败: %w", err)
	}
	if pending != nil {
		return nil
	}

	req := &entity.ApprovalRequest{
		ID:          uuid.New().String()[:32],
		EntityType:  entity.ApprovalEntitySupplierMatch,
		EntityID:    item.ID,
		RequestType: entity.ApprovalTypeMatchReview,
		Title:       fmt.Sprintf("行项%d低置信度匹配待审核", item.LineNumber),
		Description: item.ReviewReason,
		Details: entity.JSONB{
			"bom_id":        item.BOMID,
			"line_number":   item.LineNumber,
			"supplier_id":   top.SupplierID,
			"supplier_name": top.SupplierName,
			"confidence":    top.Confidence,
		},
		Status: entity.ApprovalStatusPending,
	}
	if err := s.approvalRepo.Create(ctx, req); err != nil {
		return fmt.Errorf("创建审批请求失败: %w", err)
	}
	return nil
}

// applyCandidate 将候选写入行项匹配与定价字段
func applyCandidate(item *entity.BOMItem, c matching.Candidate) {
	item.MatchedSupplierID = &c.SupplierID
	if c.SupplierPartID != "" {
		spID := c.SupplierPartID
		item.MatchedSupplierPartID = &spID
	}
	if c.PartID != "" {
		pID := c.PartID
		item.PartID = &pID
	}
	conf := c.Confidence
	item.MatchConfidence = &conf
	item.MatchMethod = c.Method
	item.LeadTimeDays = c.LeadTimeDays
	if c.UnitPrice != nil {
		price := *c.UnitPrice
		item.UnitCost = &price
		ext := item.Quantity.Mul(price)
		item.ExtendedCost = &ext
	}
}

func toAlternatives(candidates []matching.Candidate) entity.AlternativeMatches {
	alts := make(entity.AlternativeMatches, 0, len(candidates))
	for _, c := range candidates {
		alts = append(alts, entity.AlternativeMatch{
			SupplierID:     c.SupplierID,
			SupplierPartID: c.SupplierPartID,
			SupplierName:   c.SupplierName,
			UnitPrice:      c.UnitPrice,
			Confidence:     c.Confidence,
		})
	}
	return alts
}

// stageOptimize 优化阶段：只动定价字段，重算extended_cost并物化total_cost
func (s *PipelineService) stageOptimize(ctx context.Context, taskID, bomID string) error {
	if err := s.advance(ctx, taskID, bomID, entity.ProcessingStatusOptimizing,
		stageProgress(ProgressMatchEnd, ProgressOptimizeEnd, 0.2), "成本优化"); err != nil {
		return err
	}

	items, err := s.bomRepo.ListItems(ctx, bomID, "")
	if err != nil {
		return fmt.Errorf("查询行项失败: %w", err)
	}

	for i := range items {
		item := &items[i]
		if item.UnitCost == nil {
			continue
		}
		ext := item.Quantity.Mul(*item.UnitCost)
		if item.ExtendedCost != nil && item.ExtendedCost.Equal(ext) {
			continue
		}
		item.ExtendedCost = &ext
		if err := s.bomRepo.UpdateItem(ctx, item); err != nil {
			return fmt.Errorf("更新行项定价失败: %w", err)
		}
	}

	// total_cost在此阶段完成后才有值
	if err := s.bomRepo.RecomputeAggregates(ctx, nil, bomID, true); err != nil {
		return fmt.Errorf("重算总成本失败: %w", err)
	}

	return s.advance(ctx, taskID, bomID, entity.ProcessingStatusOptimizing,
		ProgressOptimizeEnd, "成本优化完成")
}

// stageGeneratePOs 生成PO阶段：委托聚合器按供应商分组生成采购订单
func (s *PipelineService) stageGeneratePOs(ctx context.Context, taskID, bomID string) error {
	if err := s.advance(ctx, taskID, bomID, entity.ProcessingStatusGeneratingPOs,
		stageProgress(ProgressOptimizeEnd, ProgressGeneratePOEnd, 0.1), "生成采购订单"); err != nil {
		return err
	}

	task, err := s.taskRepo.FindByID(ctx, taskID)
	if err != nil {
		return err
	}

	result, err := s.po.GenerateFromBOM(ctx, bomID, task.CreatedBy)
	if err != nil {
		return err
	}

	if result.UnpricedCount > 0 {
		s.logger.Warn("存在未定价的已匹配行项，未纳入PO",
			zap.String("bom_id", bomID), zap.Int("unpriced", result.UnpricedCount))
	}

	step := fmt.Sprintf("已生成%d张采购订单", len(result.POs))
	if result.UnpricedCount > 0 {
		step = fmt.Sprintf("已生成%d张采购订单，%d个行项缺少价格", len(result.POs), result.UnpricedCount)
	}
	return s.advance(ctx, taskID, bomID, entity.ProcessingStatusGeneratingPOs,
		stageProgress(ProgressOptimizeEnd, ProgressGeneratePOEnd, 0.95), step)
}

// sumExtended 行项extended_cost求和（缺价行项跳过）
func sumExtended(items []entity.BOMItem) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		if it.ExtendedCost != nil {
			sum = sum.Add(*it.ExtendedCost)
		}
	}
	return sum
}
