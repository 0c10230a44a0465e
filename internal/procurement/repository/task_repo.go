package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bitfantasy/procura/internal/procurement/entity"
	"gorm.io/gorm"
)

// TaskRepository 流水线任务仓库
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// FindByID 查找任务
func (r *TaskRepository) FindByID(ctx context.Context, id string) (*entity.ProcessingTask, error) {
	var task entity.ProcessingTask
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&task).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &task, nil
}

// FindActiveByBOM 查找BOM当前活跃任务（queued或running，互斥检查用）
func (r *TaskRepository) FindActiveByBOM(ctx context.Context, bomID string) (*entity.ProcessingTask, error) {
	var task entity.ProcessingTask
	err := r.db.WithContext(ctx).
		Where("bom_id = ? AND status IN ?", bomID, []string{entity.TaskStatusQueued, entity.TaskStatusRunning}).
		Order("created_at DESC").
		First(&task).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &task, nil
}

// ListByBOM 查询BOM的历史任务
func (r *TaskRepository) ListByBOM(ctx context.Context, bomID string) ([]entity.ProcessingTask, error) {
	var tasks []entity.ProcessingTask
	err := r.db.WithContext(ctx).
		Where("bom_id = ?", bomID).
		Order("created_at DESC").
		Find(&tasks).Error
	return tasks, err
}

// Create 创建任务
func (r *TaskRepository) Create(ctx context.Context, task *entity.ProcessingTask) error {
	return r.db.WithContext(ctx).Create(task).Error
}

// Update 更新任务
func (r *TaskRepository) Update(ctx context.Context, task *entity.ProcessingTask) error {
	return r.db.WithContext(ctx).Save(task).Error
}

// UpdateProgress 更新任务进度与当前步骤（GREATEST保证单调）
func (r *TaskRepository) UpdateProgress(ctx context.Context, id string, progress float64, step string) error {
	return r.db.WithContext(ctx).Model(&entity.ProcessingTask{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"progress":     gorm.Expr("GREATEST(progress, ?)", progress),
			"current_step": step,
		}).Error
}

// MarkRunning 任务开始执行
func (r *TaskRepository) MarkRunning(ctx context.Context, id string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&entity.ProcessingTask{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     entity.TaskStatusRunning,
			"started_at": &now,
		}).Error
}

// Finish 任务结束（completed/failed/cancelled）
func (r *TaskRepository) Finish(ctx context.Context, id, status, errMsg string, output entity.JSONB) error {
	now := time.Now()
	updates := map[string]interface{}{
		"status":       status,
		"completed_at": &now,
	}
	if errMsg != "" {
		updates["error_message"] = errMsg
	}
	if output != nil {
		updates["output"] = output
	}
	return r.db.WithContext(ctx).Model(&entity.ProcessingTask{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// RequestCancel 请求取消（协作式，流水线在阶段边界响应）
func (r *TaskRepository) RequestCancel(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&entity.ProcessingTask{}).
		Where("id = ?", id).
		Update("cancel_requested", true).Error
}

// CancelRequested 查询取消标记
func (r *TaskRepository) CancelRequested(ctx context.Context, id string) (bool, error) {
	var task entity.ProcessingTask
	err := r.db.WithContext(ctx).Select("cancel_requested").Where("id = ?", id).First(&task).Error
	if err != nil {
		return false, err
	}
	return task.CancelRequested, nil
}
