package entity

import "time"

// ProcessingTask 流水线运行记录（与BOM自身处理状态解耦，历史可多条）
type ProcessingTask struct {
	ID       string `json:"id" gorm:"primaryKey;size:32"`
	BOMID    string `json:"bom_id" gorm:"size:32;not null;index"`
	TaskType string `json:"task_type" gorm:"size:50;not null;default:bom_processing"`

	Status      string  `json:"status" gorm:"size:20;not null;default:queued;index"` // queued/running/completed/failed/cancelled
	Progress    float64 `json:"progress" gorm:"default:0"`
	CurrentStep string  `json:"current_step" gorm:"size:255"`

	// 协作式取消：外部置位，流水线在阶段边界检查
	CancelRequested bool `json:"cancel_requested" gorm:"default:false"`

	ErrorMessage string `json:"error_message" gorm:"type:text"`
	Output       JSONB  `json:"output" gorm:"type:jsonb"`

	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
	CreatedBy   string     `json:"created_by" gorm:"size:32"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (ProcessingTask) TableName() string {
	return "processing_tasks"
}

// 任务状态
const (
	TaskStatusQueued    = "queued"
	TaskStatusRunning   = "running"
	TaskStatusCompleted = "completed"
	TaskStatusFailed    = "failed"
	TaskStatusCancelled = "cancelled"
)
