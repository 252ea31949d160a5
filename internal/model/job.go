package model

import (
	"time"

	"gorm.io/gorm"

	"fieldcrew/backend/pkg/dateutil"
)

// 工单生命周期状态
const (
	JobStatusPending    = "pending"
	JobStatusInProgress = "in_progress"
	JobStatusCompleted  = "completed"
	JobStatusCancelled  = "cancelled"
	JobStatusInvoiced   = "invoiced"
	JobStatusPaid       = "paid"
)

// IsTerminalJobStatus 终态工单不再参与排班
func IsTerminalJobStatus(status string) bool {
	switch status {
	case JobStatusCompleted, JobStatusCancelled, JobStatusInvoiced, JobStatusPaid:
		return true
	}
	return false
}

// Job 工单 — 对应 jobs
// 排班分类（scheduled/unassigned/...）不落库，每次查询实时计算
type Job struct {
	JobID           string     `gorm:"type:uuid;primaryKey"                        json:"job_id"`
	Title           string     `gorm:"type:varchar(200);not null"                  json:"title"`
	CustomerName    string     `gorm:"type:varchar(200)"                           json:"customer_name,omitempty"`
	Address         string     `gorm:"type:varchar(500)"                           json:"address,omitempty"`
	Status          string     `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	StartDate       *time.Time `gorm:"type:date"                                   json:"start_date,omitempty"`
	LastDelayReason string     `gorm:"type:varchar(500)"                           json:"last_delay_reason,omitempty"` // 软关闭延期后保留的历史原因
	BaseModel
}

func (Job) TableName() string { return "jobs" }

func (j *Job) BeforeCreate(_ *gorm.DB) error {
	newID(&j.JobID)
	return nil
}

// IsTerminal 是否为终态
func (j *Job) IsTerminal() bool { return IsTerminalJobStatus(j.Status) }

// DelayWindow 工单延期窗口 — 对应 job_delay_windows
// cleared_at 为空表示窗口未关闭；EndDate 为空表示无限期延期
type DelayWindow struct {
	DelayWindowID string     `gorm:"type:uuid;primaryKey"               json:"delay_window_id"`
	JobID         string     `gorm:"type:uuid;not null;index"           json:"job_id"`
	StartDate     time.Time  `gorm:"type:date;not null"                 json:"start_date"`
	EndDate       *time.Time `gorm:"type:date"                          json:"end_date,omitempty"`
	Reason        string     `gorm:"type:varchar(500);not null"         json:"reason"`
	CreatedBy     string     `gorm:"type:varchar(64);not null"          json:"created_by"`
	CreatedAt     time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	ClearedAt     *time.Time `json:"cleared_at,omitempty"`
	ClearedBy     *string    `gorm:"type:varchar(64)"                   json:"cleared_by,omitempty"`
}

func (DelayWindow) TableName() string { return "job_delay_windows" }

func (w *DelayWindow) BeforeCreate(_ *gorm.DB) error {
	newID(&w.DelayWindowID)
	return nil
}

// IsOpen 窗口尚未被清除
func (w *DelayWindow) IsOpen() bool { return w.ClearedAt == nil }

// Indefinite 是否为无限期延期
func (w *DelayWindow) Indefinite() bool { return w.EndDate == nil }

// ActiveOn 截至 asOf 窗口是否仍生效：未清除且（无限期或结束日 >= asOf）
func (w *DelayWindow) ActiveOn(asOf time.Time) bool {
	if !w.IsOpen() {
		return false
	}
	return w.EndDate == nil || !dateutil.Normalize(*w.EndDate).Before(dateutil.Normalize(asOf))
}

// Range 窗口覆盖的日期区间
func (w *DelayWindow) Range() dateutil.Range {
	return dateutil.Range{Start: w.StartDate, End: w.EndDate}
}
