package model

import (
	"time"

	"gorm.io/gorm"
)

// TimeEntry 工时记录 — 对应 time_entries
// 所在周被工资锁定后（locked=true）不可修改
type TimeEntry struct {
	TimeEntryID string    `gorm:"type:uuid;primaryKey"                 json:"time_entry_id"`
	Username    string    `gorm:"type:varchar(64);not null;index:idx_time_entries_user_date,priority:1" json:"username"`
	JobID       string    `gorm:"type:uuid;not null;index"             json:"job_id"`
	WorkDate    time.Time `gorm:"type:date;not null;index:idx_time_entries_user_date,priority:2" json:"work_date"`
	HoursWorked float64   `gorm:"type:decimal(5,2);not null"           json:"hours_worked"`
	Notes       string    `gorm:"type:varchar(1000)"                   json:"notes,omitempty"`
	Locked      bool      `gorm:"not null;default:false"               json:"locked"`
	BaseModel
}

func (TimeEntry) TableName() string { return "time_entries" }

func (e *TimeEntry) BeforeCreate(_ *gorm.DB) error {
	newID(&e.TimeEntryID)
	return nil
}

// 周工时提交状态
const (
	SubmissionStatusSubmitted = "submitted"
	SubmissionStatusLocked    = "locked"
)

// TimecardSubmission 周工时提交 — 对应 timecard_submissions
// submitted 由员工提交产生；locked 为管理员的工资锁定动作
type TimecardSubmission struct {
	SubmissionID        string     `gorm:"type:uuid;primaryKey"                                             json:"submission_id"`
	Username            string     `gorm:"type:varchar(64);not null;uniqueIndex:uk_timecard_submissions_user_week,priority:1" json:"username"`
	WeekEnding          time.Time  `gorm:"type:date;not null;uniqueIndex:uk_timecard_submissions_user_week,priority:2" json:"week_ending"`
	Status              string     `gorm:"type:varchar(20);not null;default:'submitted'"                    json:"status"`
	SubmittedAt         time.Time  `gorm:"not null"                                                         json:"submitted_at"`
	LockedAt            *time.Time `json:"locked_at,omitempty"`
	LockedBy            *string    `gorm:"type:varchar(64)"                                                 json:"locked_by,omitempty"`
	ContradictionsFound int        `gorm:"not null;default:0"                                               json:"contradictions_found"`
	SchedulesCreated    int        `gorm:"not null;default:0"                                               json:"schedules_created"`
	BaseModel

	// 关联
	Contradictions []Contradiction `gorm:"foreignKey:SubmissionID" json:"contradictions,omitempty"`
}

func (TimecardSubmission) TableName() string { return "timecard_submissions" }

func (s *TimecardSubmission) BeforeCreate(_ *gorm.DB) error {
	newID(&s.SubmissionID)
	return nil
}

// 核对差异类型
const (
	ContradictionMissingSchedule  = "missing_schedule"
	ContradictionMissingTimeEntry = "missing_time_entry"
	ContradictionHoursMismatch    = "hours_mismatch"
)

// Contradiction 工时与排班的差异 — 对应 timecard_contradictions（每次提交整体替换）
type Contradiction struct {
	ContradictionID string    `gorm:"type:uuid;primaryKey"      json:"contradiction_id"`
	SubmissionID    string    `gorm:"type:uuid;not null;index"  json:"submission_id"`
	Type            string    `gorm:"type:varchar(30);not null" json:"type"`
	JobID           string    `gorm:"type:uuid;not null"        json:"job_id"`
	WorkDate        time.Time `gorm:"type:date;not null"        json:"work_date"`
	ScheduledHours  float64   `gorm:"type:decimal(5,2);not null" json:"scheduled_hours"`
	ActualHours     float64   `gorm:"type:decimal(5,2);not null" json:"actual_hours"`
	Difference      float64   `gorm:"type:decimal(6,2);not null" json:"difference"`
}

func (Contradiction) TableName() string { return "timecard_contradictions" }

func (c *Contradiction) BeforeCreate(_ *gorm.DB) error {
	newID(&c.ContradictionID)
	return nil
}
