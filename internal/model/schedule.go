package model

import (
	"time"

	"gorm.io/gorm"
)

// ScheduleDate 排班日 — 对应 schedule_dates
// 同一工单同一天仅一行（uk_schedule_dates_job_date），首次派工或工时核对补录时按需创建
type ScheduleDate struct {
	ScheduleDateID string    `gorm:"type:uuid;primaryKey"                                 json:"schedule_date_id"`
	JobID          string    `gorm:"type:uuid;not null;uniqueIndex:uk_schedule_dates_job_date,priority:1" json:"job_id"`
	WorkDate       time.Time `gorm:"type:date;not null;uniqueIndex:uk_schedule_dates_job_date,priority:2;index" json:"work_date"`
	CreatedAt      time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"                   json:"created_at"`

	// 关联
	Job  *Job             `gorm:"foreignKey:JobID;references:JobID"     json:"job,omitempty"`
	Crew []CrewAssignment `gorm:"foreignKey:ScheduleDateID"             json:"crew,omitempty"`
}

func (ScheduleDate) TableName() string { return "schedule_dates" }

func (s *ScheduleDate) BeforeCreate(_ *gorm.DB) error {
	newID(&s.ScheduleDateID)
	return nil
}

// CrewAssignment 派工记录 — 对应 crew_assignments
// 每个排班日至多一名 is_lead=true，由 CrewService 保证
type CrewAssignment struct {
	CrewAssignmentID string    `gorm:"type:uuid;primaryKey"                                              json:"crew_assignment_id"`
	ScheduleDateID   string    `gorm:"type:uuid;not null;uniqueIndex:uk_crew_assignments_date_user,priority:1" json:"schedule_date_id"`
	Username         string    `gorm:"type:varchar(64);not null;uniqueIndex:uk_crew_assignments_date_user,priority:2;index" json:"username"`
	IsLead           bool      `gorm:"not null;default:false"                                            json:"is_lead"`
	StartTime        *string   `gorm:"type:varchar(5)"                                                   json:"start_time,omitempty"` // HH:MM
	EndTime          *string   `gorm:"type:varchar(5)"                                                   json:"end_time,omitempty"`
	AssignedAt       time.Time `gorm:"not null"                                                          json:"assigned_at"`
	AssignedBy       string    `gorm:"type:varchar(64);not null"                                         json:"assigned_by"`

	// 关联
	ScheduleDate *ScheduleDate `gorm:"foreignKey:ScheduleDateID;references:ScheduleDateID" json:"schedule_date,omitempty"`
}

func (CrewAssignment) TableName() string { return "crew_assignments" }

func (c *CrewAssignment) BeforeCreate(_ *gorm.DB) error {
	newID(&c.CrewAssignmentID)
	return nil
}
