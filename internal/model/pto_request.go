package model

import (
	"time"

	"gorm.io/gorm"
)

// 休假申请状态
const (
	PTOStatusPending  = "pending"
	PTOStatusApproved = "approved"
	PTOStatusDenied   = "denied"
)

// PTORequest 休假申请 — 对应 pto_requests
type PTORequest struct {
	PTORequestID       string     `gorm:"column:pto_request_id;type:uuid;primaryKey"  json:"pto_request_id"`
	Username           string     `gorm:"type:varchar(64);not null;index"             json:"username"`
	StartDate          time.Time  `gorm:"type:date;not null"                          json:"start_date"`
	EndDate            time.Time  `gorm:"type:date;not null"                          json:"end_date"`
	Status             string     `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	Reason             string     `gorm:"type:varchar(500)"                           json:"reason,omitempty"`
	ApprovedBy         *string    `gorm:"type:varchar(64)"                            json:"approved_by,omitempty"`
	DecidedAt          *time.Time `json:"decided_at,omitempty"`
	AdminNotes         string     `gorm:"type:varchar(1000)"                          json:"admin_notes,omitempty"`
	RemoveFromSchedule bool       `gorm:"not null;default:false"                      json:"remove_from_schedule"`
	VersionedModel
}

func (PTORequest) TableName() string { return "pto_requests" }

func (p *PTORequest) BeforeCreate(_ *gorm.DB) error {
	newID(&p.PTORequestID)
	return nil
}
