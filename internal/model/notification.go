package model

import (
	"time"

	"gorm.io/gorm"
)

// 通知类型
const (
	NotificationTypePTOCascade = "pto_cascade"
	NotificationTypeDelay      = "delay_expired"
)

// Notification 站内通知 — 对应 notifications
// 推送/邮件/短信由外部通知子系统读取后投递
type Notification struct {
	NotificationID string    `gorm:"type:uuid;primaryKey"               json:"notification_id"`
	Recipient      string    `gorm:"type:varchar(64);not null;index"    json:"recipient"`
	Type           string    `gorm:"type:varchar(50);not null"          json:"type"`
	Title          string    `gorm:"type:varchar(200);not null"         json:"title"`
	Content        string    `gorm:"type:text;not null"                 json:"content"`
	IsRead         bool      `gorm:"not null;default:false"             json:"is_read"`
	RelatedType    *string   `gorm:"type:varchar(20)"                   json:"related_type,omitempty"` // pto_request | job
	RelatedID      *string   `gorm:"type:uuid"                          json:"related_id,omitempty"`
	CreatedAt      time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Notification) TableName() string { return "notifications" }

func (n *Notification) BeforeCreate(_ *gorm.DB) error {
	newID(&n.NotificationID)
	return nil
}
