package model

import "time"

// 员工角色
const (
	RoleAdmin      = "admin"
	RoleManager    = "manager"
	RoleTechnician = "technician"
)

// RoleRank 角色资历排序，数值越小越资深
func RoleRank(role string) int {
	switch role {
	case RoleAdmin:
		return 0
	case RoleManager:
		return 1
	case RoleTechnician:
		return 2
	}
	return 3
}

// Employee 员工花名册 — 对应 employees（由人事子系统维护，本服务只读）
type Employee struct {
	Username string     `gorm:"type:varchar(64);primaryKey"   json:"username"`
	FullName string     `gorm:"type:varchar(100);not null"    json:"full_name"`
	Role     string     `gorm:"type:varchar(20);not null"     json:"role"`
	HiredAt  *time.Time `gorm:"type:date"                     json:"hired_at,omitempty"`
	IsActive bool       `gorm:"not null"                      json:"is_active"`
	BaseModel
}

func (Employee) TableName() string { return "employees" }
