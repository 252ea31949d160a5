package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repository 所有 Repository 的聚合入口
type Repository struct {
	db *gorm.DB

	Job          JobRepository
	DelayWindow  DelayWindowRepository
	ScheduleDate ScheduleDateRepository
	Crew         CrewAssignmentRepository
	TimeEntry    TimeEntryRepository
	Timecard     TimecardRepository
	PTO          PTORepository
	Employee     EmployeeRepository
	Notification NotificationRepository
}

// NewRepository 创建 Repository 聚合
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db:           db,
		Job:          NewJobRepo(db),
		DelayWindow:  NewDelayWindowRepo(db),
		ScheduleDate: NewScheduleDateRepo(db),
		Crew:         NewCrewAssignmentRepo(db),
		TimeEntry:    NewTimeEntryRepo(db),
		Timecard:     NewTimecardRepo(db),
		PTO:          NewPTORepo(db),
		Employee:     NewEmployeeRepo(db),
		Notification: NewNotificationRepo(db),
	}
}

// BeginTx 开启事务；调用方负责 Commit / Rollback
func (r *Repository) BeginTx(ctx context.Context) (*gorm.DB, error) {
	tx := r.db.WithContext(ctx).Begin()
	return tx, tx.Error
}

// WithTx 返回绑定到事务连接的 Repository 聚合
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return NewRepository(tx)
}

// Transaction 在单个事务内执行 fn，fn 返回错误时回滚。
// fn 内的所有读写必须经由入参 tx，不能再使用外层 Repository。
func (r *Repository) Transaction(ctx context.Context, fn func(tx *Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepository(tx))
	})
}
