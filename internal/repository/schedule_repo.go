package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fieldcrew/backend/internal/model"
)

// ScheduleDateRepository 排班日数据访问接口
type ScheduleDateRepository interface {
	// GetOrCreate 按 (job_id, work_date) 获取排班日，不存在则创建。
	// 并发创建由唯一索引 + ON CONFLICT DO NOTHING 去重，created 表示本次是否新建。
	GetOrCreate(ctx context.Context, jobID string, workDate time.Time) (sd *model.ScheduleDate, created bool, err error)
	GetByID(ctx context.Context, id string) (*model.ScheduleDate, error)
	GetByJobDate(ctx context.Context, jobID string, workDate time.Time) (*model.ScheduleDate, error)
	// LockByID 在当前事务内对排班日行加 FOR UPDATE 锁
	LockByID(ctx context.Context, id string) (*model.ScheduleDate, error)
	// ListByJob 工单的排班日及派工；from/to 为 nil 表示不限
	ListByJob(ctx context.Context, jobID string, from, to *time.Time) ([]model.ScheduleDate, error)
	// ListInRange 区间内所有排班日（含工单与派工），用于导出
	ListInRange(ctx context.Context, from, to time.Time) ([]model.ScheduleDate, error)
	// CrewDatesByJob 区间内至少有一名派工人员的日期，按工单分组
	CrewDatesByJob(ctx context.Context, jobIDs []string, from, to time.Time) (map[string][]time.Time, error)
}

// CrewAssignmentRepository 派工数据访问接口
type CrewAssignmentRepository interface {
	Create(ctx context.Context, a *model.CrewAssignment) error
	Get(ctx context.Context, scheduleDateID, username string) (*model.CrewAssignment, error)
	// ListByScheduleDate 按 assigned_at、username 升序
	ListByScheduleDate(ctx context.Context, scheduleDateID string) ([]model.CrewAssignment, error)
	// ListByUsernameInRange 员工在区间内的派工（预加载排班日），按日期、工单排序
	ListByUsernameInRange(ctx context.Context, username string, from, to time.Time) ([]model.CrewAssignment, error)
	Delete(ctx context.Context, crewAssignmentID string) error
	DeleteByScheduleDate(ctx context.Context, scheduleDateID string) error
	SetLead(ctx context.Context, crewAssignmentID string, isLead bool) error
	ClearLead(ctx context.Context, scheduleDateID string) error
}

// ── ScheduleDate Repository 实现 ──

type scheduleDateRepo struct {
	db *gorm.DB
}

func NewScheduleDateRepo(db *gorm.DB) ScheduleDateRepository {
	return &scheduleDateRepo{db: db}
}

func (r *scheduleDateRepo) GetOrCreate(ctx context.Context, jobID string, workDate time.Time) (*model.ScheduleDate, bool, error) {
	candidate := &model.ScheduleDate{JobID: jobID, WorkDate: workDate}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "job_id"}, {Name: "work_date"}},
			DoNothing: true,
		}).
		Create(candidate)
	if result.Error != nil {
		return nil, false, result.Error
	}

	// 冲突时 candidate 上的 ID 并未落库，统一回查
	sd, err := r.GetByJobDate(ctx, jobID, workDate)
	if err != nil {
		return nil, false, err
	}
	return sd, result.RowsAffected == 1, nil
}

func (r *scheduleDateRepo) GetByID(ctx context.Context, id string) (*model.ScheduleDate, error) {
	var sd model.ScheduleDate
	err := r.db.WithContext(ctx).
		Where("schedule_date_id = ?", id).
		First(&sd).Error
	if err != nil {
		return nil, err
	}
	return &sd, nil
}

func (r *scheduleDateRepo) GetByJobDate(ctx context.Context, jobID string, workDate time.Time) (*model.ScheduleDate, error) {
	var sd model.ScheduleDate
	err := r.db.WithContext(ctx).
		Where("job_id = ? AND work_date = ?", jobID, workDate).
		First(&sd).Error
	if err != nil {
		return nil, err
	}
	return &sd, nil
}

func (r *scheduleDateRepo) LockByID(ctx context.Context, id string) (*model.ScheduleDate, error) {
	var sd model.ScheduleDate
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("schedule_date_id = ?", id).
		First(&sd).Error
	if err != nil {
		return nil, err
	}
	return &sd, nil
}

func (r *scheduleDateRepo) ListByJob(ctx context.Context, jobID string, from, to *time.Time) ([]model.ScheduleDate, error) {
	var dates []model.ScheduleDate
	db := r.db.WithContext(ctx).
		Preload("Crew", func(db *gorm.DB) *gorm.DB {
			return db.Order("assigned_at ASC, username ASC")
		}).
		Where("job_id = ?", jobID)
	if from != nil {
		db = db.Where("work_date >= ?", *from)
	}
	if to != nil {
		db = db.Where("work_date <= ?", *to)
	}
	err := db.Order("work_date ASC").Find(&dates).Error
	return dates, err
}

func (r *scheduleDateRepo) ListInRange(ctx context.Context, from, to time.Time) ([]model.ScheduleDate, error) {
	var dates []model.ScheduleDate
	err := r.db.WithContext(ctx).
		Preload("Job").
		Preload("Crew", func(db *gorm.DB) *gorm.DB {
			return db.Order("is_lead DESC, assigned_at ASC, username ASC")
		}).
		Where("work_date >= ? AND work_date <= ?", from, to).
		Order("work_date ASC, job_id ASC").
		Find(&dates).Error
	return dates, err
}

func (r *scheduleDateRepo) CrewDatesByJob(ctx context.Context, jobIDs []string, from, to time.Time) (map[string][]time.Time, error) {
	type row struct {
		JobID    string
		WorkDate time.Time
	}
	var rows []row

	db := r.db.WithContext(ctx).
		Model(&model.ScheduleDate{}).
		Select("schedule_dates.job_id, schedule_dates.work_date").
		Where("schedule_dates.work_date >= ? AND schedule_dates.work_date <= ?", from, to).
		Where("EXISTS (SELECT 1 FROM crew_assignments ca WHERE ca.schedule_date_id = schedule_dates.schedule_date_id)")
	if jobIDs != nil {
		if len(jobIDs) == 0 {
			return map[string][]time.Time{}, nil
		}
		db = db.Where("schedule_dates.job_id IN ?", jobIDs)
	}
	if err := db.Order("schedule_dates.work_date ASC").Scan(&rows).Error; err != nil {
		return nil, err
	}

	out := make(map[string][]time.Time)
	for _, rw := range rows {
		out[rw.JobID] = append(out[rw.JobID], rw.WorkDate)
	}
	return out, nil
}

// ── CrewAssignment Repository 实现 ──

type crewAssignmentRepo struct {
	db *gorm.DB
}

func NewCrewAssignmentRepo(db *gorm.DB) CrewAssignmentRepository {
	return &crewAssignmentRepo{db: db}
}

func (r *crewAssignmentRepo) Create(ctx context.Context, a *model.CrewAssignment) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *crewAssignmentRepo) Get(ctx context.Context, scheduleDateID, username string) (*model.CrewAssignment, error) {
	var a model.CrewAssignment
	err := r.db.WithContext(ctx).
		Where("schedule_date_id = ? AND username = ?", scheduleDateID, username).
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *crewAssignmentRepo) ListByScheduleDate(ctx context.Context, scheduleDateID string) ([]model.CrewAssignment, error) {
	var crew []model.CrewAssignment
	err := r.db.WithContext(ctx).
		Where("schedule_date_id = ?", scheduleDateID).
		Order("assigned_at ASC, username ASC").
		Find(&crew).Error
	return crew, err
}

func (r *crewAssignmentRepo) ListByUsernameInRange(ctx context.Context, username string, from, to time.Time) ([]model.CrewAssignment, error) {
	var crew []model.CrewAssignment
	err := r.db.WithContext(ctx).
		Preload("ScheduleDate").
		Joins("JOIN schedule_dates ON schedule_dates.schedule_date_id = crew_assignments.schedule_date_id").
		Where("crew_assignments.username = ?", username).
		Where("schedule_dates.work_date >= ? AND schedule_dates.work_date <= ?", from, to).
		Order("schedule_dates.work_date ASC, schedule_dates.job_id ASC").
		Find(&crew).Error
	return crew, err
}

func (r *crewAssignmentRepo) Delete(ctx context.Context, crewAssignmentID string) error {
	result := r.db.WithContext(ctx).
		Where("crew_assignment_id = ?", crewAssignmentID).
		Delete(&model.CrewAssignment{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *crewAssignmentRepo) DeleteByScheduleDate(ctx context.Context, scheduleDateID string) error {
	return r.db.WithContext(ctx).
		Where("schedule_date_id = ?", scheduleDateID).
		Delete(&model.CrewAssignment{}).Error
}

func (r *crewAssignmentRepo) SetLead(ctx context.Context, crewAssignmentID string, isLead bool) error {
	return r.db.WithContext(ctx).
		Model(&model.CrewAssignment{}).
		Where("crew_assignment_id = ?", crewAssignmentID).
		Update("is_lead", isLead).Error
}

func (r *crewAssignmentRepo) ClearLead(ctx context.Context, scheduleDateID string) error {
	return r.db.WithContext(ctx).
		Model(&model.CrewAssignment{}).
		Where("schedule_date_id = ? AND is_lead = ?", scheduleDateID, true).
		Update("is_lead", false).Error
}
