package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fieldcrew/backend/internal/model"
)

// TimeEntryRepository 工时记录数据访问接口
type TimeEntryRepository interface {
	Create(ctx context.Context, e *model.TimeEntry) error
	BatchCreate(ctx context.Context, entries []model.TimeEntry) error
	GetByID(ctx context.Context, id string) (*model.TimeEntry, error)
	Update(ctx context.Context, e *model.TimeEntry) error
	Delete(ctx context.Context, id string) error
	// ListByUsernameInRange 按日期、工单升序
	ListByUsernameInRange(ctx context.Context, username string, from, to time.Time) ([]model.TimeEntry, error)
	// HasLockedInRange 区间内是否存在已锁定的记录
	HasLockedInRange(ctx context.Context, username string, from, to time.Time) (bool, error)
	SetLockedInRange(ctx context.Context, username string, from, to time.Time, locked bool) (int64, error)
}

// TimecardRepository 周工时提交与核对差异数据访问接口
type TimecardRepository interface {
	// GetByUserWeek 预加载差异列表，不存在时返回 gorm.ErrRecordNotFound
	GetByUserWeek(ctx context.Context, username string, weekEnding time.Time) (*model.TimecardSubmission, error)
	// Upsert 按 (username, week_ending) 插入或覆盖提交结果，并回填 SubmissionID
	Upsert(ctx context.Context, sub *model.TimecardSubmission) error
	// ReplaceContradictions 整体替换某次提交的差异
	ReplaceContradictions(ctx context.Context, submissionID string, items []model.Contradiction) error
	UpdateStatus(ctx context.Context, submissionID, status string, lockedAt *time.Time, lockedBy *string) error
}

// ── TimeEntry Repository 实现 ──

type timeEntryRepo struct {
	db *gorm.DB
}

func NewTimeEntryRepo(db *gorm.DB) TimeEntryRepository {
	return &timeEntryRepo{db: db}
}

func (r *timeEntryRepo) Create(ctx context.Context, e *model.TimeEntry) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *timeEntryRepo) BatchCreate(ctx context.Context, entries []model.TimeEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&entries).Error
}

func (r *timeEntryRepo) GetByID(ctx context.Context, id string) (*model.TimeEntry, error) {
	var e model.TimeEntry
	err := r.db.WithContext(ctx).
		Where("time_entry_id = ?", id).
		First(&e).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *timeEntryRepo) Update(ctx context.Context, e *model.TimeEntry) error {
	return r.db.WithContext(ctx).
		Model(e).
		Where("time_entry_id = ? AND locked = ?", e.TimeEntryID, false).
		Updates(map[string]interface{}{
			"job_id":       e.JobID,
			"work_date":    e.WorkDate,
			"hours_worked": e.HoursWorked,
			"notes":        e.Notes,
			"updated_by":   e.UpdatedBy,
		}).Error
}

func (r *timeEntryRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Where("time_entry_id = ?", id).
		Delete(&model.TimeEntry{}).Error
}

func (r *timeEntryRepo) ListByUsernameInRange(ctx context.Context, username string, from, to time.Time) ([]model.TimeEntry, error) {
	var entries []model.TimeEntry
	err := r.db.WithContext(ctx).
		Where("username = ? AND work_date >= ? AND work_date <= ?", username, from, to).
		Order("work_date ASC, job_id ASC, created_at ASC").
		Find(&entries).Error
	return entries, err
}

func (r *timeEntryRepo) HasLockedInRange(ctx context.Context, username string, from, to time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.TimeEntry{}).
		Where("username = ? AND work_date >= ? AND work_date <= ? AND locked = ?", username, from, to, true).
		Count(&count).Error
	return count > 0, err
}

func (r *timeEntryRepo) SetLockedInRange(ctx context.Context, username string, from, to time.Time, locked bool) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.TimeEntry{}).
		Where("username = ? AND work_date >= ? AND work_date <= ?", username, from, to).
		Update("locked", locked)
	return result.RowsAffected, result.Error
}

// ── Timecard Repository 实现 ──

type timecardRepo struct {
	db *gorm.DB
}

func NewTimecardRepo(db *gorm.DB) TimecardRepository {
	return &timecardRepo{db: db}
}

func (r *timecardRepo) GetByUserWeek(ctx context.Context, username string, weekEnding time.Time) (*model.TimecardSubmission, error) {
	var sub model.TimecardSubmission
	err := r.db.WithContext(ctx).
		Preload("Contradictions", func(db *gorm.DB) *gorm.DB {
			return db.Order("work_date ASC, job_id ASC, type ASC")
		}).
		Where("username = ? AND week_ending = ?", username, weekEnding).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *timecardRepo) Upsert(ctx context.Context, sub *model.TimecardSubmission) error {
	err := r.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "username"}, {Name: "week_ending"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"status", "submitted_at", "contradictions_found", "schedules_created",
				"updated_at", "updated_by",
			}),
		}).
		Create(sub).Error
	if err != nil {
		return err
	}

	// 更新分支不会回填主键，回查一次
	var ids []string
	err = r.db.WithContext(ctx).
		Model(&model.TimecardSubmission{}).
		Where("username = ? AND week_ending = ?", sub.Username, sub.WeekEnding).
		Pluck("submission_id", &ids).Error
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return gorm.ErrRecordNotFound
	}
	sub.SubmissionID = ids[0]
	return nil
}

func (r *timecardRepo) ReplaceContradictions(ctx context.Context, submissionID string, items []model.Contradiction) error {
	if err := r.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Delete(&model.Contradiction{}).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		items[i].SubmissionID = submissionID
		items[i].ContradictionID = ""
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *timecardRepo) UpdateStatus(ctx context.Context, submissionID, status string, lockedAt *time.Time, lockedBy *string) error {
	return r.db.WithContext(ctx).
		Model(&model.TimecardSubmission{}).
		Where("submission_id = ?", submissionID).
		Updates(map[string]interface{}{
			"status":     status,
			"locked_at":  lockedAt,
			"locked_by":  lockedBy,
			"updated_at": time.Now().UTC(),
		}).Error
}
