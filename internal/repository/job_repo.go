package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"fieldcrew/backend/internal/model"
)

// JobRepository 工单数据访问接口（工单本身由工单子系统维护，此处只读 + 延期原因）
type JobRepository interface {
	Create(ctx context.Context, job *model.Job) error
	GetByID(ctx context.Context, id string) (*model.Job, error)
	ListByIDs(ctx context.Context, ids []string) ([]model.Job, error)
	// List 列出工单；includeTerminal=false 时排除终态
	List(ctx context.Context, includeTerminal bool) ([]model.Job, error)
	UpdateLastDelayReason(ctx context.Context, jobID, reason string, updatedBy string) error
}

// DelayWindowRepository 延期窗口数据访问接口
type DelayWindowRepository interface {
	Create(ctx context.Context, w *model.DelayWindow) error
	// GetOpenByJob 查询工单未关闭的窗口，不存在时返回 gorm.ErrRecordNotFound
	GetOpenByJob(ctx context.Context, jobID string) (*model.DelayWindow, error)
	ListOpen(ctx context.Context) ([]model.DelayWindow, error)
	// ListExpired 未关闭且 end_date < today 的窗口
	ListExpired(ctx context.Context, today time.Time) ([]model.DelayWindow, error)
	SoftClose(ctx context.Context, windowID string, clearedAt time.Time, clearedBy string) error
	DeleteByJob(ctx context.Context, jobID string) error
}

// ── Job Repository 实现 ──

type jobRepo struct {
	db *gorm.DB
}

func NewJobRepo(db *gorm.DB) JobRepository {
	return &jobRepo{db: db}
}

func (r *jobRepo) Create(ctx context.Context, job *model.Job) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *jobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	var job model.Job
	err := r.db.WithContext(ctx).
		Where("job_id = ?", id).
		First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *jobRepo) ListByIDs(ctx context.Context, ids []string) ([]model.Job, error) {
	var jobs []model.Job
	if len(ids) == 0 {
		return jobs, nil
	}
	err := r.db.WithContext(ctx).
		Where("job_id IN ?", ids).
		Order("title ASC, job_id ASC").
		Find(&jobs).Error
	return jobs, err
}

func (r *jobRepo) List(ctx context.Context, includeTerminal bool) ([]model.Job, error) {
	var jobs []model.Job
	db := r.db.WithContext(ctx)
	if !includeTerminal {
		db = db.Where("status NOT IN ?", []string{
			model.JobStatusCompleted, model.JobStatusCancelled,
			model.JobStatusInvoiced, model.JobStatusPaid,
		})
	}
	err := db.Order("start_date ASC, job_id ASC").Find(&jobs).Error
	return jobs, err
}

func (r *jobRepo) UpdateLastDelayReason(ctx context.Context, jobID, reason, updatedBy string) error {
	result := r.db.WithContext(ctx).
		Model(&model.Job{}).
		Where("job_id = ?", jobID).
		Updates(map[string]interface{}{
			"last_delay_reason": reason,
			"updated_by":        updatedBy,
			"updated_at":        time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ── DelayWindow Repository 实现 ──

type delayWindowRepo struct {
	db *gorm.DB
}

func NewDelayWindowRepo(db *gorm.DB) DelayWindowRepository {
	return &delayWindowRepo{db: db}
}

func (r *delayWindowRepo) Create(ctx context.Context, w *model.DelayWindow) error {
	return r.db.WithContext(ctx).Create(w).Error
}

func (r *delayWindowRepo) GetOpenByJob(ctx context.Context, jobID string) (*model.DelayWindow, error) {
	var w model.DelayWindow
	err := r.db.WithContext(ctx).
		Where("job_id = ? AND cleared_at IS NULL", jobID).
		Order("created_at DESC").
		First(&w).Error
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *delayWindowRepo) ListOpen(ctx context.Context) ([]model.DelayWindow, error) {
	var windows []model.DelayWindow
	err := r.db.WithContext(ctx).
		Where("cleared_at IS NULL").
		Order("job_id ASC").
		Find(&windows).Error
	return windows, err
}

func (r *delayWindowRepo) ListExpired(ctx context.Context, today time.Time) ([]model.DelayWindow, error) {
	var windows []model.DelayWindow
	err := r.db.WithContext(ctx).
		Where("cleared_at IS NULL AND end_date IS NOT NULL AND end_date < ?", today).
		Order("end_date ASC, job_id ASC").
		Find(&windows).Error
	return windows, err
}

func (r *delayWindowRepo) SoftClose(ctx context.Context, windowID string, clearedAt time.Time, clearedBy string) error {
	result := r.db.WithContext(ctx).
		Model(&model.DelayWindow{}).
		Where("delay_window_id = ? AND cleared_at IS NULL", windowID).
		Updates(map[string]interface{}{
			"cleared_at": clearedAt,
			"cleared_by": clearedBy,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *delayWindowRepo) DeleteByJob(ctx context.Context, jobID string) error {
	return r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Delete(&model.DelayWindow{}).Error
}
