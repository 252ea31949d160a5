package repository

import (
	"context"

	"gorm.io/gorm"

	"fieldcrew/backend/internal/model"
	pkgerrors "fieldcrew/backend/pkg/errors"
)

// PTORepository 休假申请数据访问接口
type PTORepository interface {
	Create(ctx context.Context, req *model.PTORequest) error
	GetByID(ctx context.Context, id string) (*model.PTORequest, error)
	// List username/status 为空表示不过滤
	List(ctx context.Context, username, status string, offset, limit int) ([]model.PTORequest, int64, error)
	// Update 带乐观锁的状态更新；版本不一致返回 ErrOptimisticLock
	Update(ctx context.Context, req *model.PTORequest) error
}

type ptoRepo struct {
	db *gorm.DB
}

func NewPTORepo(db *gorm.DB) PTORepository {
	return &ptoRepo{db: db}
}

func (r *ptoRepo) Create(ctx context.Context, req *model.PTORequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *ptoRepo) GetByID(ctx context.Context, id string) (*model.PTORequest, error) {
	var req model.PTORequest
	err := r.db.WithContext(ctx).
		Where("pto_request_id = ?", id).
		First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *ptoRepo) List(ctx context.Context, username, status string, offset, limit int) ([]model.PTORequest, int64, error) {
	var reqs []model.PTORequest
	var total int64

	db := r.db.WithContext(ctx).Model(&model.PTORequest{})
	if username != "" {
		db = db.Where("username = ?", username)
	}
	if status != "" {
		db = db.Where("status = ?", status)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := db.Offset(offset).Limit(limit).
		Order("start_date DESC, created_at DESC").
		Find(&reqs).Error
	return reqs, total, err
}

func (r *ptoRepo) Update(ctx context.Context, req *model.PTORequest) error {
	oldVersion := req.Version
	result := r.db.WithContext(ctx).
		Model(req).
		Where("pto_request_id = ? AND version = ?", req.PTORequestID, oldVersion).
		Updates(map[string]interface{}{
			"status":               req.Status,
			"approved_by":          req.ApprovedBy,
			"decided_at":           req.DecidedAt,
			"admin_notes":          req.AdminNotes,
			"remove_from_schedule": req.RemoveFromSchedule,
			"updated_by":           req.UpdatedBy,
			"version":              oldVersion + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	req.Version = oldVersion + 1
	return nil
}
