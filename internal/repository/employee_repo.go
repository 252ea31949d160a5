package repository

import (
	"context"

	"gorm.io/gorm"

	"fieldcrew/backend/internal/model"
)

// EmployeeRepository 员工花名册数据访问接口
type EmployeeRepository interface {
	Create(ctx context.Context, e *model.Employee) error
	GetByUsername(ctx context.Context, username string) (*model.Employee, error)
	ListByUsernames(ctx context.Context, usernames []string) ([]model.Employee, error)
	// ListByRoles 在职且角色属于 roles 的员工
	ListByRoles(ctx context.Context, roles []string) ([]model.Employee, error)
}

// employeeRepo EmployeeRepository 的 GORM 实现
type employeeRepo struct {
	db *gorm.DB
}

// NewEmployeeRepo 创建 EmployeeRepository 实例
func NewEmployeeRepo(db *gorm.DB) EmployeeRepository {
	return &employeeRepo{db: db}
}

func (r *employeeRepo) Create(ctx context.Context, e *model.Employee) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *employeeRepo) GetByUsername(ctx context.Context, username string) (*model.Employee, error) {
	var e model.Employee
	err := r.db.WithContext(ctx).
		Where("username = ?", username).
		First(&e).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *employeeRepo) ListByUsernames(ctx context.Context, usernames []string) ([]model.Employee, error) {
	var employees []model.Employee
	if len(usernames) == 0 {
		return employees, nil
	}
	err := r.db.WithContext(ctx).
		Where("username IN ?", usernames).
		Find(&employees).Error
	return employees, err
}

func (r *employeeRepo) ListByRoles(ctx context.Context, roles []string) ([]model.Employee, error) {
	var employees []model.Employee
	err := r.db.WithContext(ctx).
		Where("role IN ? AND is_active = ?", roles, true).
		Order("username ASC").
		Find(&employees).Error
	return employees, err
}
