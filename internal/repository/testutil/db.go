// Package testutil 测试用数据库与数据构造
package testutil

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"fieldcrew/backend/internal/model"
)

// AllModels 需要迁移的全部模型
func AllModels() []any {
	return []any{
		&model.Employee{},
		&model.Job{},
		&model.DelayWindow{},
		&model.ScheduleDate{},
		&model.CrewAssignment{},
		&model.TimeEntry{},
		&model.TimecardSubmission{},
		&model.Contradiction{},
		&model.PTORequest{},
		&model.Notification{},
	}
}

// NewTestDB 创建内存 SQLite 数据库并迁移全部模型。
// 连接数限制为 1，事务内的读写必须走事务句柄。
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}

	if err := db.AutoMigrate(AllModels()...); err != nil {
		t.Fatalf("迁移测试数据库失败: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("获取 sql.DB 失败: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}

// Date 解析 YYYY-MM-DD，失败时终止测试
func Date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatalf("非法日期 %q: %v", s, err)
	}
	return d
}

// SeedEmployee 写入一名在职员工
func SeedEmployee(t *testing.T, db *gorm.DB, username, role string) *model.Employee {
	t.Helper()
	e := &model.Employee{Username: username, FullName: username, Role: role, IsActive: true}
	if err := db.WithContext(context.Background()).Create(e).Error; err != nil {
		t.Fatalf("写入员工失败: %v", err)
	}
	return e
}

// SeedJob 写入一个工单；startDate 为空串表示未定开工日期
func SeedJob(t *testing.T, db *gorm.DB, title, status, startDate string) *model.Job {
	t.Helper()
	job := &model.Job{Title: title, Status: status}
	if startDate != "" {
		d := Date(t, startDate)
		job.StartDate = &d
	}
	if err := db.WithContext(context.Background()).Create(job).Error; err != nil {
		t.Fatalf("写入工单失败: %v", err)
	}
	return job
}
