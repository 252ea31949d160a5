package service

import (
	"context"

	"go.uber.org/zap"

	"fieldcrew/backend/internal/model"
	"fieldcrew/backend/internal/repository"
)

// Notice 一条待投递的通知
type Notice struct {
	Type        string
	Title       string
	Content     string
	RelatedType string
	RelatedID   string
}

// Notifier 通知投递出口。
// 默认实现写入 notifications 表，由外部通知子系统读取后推送。
type Notifier interface {
	Dispatch(ctx context.Context, recipient string, n Notice) error
}

type dbNotifier struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewNotifier 创建基于数据库的 Notifier
func NewNotifier(repo *repository.Repository, logger *zap.Logger) Notifier {
	return &dbNotifier{repo: repo, logger: logger}
}

func (n *dbNotifier) Dispatch(ctx context.Context, recipient string, notice Notice) error {
	row := &model.Notification{
		Recipient: recipient,
		Type:      notice.Type,
		Title:     notice.Title,
		Content:   notice.Content,
	}
	if notice.RelatedType != "" {
		row.RelatedType = &notice.RelatedType
	}
	if notice.RelatedID != "" {
		row.RelatedID = &notice.RelatedID
	}
	if err := n.repo.Notification.Create(ctx, row); err != nil {
		n.logger.Warn("写入通知失败", zap.String("recipient", recipient), zap.String("type", notice.Type), zap.Error(err))
		return err
	}
	return nil
}
