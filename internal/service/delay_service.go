package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"fieldcrew/backend/internal/dto"
	"fieldcrew/backend/internal/model"
	"fieldcrew/backend/internal/repository"
	"fieldcrew/backend/pkg/clock"
	"fieldcrew/backend/pkg/dateutil"
	pkgerrors "fieldcrew/backend/pkg/errors"
)

// SystemActor 系统任务的操作人
const SystemActor = "system"

// ── 延期模块业务错误 ──

var (
	ErrJobNotFound        = pkgerrors.NotFound("工单不存在")
	ErrDelayAlreadyActive = pkgerrors.Conflict("工单已有生效中的延期窗口")
	ErrNoActiveDelay      = pkgerrors.NotFound("工单没有未解除的延期窗口")
	ErrDelayRangeInvalid  = pkgerrors.Validation("延期结束日期不能早于开始日期")
	ErrDelayReasonEmpty   = pkgerrors.Validation("延期原因不能为空")
	ErrInvalidDate        = pkgerrors.Validation("日期格式无效，应为 YYYY-MM-DD")
)

// DelayService 工单延期窗口管理
type DelayService interface {
	// ApplyDelay 设置延期；end_date 为空表示无限期
	ApplyDelay(ctx context.Context, jobID string, req *dto.ApplyDelayRequest, actor string) (*dto.DelayWindowResponse, error)
	// ClearDelay 解除延期；clearHistory=false 时保留原因到工单上
	ClearDelay(ctx context.Context, jobID string, clearHistory bool, actor string) error
	IsActive(ctx context.Context, jobID string, asOf time.Time) (bool, error)
	GetActive(ctx context.Context, jobID string) (*dto.DelayWindowResponse, error)
	// ExpireDelays 清扫所有已过结束日的窗口；单个工单失败不影响其余工单
	ExpireDelays(ctx context.Context) (*dto.SweepResult, error)
}

type delayService struct {
	repo     *repository.Repository
	clock    clock.Clock
	notifier Notifier
	logger   *zap.Logger
}

// NewDelayService 创建 DelayService 实例
func NewDelayService(repo *repository.Repository, clk clock.Clock, notifier Notifier, logger *zap.Logger) DelayService {
	return &delayService{repo: repo, clock: clk, notifier: notifier, logger: logger}
}

func (s *delayService) ApplyDelay(ctx context.Context, jobID string, req *dto.ApplyDelayRequest, actor string) (*dto.DelayWindowResponse, error) {
	start, err := dateutil.ParseDate(req.StartDate)
	if err != nil {
		return nil, pkgerrors.Wrap(ErrInvalidDate, err)
	}
	var end *time.Time
	if req.EndDate != nil && *req.EndDate != "" {
		e, err := dateutil.ParseDate(*req.EndDate)
		if err != nil {
			return nil, pkgerrors.Wrap(ErrInvalidDate, err)
		}
		if e.Before(start) {
			return nil, ErrDelayRangeInvalid
		}
		end = &e
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, ErrDelayReasonEmpty
	}

	today := clock.Today(s.clock)
	var window *model.DelayWindow

	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if _, err := s.getJob(ctx, tx, jobID); err != nil {
			return err
		}

		open, err := tx.DelayWindow.GetOpenByJob(ctx, jobID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if open != nil {
			if open.ActiveOn(today) {
				return ErrDelayAlreadyActive
			}
			// 已过期但尚未被清扫：按软关闭处理后再建新窗口
			if err := s.softClose(ctx, tx, open, SystemActor); err != nil {
				return err
			}
		}

		window = &model.DelayWindow{
			JobID:     jobID,
			StartDate: start,
			EndDate:   end,
			Reason:    reason,
			CreatedBy: actor,
		}
		return tx.DelayWindow.Create(ctx, window)
	})
	if err != nil {
		if pkgerrors.KindOf(err) == "" {
			s.logger.Error("设置延期失败", zap.String("job_id", jobID), zap.Error(err))
		}
		return nil, err
	}

	s.logger.Info("工单已延期",
		zap.String("job_id", jobID),
		zap.String("start", dateutil.Format(start)),
		zap.Bool("indefinite", end == nil),
		zap.String("actor", actor),
	)
	return toDelayWindowResponse(window, today), nil
}

func (s *delayService) ClearDelay(ctx context.Context, jobID string, clearHistory bool, actor string) error {
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		return s.clearDelay(ctx, tx, jobID, clearHistory, actor)
	})
	if err != nil && pkgerrors.KindOf(err) == "" {
		s.logger.Error("解除延期失败", zap.String("job_id", jobID), zap.Error(err))
	}
	return err
}

func (s *delayService) clearDelay(ctx context.Context, tx *repository.Repository, jobID string, clearHistory bool, actor string) error {
	if _, err := s.getJob(ctx, tx, jobID); err != nil {
		return err
	}
	open, err := tx.DelayWindow.GetOpenByJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNoActiveDelay
		}
		return err
	}

	if clearHistory {
		if err := tx.DelayWindow.DeleteByJob(ctx, jobID); err != nil {
			return err
		}
		return tx.Job.UpdateLastDelayReason(ctx, jobID, "", actor)
	}
	return s.softClose(ctx, tx, open, actor)
}

// softClose 关闭窗口并把原因保留到工单
func (s *delayService) softClose(ctx context.Context, tx *repository.Repository, w *model.DelayWindow, actor string) error {
	if err := tx.DelayWindow.SoftClose(ctx, w.DelayWindowID, s.clock.Now().UTC(), actor); err != nil {
		return err
	}
	return tx.Job.UpdateLastDelayReason(ctx, w.JobID, w.Reason, actor)
}

func (s *delayService) IsActive(ctx context.Context, jobID string, asOf time.Time) (bool, error) {
	if _, err := s.getJob(ctx, s.repo, jobID); err != nil {
		return false, err
	}
	w, err := s.repo.DelayWindow.GetOpenByJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return w.ActiveOn(asOf), nil
}

func (s *delayService) GetActive(ctx context.Context, jobID string) (*dto.DelayWindowResponse, error) {
	if _, err := s.getJob(ctx, s.repo, jobID); err != nil {
		return nil, err
	}
	today := clock.Today(s.clock)
	w, err := s.repo.DelayWindow.GetOpenByJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoActiveDelay
		}
		s.logger.Error("查询延期窗口失败", zap.String("job_id", jobID), zap.Error(err))
		return nil, err
	}
	if !w.ActiveOn(today) {
		return nil, ErrNoActiveDelay
	}
	return toDelayWindowResponse(w, today), nil
}

// ════════════════════════════════════════════════════════════
// ExpireDelays — 延期自动到期
// ════════════════════════════════════════════════════════════

func (s *delayService) ExpireDelays(ctx context.Context) (*dto.SweepResult, error) {
	today := clock.Today(s.clock)
	expired, err := s.repo.DelayWindow.ListExpired(ctx, today)
	if err != nil {
		s.logger.Error("查询过期延期窗口失败", zap.Error(err))
		return nil, err
	}

	result := &dto.SweepResult{Expired: []string{}}
	for i := range expired {
		w := &expired[i]
		if err := ctx.Err(); err != nil {
			return result, err
		}

		err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
			return s.softClose(ctx, tx, w, SystemActor)
		})
		if err != nil {
			// 单个工单失败只记录，继续处理其余工单
			s.logger.Warn("延期自动到期失败，跳过",
				zap.String("job_id", w.JobID),
				zap.String("delay_window_id", w.DelayWindowID),
				zap.Error(err),
			)
			if result.Failed == nil {
				result.Failed = make(map[string]string)
			}
			result.Failed[w.JobID] = err.Error()
			continue
		}

		result.Expired = append(result.Expired, w.JobID)
		s.logger.Info("延期已自动到期",
			zap.String("job_id", w.JobID),
			zap.String("end_date", dateutil.Format(*w.EndDate)),
		)

		notice := Notice{
			Type:        model.NotificationTypeDelay,
			Title:       "工单延期已到期",
			Content:     fmt.Sprintf("工单 %s 的延期（%s）已于 %s 到期，请重新安排派工", w.JobID, w.Reason, dateutil.Format(*w.EndDate)),
			RelatedType: "job",
			RelatedID:   w.JobID,
		}
		if err := s.notifier.Dispatch(ctx, w.CreatedBy, notice); err != nil {
			s.logger.Warn("延期到期通知发送失败", zap.String("job_id", w.JobID), zap.Error(err))
		}
	}

	return result, nil
}

// ── 辅助函数 ──

func (s *delayService) getJob(ctx context.Context, repo *repository.Repository, jobID string) (*model.Job, error) {
	job, err := repo.Job.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}

func toDelayWindowResponse(w *model.DelayWindow, today time.Time) *dto.DelayWindowResponse {
	resp := &dto.DelayWindowResponse{
		ID:         w.DelayWindowID,
		JobID:      w.JobID,
		StartDate:  dateutil.Format(w.StartDate),
		Indefinite: w.Indefinite(),
		Active:     w.ActiveOn(today),
		Reason:     w.Reason,
		CreatedBy:  w.CreatedBy,
		CreatedAt:  w.CreatedAt.Format(time.RFC3339),
	}
	if w.EndDate != nil {
		e := dateutil.Format(*w.EndDate)
		resp.EndDate = &e
	}
	return resp
}
