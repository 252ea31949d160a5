package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"fieldcrew/backend/internal/dto"
	"fieldcrew/backend/internal/model"
	"fieldcrew/backend/internal/repository"
	"fieldcrew/backend/internal/schedule"
	"fieldcrew/backend/pkg/clock"
	"fieldcrew/backend/pkg/dateutil"
	pkgerrors "fieldcrew/backend/pkg/errors"
)

var ErrUnknownCategory = pkgerrors.Validation("未知的排班分类")

// ClassifierService 工单排班分类查询。
// 分类每次请求实时计算，不做缓存。
type ClassifierService interface {
	Classify(ctx context.Context, jobID string) (*dto.JobCategoryResponse, error)
	// ListByCategory 列出当前属于某分类的全部工单
	ListByCategory(ctx context.Context, category string) ([]dto.JobCategoryResponse, error)
}

type classifierService struct {
	repo          *repository.Repository
	clock         clock.Clock
	lookaheadDays int
	logger        *zap.Logger
}

// NewClassifierService 创建 ClassifierService 实例
func NewClassifierService(repo *repository.Repository, clk clock.Clock, lookaheadDays int, logger *zap.Logger) ClassifierService {
	if lookaheadDays <= 0 {
		lookaheadDays = schedule.DefaultLookaheadDays
	}
	return &classifierService{repo: repo, clock: clk, lookaheadDays: lookaheadDays, logger: logger}
}

func (s *classifierService) Classify(ctx context.Context, jobID string) (*dto.JobCategoryResponse, error) {
	job, err := s.repo.Job.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		s.logger.Error("查询工单失败", zap.String("job_id", jobID), zap.Error(err))
		return nil, err
	}

	window, err := s.repo.DelayWindow.GetOpenByJob(ctx, jobID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Error("查询延期窗口失败", zap.String("job_id", jobID), zap.Error(err))
			return nil, err
		}
		window = nil
	}

	today := clock.Today(s.clock)
	crewDates, err := s.repo.ScheduleDate.CrewDatesByJob(ctx, []string{jobID}, today, s.horizon(today))
	if err != nil {
		s.logger.Error("查询派工日期失败", zap.String("job_id", jobID), zap.Error(err))
		return nil, err
	}

	return s.classify(job, window, crewDates[jobID], today), nil
}

func (s *classifierService) ListByCategory(ctx context.Context, category string) ([]dto.JobCategoryResponse, error) {
	want, ok := schedule.ParseCategory(category)
	if !ok {
		return nil, ErrUnknownCategory
	}

	jobs, err := s.repo.Job.List(ctx, want == schedule.CategoryCompleted)
	if err != nil {
		s.logger.Error("查询工单列表失败", zap.Error(err))
		return nil, err
	}
	windows, err := s.repo.DelayWindow.ListOpen(ctx)
	if err != nil {
		s.logger.Error("查询延期窗口失败", zap.Error(err))
		return nil, err
	}
	windowByJob := make(map[string]*model.DelayWindow, len(windows))
	for i := range windows {
		windowByJob[windows[i].JobID] = &windows[i]
	}

	today := clock.Today(s.clock)
	crewDates, err := s.repo.ScheduleDate.CrewDatesByJob(ctx, nil, today, s.horizon(today))
	if err != nil {
		s.logger.Error("查询派工日期失败", zap.Error(err))
		return nil, err
	}

	out := make([]dto.JobCategoryResponse, 0)
	for i := range jobs {
		resp := s.classify(&jobs[i], windowByJob[jobs[i].JobID], crewDates[jobs[i].JobID], today)
		if resp.Category == string(want) {
			out = append(out, *resp)
		}
	}
	return out, nil
}

func (s *classifierService) horizon(today time.Time) time.Time {
	return dateutil.AddDays(today, s.lookaheadDays)
}

func (s *classifierService) classify(job *model.Job, window *model.DelayWindow, crewDates []time.Time, today time.Time) *dto.JobCategoryResponse {
	category := schedule.Classify(schedule.ClassifyInput{
		Job:           job,
		Window:        window,
		CrewDates:     crewDates,
		Today:         today,
		LookaheadDays: s.lookaheadDays,
	})

	resp := &dto.JobCategoryResponse{
		JobID:           job.JobID,
		Title:           job.Title,
		Status:          job.Status,
		Category:        string(category),
		LastDelayReason: job.LastDelayReason,
	}
	if job.StartDate != nil {
		d := dateutil.Format(*job.StartDate)
		resp.StartDate = &d
	}
	if window != nil && window.ActiveOn(today) {
		resp.DelayWindow = toDelayWindowResponse(window, today)
	}
	return resp
}
