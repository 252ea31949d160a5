package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"fieldcrew/backend/config"
	"fieldcrew/backend/internal/dto"
	"fieldcrew/backend/internal/model"
	"fieldcrew/backend/internal/repository"
	"fieldcrew/backend/internal/schedule"
	"fieldcrew/backend/pkg/clock"
	"fieldcrew/backend/pkg/dateutil"
	pkgerrors "fieldcrew/backend/pkg/errors"
)

// ── 工时核对业务错误 ──

var (
	ErrWeekEndingNotSunday = pkgerrors.Validation("周结束日必须是星期日")
	ErrUsernameRequired    = pkgerrors.Validation("员工用户名不能为空")
	ErrWeekLocked          = pkgerrors.InvalidState("该周工时已锁定")
	ErrWeekNotSubmitted    = pkgerrors.InvalidState("该周工时尚未提交，不能锁定")
	ErrWeekNotLocked       = pkgerrors.InvalidState("该周工时未锁定")
	ErrSubmissionNotFound  = pkgerrors.NotFound("该周尚无工时提交记录")
)

// TimecardService 周工时提交与排班核对
type TimecardService interface {
	// SubmitWeek 核对一周工时与排班并记为已提交；重复提交重新计算差异，不会重复补录排班
	SubmitWeek(ctx context.Context, username, weekEnding string) (*dto.ReconciliationResult, error)
	GetSubmission(ctx context.Context, username, weekEnding string) (*dto.ReconciliationResult, error)
	// LockWeek 工资锁定：该周工时不可再修改
	LockWeek(ctx context.Context, username, weekEnding, actor string) (*dto.WeekLockResult, error)
	UnlockWeek(ctx context.Context, username, weekEnding, actor string) (*dto.WeekLockResult, error)
}

type timecardService struct {
	repo   *repository.Repository
	crew   CrewService
	cfg    config.SchedulerConfig
	clock  clock.Clock
	logger *zap.Logger
}

// NewTimecardService 创建 TimecardService 实例
func NewTimecardService(repo *repository.Repository, crew CrewService, cfg config.SchedulerConfig, clk clock.Clock, logger *zap.Logger) TimecardService {
	if cfg.DefaultShiftHours <= 0 {
		cfg.DefaultShiftHours = 8
	}
	if cfg.DefaultShiftStart == "" {
		cfg.DefaultShiftStart = "07:00"
	}
	return &timecardService{repo: repo, crew: crew, cfg: cfg, clock: clk, logger: logger}
}

// workKey 核对维度：(工单, 日期)
type workKey struct {
	JobID string
	Date  time.Time
}

// ════════════════════════════════════════════════════════════
// SubmitWeek
// ════════════════════════════════════════════════════════════

func (s *timecardService) SubmitWeek(ctx context.Context, username, weekEndingStr string) (*dto.ReconciliationResult, error) {
	username = strings.TrimSpace(username)
	weekEnding, err := s.parseWeek(username, weekEndingStr)
	if err != nil {
		return nil, err
	}
	if err := s.ensureEmployee(ctx, username); err != nil {
		return nil, err
	}

	existing, err := s.repo.Timecard.GetByUserWeek(ctx, username, weekEnding)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Error("查询工时提交失败", zap.String("username", username), zap.Error(err))
		return nil, err
	}
	if existing != nil && existing.Status == model.SubmissionStatusLocked {
		return nil, ErrWeekLocked
	}

	from := dateutil.WeekStart(weekEnding)

	// 1-2. 并发加载工时与派工
	var (
		entries     []model.TimeEntry
		assignments []model.CrewAssignment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		entries, err = s.repo.TimeEntry.ListByUsernameInRange(gctx, username, from, weekEnding)
		return err
	})
	g.Go(func() error {
		var err error
		assignments, err = s.repo.Crew.ListByUsernameInRange(gctx, username, from, weekEnding)
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger.Error("加载周工时数据失败", zap.String("username", username), zap.Error(err))
		return nil, err
	}

	// 3. 按 (工单, 日期) 汇总
	logged := make(map[workKey]float64)
	for _, e := range entries {
		k := workKey{JobID: e.JobID, Date: dateutil.Normalize(e.WorkDate)}
		logged[k] += e.HoursWorked
	}
	scheduled := make(map[workKey]float64)
	for i := range assignments {
		a := &assignments[i]
		if a.ScheduleDate == nil {
			continue
		}
		k := workKey{JobID: a.ScheduleDate.JobID, Date: dateutil.Normalize(a.ScheduleDate.WorkDate)}
		scheduled[k] += schedule.ScheduledHours(a, s.cfg.DefaultShiftHours)
	}

	var contradictions []model.Contradiction
	created := 0

	// 4. 有工时无排班：记录差异并补录排班
	for _, k := range sortedKeys(logged) {
		if _, ok := scheduled[k]; ok {
			continue
		}
		actual := schedule.RoundHours(logged[k])
		contradictions = append(contradictions, model.Contradiction{
			Type:        model.ContradictionMissingSchedule,
			JobID:       k.JobID,
			WorkDate:    k.Date,
			ActualHours: actual,
			Difference:  actual,
		})

		start, end := schedule.BackfillShift(s.cfg.DefaultShiftStart, actual)
		ok, err := s.crew.EnsureAssignment(ctx, k.JobID, k.Date, username, start, end, SystemActor)
		if err != nil {
			// 补录失败不影响核对结果，下次提交会再次尝试
			s.logger.Warn("补录排班失败",
				zap.String("username", username),
				zap.String("job_id", k.JobID),
				zap.String("date", dateutil.Format(k.Date)),
				zap.Error(err),
			)
			continue
		}
		if ok {
			created++
		}
	}

	for _, k := range sortedKeys(scheduled) {
		plan := schedule.RoundHours(scheduled[k])
		actual, ok := logged[k]
		if !ok {
			// 5. 有排班无工时
			contradictions = append(contradictions, model.Contradiction{
				Type:           model.ContradictionMissingTimeEntry,
				JobID:          k.JobID,
				WorkDate:       k.Date,
				ScheduledHours: plan,
				Difference:     -plan,
			})
			continue
		}
		// 6. 工时不一致，difference = 实际 - 计划
		actual = schedule.RoundHours(actual)
		if schedule.HoursDiffer(actual, plan, s.cfg.HoursTolerance) {
			contradictions = append(contradictions, model.Contradiction{
				Type:           model.ContradictionHoursMismatch,
				JobID:          k.JobID,
				WorkDate:       k.Date,
				ScheduledHours: plan,
				ActualHours:    actual,
				Difference:     schedule.RoundHours(actual - plan),
			})
		}
	}

	sort.SliceStable(contradictions, func(i, j int) bool {
		a, b := contradictions[i], contradictions[j]
		if !a.WorkDate.Equal(b.WorkDate) {
			return a.WorkDate.Before(b.WorkDate)
		}
		if a.JobID != b.JobID {
			return a.JobID < b.JobID
		}
		return a.Type < b.Type
	})

	// 7. 记为已提交，差异整体替换
	now := s.clock.Now().UTC()
	sub := &model.TimecardSubmission{
		Username:            username,
		WeekEnding:          weekEnding,
		Status:              model.SubmissionStatusSubmitted,
		SubmittedAt:         now,
		ContradictionsFound: len(contradictions),
		SchedulesCreated:    created,
		BaseModel:           model.BaseModel{CreatedBy: &username, UpdatedBy: &username, UpdatedAt: now},
	}
	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := tx.Timecard.Upsert(ctx, sub); err != nil {
			return err
		}
		return tx.Timecard.ReplaceContradictions(ctx, sub.SubmissionID, contradictions)
	})
	if err != nil {
		s.logger.Error("保存工时提交失败", zap.String("username", username), zap.Error(err))
		return nil, err
	}

	s.logger.Info("周工时已提交",
		zap.String("username", username),
		zap.String("week_ending", weekEndingStr),
		zap.Int("entries", len(entries)),
		zap.Int("assignments", len(assignments)),
		zap.Int("contradictions", len(contradictions)),
		zap.Int("schedules_created", created),
	)
	return toReconciliationResult(sub, contradictions), nil
}

func (s *timecardService) GetSubmission(ctx context.Context, username, weekEndingStr string) (*dto.ReconciliationResult, error) {
	weekEnding, err := s.parseWeek(username, weekEndingStr)
	if err != nil {
		return nil, err
	}
	sub, err := s.getSubmission(ctx, username, weekEnding)
	if err != nil {
		return nil, err
	}
	return toReconciliationResult(sub, sub.Contradictions), nil
}

// ════════════════════════════════════════════════════════════
// 工资锁定
// ════════════════════════════════════════════════════════════

func (s *timecardService) LockWeek(ctx context.Context, username, weekEndingStr, actor string) (*dto.WeekLockResult, error) {
	weekEnding, err := s.parseWeek(username, weekEndingStr)
	if err != nil {
		return nil, err
	}
	sub, err := s.getSubmission(ctx, username, weekEnding)
	if err != nil {
		if errors.Is(err, ErrSubmissionNotFound) {
			return nil, ErrWeekNotSubmitted
		}
		return nil, err
	}
	if sub.Status == model.SubmissionStatusLocked {
		return nil, ErrWeekLocked
	}

	now := s.clock.Now().UTC()
	var touched int64
	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		n, err := tx.TimeEntry.SetLockedInRange(ctx, username, dateutil.WeekStart(weekEnding), weekEnding, true)
		if err != nil {
			return err
		}
		touched = n
		return tx.Timecard.UpdateStatus(ctx, sub.SubmissionID, model.SubmissionStatusLocked, &now, &actor)
	})
	if err != nil {
		s.logger.Error("锁定周工时失败", zap.String("username", username), zap.Error(err))
		return nil, err
	}

	s.logger.Info("周工时已锁定",
		zap.String("username", username),
		zap.String("week_ending", weekEndingStr),
		zap.Int64("entries", touched),
		zap.String("actor", actor),
	)
	return &dto.WeekLockResult{
		Username:       username,
		WeekEnding:     weekEndingStr,
		Status:         model.SubmissionStatusLocked,
		EntriesTouched: touched,
	}, nil
}

func (s *timecardService) UnlockWeek(ctx context.Context, username, weekEndingStr, actor string) (*dto.WeekLockResult, error) {
	weekEnding, err := s.parseWeek(username, weekEndingStr)
	if err != nil {
		return nil, err
	}
	sub, err := s.getSubmission(ctx, username, weekEnding)
	if err != nil {
		return nil, err
	}
	if sub.Status != model.SubmissionStatusLocked {
		return nil, ErrWeekNotLocked
	}

	var touched int64
	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		n, err := tx.TimeEntry.SetLockedInRange(ctx, username, dateutil.WeekStart(weekEnding), weekEnding, false)
		if err != nil {
			return err
		}
		touched = n
		return tx.Timecard.UpdateStatus(ctx, sub.SubmissionID, model.SubmissionStatusSubmitted, nil, nil)
	})
	if err != nil {
		s.logger.Error("解锁周工时失败", zap.String("username", username), zap.Error(err))
		return nil, err
	}

	s.logger.Info("周工时已解锁",
		zap.String("username", username),
		zap.String("week_ending", weekEndingStr),
		zap.String("actor", actor),
	)
	return &dto.WeekLockResult{
		Username:       username,
		WeekEnding:     weekEndingStr,
		Status:         model.SubmissionStatusSubmitted,
		EntriesTouched: touched,
	}, nil
}

// ── 辅助函数 ──

func (s *timecardService) parseWeek(username, weekEnding string) (time.Time, error) {
	if strings.TrimSpace(username) == "" {
		return time.Time{}, ErrUsernameRequired
	}
	d, err := dateutil.ParseDate(weekEnding)
	if err != nil {
		return time.Time{}, pkgerrors.Wrap(ErrInvalidDate, err)
	}
	if !dateutil.IsSunday(d) {
		return time.Time{}, ErrWeekEndingNotSunday
	}
	return d, nil
}

func (s *timecardService) ensureEmployee(ctx context.Context, username string) error {
	if _, err := s.repo.Employee.GetByUsername(ctx, username); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrEmployeeNotFound
		}
		s.logger.Error("查询员工失败", zap.String("username", username), zap.Error(err))
		return err
	}
	return nil
}

func (s *timecardService) getSubmission(ctx context.Context, username string, weekEnding time.Time) (*model.TimecardSubmission, error) {
	sub, err := s.repo.Timecard.GetByUserWeek(ctx, username, weekEnding)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubmissionNotFound
		}
		s.logger.Error("查询工时提交失败", zap.String("username", username), zap.Error(err))
		return nil, err
	}
	return sub, nil
}

// sortedKeys 按日期、工单排序，保证补录顺序稳定
func sortedKeys(m map[workKey]float64) []workKey {
	keys := make([]workKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if !keys[i].Date.Equal(keys[j].Date) {
			return keys[i].Date.Before(keys[j].Date)
		}
		return keys[i].JobID < keys[j].JobID
	})
	return keys
}

func toReconciliationResult(sub *model.TimecardSubmission, items []model.Contradiction) *dto.ReconciliationResult {
	out := &dto.ReconciliationResult{
		Username:            sub.Username,
		WeekEnding:          dateutil.Format(sub.WeekEnding),
		Status:              sub.Status,
		SubmittedAt:         sub.SubmittedAt.Format(time.RFC3339),
		ContradictionsFound: len(items),
		Contradictions:      make([]dto.ContradictionResponse, 0, len(items)),
		SchedulesCreated:    sub.SchedulesCreated,
	}
	for _, c := range items {
		out.Contradictions = append(out.Contradictions, dto.ContradictionResponse{
			Type:           c.Type,
			JobID:          c.JobID,
			Date:           dateutil.Format(c.WorkDate),
			ScheduledHours: c.ScheduledHours,
			ActualHours:    c.ActualHours,
			Difference:     c.Difference,
		})
	}
	return out
}
