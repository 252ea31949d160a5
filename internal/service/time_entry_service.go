package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"fieldcrew/backend/internal/dto"
	"fieldcrew/backend/internal/model"
	"fieldcrew/backend/internal/repository"
	"fieldcrew/backend/pkg/dateutil"
	pkgerrors "fieldcrew/backend/pkg/errors"
)

// ── 工时记录业务错误 ──

var (
	ErrTimeEntryNotFound = pkgerrors.NotFound("工时记录不存在")
	ErrTimeEntryLocked   = pkgerrors.InvalidState("该周工时已锁定，不能修改")
	ErrHoursInvalid      = pkgerrors.Validation("工时必须大于 0、不超过 24 小时，且最多两位小数")
	ErrDailyHoursExceed  = pkgerrors.Validation("同一天的工时合计不能超过 24 小时")
	ErrEntryOutsideWeek  = pkgerrors.Validation("工时日期不在所选周内")
)

// TimeEntryService 员工工时记录
type TimeEntryService interface {
	Log(ctx context.Context, username string, req *dto.LogTimeEntryRequest, actor string) (*dto.TimeEntryResponse, error)
	// LogWeek 批量记录一周工时，全部成功或全部失败
	LogWeek(ctx context.Context, username string, req *dto.LogWeekRequest, actor string) ([]dto.TimeEntryResponse, error)
	// Update / Delete 非本人且非管理员视为记录不存在
	Update(ctx context.Context, id string, req *dto.UpdateTimeEntryRequest, actor string, isAdmin bool) (*dto.TimeEntryResponse, error)
	Delete(ctx context.Context, id, actor string, isAdmin bool) error
	ListWeek(ctx context.Context, username, weekEnding string) ([]dto.TimeEntryResponse, error)
}

type timeEntryService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewTimeEntryService 创建 TimeEntryService 实例
func NewTimeEntryService(repo *repository.Repository, logger *zap.Logger) TimeEntryService {
	return &timeEntryService{repo: repo, logger: logger}
}

func (s *timeEntryService) Log(ctx context.Context, username string, req *dto.LogTimeEntryRequest, actor string) (*dto.TimeEntryResponse, error) {
	entry, err := s.buildEntry(username, req, actor)
	if err != nil {
		return nil, err
	}
	if err := s.ensureJobs(ctx, []string{entry.JobID}); err != nil {
		return nil, err
	}
	if err := s.ensureWeekOpen(ctx, username, entry.WorkDate); err != nil {
		return nil, err
	}
	if err := s.ensureDailyCap(ctx, username, []model.TimeEntry{*entry}, ""); err != nil {
		return nil, err
	}

	if err := s.repo.TimeEntry.Create(ctx, entry); err != nil {
		s.logger.Error("记录工时失败", zap.String("username", username), zap.Error(err))
		return nil, err
	}

	s.logger.Info("记录工时",
		zap.String("username", username),
		zap.String("job_id", entry.JobID),
		zap.String("date", req.WorkDate),
		zap.Float64("hours", entry.HoursWorked),
	)
	resp := toTimeEntryResponse(entry)
	return &resp, nil
}

func (s *timeEntryService) LogWeek(ctx context.Context, username string, req *dto.LogWeekRequest, actor string) ([]dto.TimeEntryResponse, error) {
	weekEnding, err := dateutil.ParseDate(req.WeekEnding)
	if err != nil {
		return nil, pkgerrors.Wrap(ErrInvalidDate, err)
	}
	if !dateutil.IsSunday(weekEnding) {
		return nil, ErrWeekEndingNotSunday
	}
	weekStart := dateutil.WeekStart(weekEnding)

	entries := make([]model.TimeEntry, 0, len(req.Entries))
	jobIDs := make([]string, 0, len(req.Entries))
	for i := range req.Entries {
		e, err := s.buildEntry(username, &req.Entries[i], actor)
		if err != nil {
			return nil, err
		}
		if !dateutil.InRange(e.WorkDate, weekStart, weekEnding) {
			return nil, ErrEntryOutsideWeek
		}
		entries = append(entries, *e)
		jobIDs = append(jobIDs, e.JobID)
	}
	if err := s.ensureJobs(ctx, jobIDs); err != nil {
		return nil, err
	}
	if err := s.ensureWeekOpen(ctx, username, weekEnding); err != nil {
		return nil, err
	}
	if err := s.ensureDailyCap(ctx, username, entries, ""); err != nil {
		return nil, err
	}

	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		return tx.TimeEntry.BatchCreate(ctx, entries)
	})
	if err != nil {
		s.logger.Error("批量记录工时失败", zap.String("username", username), zap.Error(err))
		return nil, err
	}

	s.logger.Info("批量记录工时",
		zap.String("username", username),
		zap.String("week_ending", req.WeekEnding),
		zap.Int("count", len(entries)),
	)
	out := make([]dto.TimeEntryResponse, 0, len(entries))
	for i := range entries {
		out = append(out, toTimeEntryResponse(&entries[i]))
	}
	return out, nil
}

func (s *timeEntryService) Update(ctx context.Context, id string, req *dto.UpdateTimeEntryRequest, actor string, isAdmin bool) (*dto.TimeEntryResponse, error) {
	entry, err := s.getOwned(ctx, id, actor, isAdmin)
	if err != nil {
		return nil, err
	}
	if entry.Locked {
		return nil, ErrTimeEntryLocked
	}

	updated, err := s.buildEntry(entry.Username, req, actor)
	if err != nil {
		return nil, err
	}
	if err := s.ensureJobs(ctx, []string{updated.JobID}); err != nil {
		return nil, err
	}
	// 原日期与新日期所在周都不能已锁定
	if err := s.ensureWeekOpen(ctx, entry.Username, entry.WorkDate); err != nil {
		return nil, err
	}
	if err := s.ensureWeekOpen(ctx, entry.Username, updated.WorkDate); err != nil {
		return nil, err
	}
	if err := s.ensureDailyCap(ctx, entry.Username, []model.TimeEntry{*updated}, entry.TimeEntryID); err != nil {
		return nil, err
	}

	entry.JobID = updated.JobID
	entry.WorkDate = updated.WorkDate
	entry.HoursWorked = updated.HoursWorked
	entry.Notes = updated.Notes
	entry.UpdatedBy = &actor
	if err := s.repo.TimeEntry.Update(ctx, entry); err != nil {
		s.logger.Error("修改工时失败", zap.String("time_entry_id", id), zap.Error(err))
		return nil, err
	}

	s.logger.Info("修改工时", zap.String("time_entry_id", id), zap.String("actor", actor))
	resp := toTimeEntryResponse(entry)
	return &resp, nil
}

func (s *timeEntryService) Delete(ctx context.Context, id, actor string, isAdmin bool) error {
	entry, err := s.getOwned(ctx, id, actor, isAdmin)
	if err != nil {
		return err
	}
	if entry.Locked {
		return ErrTimeEntryLocked
	}
	if err := s.ensureWeekOpen(ctx, entry.Username, entry.WorkDate); err != nil {
		return err
	}

	if err := s.repo.TimeEntry.Delete(ctx, id); err != nil {
		s.logger.Error("删除工时失败", zap.String("time_entry_id", id), zap.Error(err))
		return err
	}
	s.logger.Info("删除工时", zap.String("time_entry_id", id), zap.String("actor", actor))
	return nil
}

func (s *timeEntryService) ListWeek(ctx context.Context, username, weekEndingStr string) ([]dto.TimeEntryResponse, error) {
	weekEnding, err := dateutil.ParseDate(weekEndingStr)
	if err != nil {
		return nil, pkgerrors.Wrap(ErrInvalidDate, err)
	}
	if !dateutil.IsSunday(weekEnding) {
		return nil, ErrWeekEndingNotSunday
	}

	entries, err := s.repo.TimeEntry.ListByUsernameInRange(ctx, username, dateutil.WeekStart(weekEnding), weekEnding)
	if err != nil {
		s.logger.Error("查询周工时失败", zap.String("username", username), zap.Error(err))
		return nil, err
	}
	out := make([]dto.TimeEntryResponse, 0, len(entries))
	for i := range entries {
		out = append(out, toTimeEntryResponse(&entries[i]))
	}
	return out, nil
}

// ── 辅助函数 ──

func (s *timeEntryService) buildEntry(username string, req *dto.LogTimeEntryRequest, actor string) (*model.TimeEntry, error) {
	date, err := dateutil.ParseDate(req.WorkDate)
	if err != nil {
		return nil, pkgerrors.Wrap(ErrInvalidDate, err)
	}
	if !validHours(req.HoursWorked) {
		return nil, ErrHoursInvalid
	}
	return &model.TimeEntry{
		Username:    username,
		JobID:       strings.TrimSpace(req.JobID),
		WorkDate:    date,
		HoursWorked: req.HoursWorked,
		Notes:       strings.TrimSpace(req.Notes),
		BaseModel:   model.BaseModel{CreatedBy: &actor, UpdatedBy: &actor},
	}, nil
}

// validHours 工时在 (0, 24] 内且精确到 0.01 小时（与 DECIMAL(5,2) 列一致）
func validHours(h float64) bool {
	if h <= 0 || h > 24 {
		return false
	}
	cents := h * 100
	return math.Abs(cents-math.Round(cents)) < 1e-6
}

// ensureDailyCap 同一员工同一天的工时（已有记录 + 本次写入）合计不超过 24 小时；
// excludeID 为正在修改的记录，其旧值不计入
func (s *timeEntryService) ensureDailyCap(ctx context.Context, username string, incoming []model.TimeEntry, excludeID string) error {
	if len(incoming) == 0 {
		return nil
	}
	from, to := incoming[0].WorkDate, incoming[0].WorkDate
	totals := make(map[time.Time]int64, len(incoming))
	for _, e := range incoming {
		if e.WorkDate.Before(from) {
			from = e.WorkDate
		}
		if e.WorkDate.After(to) {
			to = e.WorkDate
		}
		totals[dateutil.Normalize(e.WorkDate)] += hoursInCents(e.HoursWorked)
	}

	existing, err := s.repo.TimeEntry.ListByUsernameInRange(ctx, username, from, to)
	if err != nil {
		s.logger.Error("查询当日工时失败", zap.String("username", username), zap.Error(err))
		return err
	}
	for _, e := range existing {
		if e.TimeEntryID == excludeID {
			continue
		}
		day := dateutil.Normalize(e.WorkDate)
		if _, ok := totals[day]; ok {
			totals[day] += hoursInCents(e.HoursWorked)
		}
	}
	for _, cents := range totals {
		if cents > 24*100 {
			return ErrDailyHoursExceed
		}
	}
	return nil
}

func hoursInCents(h float64) int64 {
	return int64(math.Round(h * 100))
}

func (s *timeEntryService) ensureJobs(ctx context.Context, ids []string) error {
	unique := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}
	jobs, err := s.repo.Job.ListByIDs(ctx, unique)
	if err != nil {
		s.logger.Error("查询工单失败", zap.Error(err))
		return err
	}
	if len(jobs) != len(unique) {
		return ErrJobNotFound
	}
	return nil
}

// ensureWeekOpen 日期所在周已被工资锁定时拒绝修改
func (s *timeEntryService) ensureWeekOpen(ctx context.Context, username string, date time.Time) error {
	weekEnding := dateutil.WeekEndingSunday(date)
	sub, err := s.repo.Timecard.GetByUserWeek(ctx, username, weekEnding)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		s.logger.Error("查询工时提交失败", zap.String("username", username), zap.Error(err))
		return err
	}
	if sub.Status == model.SubmissionStatusLocked {
		return ErrTimeEntryLocked
	}
	return nil
}

func (s *timeEntryService) getOwned(ctx context.Context, id, actor string, isAdmin bool) (*model.TimeEntry, error) {
	entry, err := s.repo.TimeEntry.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTimeEntryNotFound
		}
		s.logger.Error("查询工时失败", zap.String("time_entry_id", id), zap.Error(err))
		return nil, err
	}
	if !isAdmin && entry.Username != actor {
		return nil, ErrTimeEntryNotFound
	}
	return entry, nil
}

func toTimeEntryResponse(e *model.TimeEntry) dto.TimeEntryResponse {
	return dto.TimeEntryResponse{
		ID:          e.TimeEntryID,
		Username:    e.Username,
		JobID:       e.JobID,
		WorkDate:    dateutil.Format(e.WorkDate),
		HoursWorked: e.HoursWorked,
		Notes:       e.Notes,
		Locked:      e.Locked,
	}
}
