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
	"fieldcrew/backend/internal/schedule"
	"fieldcrew/backend/pkg/clock"
	"fieldcrew/backend/pkg/dateutil"
	pkgerrors "fieldcrew/backend/pkg/errors"
	"fieldcrew/backend/pkg/lock"
)

// ── 派工模块业务错误 ──

var (
	ErrEmployeeNotFound     = pkgerrors.NotFound("员工不存在")
	ErrScheduleDateNotFound = pkgerrors.NotFound("排班日不存在")
	ErrAssignmentNotFound   = pkgerrors.NotFound("该员工未被派到此排班日")
	ErrAlreadyAssigned      = pkgerrors.Conflict("该员工已被派到此排班日")
	ErrLeadAlreadyAssigned  = pkgerrors.Validation("该排班日已有负责人，请先取消原负责人")
	ErrMultipleLeads        = pkgerrors.Validation("同一排班日只能指定一名负责人")
	ErrDuplicateCrewMember  = pkgerrors.Validation("人员列表中存在重复员工")
	ErrInvalidShiftTime     = pkgerrors.Validation("班次时间格式无效，应为 HH:MM")
	ErrShiftTimeIncomplete  = pkgerrors.Validation("班次开始与结束时间需同时提供")
	ErrShiftZeroLength      = pkgerrors.Validation("班次结束时间不能等于开始时间")
	ErrJobTerminal          = pkgerrors.InvalidState("工单已结束，不能再派工")
	ErrScheduleDateBusy     = pkgerrors.Conflict("该排班日正在被其他操作修改，请稍后重试")
)

// CrewService 派工增删与负责人维护。
// 同一 (工单, 日期) 的修改在按 key 的锁内、单个事务中执行；不同日期互不阻塞。
type CrewService interface {
	Assign(ctx context.Context, jobID string, req *dto.AssignCrewRequest, actor string) (*dto.ScheduleDateResponse, error)
	// Unassign 移除派工；被移除者为负责人且仍有其他人员时按策略补位
	Unassign(ctx context.Context, scheduleDateID, username, actor string) (*dto.UnassignResult, error)
	// BulkReplace 整体替换某日人员；未指定负责人时列表第一人为负责人
	BulkReplace(ctx context.Context, jobID, date string, req *dto.BulkReplaceRequest, actor string) (*dto.ScheduleDateResponse, error)
	SetLead(ctx context.Context, scheduleDateID, username, actor string) (*dto.ScheduleDateResponse, error)
	DemoteLead(ctx context.Context, scheduleDateID, actor string) (*dto.ScheduleDateResponse, error)
	GetCrew(ctx context.Context, jobID, date string) (*dto.ScheduleDateResponse, error)
	// ListJobSchedule from/to 为空表示不限
	ListJobSchedule(ctx context.Context, jobID, from, to string) ([]dto.ScheduleDateResponse, error)
	// EnsureAssignment 工时核对补录：与 Assign 共用 get-or-create 与锁；
	// 已存在时不重复创建，新建时仅在该日无人时设为负责人
	EnsureAssignment(ctx context.Context, jobID string, date time.Time, username, startTime, endTime, actor string) (bool, error)
}

type crewService struct {
	repo   *repository.Repository
	locker lock.Locker
	policy schedule.LeadPolicy
	clock  clock.Clock
	logger *zap.Logger
}

// NewCrewService 创建 CrewService 实例
func NewCrewService(repo *repository.Repository, locker lock.Locker, policy schedule.LeadPolicy, clk clock.Clock, logger *zap.Logger) CrewService {
	return &crewService{repo: repo, locker: locker, policy: policy, clock: clk, logger: logger}
}

// ════════════════════════════════════════════════════════════
// Assign
// ════════════════════════════════════════════════════════════

func (s *crewService) Assign(ctx context.Context, jobID string, req *dto.AssignCrewRequest, actor string) (*dto.ScheduleDateResponse, error) {
	date, err := dateutil.ParseDate(req.Date)
	if err != nil {
		return nil, pkgerrors.Wrap(ErrInvalidDate, err)
	}
	if err := validateShift(req.StartTime, req.EndTime); err != nil {
		return nil, err
	}
	username := strings.TrimSpace(req.Username)

	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.IsTerminal() {
		return nil, ErrJobTerminal
	}
	if err := s.ensureEmployees(ctx, []string{username}); err != nil {
		return nil, err
	}

	var resp *dto.ScheduleDateResponse
	err = s.withDateLock(ctx, jobID, date, func(tx *repository.Repository) error {
		sd, err := s.lockOrCreate(ctx, tx, jobID, date)
		if err != nil {
			return err
		}

		crew, err := tx.Crew.ListByScheduleDate(ctx, sd.ScheduleDateID)
		if err != nil {
			return err
		}
		for _, c := range crew {
			if c.Username == username {
				return ErrAlreadyAssigned
			}
			if req.IsLead && c.IsLead {
				return ErrLeadAlreadyAssigned
			}
		}

		a := &model.CrewAssignment{
			ScheduleDateID: sd.ScheduleDateID,
			Username:       username,
			IsLead:         req.IsLead,
			StartTime:      req.StartTime,
			EndTime:        req.EndTime,
			AssignedAt:     s.clock.Now().UTC(),
			AssignedBy:     actor,
		}
		if err := tx.Crew.Create(ctx, a); err != nil {
			return err
		}

		resp, err = s.snapshot(ctx, tx, sd)
		return err
	})
	if err != nil {
		s.logFailure("派工失败", err, zap.String("job_id", jobID), zap.String("username", username))
		return nil, err
	}

	s.logger.Info("派工成功",
		zap.String("job_id", jobID),
		zap.String("date", req.Date),
		zap.String("username", username),
		zap.Bool("is_lead", req.IsLead),
		zap.String("actor", actor),
	)
	return resp, nil
}

// ════════════════════════════════════════════════════════════
// Unassign — 移除 + 负责人补位（同一事务）
// ════════════════════════════════════════════════════════════

func (s *crewService) Unassign(ctx context.Context, scheduleDateID, username, actor string) (*dto.UnassignResult, error) {
	sd, err := s.getScheduleDate(ctx, scheduleDateID)
	if err != nil {
		return nil, err
	}

	var result *dto.UnassignResult
	err = s.withDateLock(ctx, sd.JobID, sd.WorkDate, func(tx *repository.Repository) error {
		locked, err := tx.ScheduleDate.LockByID(ctx, scheduleDateID)
		if err != nil {
			return err
		}

		removed, err := tx.Crew.Get(ctx, scheduleDateID, username)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAssignmentNotFound
			}
			return err
		}
		if err := tx.Crew.Delete(ctx, removed.CrewAssignmentID); err != nil {
			return err
		}

		// 补位读取必须在删除的同一事务内完成，避免两个并发移除看到同一份剩余名单
		remaining, err := tx.Crew.ListByScheduleDate(ctx, scheduleDateID)
		if err != nil {
			return err
		}

		result = &dto.UnassignResult{
			ScheduleDateID:    scheduleDateID,
			JobID:             locked.JobID,
			Date:              dateutil.Format(locked.WorkDate),
			WasLead:           removed.IsLead,
			RemainingCrew:     len(remaining),
			NeedsReassignment: len(remaining) == 0,
		}

		if removed.IsLead && len(remaining) > 0 {
			next, err := s.pickLead(ctx, tx, remaining)
			if err != nil {
				return err
			}
			if err := tx.Crew.SetLead(ctx, next.CrewAssignmentID, true); err != nil {
				return err
			}
			result.NewLead = &next.Username
		}
		return nil
	})
	if err != nil {
		s.logFailure("移除派工失败", err, zap.String("schedule_date_id", scheduleDateID), zap.String("username", username))
		return nil, err
	}

	fields := []zap.Field{
		zap.String("job_id", result.JobID),
		zap.String("date", result.Date),
		zap.String("username", username),
		zap.Bool("was_lead", result.WasLead),
		zap.Int("remaining", result.RemainingCrew),
		zap.String("actor", actor),
	}
	if result.NewLead != nil {
		fields = append(fields, zap.String("new_lead", *result.NewLead))
	}
	s.logger.Info("移除派工", fields...)
	return result, nil
}

// ════════════════════════════════════════════════════════════
// BulkReplace
// ════════════════════════════════════════════════════════════

func (s *crewService) BulkReplace(ctx context.Context, jobID, dateStr string, req *dto.BulkReplaceRequest, actor string) (*dto.ScheduleDateResponse, error) {
	date, err := dateutil.ParseDate(dateStr)
	if err != nil {
		return nil, pkgerrors.Wrap(ErrInvalidDate, err)
	}

	members := make([]dto.CrewMemberInput, len(req.Members))
	seen := make(map[string]bool, len(req.Members))
	leadIdx := -1
	usernames := make([]string, 0, len(req.Members))
	for i, m := range req.Members {
		m.Username = strings.TrimSpace(m.Username)
		if seen[m.Username] {
			return nil, ErrDuplicateCrewMember
		}
		seen[m.Username] = true
		if m.IsLead {
			if leadIdx >= 0 {
				return nil, ErrMultipleLeads
			}
			leadIdx = i
		}
		if err := validateShift(m.StartTime, m.EndTime); err != nil {
			return nil, err
		}
		members[i] = m
		usernames = append(usernames, m.Username)
	}
	if leadIdx < 0 && len(members) > 0 {
		leadIdx = 0
	}

	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.IsTerminal() && len(members) > 0 {
		return nil, ErrJobTerminal
	}
	if err := s.ensureEmployees(ctx, usernames); err != nil {
		return nil, err
	}

	var resp *dto.ScheduleDateResponse
	err = s.withDateLock(ctx, jobID, date, func(tx *repository.Repository) error {
		sd, err := s.lockOrCreate(ctx, tx, jobID, date)
		if err != nil {
			return err
		}

		existing, err := tx.Crew.ListByScheduleDate(ctx, sd.ScheduleDateID)
		if err != nil {
			return err
		}
		prior := make(map[string]model.CrewAssignment, len(existing))
		for _, c := range existing {
			prior[c.Username] = c
		}

		if err := tx.Crew.DeleteByScheduleDate(ctx, sd.ScheduleDateID); err != nil {
			return err
		}

		now := s.clock.Now().UTC()
		for i, m := range members {
			a := &model.CrewAssignment{
				ScheduleDateID: sd.ScheduleDateID,
				Username:       m.Username,
				IsLead:         i == leadIdx,
				StartTime:      m.StartTime,
				EndTime:        m.EndTime,
				// 新成员按列表顺序依次排在后面，保持"先派先补位"的顺序
				AssignedAt: now.Add(time.Duration(i) * time.Microsecond),
				AssignedBy: actor,
			}
			// 留任成员保留原派工时间
			if old, ok := prior[m.Username]; ok {
				a.AssignedAt = old.AssignedAt
				a.AssignedBy = old.AssignedBy
			}
			if err := tx.Crew.Create(ctx, a); err != nil {
				return err
			}
		}

		resp, err = s.snapshot(ctx, tx, sd)
		return err
	})
	if err != nil {
		s.logFailure("整体替换派工失败", err, zap.String("job_id", jobID), zap.String("date", dateStr))
		return nil, err
	}

	s.logger.Info("整体替换派工",
		zap.String("job_id", jobID),
		zap.String("date", dateStr),
		zap.Int("crew_size", len(members)),
		zap.String("actor", actor),
	)
	return resp, nil
}

// ════════════════════════════════════════════════════════════
// SetLead / DemoteLead
// ════════════════════════════════════════════════════════════

func (s *crewService) SetLead(ctx context.Context, scheduleDateID, username, actor string) (*dto.ScheduleDateResponse, error) {
	sd, err := s.getScheduleDate(ctx, scheduleDateID)
	if err != nil {
		return nil, err
	}

	var resp *dto.ScheduleDateResponse
	err = s.withDateLock(ctx, sd.JobID, sd.WorkDate, func(tx *repository.Repository) error {
		locked, err := tx.ScheduleDate.LockByID(ctx, scheduleDateID)
		if err != nil {
			return err
		}
		target, err := tx.Crew.Get(ctx, scheduleDateID, username)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAssignmentNotFound
			}
			return err
		}
		if err := tx.Crew.ClearLead(ctx, scheduleDateID); err != nil {
			return err
		}
		if err := tx.Crew.SetLead(ctx, target.CrewAssignmentID, true); err != nil {
			return err
		}
		resp, err = s.snapshot(ctx, tx, locked)
		return err
	})
	if err != nil {
		s.logFailure("指定负责人失败", err, zap.String("schedule_date_id", scheduleDateID), zap.String("username", username))
		return nil, err
	}

	s.logger.Info("指定负责人", zap.String("schedule_date_id", scheduleDateID), zap.String("username", username), zap.String("actor", actor))
	return resp, nil
}

func (s *crewService) DemoteLead(ctx context.Context, scheduleDateID, actor string) (*dto.ScheduleDateResponse, error) {
	sd, err := s.getScheduleDate(ctx, scheduleDateID)
	if err != nil {
		return nil, err
	}

	var resp *dto.ScheduleDateResponse
	err = s.withDateLock(ctx, sd.JobID, sd.WorkDate, func(tx *repository.Repository) error {
		locked, err := tx.ScheduleDate.LockByID(ctx, scheduleDateID)
		if err != nil {
			return err
		}
		if err := tx.Crew.ClearLead(ctx, scheduleDateID); err != nil {
			return err
		}
		resp, err = s.snapshot(ctx, tx, locked)
		return err
	})
	if err != nil {
		s.logFailure("取消负责人失败", err, zap.String("schedule_date_id", scheduleDateID))
		return nil, err
	}

	s.logger.Info("取消负责人", zap.String("schedule_date_id", scheduleDateID), zap.String("actor", actor))
	return resp, nil
}

// ════════════════════════════════════════════════════════════
// 查询
// ════════════════════════════════════════════════════════════

func (s *crewService) GetCrew(ctx context.Context, jobID, dateStr string) (*dto.ScheduleDateResponse, error) {
	date, err := dateutil.ParseDate(dateStr)
	if err != nil {
		return nil, pkgerrors.Wrap(ErrInvalidDate, err)
	}
	if _, err := s.getJob(ctx, jobID); err != nil {
		return nil, err
	}

	sd, err := s.repo.ScheduleDate.GetByJobDate(ctx, jobID, date)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// 尚未建立排班日视为无人
			return &dto.ScheduleDateResponse{JobID: jobID, Date: dateStr, Crew: []dto.CrewMemberResponse{}}, nil
		}
		s.logger.Error("查询排班日失败", zap.String("job_id", jobID), zap.Error(err))
		return nil, err
	}
	return s.snapshot(ctx, s.repo, sd)
}

func (s *crewService) ListJobSchedule(ctx context.Context, jobID, from, to string) ([]dto.ScheduleDateResponse, error) {
	var fromDate, toDate *time.Time
	if from != "" {
		d, err := dateutil.ParseDate(from)
		if err != nil {
			return nil, pkgerrors.Wrap(ErrInvalidDate, err)
		}
		fromDate = &d
	}
	if to != "" {
		d, err := dateutil.ParseDate(to)
		if err != nil {
			return nil, pkgerrors.Wrap(ErrInvalidDate, err)
		}
		toDate = &d
	}
	if _, err := s.getJob(ctx, jobID); err != nil {
		return nil, err
	}

	dates, err := s.repo.ScheduleDate.ListByJob(ctx, jobID, fromDate, toDate)
	if err != nil {
		s.logger.Error("查询工单排班失败", zap.String("job_id", jobID), zap.Error(err))
		return nil, err
	}

	out := make([]dto.ScheduleDateResponse, 0, len(dates))
	for i := range dates {
		out = append(out, toScheduleDateResponse(&dates[i], dates[i].Crew))
	}
	return out, nil
}

// ════════════════════════════════════════════════════════════
// EnsureAssignment — 工时核对补录
// ════════════════════════════════════════════════════════════

func (s *crewService) EnsureAssignment(ctx context.Context, jobID string, date time.Time, username, startTime, endTime, actor string) (bool, error) {
	date = dateutil.Normalize(date)
	created := false

	err := s.withDateLock(ctx, jobID, date, func(tx *repository.Repository) error {
		sd, err := s.lockOrCreate(ctx, tx, jobID, date)
		if err != nil {
			return err
		}
		crew, err := tx.Crew.ListByScheduleDate(ctx, sd.ScheduleDateID)
		if err != nil {
			return err
		}
		for _, c := range crew {
			if c.Username == username {
				return nil
			}
		}

		a := &model.CrewAssignment{
			ScheduleDateID: sd.ScheduleDateID,
			Username:       username,
			IsLead:         len(crew) == 0,
			StartTime:      &startTime,
			EndTime:        &endTime,
			AssignedAt:     s.clock.Now().UTC(),
			AssignedBy:     actor,
		}
		if err := tx.Crew.Create(ctx, a); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		s.logFailure("补录派工失败", err, zap.String("job_id", jobID), zap.String("username", username))
		return false, err
	}
	if created {
		s.logger.Info("工时核对补录派工",
			zap.String("job_id", jobID),
			zap.String("date", dateutil.Format(date)),
			zap.String("username", username),
		)
	}
	return created, nil
}

// ── 辅助函数 ──

// withDateLock 获取 (工单, 日期) 锁后在单个事务内执行 fn
func (s *crewService) withDateLock(ctx context.Context, jobID string, date time.Time, fn func(tx *repository.Repository) error) error {
	unlock, err := s.locker.Lock(ctx, lock.CrewKey(jobID, date))
	if err != nil {
		if errors.Is(err, lock.ErrLockTimeout) {
			return pkgerrors.Wrap(ErrScheduleDateBusy, err)
		}
		return err
	}
	defer unlock()

	return s.repo.Transaction(ctx, fn)
}

// lockOrCreate get-or-create 排班日并加行锁
func (s *crewService) lockOrCreate(ctx context.Context, tx *repository.Repository, jobID string, date time.Time) (*model.ScheduleDate, error) {
	sd, _, err := tx.ScheduleDate.GetOrCreate(ctx, jobID, date)
	if err != nil {
		return nil, err
	}
	return tx.ScheduleDate.LockByID(ctx, sd.ScheduleDateID)
}

func (s *crewService) pickLead(ctx context.Context, tx *repository.Repository, remaining []model.CrewAssignment) (*model.CrewAssignment, error) {
	candidates := make([]schedule.Candidate, len(remaining))
	for i, c := range remaining {
		candidates[i] = schedule.Candidate{Username: c.Username, AssignedAt: c.AssignedAt}
	}

	if s.policy.NeedsRoster() {
		names := make([]string, len(remaining))
		for i, c := range remaining {
			names[i] = c.Username
		}
		roster, err := tx.Employee.ListByUsernames(ctx, names)
		if err != nil {
			return nil, err
		}
		byName := make(map[string]model.Employee, len(roster))
		for _, e := range roster {
			byName[e.Username] = e
		}
		for i := range candidates {
			if e, ok := byName[candidates[i].Username]; ok {
				candidates[i].Role = e.Role
				candidates[i].HiredAt = e.HiredAt
			}
		}
	}

	picked, ok := s.policy.Pick(candidates)
	if !ok {
		return nil, fmt.Errorf("补位策略 %s 未选出负责人（候选 %d 人）", s.policy.Name(), len(candidates))
	}
	for i := range remaining {
		if remaining[i].Username == picked.Username {
			return &remaining[i], nil
		}
	}
	return nil, fmt.Errorf("补位策略 %s 选出的 %q 不在当前人员中", s.policy.Name(), picked.Username)
}

func (s *crewService) snapshot(ctx context.Context, repo *repository.Repository, sd *model.ScheduleDate) (*dto.ScheduleDateResponse, error) {
	crew, err := repo.Crew.ListByScheduleDate(ctx, sd.ScheduleDateID)
	if err != nil {
		return nil, err
	}
	resp := toScheduleDateResponse(sd, crew)
	return &resp, nil
}

func (s *crewService) getJob(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := s.repo.Job.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		s.logger.Error("查询工单失败", zap.String("job_id", jobID), zap.Error(err))
		return nil, err
	}
	return job, nil
}

func (s *crewService) getScheduleDate(ctx context.Context, id string) (*model.ScheduleDate, error) {
	sd, err := s.repo.ScheduleDate.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrScheduleDateNotFound
		}
		s.logger.Error("查询排班日失败", zap.String("schedule_date_id", id), zap.Error(err))
		return nil, err
	}
	return sd, nil
}

func (s *crewService) ensureEmployees(ctx context.Context, usernames []string) error {
	if len(usernames) == 0 {
		return nil
	}
	found, err := s.repo.Employee.ListByUsernames(ctx, usernames)
	if err != nil {
		s.logger.Error("查询员工失败", zap.Error(err))
		return err
	}
	known := make(map[string]bool, len(found))
	for _, e := range found {
		known[e.Username] = true
	}
	for _, u := range usernames {
		if !known[u] {
			return pkgerrors.Wrap(ErrEmployeeNotFound, errors.New(u))
		}
	}
	return nil
}

// logFailure 业务错误不记 Error 级日志
func (s *crewService) logFailure(msg string, err error, fields ...zap.Field) {
	if pkgerrors.KindOf(err) != "" {
		return
	}
	s.logger.Error(msg, append(fields, zap.Error(err))...)
}

// validateShift 起止时间需同时提供、格式正确且不相等；结束早于开始视为跨午夜
func validateShift(start, end *string) error {
	if start == nil && end == nil {
		return nil
	}
	if start == nil || end == nil {
		return ErrShiftTimeIncomplete
	}
	s, err := dateutil.ParseClock(*start)
	if err != nil {
		return pkgerrors.Wrap(ErrInvalidShiftTime, err)
	}
	e, err := dateutil.ParseClock(*end)
	if err != nil {
		return pkgerrors.Wrap(ErrInvalidShiftTime, err)
	}
	if s == e {
		return ErrShiftZeroLength
	}
	return nil
}

func toScheduleDateResponse(sd *model.ScheduleDate, crew []model.CrewAssignment) dto.ScheduleDateResponse {
	resp := dto.ScheduleDateResponse{
		ScheduleDateID: sd.ScheduleDateID,
		JobID:          sd.JobID,
		Date:           dateutil.Format(sd.WorkDate),
		Crew:           make([]dto.CrewMemberResponse, 0, len(crew)),
	}
	for _, c := range crew {
		resp.Crew = append(resp.Crew, dto.CrewMemberResponse{
			CrewAssignmentID: c.CrewAssignmentID,
			Username:         c.Username,
			IsLead:           c.IsLead,
			StartTime:        c.StartTime,
			EndTime:          c.EndTime,
			AssignedAt:       c.AssignedAt.Format(time.RFC3339),
			AssignedBy:       c.AssignedBy,
		})
	}
	return resp
}
