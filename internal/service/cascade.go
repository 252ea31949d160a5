package service

import (
	"context"

	"go.uber.org/zap"

	"fieldcrew/backend/internal/dto"
	"fieldcrew/backend/internal/model"
	"fieldcrew/backend/internal/repository"
	"fieldcrew/backend/pkg/clock"
	"fieldcrew/backend/pkg/dateutil"
	pkgerrors "fieldcrew/backend/pkg/errors"
)

var (
	ErrPTONotPending        = pkgerrors.InvalidState("休假申请已处理，不能重复审批")
	ErrCascadeNotApplicable = pkgerrors.InvalidState("仅已批准且要求移出排班的休假可重新执行联动")
)

// CascadeProcessor 把已批准的休假应用到员工今后的派工上。
// 每个排班日单独加锁、单独提交；某一天失败不回滚已处理的日期。
type CascadeProcessor interface {
	ApplyApprovedPTO(ctx context.Context, req *model.PTORequest, removeFromSchedule bool, actor string) (*dto.CascadeResult, error)
	// ReapplyApprovedPTO 对已批准的休假重新执行联动，只处理仍然存在的派工
	ReapplyApprovedPTO(ctx context.Context, req *model.PTORequest, actor string) (*dto.CascadeResult, error)
}

type cascadeProcessor struct {
	repo   *repository.Repository
	crew   CrewService
	clock  clock.Clock
	logger *zap.Logger
}

// NewCascadeProcessor 创建 CascadeProcessor 实例
func NewCascadeProcessor(repo *repository.Repository, crew CrewService, clk clock.Clock, logger *zap.Logger) CascadeProcessor {
	return &cascadeProcessor{repo: repo, crew: crew, clock: clk, logger: logger}
}

func (p *cascadeProcessor) ApplyApprovedPTO(ctx context.Context, req *model.PTORequest, removeFromSchedule bool, actor string) (*dto.CascadeResult, error) {
	if req.Status != model.PTOStatusPending {
		return nil, ErrPTONotPending
	}
	if !removeFromSchedule {
		return &dto.CascadeResult{AffectedJobs: []dto.CascadeItem{}}, nil
	}
	return p.removeFromSchedule(ctx, req, actor)
}

func (p *cascadeProcessor) ReapplyApprovedPTO(ctx context.Context, req *model.PTORequest, actor string) (*dto.CascadeResult, error) {
	if req.Status != model.PTOStatusApproved || !req.RemoveFromSchedule {
		return nil, ErrCascadeNotApplicable
	}
	return p.removeFromSchedule(ctx, req, actor)
}

// removeFromSchedule 逐日移除员工在休假期间（今天及以后）的派工
func (p *cascadeProcessor) removeFromSchedule(ctx context.Context, req *model.PTORequest, actor string) (*dto.CascadeResult, error) {
	result := &dto.CascadeResult{AffectedJobs: []dto.CascadeItem{}}

	from := dateutil.Normalize(req.StartDate)
	if today := clock.Today(p.clock); from.Before(today) {
		from = today
	}
	to := dateutil.Normalize(req.EndDate)
	if to.Before(from) {
		return result, nil
	}

	assignments, err := p.repo.Crew.ListByUsernameInRange(ctx, req.Username, from, to)
	if err != nil {
		p.logger.Error("查询休假期间派工失败", zap.String("username", req.Username), zap.Error(err))
		return nil, err
	}

	affected := make(map[string]bool)
	needsCrew := make(map[string]bool)

	for _, a := range assignments {
		if a.ScheduleDate == nil {
			continue
		}
		item := dto.CascadeItem{
			JobID:          a.ScheduleDate.JobID,
			ScheduleDateID: a.ScheduleDateID,
			Date:           dateutil.Format(a.ScheduleDate.WorkDate),
			WasLead:        a.IsLead,
		}

		res, err := p.crew.Unassign(ctx, a.ScheduleDateID, req.Username, actor)
		if err != nil {
			p.logger.Warn("休假联动移除派工失败，继续处理其余日期",
				zap.String("pto_request_id", req.PTORequestID),
				zap.String("job_id", item.JobID),
				zap.String("date", item.Date),
				zap.Error(err),
			)
			item.Error = pkgerrors.MessageOf(err)
			if item.Error == "" {
				item.Error = err.Error()
			}
			result.FailedCount++
			result.AffectedJobs = append(result.AffectedJobs, item)
			continue
		}

		item.Success = true
		item.WasLead = res.WasLead
		item.NewLeadAssigned = res.NewLead
		item.NeedsReassignment = res.NeedsReassignment
		result.AffectedJobs = append(result.AffectedJobs, item)

		affected[item.JobID] = true
		if item.NeedsReassignment {
			needsCrew[item.JobID] = true
		}
	}

	result.TotalAffectedJobs = len(affected)
	result.JobsNeedingReassignment = len(needsCrew)

	p.logger.Info("休假联动完成",
		zap.String("pto_request_id", req.PTORequestID),
		zap.String("username", req.Username),
		zap.Int("dates", len(result.AffectedJobs)),
		zap.Int("affected_jobs", result.TotalAffectedJobs),
		zap.Int("needs_reassignment", result.JobsNeedingReassignment),
		zap.Int("failed", result.FailedCount),
	)
	return result, nil
}
