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

// ── 休假模块业务错误 ──

var (
	ErrPTONotFound     = pkgerrors.NotFound("休假申请不存在")
	ErrPTORangeInvalid = pkgerrors.Validation("休假结束日期不能早于开始日期")
)

// PTOService 休假申请与审批
type PTOService interface {
	Create(ctx context.Context, username string, req *dto.CreatePTORequest, actor string) (*dto.PTOResponse, error)
	Get(ctx context.Context, id string) (*dto.PTOResponse, error)
	List(ctx context.Context, req *dto.PTOListRequest) ([]dto.PTOResponse, int64, error)
	// Approve 批准并按 remove_from_schedule 执行联动，结果发送给所有在职管理员/经理
	Approve(ctx context.Context, id string, req *dto.DecidePTORequest, approver string) (*dto.PTODecisionResponse, error)
	Deny(ctx context.Context, id string, req *dto.DecidePTORequest, approver string) (*dto.PTODecisionResponse, error)
	// RetryCascade 重新执行已批准休假的联动，用于审批时联动未完成的情况
	RetryCascade(ctx context.Context, id, actor string) (*dto.PTODecisionResponse, error)
}

type ptoService struct {
	repo     *repository.Repository
	cascade  CascadeProcessor
	notifier Notifier
	clock    clock.Clock
	logger   *zap.Logger
}

// NewPTOService 创建 PTOService 实例
func NewPTOService(repo *repository.Repository, cascade CascadeProcessor, notifier Notifier, clk clock.Clock, logger *zap.Logger) PTOService {
	return &ptoService{repo: repo, cascade: cascade, notifier: notifier, clock: clk, logger: logger}
}

func (s *ptoService) Create(ctx context.Context, username string, req *dto.CreatePTORequest, actor string) (*dto.PTOResponse, error) {
	start, err := dateutil.ParseDate(req.StartDate)
	if err != nil {
		return nil, pkgerrors.Wrap(ErrInvalidDate, err)
	}
	end, err := dateutil.ParseDate(req.EndDate)
	if err != nil {
		return nil, pkgerrors.Wrap(ErrInvalidDate, err)
	}
	if end.Before(start) {
		return nil, ErrPTORangeInvalid
	}

	if _, err := s.repo.Employee.GetByUsername(ctx, username); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEmployeeNotFound
		}
		s.logger.Error("查询员工失败", zap.String("username", username), zap.Error(err))
		return nil, err
	}

	pto := &model.PTORequest{
		Username:  username,
		StartDate: start,
		EndDate:   end,
		Status:    model.PTOStatusPending,
		Reason:    strings.TrimSpace(req.Reason),
		VersionedModel: model.VersionedModel{
			BaseModel: model.BaseModel{CreatedBy: &actor, UpdatedBy: &actor},
			Version:   1,
		},
	}
	if err := s.repo.PTO.Create(ctx, pto); err != nil {
		s.logger.Error("创建休假申请失败", zap.String("username", username), zap.Error(err))
		return nil, err
	}

	s.logger.Info("提交休假申请",
		zap.String("pto_request_id", pto.PTORequestID),
		zap.String("username", username),
		zap.String("start", req.StartDate),
		zap.String("end", req.EndDate),
	)
	resp := toPTOResponse(pto)
	return &resp, nil
}

func (s *ptoService) Get(ctx context.Context, id string) (*dto.PTOResponse, error) {
	pto, err := s.getPTO(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toPTOResponse(pto)
	return &resp, nil
}

func (s *ptoService) List(ctx context.Context, req *dto.PTOListRequest) ([]dto.PTOResponse, int64, error) {
	reqs, total, err := s.repo.PTO.List(ctx, req.Username, req.Status, req.GetOffset(), req.GetPageSize())
	if err != nil {
		s.logger.Error("查询休假列表失败", zap.Error(err))
		return nil, 0, err
	}
	out := make([]dto.PTOResponse, 0, len(reqs))
	for i := range reqs {
		out = append(out, toPTOResponse(&reqs[i]))
	}
	return out, total, nil
}

// ════════════════════════════════════════════════════════════
// 审批
// ════════════════════════════════════════════════════════════

func (s *ptoService) Approve(ctx context.Context, id string, req *dto.DecidePTORequest, approver string) (*dto.PTODecisionResponse, error) {
	pto, err := s.getPTO(ctx, id)
	if err != nil {
		return nil, err
	}
	if pto.Status != model.PTOStatusPending {
		return nil, ErrPTONotPending
	}
	pending := *pto

	// 先以乐观锁完成状态迁移，保证联动只执行一次
	if err := s.decide(ctx, pto, model.PTOStatusApproved, req, approver); err != nil {
		return nil, err
	}

	resp := &dto.PTODecisionResponse{Request: toPTOResponse(pto)}
	cascade, err := s.cascade.ApplyApprovedPTO(ctx, &pending, req.RemoveFromSchedule, approver)
	if err != nil {
		// 审批已生效，联动可通过 RetryCascade 重新执行
		s.logger.Error("休假联动失败", zap.String("pto_request_id", id), zap.Error(err))
		resp.CascadeError = cascadeErrorMessage
	} else {
		resp.Cascade = cascade
		s.notifyManagers(ctx, pto, cascade)
	}
	s.notifyRequester(ctx, pto)

	return resp, nil
}

const cascadeErrorMessage = "休假已批准，但排班联动未完成，请重试联动"

func (s *ptoService) RetryCascade(ctx context.Context, id, actor string) (*dto.PTODecisionResponse, error) {
	pto, err := s.getPTO(ctx, id)
	if err != nil {
		return nil, err
	}

	cascade, err := s.cascade.ReapplyApprovedPTO(ctx, pto, actor)
	if err != nil {
		if pkgerrors.KindOf(err) == "" {
			s.logger.Error("重新执行休假联动失败", zap.String("pto_request_id", id), zap.Error(err))
		}
		return nil, err
	}

	s.logger.Info("重新执行休假联动",
		zap.String("pto_request_id", id),
		zap.String("actor", actor),
		zap.Int("dates", len(cascade.AffectedJobs)),
		zap.Int("failed", cascade.FailedCount),
	)
	s.notifyManagers(ctx, pto, cascade)
	return &dto.PTODecisionResponse{Request: toPTOResponse(pto), Cascade: cascade}, nil
}

func (s *ptoService) Deny(ctx context.Context, id string, req *dto.DecidePTORequest, approver string) (*dto.PTODecisionResponse, error) {
	pto, err := s.getPTO(ctx, id)
	if err != nil {
		return nil, err
	}
	if pto.Status != model.PTOStatusPending {
		return nil, ErrPTONotPending
	}

	denial := *req
	denial.RemoveFromSchedule = false
	if err := s.decide(ctx, pto, model.PTOStatusDenied, &denial, approver); err != nil {
		return nil, err
	}

	s.notifyRequester(ctx, pto)
	return &dto.PTODecisionResponse{Request: toPTOResponse(pto)}, nil
}

func (s *ptoService) decide(ctx context.Context, pto *model.PTORequest, status string, req *dto.DecidePTORequest, approver string) error {
	now := s.clock.Now().UTC()
	pto.Status = status
	pto.ApprovedBy = &approver
	pto.DecidedAt = &now
	pto.AdminNotes = strings.TrimSpace(req.AdminNotes)
	pto.RemoveFromSchedule = req.RemoveFromSchedule
	pto.UpdatedBy = &approver

	if err := s.repo.PTO.Update(ctx, pto); err != nil {
		if errors.Is(err, pkgerrors.ErrOptimisticLock) {
			return pkgerrors.Wrap(ErrPTONotPending, err)
		}
		s.logger.Error("更新休假申请失败", zap.String("pto_request_id", pto.PTORequestID), zap.Error(err))
		return err
	}

	s.logger.Info("休假申请已处理",
		zap.String("pto_request_id", pto.PTORequestID),
		zap.String("username", pto.Username),
		zap.String("status", status),
		zap.String("approver", approver),
	)
	return nil
}

// notifyManagers 投递失败只记日志
func (s *ptoService) notifyManagers(ctx context.Context, pto *model.PTORequest, cascade *dto.CascadeResult) {
	if cascade == nil || len(cascade.AffectedJobs) == 0 {
		return
	}
	managers, err := s.repo.Employee.ListByRoles(ctx, []string{model.RoleAdmin, model.RoleManager})
	if err != nil {
		s.logger.Warn("查询管理员失败，跳过联动通知", zap.Error(err))
		return
	}

	notice := Notice{
		Type:        model.NotificationTypePTOCascade,
		Title:       fmt.Sprintf("%s 的休假已批准，影响 %d 个工单", pto.Username, cascade.TotalAffectedJobs),
		Content:     cascadeSummary(pto, cascade),
		RelatedType: "pto_request",
		RelatedID:   pto.PTORequestID,
	}
	for _, m := range managers {
		if err := s.notifier.Dispatch(ctx, m.Username, notice); err != nil {
			s.logger.Warn("发送联动通知失败", zap.String("recipient", m.Username), zap.Error(err))
		}
	}
}

func (s *ptoService) notifyRequester(ctx context.Context, pto *model.PTORequest) {
	title := "休假申请已批准"
	if pto.Status == model.PTOStatusDenied {
		title = "休假申请未通过"
	}
	notice := Notice{
		Type:        "pto_" + pto.Status,
		Title:       title,
		Content:     fmt.Sprintf("%s 至 %s", dateutil.Format(pto.StartDate), dateutil.Format(pto.EndDate)),
		RelatedType: "pto_request",
		RelatedID:   pto.PTORequestID,
	}
	if pto.AdminNotes != "" {
		notice.Content += "，备注：" + pto.AdminNotes
	}
	if err := s.notifier.Dispatch(ctx, pto.Username, notice); err != nil {
		s.logger.Warn("发送审批结果通知失败", zap.String("recipient", pto.Username), zap.Error(err))
	}
}

func (s *ptoService) getPTO(ctx context.Context, id string) (*model.PTORequest, error) {
	pto, err := s.repo.PTO.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPTONotFound
		}
		s.logger.Error("查询休假申请失败", zap.String("pto_request_id", id), zap.Error(err))
		return nil, err
	}
	return pto, nil
}

// cascadeSummary 逐日列出联动结果，供管理员安排补位
func cascadeSummary(pto *model.PTORequest, r *dto.CascadeResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s 休假 %s 至 %s；受影响工单 %d 个，需重新派工 %d 个",
		pto.Username, dateutil.Format(pto.StartDate), dateutil.Format(pto.EndDate),
		r.TotalAffectedJobs, r.JobsNeedingReassignment)
	if r.FailedCount > 0 {
		fmt.Fprintf(&b, "，%d 个日期处理失败", r.FailedCount)
	}
	for _, item := range r.AffectedJobs {
		b.WriteString("\n")
		fmt.Fprintf(&b, "- %s 工单 %s", item.Date, item.JobID)
		switch {
		case !item.Success:
			fmt.Fprintf(&b, "：处理失败（%s）", item.Error)
		case item.NeedsReassignment:
			b.WriteString("：已无人员，需重新派工")
		case item.NewLeadAssigned != nil:
			fmt.Fprintf(&b, "：负责人改为 %s", *item.NewLeadAssigned)
		}
	}
	return b.String()
}

func toPTOResponse(p *model.PTORequest) dto.PTOResponse {
	resp := dto.PTOResponse{
		ID:                 p.PTORequestID,
		Username:           p.Username,
		StartDate:          dateutil.Format(p.StartDate),
		EndDate:            dateutil.Format(p.EndDate),
		Status:             p.Status,
		Reason:             p.Reason,
		ApprovedBy:         p.ApprovedBy,
		AdminNotes:         p.AdminNotes,
		RemoveFromSchedule: p.RemoveFromSchedule,
		CreatedAt:          p.CreatedAt.Format(time.RFC3339),
	}
	if p.DecidedAt != nil {
		decided := p.DecidedAt.Format(time.RFC3339)
		resp.DecidedAt = &decided
	}
	return resp
}
