package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fieldcrew/backend/internal/dto"
	"fieldcrew/backend/internal/model"
	"fieldcrew/backend/internal/repository/testutil"
	pkgerrors "fieldcrew/backend/pkg/errors"
)

func createPTO(t *testing.T, env *testEnv, username, start, end string) *dto.PTOResponse {
	t.Helper()
	resp, err := env.pto.Create(context.Background(), username, &dto.CreatePTORequest{StartDate: start, EndDate: end, Reason: "家事"}, username)
	require.NoError(t, err)
	require.Equal(t, model.PTOStatusPending, resp.Status)
	return resp
}

// Job #7：alice(负责人)、bob 在 2026-01-14 上工
func TestPTO_ApproveCascadePromotesThenLeavesDateEmpty(t *testing.T) {
	env := newTestEnv(t, "2026-01-12T09:00:00Z")
	ctx := context.Background()
	env.employees(t, model.RoleTechnician, "alice", "bob")
	env.employees(t, model.RoleManager, "mgr")
	job7 := env.job(t, "Job #7")

	_, err := env.crew.Assign(ctx, job7.JobID, &dto.AssignCrewRequest{Date: "2026-01-14", Username: "alice", IsLead: true}, "mgr")
	require.NoError(t, err)
	_, err = env.crew.Assign(ctx, job7.JobID, &dto.AssignCrewRequest{Date: "2026-01-14", Username: "bob"}, "mgr")
	require.NoError(t, err)

	alicePTO := createPTO(t, env, "alice", "2026-01-13", "2026-01-15")
	decision, err := env.pto.Approve(ctx, alicePTO.ID, &dto.DecidePTORequest{RemoveFromSchedule: true}, "mgr")
	require.NoError(t, err)
	require.Equal(t, model.PTOStatusApproved, decision.Request.Status)
	require.NotNil(t, decision.Cascade)

	cascade := decision.Cascade
	require.Len(t, cascade.AffectedJobs, 1)
	item := cascade.AffectedJobs[0]
	require.Equal(t, job7.JobID, item.JobID)
	require.Equal(t, "2026-01-14", item.Date)
	require.True(t, item.Success)
	require.True(t, item.WasLead)
	require.NotNil(t, item.NewLeadAssigned)
	require.Equal(t, "bob", *item.NewLeadAssigned)
	require.False(t, item.NeedsReassignment)
	require.Equal(t, 1, cascade.TotalAffectedJobs)
	require.Equal(t, 0, cascade.JobsNeedingReassignment)
	require.Equal(t, 1, env.notifier.count("mgr"), "经理收到联动汇总")

	// bob 也休假：该日无人
	bobPTO := createPTO(t, env, "bob", "2026-01-14", "2026-01-14")
	decision, err = env.pto.Approve(ctx, bobPTO.ID, &dto.DecidePTORequest{RemoveFromSchedule: true}, "mgr")
	require.NoError(t, err)
	item = decision.Cascade.AffectedJobs[0]
	require.True(t, item.WasLead, "bob 已被补为负责人")
	require.Nil(t, item.NewLeadAssigned)
	require.True(t, item.NeedsReassignment)
	require.Equal(t, 1, decision.Cascade.JobsNeedingReassignment)
	require.Empty(t, env.crewOn(t, job7.JobID, "2026-01-14"))
}

func TestPTO_CascadeOnlyTouchesTodayOrLater(t *testing.T) {
	env := newTestEnv(t, "2026-01-12T09:00:00Z")
	ctx := context.Background()
	env.employees(t, model.RoleTechnician, "alice")
	jobA := env.job(t, "A")
	jobB := env.job(t, "B")

	for _, a := range []struct{ job, date string }{
		{jobA.JobID, "2026-01-10"}, // 已过去
		{jobB.JobID, "2026-01-12"}, // 今天
		{jobA.JobID, "2026-01-13"},
		{jobA.JobID, "2026-01-20"}, // 休假区间外
	} {
		_, err := env.crew.Assign(ctx, a.job, &dto.AssignCrewRequest{Date: a.date, Username: "alice", IsLead: true}, "mgr")
		require.NoError(t, err)
	}

	req := createPTO(t, env, "alice", "2026-01-09", "2026-01-15")
	decision, err := env.pto.Approve(ctx, req.ID, &dto.DecidePTORequest{RemoveFromSchedule: true}, "mgr")
	require.NoError(t, err)

	items := decision.Cascade.AffectedJobs
	require.Len(t, items, 2)
	require.Equal(t, "2026-01-12", items[0].Date, "按日期升序")
	require.Equal(t, "2026-01-13", items[1].Date)
	require.Equal(t, 2, decision.Cascade.TotalAffectedJobs)
	require.Equal(t, 2, decision.Cascade.JobsNeedingReassignment)

	require.Len(t, env.crewOn(t, jobA.JobID, "2026-01-10"), 1, "过去的排班保持不变")
	require.Len(t, env.crewOn(t, jobA.JobID, "2026-01-20"), 1)
}

func TestPTO_ApproveWithoutRemovalKeepsSchedule(t *testing.T) {
	env := newTestEnv(t, "2026-01-12T09:00:00Z")
	ctx := context.Background()
	env.employees(t, model.RoleTechnician, "alice")
	env.employees(t, model.RoleManager, "mgr")
	job := env.job(t, "A")

	_, err := env.crew.Assign(ctx, job.JobID, &dto.AssignCrewRequest{Date: "2026-01-14", Username: "alice", IsLead: true}, "mgr")
	require.NoError(t, err)

	req := createPTO(t, env, "alice", "2026-01-14", "2026-01-14")
	decision, err := env.pto.Approve(ctx, req.ID, &dto.DecidePTORequest{RemoveFromSchedule: false, AdminNotes: "自行安排替班"}, "mgr")
	require.NoError(t, err)
	require.Empty(t, decision.Cascade.AffectedJobs)
	require.Equal(t, 0, decision.Cascade.TotalAffectedJobs)
	require.Len(t, env.crewOn(t, job.JobID, "2026-01-14"), 1)
	require.Equal(t, 0, env.notifier.count("mgr"), "无影响时不通知经理")
	require.Equal(t, 1, env.notifier.count("alice"), "申请人收到审批结果")
}

func TestPTO_DecisionIsOneTime(t *testing.T) {
	env := newTestEnv(t, "2026-01-12T09:00:00Z")
	ctx := context.Background()
	env.employees(t, model.RoleTechnician, "alice")

	req := createPTO(t, env, "alice", "2026-01-14", "2026-01-16")
	denied, err := env.pto.Deny(ctx, req.ID, &dto.DecidePTORequest{RemoveFromSchedule: true, AdminNotes: "旺季"}, "mgr")
	require.NoError(t, err)
	require.Equal(t, model.PTOStatusDenied, denied.Request.Status)
	require.Nil(t, denied.Cascade)
	require.False(t, denied.Request.RemoveFromSchedule, "驳回不执行联动")
	require.Equal(t, "mgr", *denied.Request.ApprovedBy)

	_, err = env.pto.Approve(ctx, req.ID, &dto.DecidePTORequest{RemoveFromSchedule: true}, "mgr")
	require.ErrorIs(t, err, ErrPTONotPending)
	require.ErrorIs(t, err, pkgerrors.ErrInvalidState)

	_, err = env.pto.Deny(ctx, req.ID, &dto.DecidePTORequest{}, "mgr")
	require.ErrorIs(t, err, ErrPTONotPending)

	_, err = env.pto.Approve(ctx, "00000000-0000-0000-0000-000000000000", &dto.DecidePTORequest{}, "mgr")
	require.ErrorIs(t, err, ErrPTONotFound)
}

func TestPTO_CreateValidationAndList(t *testing.T) {
	env := newTestEnv(t, "2026-01-12T09:00:00Z")
	ctx := context.Background()
	env.employees(t, model.RoleTechnician, "alice", "bob")

	_, err := env.pto.Create(ctx, "alice", &dto.CreatePTORequest{StartDate: "2026-01-16", EndDate: "2026-01-14"}, "alice")
	require.ErrorIs(t, err, ErrPTORangeInvalid)

	_, err = env.pto.Create(ctx, "ghost", &dto.CreatePTORequest{StartDate: "2026-01-14", EndDate: "2026-01-14"}, "ghost")
	require.ErrorIs(t, err, ErrEmployeeNotFound)

	_, err = env.pto.Create(ctx, "alice", &dto.CreatePTORequest{StartDate: "14/01/2026", EndDate: "2026-01-14"}, "alice")
	require.ErrorIs(t, err, ErrInvalidDate)

	createPTO(t, env, "alice", "2026-01-14", "2026-01-14")
	createPTO(t, env, "alice", "2026-02-02", "2026-02-03")
	bobReq := createPTO(t, env, "bob", "2026-01-20", "2026-01-21")

	list, total, err := env.pto.List(ctx, &dto.PTOListRequest{Username: "alice"})
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Equal(t, "2026-02-02", list[0].StartDate)

	got, err := env.pto.Get(ctx, bobReq.ID)
	require.NoError(t, err)
	require.Equal(t, "bob", got.Username)
}

// failingCrew 对指定排班日的移除返回错误，其余委托给真实实现
type failingCrew struct {
	CrewService
	failOn string
}

func (f *failingCrew) Unassign(ctx context.Context, scheduleDateID, username, actor string) (*dto.UnassignResult, error) {
	if scheduleDateID == f.failOn {
		return nil, errors.New("数据库连接中断")
	}
	return f.CrewService.Unassign(ctx, scheduleDateID, username, actor)
}

func TestCascade_PartialFailureKeepsAppliedDates(t *testing.T) {
	env := newTestEnv(t, "2026-01-12T09:00:00Z")
	ctx := context.Background()
	env.employees(t, model.RoleTechnician, "alice", "bob")
	job := env.job(t, "A")

	var failing string
	for _, d := range []string{"2026-01-13", "2026-01-14", "2026-01-15"} {
		resp, err := env.crew.BulkReplace(ctx, job.JobID, d, &dto.BulkReplaceRequest{Members: []dto.CrewMemberInput{
			{Username: "alice"}, {Username: "bob"},
		}}, "mgr")
		require.NoError(t, err)
		if d == "2026-01-14" {
			failing = resp.ScheduleDateID
		}
	}

	processor := NewCascadeProcessor(env.repo, &failingCrew{CrewService: env.crew, failOn: failing}, env.clock, zap.NewNop())
	req := &model.PTORequest{
		PTORequestID: "pto-1",
		Username:     "alice",
		StartDate:    testutil.Date(t, "2026-01-13"),
		EndDate:      testutil.Date(t, "2026-01-15"),
		Status:       model.PTOStatusPending,
	}
	result, err := processor.ApplyApprovedPTO(ctx, req, true, "mgr")
	require.NoError(t, err)

	require.Len(t, result.AffectedJobs, 3)
	require.Equal(t, 1, result.FailedCount)
	require.True(t, result.AffectedJobs[0].Success)
	require.False(t, result.AffectedJobs[1].Success)
	require.Equal(t, "数据库连接中断", result.AffectedJobs[1].Error)
	require.True(t, result.AffectedJobs[2].Success)
	require.Equal(t, 1, result.TotalAffectedJobs)

	require.Len(t, env.crewOn(t, job.JobID, "2026-01-13"), 1, "已处理的日期不回滚")
	require.Len(t, env.crewOn(t, job.JobID, "2026-01-14"), 2)
}

func TestCascade_RejectsDecidedRequest(t *testing.T) {
	env := newTestEnv(t, "2026-01-12T09:00:00Z")
	req := &model.PTORequest{Username: "alice", Status: model.PTOStatusApproved, StartDate: time.Now(), EndDate: time.Now()}
	_, err := env.cascade.ApplyApprovedPTO(context.Background(), req, true, "mgr")
	require.ErrorIs(t, err, ErrPTONotPending)
}

// unavailableCascade 首次联动因读取派工失败而中止，之后委托给真实实现
type unavailableCascade struct {
	CascadeProcessor
	failures int
}

func (c *unavailableCascade) ApplyApprovedPTO(ctx context.Context, req *model.PTORequest, remove bool, actor string) (*dto.CascadeResult, error) {
	if c.failures > 0 {
		c.failures--
		return nil, errors.New("数据库连接中断")
	}
	return c.CascadeProcessor.ApplyApprovedPTO(ctx, req, remove, actor)
}

func TestPTO_CascadeFailureCanBeRetried(t *testing.T) {
	env := newTestEnv(t, "2026-01-12T09:00:00Z")
	ctx := context.Background()
	env.employees(t, model.RoleTechnician, "alice", "bob")
	env.employees(t, model.RoleManager, "mgr")
	job := env.job(t, "A")

	for _, d := range []string{"2026-01-13", "2026-01-14"} {
		_, err := env.crew.BulkReplace(ctx, job.JobID, d, &dto.BulkReplaceRequest{Members: []dto.CrewMemberInput{
			{Username: "alice", IsLead: true}, {Username: "bob"},
		}}, "mgr")
		require.NoError(t, err)
	}

	pto := NewPTOService(env.repo, &unavailableCascade{CascadeProcessor: env.cascade, failures: 1}, env.notifier, env.clock, zap.NewNop())
	req := createPTO(t, env, "alice", "2026-01-13", "2026-01-14")

	decision, err := pto.Approve(ctx, req.ID, &dto.DecidePTORequest{RemoveFromSchedule: true}, "mgr")
	require.NoError(t, err, "审批已落库，联动失败不影响审批结果")
	require.Equal(t, model.PTOStatusApproved, decision.Request.Status)
	require.Nil(t, decision.Cascade)
	require.NotEmpty(t, decision.CascadeError)
	require.Len(t, env.crewOn(t, job.JobID, "2026-01-13"), 2, "联动尚未执行")
	require.Equal(t, 1, env.notifier.count("alice"), "申请人仍收到审批结果")

	_, err = pto.Approve(ctx, req.ID, &dto.DecidePTORequest{RemoveFromSchedule: true}, "mgr")
	require.ErrorIs(t, err, ErrPTONotPending)

	retried, err := pto.RetryCascade(ctx, req.ID, "mgr")
	require.NoError(t, err)
	require.Len(t, retried.Cascade.AffectedJobs, 2)
	require.Equal(t, 0, retried.Cascade.FailedCount)
	require.Equal(t, 1, retried.Cascade.TotalAffectedJobs)
	for _, d := range []string{"2026-01-13", "2026-01-14"} {
		crew := env.crewOn(t, job.JobID, d)
		require.Len(t, crew, 1)
		require.Equal(t, "bob", crew[0].Username)
		require.True(t, crew[0].IsLead)
	}

	// 已处理完的休假再次联动不做任何改动
	again, err := pto.RetryCascade(ctx, req.ID, "mgr")
	require.NoError(t, err)
	require.Empty(t, again.Cascade.AffectedJobs)
}

func TestPTO_RetryCascadeRequiresApprovedRemoval(t *testing.T) {
	env := newTestEnv(t, "2026-01-12T09:00:00Z")
	ctx := context.Background()
	env.employees(t, model.RoleTechnician, "alice")

	pending := createPTO(t, env, "alice", "2026-01-13", "2026-01-14")
	_, err := env.pto.RetryCascade(ctx, pending.ID, "mgr")
	require.ErrorIs(t, err, ErrCascadeNotApplicable)
	require.ErrorIs(t, err, pkgerrors.ErrInvalidState)

	kept := createPTO(t, env, "alice", "2026-01-20", "2026-01-21")
	_, err = env.pto.Approve(ctx, kept.ID, &dto.DecidePTORequest{RemoveFromSchedule: false}, "mgr")
	require.NoError(t, err)
	_, err = env.pto.RetryCascade(ctx, kept.ID, "mgr")
	require.ErrorIs(t, err, ErrCascadeNotApplicable)

	_, err = env.pto.RetryCascade(ctx, "00000000-0000-0000-0000-000000000000", "mgr")
	require.ErrorIs(t, err, ErrPTONotFound)
}
