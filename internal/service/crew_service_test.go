package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fieldcrew/backend/config"
	"fieldcrew/backend/internal/dto"
	"fieldcrew/backend/internal/model"
	"fieldcrew/backend/internal/repository/testutil"
	"fieldcrew/backend/internal/schedule"
	pkgerrors "fieldcrew/backend/pkg/errors"
	"fieldcrew/backend/pkg/lock"
)

func TestCrewService_AssignSharesScheduleDate(t *testing.T) {
	env := newTestEnv(t, "2026-01-12T09:00:00Z")
	ctx := context.Background()
	env.employees(t, model.RoleTechnician, "alice", "bob")
	job := env.job(t, "屋顶维修")

	first, err := env.crew.Assign(ctx, job.JobID, &dto.AssignCrewRequest{Date: "2026-01-14", Username: "alice", IsLead: true}, "mgr")
	require.NoError(t, err)
	second, err := env.crew.Assign(ctx, job.JobID, &dto.AssignCrewRequest{
		Date: "2026-01-14", Username: "bob", StartTime: strPtr("07:00"), EndTime: strPtr("15:30"),
	}, "mgr")
	require.NoError(t, err)

	require.Equal(t, first.ScheduleDateID, second.ScheduleDateID)
	require.Len(t, second.Crew, 2)
	require.Equal(t, "alice", second.Crew[0].Username)
	require.True(t, second.Crew[0].IsLead)
	require.Equal(t, "15:30", *second.Crew[1].EndTime)

	var count int64
	require.NoError(t, env.db.Model(&model.ScheduleDate{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestCrewService_AssignRejections(t *testing.T) {
	env := newTestEnv(t, "2026-01-12T09:00:00Z")
	ctx := context.Background()
	env.employees(t, model.RoleTechnician, "alice", "bob")
	job := env.job(t, "管道更换")
	done := testutil.SeedJob(t, env.db, "已完工", model.JobStatusCompleted, "2026-01-01")

	_, err := env.crew.Assign(ctx, job.JobID, &dto.AssignCrewRequest{Date: "2026-01-14", Username: "alice", IsLead: true}, "mgr")
	require.NoError(t, err)

	tests := []struct {
		name string
		job  string
		req  dto.AssignCrewRequest
		want error
		kind error
	}{
		{"重复派工", job.JobID, dto.AssignCrewRequest{Date: "2026-01-14", Username: "alice"}, ErrAlreadyAssigned, pkgerrors.ErrConflict},
		{"已有负责人", job.JobID, dto.AssignCrewRequest{Date: "2026-01-14", Username: "bob", IsLead: true}, ErrLeadAlreadyAssigned, pkgerrors.ErrValidation},
		{"员工不存在", job.JobID, dto.AssignCrewRequest{Date: "2026-01-14", Username: "ghost"}, ErrEmployeeNotFound, pkgerrors.ErrNotFound},
		{"工单不存在", "00000000-0000-0000-0000-000000000000", dto.AssignCrewRequest{Date: "2026-01-14", Username: "bob"}, ErrJobNotFound, pkgerrors.ErrNotFound},
		{"终态工单", done.JobID, dto.AssignCrewRequest{Date: "2026-01-14", Username: "bob"}, ErrJobTerminal, pkgerrors.ErrInvalidState},
		{"日期格式", job.JobID, dto.AssignCrewRequest{Date: "2026/01/14", Username: "bob"}, ErrInvalidDate, pkgerrors.ErrValidation},
		{"班次零时长", job.JobID, dto.AssignCrewRequest{Date: "2026-01-15", Username: "bob", StartTime: strPtr("08:00"), EndTime: strPtr("08:00")}, ErrShiftZeroLength, pkgerrors.ErrValidation},
		{"班次缺结束", job.JobID, dto.AssignCrewRequest{Date: "2026-01-15", Username: "bob", StartTime: strPtr("08:00")}, ErrShiftTimeIncomplete, pkgerrors.ErrValidation},
		{"班次格式", job.JobID, dto.AssignCrewRequest{Date: "2026-01-15", Username: "bob", StartTime: strPtr("8:00"), EndTime: strPtr("25:00")}, ErrInvalidShiftTime, pkgerrors.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			_, err := env.crew.Assign(ctx, tt.job, &req, "mgr")
			require.ErrorIs(t, err, tt.want)
			require.ErrorIs(t, err, tt.kind)
		})
	}

	// 被拒绝的请求不应留下人员
	require.Len(t, env.crewOn(t, job.JobID, "2026-01-14"), 1)
}

func TestCrewService_UnassignPromotesEarliestAssigned(t *testing.T) {
	env := newTestEnv(t, "2026-01-12T09:00:00Z")
	ctx := context.Background()
	env.employees(t, model.RoleTechnician, "alice", "bob", "carol")
	job := env.job(t, "外墙粉刷")

	var sdID string
	for _, a := range []struct {
		name string
		lead bool
	}{{"alice", true}, {"carol", false}, {"bob", false}} {
		resp, err := env.crew.Assign(ctx, job.JobID, &dto.AssignCrewRequest{Date: "2026-01-14", Username: a.name, IsLead: a.lead}, "mgr")
		require.NoError(t, err)
		sdID = resp.ScheduleDateID
	}

	res, err := env.crew.Unassign(ctx, sdID, "alice", "mgr")
	require.NoError(t, err)
	require.True(t, res.WasLead)
	require.NotNil(t, res.NewLead)
	require.Equal(t, "carol", *res.NewLead, "carol 比 bob 先派工")
	require.Equal(t, 2, res.RemainingCrew)
	require.False(t, res.NeedsReassignment)

	crew := env.crewOn(t, job.JobID, "2026-01-14")
	leads := 0
	for _, c := range crew {
		if c.IsLead {
			leads++
			require.Equal(t, "carol", c.Username)
		}
	}
	require.Equal(t, 1, leads)

	// 移除非负责人不触发补位
	res, err = env.crew.Unassign(ctx, sdID, "bob", "mgr")
	require.NoError(t, err)
	require.False(t, res.WasLead)
	require.Nil(t, res.NewLead)

	_, err = env.crew.Unassign(ctx, sdID, "bob", "mgr")
	require.ErrorIs(t, err, ErrAssignmentNotFound)
	_, err = env.crew.Unassign(ctx, "00000000-0000-0000-0000-000000000000", "bob", "mgr")
	require.ErrorIs(t, err, ErrScheduleDateNotFound)
}

func TestCrewService_RoleSeniorityPolicy(t *testing.T) {
	cfg := testSchedulerConfig()
	cfg.LeadPromotionPolicy = config.LeadPolicyRoleSeniority
	env := newTestEnvWithClock(t, newTickClock("2026-01-12T09:00:00Z"), cfg)
	ctx := context.Background()
	env.employees(t, model.RoleTechnician, "alice", "bob")
	env.employees(t, model.RoleManager, "mia")
	job := env.job(t, "电路检修")

	var sdID string
	for _, name := range []string{"alice", "bob", "mia"} {
		resp, err := env.crew.Assign(ctx, job.JobID, &dto.AssignCrewRequest{Date: "2026-01-14", Username: name, IsLead: name == "alice"}, "mgr")
		require.NoError(t, err)
		sdID = resp.ScheduleDateID
	}

	res, err := env.crew.Unassign(ctx, sdID, "alice", "mgr")
	require.NoError(t, err)
	require.Equal(t, "mia", *res.NewLead, "经理资历高于技术员")
}

func TestCrewService_AssignUnassignRoundTrip(t *testing.T) {
	env := newTestEnv(t, "2026-01-12T09:00:00Z")
	ctx := context.Background()
	env.employees(t, model.RoleTechnician, "alice")
	job := env.job(t, "地板翻新")

	resp, err := env.crew.Assign(ctx, job.JobID, &dto.AssignCrewRequest{Date: "2026-01-14", Username: "alice", IsLead: true}, "mgr")
	require.NoError(t, err)

	cat, err := env.classifier.Classify(ctx, job.JobID)
	require.NoError(t, err)
	require.Equal(t, string(schedule.CategoryScheduled), cat.Category)

	res, err := env.crew.Unassign(ctx, resp.ScheduleDateID, "alice", "mgr")
	require.NoError(t, err)
	require.True(t, res.WasLead)
	require.Nil(t, res.NewLead)
	require.Equal(t, 0, res.RemainingCrew)
	require.True(t, res.NeedsReassignment)
	require.Empty(t, env.crewOn(t, job.JobID, "2026-01-14"))

	cat, err = env.classifier.Classify(ctx, job.JobID)
	require.NoError(t, err)
	require.Equal(t, string(schedule.CategoryUnassigned), cat.Category)
}

func TestCrewService_BulkReplace(t *testing.T) {
	env := newTestEnv(t, "2026-01-12T09:00:00Z")
	ctx := context.Background()
	env.employees(t, model.RoleTechnician, "alice", "bob", "carol")
	job := env.job(t, "空调安装")

	initial, err := env.crew.BulkReplace(ctx, job.JobID, "2026-01-14", &dto.BulkReplaceRequest{Members: []dto.CrewMemberInput{
		{Username: "alice"}, {Username: "bob"},
	}}, "mgr")
	require.NoError(t, err)
	require.Len(t, initial.Crew, 2)
	require.True(t, initial.Crew[0].IsLead, "未指定时第一人为负责人")
	bobAssignedAt := initial.Crew[1].AssignedAt

	replaced, err := env.crew.BulkReplace(ctx, job.JobID, "2026-01-14", &dto.BulkReplaceRequest{Members: []dto.CrewMemberInput{
		{Username: "carol", IsLead: true}, {Username: "bob"},
	}}, "mgr")
	require.NoError(t, err)
	require.Len(t, replaced.Crew, 2)
	byName := map[string]dto.CrewMemberResponse{}
	for _, c := range replaced.Crew {
		byName[c.Username] = c
	}
	require.True(t, byName["carol"].IsLead)
	require.False(t, byName["bob"].IsLead)
	require.Equal(t, bobAssignedAt, byName["bob"].AssignedAt, "留任成员保留原派工时间")
	require.Equal(t, "bob", replaced.Crew[0].Username, "按派工时间排序")

	_, err = env.crew.BulkReplace(ctx, job.JobID, "2026-01-14", &dto.BulkReplaceRequest{Members: []dto.CrewMemberInput{
		{Username: "alice"}, {Username: "alice"},
	}}, "mgr")
	require.ErrorIs(t, err, ErrDuplicateCrewMember)

	_, err = env.crew.BulkReplace(ctx, job.JobID, "2026-01-14", &dto.BulkReplaceRequest{Members: []dto.CrewMemberInput{
		{Username: "alice", IsLead: true}, {Username: "bob", IsLead: true},
	}}, "mgr")
	require.ErrorIs(t, err, ErrMultipleLeads)

	_, err = env.crew.BulkReplace(ctx, job.JobID, "2026-01-14", &dto.BulkReplaceRequest{Members: []dto.CrewMemberInput{
		{Username: "ghost"},
	}}, "mgr")
	require.ErrorIs(t, err, ErrEmployeeNotFound)
	require.Len(t, env.crewOn(t, job.JobID, "2026-01-14"), 2, "失败的替换不改变人员")

	cleared, err := env.crew.BulkReplace(ctx, job.JobID, "2026-01-14", &dto.BulkReplaceRequest{}, "mgr")
	require.NoError(t, err)
	require.Empty(t, cleared.Crew)
}

func TestCrewService_SetAndDemoteLead(t *testing.T) {
	env := newTestEnv(t, "2026-01-12T09:00:00Z")
	ctx := context.Background()
	env.employees(t, model.RoleTechnician, "alice", "bob")
	job := env.job(t, "门窗更换")

	resp, err := env.crew.BulkReplace(ctx, job.JobID, "2026-01-14", &dto.BulkReplaceRequest{Members: []dto.CrewMemberInput{
		{Username: "alice"}, {Username: "bob"},
	}}, "mgr")
	require.NoError(t, err)

	got, err := env.crew.SetLead(ctx, resp.ScheduleDateID, "bob", "mgr")
	require.NoError(t, err)
	for _, c := range got.Crew {
		require.Equal(t, c.Username == "bob", c.IsLead)
	}

	_, err = env.crew.SetLead(ctx, resp.ScheduleDateID, "ghost", "mgr")
	require.ErrorIs(t, err, ErrAssignmentNotFound)

	got, err = env.crew.DemoteLead(ctx, resp.ScheduleDateID, "mgr")
	require.NoError(t, err)
	for _, c := range got.Crew {
		require.False(t, c.IsLead)
	}

	// 取消负责人后可再指定
	got, err = env.crew.SetLead(ctx, resp.ScheduleDateID, "alice", "mgr")
	require.NoError(t, err)
	for _, c := range got.Crew {
		require.Equal(t, c.Username == "alice", c.IsLead)
	}
}

func TestCrewService_GetCrewAndListJobSchedule(t *testing.T) {
	env := newTestEnv(t, "2026-01-12T09:00:00Z")
	ctx := context.Background()
	env.employees(t, model.RoleTechnician, "alice")
	job := env.job(t, "屋面防水")

	empty, err := env.crew.GetCrew(ctx, job.JobID, "2026-01-20")
	require.NoError(t, err)
	require.Empty(t, empty.Crew)

	for _, d := range []string{"2026-01-16", "2026-01-14"} {
		_, err := env.crew.Assign(ctx, job.JobID, &dto.AssignCrewRequest{Date: d, Username: "alice"}, "mgr")
		require.NoError(t, err)
	}

	all, err := env.crew.ListJobSchedule(ctx, job.JobID, "", "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "2026-01-14", all[0].Date)

	ranged, err := env.crew.ListJobSchedule(ctx, job.JobID, "2026-01-15", "2026-01-31")
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	require.Equal(t, "alice", ranged[0].Crew[0].Username)

	_, err = env.crew.ListJobSchedule(ctx, job.JobID, "bad", "")
	require.ErrorIs(t, err, ErrInvalidDate)
}

func TestCrewService_EnsureAssignment(t *testing.T) {
	env := newTestEnv(t, "2026-01-12T09:00:00Z")
	ctx := context.Background()
	env.employees(t, model.RoleTechnician, "alice", "bob")
	job := env.job(t, "补录测试")
	day := testutil.Date(t, "2026-01-13")

	created, err := env.crew.EnsureAssignment(ctx, job.JobID, day, "alice", "07:00", "15:00", SystemActor)
	require.NoError(t, err)
	require.True(t, created)

	created, err = env.crew.EnsureAssignment(ctx, job.JobID, day, "alice", "07:00", "15:00", SystemActor)
	require.NoError(t, err)
	require.False(t, created, "已存在时不重复创建")

	created, err = env.crew.EnsureAssignment(ctx, job.JobID, day, "bob", "07:00", "11:00", SystemActor)
	require.NoError(t, err)
	require.True(t, created)

	crew := env.crewOn(t, job.JobID, "2026-01-13")
	require.Len(t, crew, 2)
	require.True(t, crew[0].IsLead, "首个补录者为负责人")
	require.False(t, crew[1].IsLead, "已有人员时不抢负责人")
	require.Equal(t, "11:00", *crew[1].EndTime)
}

func TestCrewService_ConcurrentLeadAssignSameDate(t *testing.T) {
	env := newTestEnv(t, "2026-01-12T09:00:00Z")
	ctx := context.Background()
	names := []string{"a1", "a2", "a3", "a4", "a5", "a6"}
	env.employees(t, model.RoleTechnician, names...)
	job := env.job(t, "并发派工")

	var wg sync.WaitGroup
	errs := make([]error, len(names))
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			_, errs[i] = env.crew.Assign(ctx, job.JobID, &dto.AssignCrewRequest{Date: "2026-01-14", Username: name, IsLead: true}, "mgr")
		}(i, name)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, ErrLeadAlreadyAssigned)
	}
	require.Equal(t, 1, succeeded)

	crew := env.crewOn(t, job.JobID, "2026-01-14")
	require.Len(t, crew, 1)
	require.True(t, crew[0].IsLead)
}

// busyLocker 总是等锁超时
type busyLocker struct{}

func (busyLocker) Lock(context.Context, string) (lock.Unlock, error) {
	return nil, lock.ErrLockTimeout
}

func TestCrewService_LockTimeoutIsConflict(t *testing.T) {
	env := newTestEnv(t, "2026-01-12T09:00:00Z")
	env.employees(t, model.RoleTechnician, "alice")
	job := env.job(t, "锁超时")

	svc := NewCrewService(env.repo, busyLocker{}, schedule.EarliestAssigned{}, env.clock, zap.NewNop())
	_, err := svc.Assign(context.Background(), job.JobID, &dto.AssignCrewRequest{Date: "2026-01-14", Username: "alice"}, "mgr")
	require.ErrorIs(t, err, ErrScheduleDateBusy)
	require.ErrorIs(t, err, pkgerrors.ErrConflict)
	require.True(t, errors.Is(err, lock.ErrLockTimeout))
}

func TestValidateShift(t *testing.T) {
	require.NoError(t, validateShift(nil, nil))
	require.NoError(t, validateShift(strPtr("22:00"), strPtr("02:00")), "跨午夜合法")
	require.ErrorIs(t, validateShift(strPtr("07:00"), nil), ErrShiftTimeIncomplete)
	require.ErrorIs(t, validateShift(strPtr("07:00"), strPtr("07:00")), ErrShiftZeroLength)
}

// 负责人与普通成员被同时移除，两个事务不能基于同一份"剩余人员"做出判断
func TestCrewService_ConcurrentUnassignSameDate(t *testing.T) {
	for round := 0; round < 20; round++ {
		t.Run(fmt.Sprintf("round_%02d", round), func(t *testing.T) {
			env := newTestEnv(t, "2026-01-12T09:00:00Z")
			ctx := context.Background()
			env.employees(t, model.RoleTechnician, "a", "b", "c")
			job := env.job(t, "并发移除")

			sd, err := env.crew.BulkReplace(ctx, job.JobID, "2026-01-14", &dto.BulkReplaceRequest{Members: []dto.CrewMemberInput{
				{Username: "a", IsLead: true}, {Username: "b"}, {Username: "c"},
			}}, "mgr")
			require.NoError(t, err)

			var wg sync.WaitGroup
			errs := make([]error, 2)
			for i, name := range []string{"a", "b"} {
				wg.Add(1)
				go func(i int, name string) {
					defer wg.Done()
					_, errs[i] = env.crew.Unassign(ctx, sd.ScheduleDateID, name, "mgr")
				}(i, name)
			}
			wg.Wait()
			require.NoError(t, errs[0])
			require.NoError(t, errs[1])

			crew := env.crewOn(t, job.JobID, "2026-01-14")
			require.Len(t, crew, 1)
			require.Equal(t, "c", crew[0].Username)
			require.True(t, crew[0].IsLead, "唯一剩余成员必须是负责人")
		})
	}
}

// 工时核对补录与人工派工同时落在一个尚不存在的排班日
func TestCrewService_EnsureAssignmentRacesAssign(t *testing.T) {
	for round := 0; round < 20; round++ {
		t.Run(fmt.Sprintf("round_%02d", round), func(t *testing.T) {
			env := newTestEnv(t, "2026-01-12T09:00:00Z")
			ctx := context.Background()
			env.employees(t, model.RoleTechnician, "alice", "bob")
			job := env.job(t, "并发补录")
			date := testutil.Date(t, "2026-01-14")

			var (
				wg        sync.WaitGroup
				created   bool
				ensureErr error
				assignErr error
			)
			wg.Add(2)
			go func() {
				defer wg.Done()
				created, ensureErr = env.crew.EnsureAssignment(ctx, job.JobID, date, "alice", "07:00", "15:00", SystemActor)
			}()
			go func() {
				defer wg.Done()
				_, assignErr = env.crew.Assign(ctx, job.JobID, &dto.AssignCrewRequest{Date: "2026-01-14", Username: "bob", IsLead: true}, "mgr")
			}()
			wg.Wait()

			require.NoError(t, ensureErr)
			require.True(t, created)
			if assignErr != nil {
				require.ErrorIs(t, assignErr, ErrLeadAlreadyAssigned, "补录先到时 alice 成为负责人")
			}

			var dates int64
			require.NoError(t, env.db.Model(&model.ScheduleDate{}).Where("job_id = ?", job.JobID).Count(&dates).Error)
			require.Equal(t, int64(1), dates, "排班日只创建一次")

			crew := env.crewOn(t, job.JobID, "2026-01-14")
			leads := 0
			for _, c := range crew {
				if c.IsLead {
					leads++
				}
			}
			require.Equal(t, 1, leads)
			if assignErr == nil {
				require.Len(t, crew, 2)
			} else {
				require.Len(t, crew, 1)
			}
		})
	}
}

// silentPolicy 始终选不出负责人
type silentPolicy struct{ schedule.EarliestAssigned }

func (silentPolicy) Pick([]schedule.Candidate) (schedule.Candidate, bool) {
	return schedule.Candidate{}, false
}

// strangerPolicy 选出一个不在当前人员中的员工
type strangerPolicy struct{ schedule.EarliestAssigned }

func (strangerPolicy) Pick([]schedule.Candidate) (schedule.Candidate, bool) {
	return schedule.Candidate{Username: "ghost"}, true
}

func TestCrewService_UnassignRejectsUnusableLeadPick(t *testing.T) {
	policies := []struct {
		name   string
		policy schedule.LeadPolicy
	}{
		{"未选出", silentPolicy{}},
		{"选出非成员", strangerPolicy{}},
	}
	for _, tc := range policies {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, "2026-01-12T09:00:00Z")
			ctx := context.Background()
			env.employees(t, model.RoleTechnician, "a", "b")
			job := env.job(t, "补位策略")

			sd, err := env.crew.BulkReplace(ctx, job.JobID, "2026-01-14", &dto.BulkReplaceRequest{Members: []dto.CrewMemberInput{
				{Username: "a", IsLead: true}, {Username: "b"},
			}}, "mgr")
			require.NoError(t, err)

			svc := NewCrewService(env.repo, lock.NewLocal(0), tc.policy, env.clock, zap.NewNop())
			_, err = svc.Unassign(ctx, sd.ScheduleDateID, "a", "mgr")
			require.Error(t, err)

			crew := env.crewOn(t, job.JobID, "2026-01-14")
			require.Len(t, crew, 2, "事务回滚，负责人未被移除")
		})
	}
}
