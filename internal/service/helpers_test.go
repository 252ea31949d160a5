package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"fieldcrew/backend/config"
	"fieldcrew/backend/internal/model"
	"fieldcrew/backend/internal/repository"
	"fieldcrew/backend/internal/repository/testutil"
	"fieldcrew/backend/internal/schedule"
	"fieldcrew/backend/pkg/clock"
	"fieldcrew/backend/pkg/lock"
)

// ── 测试辅助 ──

// tickClock 每次读取前进一步，用于制造先后有序的 assigned_at
type tickClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newTickClock(start string) *tickClock {
	t, _ := time.Parse(time.RFC3339, start)
	return &tickClock{now: t, step: time.Minute}
}

func (c *tickClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	c.now = c.now.Add(c.step)
	return now
}

// recordingNotifier 记录投递的通知
type recordingNotifier struct {
	mu   sync.Mutex
	sent map[string][]Notice
	fail bool
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{sent: make(map[string][]Notice)}
}

func (n *recordingNotifier) Dispatch(_ context.Context, recipient string, notice Notice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return context.DeadlineExceeded
	}
	n.sent[recipient] = append(n.sent[recipient], notice)
	return nil
}

func (n *recordingNotifier) count(recipient string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent[recipient])
}

// testEnv 一组共享同一 SQLite 库与时钟的服务
type testEnv struct {
	db       *gorm.DB
	repo     *repository.Repository
	clock    clock.Clock
	notifier *recordingNotifier
	cfg      config.SchedulerConfig

	crew       CrewService
	delay      DelayService
	classifier ClassifierService
	cascade    CascadeProcessor
	pto        PTOService
	timecard   TimecardService
	entries    TimeEntryService
}

func testSchedulerConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		LookaheadDays:       14,
		DefaultShiftHours:   8,
		DefaultShiftStart:   "07:00",
		HoursTolerance:      0,
		LeadPromotionPolicy: config.LeadPolicyEarliestAssigned,
	}
}

// newTestEnv today 形如 2026-01-12T09:00:00Z；每次读取时钟前进一分钟
func newTestEnv(t *testing.T, now string) *testEnv {
	t.Helper()
	return newTestEnvWithClock(t, newTickClock(now), testSchedulerConfig())
}

func newTestEnvWithClock(t *testing.T, clk clock.Clock, cfg config.SchedulerConfig) *testEnv {
	t.Helper()
	db := testutil.NewTestDB(t)
	repo := repository.NewRepository(db)
	logger := zap.NewNop()
	notifier := newRecordingNotifier()

	crew := NewCrewService(repo, lock.NewLocal(2*time.Second), schedule.NewLeadPolicy(cfg.LeadPromotionPolicy), clk, logger)
	cascade := NewCascadeProcessor(repo, crew, clk, logger)

	return &testEnv{
		db:         db,
		repo:       repo,
		clock:      clk,
		notifier:   notifier,
		cfg:        cfg,
		crew:       crew,
		delay:      NewDelayService(repo, clk, notifier, logger),
		classifier: NewClassifierService(repo, clk, cfg.LookaheadDays, logger),
		cascade:    cascade,
		pto:        NewPTOService(repo, cascade, notifier, clk, logger),
		timecard:   NewTimecardService(repo, crew, cfg, clk, logger),
		entries:    NewTimeEntryService(repo, logger),
	}
}

func (e *testEnv) employees(t *testing.T, role string, usernames ...string) {
	t.Helper()
	for _, u := range usernames {
		testutil.SeedEmployee(t, e.db, u, role)
	}
}

func (e *testEnv) job(t *testing.T, title string) *model.Job {
	t.Helper()
	return testutil.SeedJob(t, e.db, title, model.JobStatusPending, "2026-01-05")
}

func (e *testEnv) crewOn(t *testing.T, jobID, date string) []model.CrewAssignment {
	t.Helper()
	sd, err := e.repo.ScheduleDate.GetByJobDate(context.Background(), jobID, testutil.Date(t, date))
	if err != nil {
		return nil
	}
	crew, err := e.repo.Crew.ListByScheduleDate(context.Background(), sd.ScheduleDateID)
	require.NoError(t, err)
	return crew
}

func strPtr(s string) *string { return &s }
