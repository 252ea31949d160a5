package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fieldcrew/backend/internal/dto"
	"fieldcrew/backend/internal/service"
)

type fakeDelay struct {
	service.DelayService
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeDelay) ExpireDelays(context.Context) (*dto.SweepResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &dto.SweepResult{Expired: []string{"job-1"}}, nil
}

func (f *fakeDelay) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeLeader 第一次加锁成功，之后直到 TTL 过期前都失败
type fakeLeader struct {
	mu     sync.Mutex
	held   bool
	tryErr error
	ttls   []time.Duration
}

func (l *fakeLeader) TryLock(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.tryErr != nil {
		return "", false, l.tryErr
	}
	l.ttls = append(l.ttls, ttl)
	if l.held {
		return "", false, nil
	}
	l.held = true
	return "token", true, nil
}

func (l *fakeLeader) Release(context.Context, string, string) error { return nil }

func TestSweepOnce_WithoutLeader(t *testing.T) {
	delay := &fakeDelay{}
	w := NewDelaySweeper(delay, nil, time.Minute, zap.NewNop())

	assert.True(t, w.SweepOnce(context.Background()))
	assert.True(t, w.SweepOnce(context.Background()))
	assert.Equal(t, 2, delay.count())
}

func TestSweepOnce_OnlyLeaderSweeps(t *testing.T) {
	delay := &fakeDelay{}
	leader := &fakeLeader{}
	a := NewDelaySweeper(delay, leader, 10*time.Minute, zap.NewNop())
	b := NewDelaySweeper(delay, leader, 10*time.Minute, zap.NewNop())

	assert.True(t, a.SweepOnce(context.Background()))
	assert.False(t, b.SweepOnce(context.Background()))
	assert.Equal(t, 1, delay.count())
	assert.Equal(t, []time.Duration{10 * time.Minute, 10 * time.Minute}, leader.ttls)
}

func TestSweepOnce_LeaderErrorSkipsRound(t *testing.T) {
	delay := &fakeDelay{}
	w := NewDelaySweeper(delay, &fakeLeader{tryErr: errors.New("connection refused")}, time.Minute, zap.NewNop())

	assert.False(t, w.SweepOnce(context.Background()))
	assert.Zero(t, delay.count())
}

func TestSweepOnce_ServiceErrorIsLogged(t *testing.T) {
	delay := &fakeDelay{err: errors.New("db down")}
	w := NewDelaySweeper(delay, nil, time.Minute, zap.NewNop())

	assert.True(t, w.SweepOnce(context.Background()))
	assert.Equal(t, 1, delay.count())
}

func TestRun_SweepsImmediatelyAndStopsOnCancel(t *testing.T) {
	delay := &fakeDelay{}
	w := NewDelaySweeper(delay, nil, 20*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return delay.count() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run 未在 ctx 取消后退出")
	}
}
