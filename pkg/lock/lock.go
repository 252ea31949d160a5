// Package lock 提供按 key 的互斥：同一排班日（job_id + 日期）的改动串行执行，
// 不同日期互不阻塞。
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrLockTimeout 在等待时限内未获得锁
var ErrLockTimeout = errors.New("获取排班锁超时，请稍后重试")

// Unlock 释放已获得的锁
type Unlock func()

// Locker 按 key 加锁
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

// CrewKey 排班日锁的 key
func CrewKey(jobID string, date time.Time) string {
	return fmt.Sprintf("crew:%s:%s", jobID, date.Format("2006-01-02"))
}

// ── 进程内实现 ──

type localEntry struct {
	ch   chan struct{}
	refs int
}

// Local 进程内按 key 的互斥锁；未配置 Redis 时使用
type Local struct {
	mu      sync.Mutex
	entries map[string]*localEntry
	wait    time.Duration
}

// NewLocal 创建进程内锁；wait<=0 表示仅受 ctx 约束
func NewLocal(wait time.Duration) *Local {
	return &Local{entries: make(map[string]*localEntry), wait: wait}
}

func (l *Local) Lock(ctx context.Context, key string) (Unlock, error) {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &localEntry{ch: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	if l.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e, false)
		return nil, ErrLockTimeout
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, e, true) })
	}, nil
}

func (l *Local) release(key string, e *localEntry, held bool) {
	if held {
		<-e.ch
	}
	l.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
	l.mu.Unlock()
}

// ── Redis 实现 ──

// RedisBackend Redis 锁原语（pkg/redis.Client 实现）
type RedisBackend interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

// Redis 跨实例的排班日锁：SET NX PX 轮询获取，TTL 兜底防止持有者崩溃后死锁
type Redis struct {
	backend RedisBackend
	ttl     time.Duration
	wait    time.Duration
	retry   time.Duration
	logger  *zap.Logger
}

// NewRedis 创建 Redis 锁
func NewRedis(backend RedisBackend, ttl, wait time.Duration, logger *zap.Logger) *Redis {
	return &Redis{backend: backend, ttl: ttl, wait: wait, retry: 25 * time.Millisecond, logger: logger}
}

func (r *Redis) Lock(ctx context.Context, key string) (Unlock, error) {
	if r.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.wait)
		defer cancel()
	}

	for {
		token, ok, err := r.backend.TryLock(ctx, key, r.ttl)
		if err != nil {
			return nil, fmt.Errorf("获取 Redis 锁失败: %w", err)
		}
		if ok {
			var once sync.Once
			return func() {
				once.Do(func() {
					// 请求 ctx 可能已取消，释放使用独立超时
					relCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					defer cancel()
					if err := r.backend.Release(relCtx, key, token); err != nil {
						r.logger.Warn("释放 Redis 锁失败", zap.String("key", key), zap.Error(err))
					}
				})
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ErrLockTimeout
		case <-time.After(r.retry):
		}
	}
}
