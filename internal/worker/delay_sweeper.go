// Package worker 后台定时任务
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"fieldcrew/backend/internal/service"
	"fieldcrew/backend/pkg/lock"
)

const sweepLeaderKey = "sweeper:delay"

// DelaySweeper 定时清扫已到期的延期窗口。
// 配置了 leader 时多实例间只有一个实例执行同一轮清扫。
type DelaySweeper struct {
	delay    service.DelayService
	leader   lock.RedisBackend
	interval time.Duration
	logger   *zap.Logger
}

// NewDelaySweeper 创建清扫任务；leader 可为 nil（单实例部署）
func NewDelaySweeper(delay service.DelayService, leader lock.RedisBackend, interval time.Duration, logger *zap.Logger) *DelaySweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &DelaySweeper{delay: delay, leader: leader, interval: interval, logger: logger}
}

// Run 启动时立即执行一次，之后按间隔执行，直到 ctx 取消
func (w *DelaySweeper) Run(ctx context.Context) {
	w.logger.Info("延期清扫任务启动", zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.SweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("延期清扫任务停止")
			return
		case <-ticker.C:
			w.SweepOnce(ctx)
		}
	}
}

// SweepOnce 执行一轮清扫；返回本轮是否实际执行
func (w *DelaySweeper) SweepOnce(ctx context.Context) bool {
	if w.leader != nil {
		// 锁不主动释放，持有到 TTL 过期，同一间隔内其他实例不再重复执行
		_, ok, err := w.leader.TryLock(ctx, sweepLeaderKey, w.interval)
		if err != nil {
			w.logger.Warn("获取清扫锁失败，跳过本轮", zap.Error(err))
			return false
		}
		if !ok {
			w.logger.Debug("其他实例正在清扫，跳过本轮")
			return false
		}
	}

	start := time.Now()
	res, err := w.delay.ExpireDelays(ctx)
	if err != nil {
		w.logger.Error("延期清扫失败", zap.Error(err))
		return true
	}
	if len(res.Expired) > 0 || len(res.Failed) > 0 {
		w.logger.Info("延期清扫完成",
			zap.Int("expired", len(res.Expired)),
			zap.Int("failed", len(res.Failed)),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
	return true
}
