package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"fieldcrew/backend/config"
	"fieldcrew/backend/internal/api/handler"
	"fieldcrew/backend/internal/api/middleware"
	"fieldcrew/backend/internal/api/router"
	"fieldcrew/backend/internal/repository"
	"fieldcrew/backend/internal/service"
	"fieldcrew/backend/internal/worker"
	"fieldcrew/backend/pkg/clock"
	"fieldcrew/backend/pkg/database"
	"fieldcrew/backend/pkg/jwt"
	"fieldcrew/backend/pkg/lock"
	applogger "fieldcrew/backend/pkg/logger"
	"fieldcrew/backend/pkg/redis"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("应用启动中...",
		zap.Int("port", cfg.Server.Port),
		zap.String("log_level", cfg.Log.Level),
		zap.String("timezone", cfg.Scheduler.Timezone),
	)

	// 3. 连接数据库
	db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}
	logger.Info("数据库连接成功")

	// 3.1 执行数据库迁移
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("获取底层 sql.DB 失败", zap.Error(err))
	}
	if err := database.RunMigrations(sqlDB, logger); err != nil {
		logger.Fatal("数据库迁移失败", zap.Error(err))
	}

	// 4. 连接 Redis（可选：连接失败时降级为单实例运行）
	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = redis.NewClient(&cfg.Redis, logger)
		if err != nil {
			logger.Warn("Redis 连接失败，排班锁降级为进程内锁，限流与清扫选主不可用", zap.Error(err))
			rdb = nil
		}
	}

	// 5. 排班日锁与限流器
	var (
		locker  lock.Locker
		limiter middleware.RateLimiter
		leader  lock.RedisBackend
	)
	if rdb != nil {
		locker = lock.NewRedis(rdb, cfg.Scheduler.LockTTL, cfg.Scheduler.LockWait, logger)
		limiter = rdb
		leader = rdb
	} else {
		locker = lock.NewLocal(cfg.Scheduler.LockWait)
	}

	loc, err := cfg.Scheduler.Location()
	if err != nil {
		logger.Fatal("业务时区无效", zap.String("timezone", cfg.Scheduler.Timezone), zap.Error(err))
	}

	// 6. 初始化 JWT 管理器
	jwtMgr := jwt.NewManager(&cfg.Auth)

	// 7. 依赖注入: Repository → Service → Handler
	repo := repository.NewRepository(db)
	svc := service.NewService(cfg, repo, locker, clock.Real{Loc: loc}, logger)
	h := handler.NewHandler(svc)

	// 8. 初始化路由
	engine := router.Setup(cfg, h, jwtMgr, limiter, logger)

	// 9. 延期窗口过期清扫
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	sweeper := worker.NewDelaySweeper(svc.Delay, leader, cfg.Scheduler.DelaySweepInterval, logger)
	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		sweeper.Run(workerCtx)
	}()

	// 10. 启动 HTTP 服务器（优雅关闭）
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("HTTP 服务器已启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP 服务器异常", zap.Error(err))
		}
	}()

	// 11. 监听系统信号，优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("收到关闭信号，开始优雅关闭...", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
	}

	stopWorkers()
	select {
	case <-sweeperDone:
	case <-ctx.Done():
		logger.Warn("等待清扫任务退出超时")
	}

	// 关闭数据库连接
	if err := sqlDB.Close(); err != nil {
		logger.Error("关闭数据库连接失败", zap.Error(err))
	}

	// 关闭 Redis 连接
	if rdb != nil {
		rdb.Close()
	}

	logger.Info("服务器已关闭")
}
