package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fieldcrew/backend/config"
	"fieldcrew/backend/internal/api/handler"
	"fieldcrew/backend/internal/api/middleware"
	"fieldcrew/backend/internal/model"
	"fieldcrew/backend/pkg/jwt"
)

// 请求体上限与周提交限流
const (
	maxBodyBytes      = 1 << 20
	submitRateLimit   = 10
	submitRateWindows = time.Minute
)

// Setup 初始化并返回 Gin 路由引擎；limiter 为 nil 时不限流
func Setup(cfg *config.Config, h *handler.Handler, jwtMgr *jwt.Manager, limiter middleware.RateLimiter, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(middleware.RequestID(logger))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.BodyLimit(maxBodyBytes))

	// ── 健康检查 ──
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	managers := middleware.RoleAuth(model.RoleAdmin, model.RoleManager)
	admins := middleware.RoleAuth(model.RoleAdmin)

	// ── API v1（全部需要认证） ──
	v1 := r.Group("/api/v1")
	v1.Use(middleware.JWTAuth(jwtMgr))
	{
		// 工单分类、延期与排班
		jobs := v1.Group("/jobs")
		{
			jobs.GET("", h.Job.ListByCategory)
			jobs.GET("/:id/category", h.Job.Classify)
			jobs.GET("/:id/delay", h.Job.GetDelay)
			jobs.POST("/:id/delay", managers, h.Job.ApplyDelay)
			jobs.DELETE("/:id/delay", managers, h.Job.ClearDelay)
			jobs.GET("/:id/schedule", h.Crew.ListJobSchedule)
			jobs.GET("/:id/schedule/:date/crew", h.Crew.GetCrew)
			jobs.PUT("/:id/schedule/:date/crew", managers, h.Crew.BulkReplace)
			jobs.POST("/:id/crew", managers, h.Crew.Assign)
		}

		scheduleDates := v1.Group("/schedule-dates")
		scheduleDates.Use(managers)
		{
			scheduleDates.DELETE("/:id/crew/:username", h.Crew.Unassign)
			scheduleDates.PUT("/:id/lead", h.Crew.SetLead)
			scheduleDates.DELETE("/:id/lead", h.Crew.DemoteLead)
		}

		// 工时记录（本人，或管理角色代录）
		entries := v1.Group("/time-entries")
		{
			entries.GET("", h.TimeEntry.ListWeek)
			entries.POST("", h.TimeEntry.Log)
			entries.POST("/batch", h.TimeEntry.LogWeek)
			entries.PUT("/:id", h.TimeEntry.Update)
			entries.DELETE("/:id", h.TimeEntry.Delete)
		}

		// 周工时提交与工资锁定
		timecards := v1.Group("/timecards")
		{
			timecards.GET("", h.Timecard.Get)
			timecards.POST("/submit", middleware.RateLimit(limiter, submitRateLimit, submitRateWindows), h.Timecard.Submit)
			timecards.POST("/lock", admins, h.Timecard.Lock)
			timecards.POST("/unlock", admins, h.Timecard.Unlock)
		}

		// 休假申请
		pto := v1.Group("/pto-requests")
		{
			pto.GET("", h.PTO.List)
			pto.POST("", h.PTO.Create)
			pto.POST("/:id/approve", managers, h.PTO.Approve)
			pto.POST("/:id/deny", managers, h.PTO.Deny)
		pto.POST("/:id/cascade", managers, h.PTO.RetryCascade)
		}

		// 导出
		export := v1.Group("/export")
		export.Use(managers)
		{
			export.GET("/crew-board", h.Export.ExportCrewBoard)
			export.GET("/timecard", h.Export.ExportTimecard)
		}

		v1.GET("/employees/:username/calendar.ics", h.Calendar.EmployeeCalendar)
	}

	return r
}
