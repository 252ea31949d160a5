package handler

import (
	"github.com/gin-gonic/gin"

	"fieldcrew/backend/internal/dto"
	"fieldcrew/backend/internal/service"
	"fieldcrew/backend/pkg/response"
)

// TimecardHandler 周工时提交与工资锁定 HTTP 处理器
type TimecardHandler struct {
	timecardSvc service.TimecardService
}

// NewTimecardHandler 创建 TimecardHandler
func NewTimecardHandler(timecardSvc service.TimecardService) *TimecardHandler {
	return &TimecardHandler{timecardSvc: timecardSvc}
}

// Submit 提交周工时并核对排班
// POST /api/v1/timecards/submit
func (h *TimecardHandler) Submit(c *gin.Context) {
	var req dto.WeekQuery
	if err := c.ShouldBindJSON(&req); err != nil {
		badParam(c, err)
		return
	}
	subject, ok := resolveSubject(c, req.Username)
	if !ok {
		return
	}

	result, err := h.timecardSvc.SubmitWeek(c.Request.Context(), subject, req.WeekEnding)
	if err != nil {
		handleError(c, err)
		return
	}
	response.OK(c, result)
}

// Get 查询周提交结果
// GET /api/v1/timecards?username=&week_ending=
func (h *TimecardHandler) Get(c *gin.Context) {
	var req dto.WeekQuery
	if err := c.ShouldBindQuery(&req); err != nil {
		badParam(c, err)
		return
	}
	subject, ok := resolveSubject(c, req.Username)
	if !ok {
		return
	}

	result, err := h.timecardSvc.GetSubmission(c.Request.Context(), subject, req.WeekEnding)
	if err != nil {
		handleError(c, err)
		return
	}
	response.OK(c, result)
}

// Lock 工资锁定
// POST /api/v1/timecards/lock
func (h *TimecardHandler) Lock(c *gin.Context) {
	h.setLock(c, true)
}

// Unlock 解除工资锁定
// POST /api/v1/timecards/unlock
func (h *TimecardHandler) Unlock(c *gin.Context) {
	h.setLock(c, false)
}

func (h *TimecardHandler) setLock(c *gin.Context, locked bool) {
	var req dto.WeekQuery
	if err := c.ShouldBindJSON(&req); err != nil {
		badParam(c, err)
		return
	}
	if req.Username == "" {
		response.BadRequest(c, codeBadParam, "username 不能为空")
		return
	}
	actor, ok := MustGetUsername(c)
	if !ok {
		return
	}

	var (
		result *dto.WeekLockResult
		err    error
	)
	if locked {
		result, err = h.timecardSvc.LockWeek(c.Request.Context(), req.Username, req.WeekEnding, actor)
	} else {
		result, err = h.timecardSvc.UnlockWeek(c.Request.Context(), req.Username, req.WeekEnding, actor)
	}
	if err != nil {
		handleError(c, err)
		return
	}
	response.OK(c, result)
}
