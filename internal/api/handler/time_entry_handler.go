package handler

import (
	"github.com/gin-gonic/gin"

	"fieldcrew/backend/internal/dto"
	"fieldcrew/backend/internal/service"
	"fieldcrew/backend/pkg/response"
)

// TimeEntryHandler 工时记录 HTTP 处理器
// 默认针对当前用户；管理员/经理可通过 ?username= 代录
type TimeEntryHandler struct {
	entrySvc service.TimeEntryService
}

// NewTimeEntryHandler 创建 TimeEntryHandler
func NewTimeEntryHandler(entrySvc service.TimeEntryService) *TimeEntryHandler {
	return &TimeEntryHandler{entrySvc: entrySvc}
}

// Log 记录单条工时
// POST /api/v1/time-entries
func (h *TimeEntryHandler) Log(c *gin.Context) {
	var req dto.LogTimeEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badParam(c, err)
		return
	}
	subject, ok := resolveSubject(c, c.Query("username"))
	if !ok {
		return
	}
	actor, _ := MustGetUsername(c)

	resp, err := h.entrySvc.Log(c.Request.Context(), subject, &req, actor)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Created(c, resp)
}

// LogWeek 按周批量记录
// POST /api/v1/time-entries/batch
func (h *TimeEntryHandler) LogWeek(c *gin.Context) {
	var req dto.LogWeekRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badParam(c, err)
		return
	}
	subject, ok := resolveSubject(c, c.Query("username"))
	if !ok {
		return
	}
	actor, _ := MustGetUsername(c)

	list, err := h.entrySvc.LogWeek(c.Request.Context(), subject, &req, actor)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Created(c, gin.H{"list": list})
}

// Update 修改工时
// PUT /api/v1/time-entries/:id
func (h *TimeEntryHandler) Update(c *gin.Context) {
	var req dto.UpdateTimeEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badParam(c, err)
		return
	}
	actor, ok := MustGetUsername(c)
	if !ok {
		return
	}

	resp, err := h.entrySvc.Update(c.Request.Context(), c.Param("id"), &req, actor, isPrivileged(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.OK(c, resp)
}

// Delete 删除工时
// DELETE /api/v1/time-entries/:id
func (h *TimeEntryHandler) Delete(c *gin.Context) {
	actor, ok := MustGetUsername(c)
	if !ok {
		return
	}

	if err := h.entrySvc.Delete(c.Request.Context(), c.Param("id"), actor, isPrivileged(c)); err != nil {
		handleError(c, err)
		return
	}
	response.OK(c, nil)
}

// ListWeek 某周工时
// GET /api/v1/time-entries?week_ending=2026-01-18&username=
func (h *TimeEntryHandler) ListWeek(c *gin.Context) {
	var req dto.WeekQuery
	if err := c.ShouldBindQuery(&req); err != nil {
		badParam(c, err)
		return
	}
	subject, ok := resolveSubject(c, req.Username)
	if !ok {
		return
	}

	list, err := h.entrySvc.ListWeek(c.Request.Context(), subject, req.WeekEnding)
	if err != nil {
		handleError(c, err)
		return
	}
	response.OK(c, gin.H{"list": list})
}
