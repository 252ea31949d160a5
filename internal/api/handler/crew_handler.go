package handler

import (
	"github.com/gin-gonic/gin"

	"fieldcrew/backend/internal/dto"
	"fieldcrew/backend/internal/service"
	"fieldcrew/backend/pkg/response"
)

// CrewHandler 派工 HTTP 处理器
type CrewHandler struct {
	crewSvc service.CrewService
}

// NewCrewHandler 创建 CrewHandler
func NewCrewHandler(crewSvc service.CrewService) *CrewHandler {
	return &CrewHandler{crewSvc: crewSvc}
}

// ListJobSchedule 工单排班日列表
// GET /api/v1/jobs/:id/schedule?from=&to=
func (h *CrewHandler) ListJobSchedule(c *gin.Context) {
	list, err := h.crewSvc.ListJobSchedule(c.Request.Context(), c.Param("id"), c.Query("from"), c.Query("to"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.OK(c, gin.H{"list": list})
}

// GetCrew 某日人员
// GET /api/v1/jobs/:id/schedule/:date/crew
func (h *CrewHandler) GetCrew(c *gin.Context) {
	resp, err := h.crewSvc.GetCrew(c.Request.Context(), c.Param("id"), c.Param("date"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.OK(c, resp)
}

// Assign 单人派工
// POST /api/v1/jobs/:id/crew
func (h *CrewHandler) Assign(c *gin.Context) {
	var req dto.AssignCrewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badParam(c, err)
		return
	}
	actor, ok := MustGetUsername(c)
	if !ok {
		return
	}

	resp, err := h.crewSvc.Assign(c.Request.Context(), c.Param("id"), &req, actor)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Created(c, resp)
}

// BulkReplace 整体替换某日人员
// PUT /api/v1/jobs/:id/schedule/:date/crew
func (h *CrewHandler) BulkReplace(c *gin.Context) {
	var req dto.BulkReplaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badParam(c, err)
		return
	}
	actor, ok := MustGetUsername(c)
	if !ok {
		return
	}

	resp, err := h.crewSvc.BulkReplace(c.Request.Context(), c.Param("id"), c.Param("date"), &req, actor)
	if err != nil {
		handleError(c, err)
		return
	}
	response.OK(c, resp)
}

// Unassign 移除派工
// DELETE /api/v1/schedule-dates/:id/crew/:username
func (h *CrewHandler) Unassign(c *gin.Context) {
	actor, ok := MustGetUsername(c)
	if !ok {
		return
	}

	resp, err := h.crewSvc.Unassign(c.Request.Context(), c.Param("id"), c.Param("username"), actor)
	if err != nil {
		handleError(c, err)
		return
	}
	response.OK(c, resp)
}

// SetLead 指定负责人
// PUT /api/v1/schedule-dates/:id/lead
func (h *CrewHandler) SetLead(c *gin.Context) {
	var req dto.SetLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badParam(c, err)
		return
	}
	actor, ok := MustGetUsername(c)
	if !ok {
		return
	}

	resp, err := h.crewSvc.SetLead(c.Request.Context(), c.Param("id"), req.Username, actor)
	if err != nil {
		handleError(c, err)
		return
	}
	response.OK(c, resp)
}

// DemoteLead 取消负责人
// DELETE /api/v1/schedule-dates/:id/lead
func (h *CrewHandler) DemoteLead(c *gin.Context) {
	actor, ok := MustGetUsername(c)
	if !ok {
		return
	}

	resp, err := h.crewSvc.DemoteLead(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		handleError(c, err)
		return
	}
	response.OK(c, resp)
}
