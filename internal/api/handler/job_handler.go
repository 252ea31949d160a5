package handler

import (
	"github.com/gin-gonic/gin"

	"fieldcrew/backend/internal/dto"
	"fieldcrew/backend/internal/service"
	"fieldcrew/backend/pkg/response"
)

// JobHandler 工单分类与延期 HTTP 处理器
type JobHandler struct {
	classifierSvc service.ClassifierService
	delaySvc      service.DelayService
}

// NewJobHandler 创建 JobHandler
func NewJobHandler(classifierSvc service.ClassifierService, delaySvc service.DelayService) *JobHandler {
	return &JobHandler{classifierSvc: classifierSvc, delaySvc: delaySvc}
}

// ListByCategory 按排班分类列出工单
// GET /api/v1/jobs?category=unassigned
func (h *JobHandler) ListByCategory(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badParam(c, err)
		return
	}

	list, err := h.classifierSvc.ListByCategory(c.Request.Context(), req.Category)
	if err != nil {
		handleError(c, err)
		return
	}

	response.OK(c, gin.H{"list": list, "total": len(list)})
}

// Classify 查询单个工单的分类
// GET /api/v1/jobs/:id/category
func (h *JobHandler) Classify(c *gin.Context) {
	resp, err := h.classifierSvc.Classify(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.OK(c, resp)
}

// GetDelay 查询生效中的延期窗口
// GET /api/v1/jobs/:id/delay
func (h *JobHandler) GetDelay(c *gin.Context) {
	resp, err := h.delaySvc.GetActive(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.OK(c, resp)
}

// ApplyDelay 设置延期
// POST /api/v1/jobs/:id/delay
func (h *JobHandler) ApplyDelay(c *gin.Context) {
	var req dto.ApplyDelayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badParam(c, err)
		return
	}
	actor, ok := MustGetUsername(c)
	if !ok {
		return
	}

	resp, err := h.delaySvc.ApplyDelay(c.Request.Context(), c.Param("id"), &req, actor)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Created(c, resp)
}

// ClearDelay 解除延期
// DELETE /api/v1/jobs/:id/delay?clear_history=true
func (h *JobHandler) ClearDelay(c *gin.Context) {
	var req dto.ClearDelayRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badParam(c, err)
		return
	}
	actor, ok := MustGetUsername(c)
	if !ok {
		return
	}

	if err := h.delaySvc.ClearDelay(c.Request.Context(), c.Param("id"), req.ClearHistory, actor); err != nil {
		handleError(c, err)
		return
	}
	response.OK(c, nil)
}
