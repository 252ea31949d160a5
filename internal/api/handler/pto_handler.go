package handler

import (
	"errors"
	"io"

	"github.com/gin-gonic/gin"

	"fieldcrew/backend/internal/dto"
	"fieldcrew/backend/internal/service"
	"fieldcrew/backend/pkg/response"
)

// PTOHandler 休假申请 HTTP 处理器
type PTOHandler struct {
	ptoSvc service.PTOService
}

// NewPTOHandler 创建 PTOHandler
func NewPTOHandler(ptoSvc service.PTOService) *PTOHandler {
	return &PTOHandler{ptoSvc: ptoSvc}
}

// Create 提交休假申请
// POST /api/v1/pto-requests
func (h *PTOHandler) Create(c *gin.Context) {
	var req dto.CreatePTORequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badParam(c, err)
		return
	}
	subject, ok := resolveSubject(c, req.Username)
	if !ok {
		return
	}
	actor, _ := MustGetUsername(c)

	resp, err := h.ptoSvc.Create(c.Request.Context(), subject, &req, actor)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Created(c, resp)
}

// List 休假申请列表；普通员工只能查看本人
// GET /api/v1/pto-requests
func (h *PTOHandler) List(c *gin.Context) {
	var req dto.PTOListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badParam(c, err)
		return
	}
	if !isPrivileged(c) {
		subject, ok := resolveSubject(c, req.Username)
		if !ok {
			return
		}
		req.Username = subject
	}

	list, total, err := h.ptoSvc.List(c.Request.Context(), &req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.OKPage(c, list, total, req.GetPage(), req.GetPageSize())
}

// Approve 批准并执行排班联动
// POST /api/v1/pto-requests/:id/approve
func (h *PTOHandler) Approve(c *gin.Context) {
	h.decide(c, true)
}

// Deny 驳回
// POST /api/v1/pto-requests/:id/deny
func (h *PTOHandler) Deny(c *gin.Context) {
	h.decide(c, false)
}

func (h *PTOHandler) decide(c *gin.Context, approve bool) {
	// 请求体可省略，默认不移出排班
	var req dto.DecidePTORequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badParam(c, err)
		return
	}
	approver, ok := MustGetUsername(c)
	if !ok {
		return
	}

	var (
		resp *dto.PTODecisionResponse
		err  error
	)
	if approve {
		resp, err = h.ptoSvc.Approve(c.Request.Context(), c.Param("id"), &req, approver)
	} else {
		resp, err = h.ptoSvc.Deny(c.Request.Context(), c.Param("id"), &req, approver)
	}
	if err != nil {
		handleError(c, err)
		return
	}
	response.OK(c, resp)
}

// RetryCascade 重新执行已批准休假的排班联动
// POST /api/v1/pto-requests/:id/cascade
func (h *PTOHandler) RetryCascade(c *gin.Context) {
	actor, ok := MustGetUsername(c)
	if !ok {
		return
	}
	resp, err := h.ptoSvc.RetryCascade(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		handleError(c, err)
		return
	}
	response.OK(c, resp)
}
