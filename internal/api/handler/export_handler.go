package handler

import (
	"github.com/gin-gonic/gin"

	"fieldcrew/backend/internal/dto"
	"fieldcrew/backend/internal/service"
	"fieldcrew/backend/pkg/response"
)

// ExportHandler 导出模块 HTTP 处理器
type ExportHandler struct {
	exportSvc service.ExportService
}

// NewExportHandler 创建 ExportHandler
func NewExportHandler(exportSvc service.ExportService) *ExportHandler {
	return &ExportHandler{exportSvc: exportSvc}
}

// ExportCrewBoard 导出派工看板
// GET /api/v1/export/crew-board?from=2026-01-12&to=2026-01-25
func (h *ExportHandler) ExportCrewBoard(c *gin.Context) {
	var req dto.DateRangeRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badParam(c, err)
		return
	}

	buf, filename, err := h.exportSvc.ExportCrewBoard(c.Request.Context(), req.From, req.To)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Attachment(c, filename, response.ContentTypeXLSX, buf.Bytes())
}

// ExportTimecard 导出员工周工时核对表
// GET /api/v1/export/timecard?username=alice&week_ending=2026-01-18
func (h *ExportHandler) ExportTimecard(c *gin.Context) {
	var req dto.WeekQuery
	if err := c.ShouldBindQuery(&req); err != nil {
		badParam(c, err)
		return
	}
	if req.Username == "" {
		response.BadRequest(c, codeBadParam, "username 不能为空")
		return
	}

	buf, filename, err := h.exportSvc.ExportReconciliation(c.Request.Context(), req.Username, req.WeekEnding)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Attachment(c, filename, response.ContentTypeXLSX, buf.Bytes())
}
