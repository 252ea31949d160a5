package handler

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"fieldcrew/backend/internal/dto"
	"fieldcrew/backend/internal/service"
	"fieldcrew/backend/pkg/response"
)

// CalendarHandler 员工派工日历订阅
type CalendarHandler struct {
	calendarSvc service.CalendarService
}

// NewCalendarHandler 创建 CalendarHandler
func NewCalendarHandler(calendarSvc service.CalendarService) *CalendarHandler {
	return &CalendarHandler{calendarSvc: calendarSvc}
}

// EmployeeCalendar 导出 iCalendar
// GET /api/v1/employees/:username/calendar.ics?from=&to=
func (h *CalendarHandler) EmployeeCalendar(c *gin.Context) {
	var req dto.DateRangeRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badParam(c, err)
		return
	}
	subject, ok := resolveSubject(c, c.Param("username"))
	if !ok {
		return
	}

	body, err := h.calendarSvc.EmployeeCalendar(c.Request.Context(), subject, req.From, req.To)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Attachment(c, fmt.Sprintf("%s.ics", subject), response.ContentTypeCalendar, []byte(body))
}
