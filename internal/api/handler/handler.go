package handler

import "fieldcrew/backend/internal/service"

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Job       *JobHandler
	Crew      *CrewHandler
	TimeEntry *TimeEntryHandler
	Timecard  *TimecardHandler
	PTO       *PTOHandler
	Export    *ExportHandler
	Calendar  *CalendarHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(svc *service.Service) *Handler {
	return &Handler{
		Job:       NewJobHandler(svc.Classifier, svc.Delay),
		Crew:      NewCrewHandler(svc.Crew),
		TimeEntry: NewTimeEntryHandler(svc.TimeEntry),
		Timecard:  NewTimecardHandler(svc.Timecard),
		PTO:       NewPTOHandler(svc.PTO),
		Export:    NewExportHandler(svc.Export),
		Calendar:  NewCalendarHandler(svc.Calendar),
	}
}
