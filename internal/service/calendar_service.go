package service

import (
	"context"
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"
	"go.uber.org/zap"

	"fieldcrew/backend/internal/model"
	"fieldcrew/backend/internal/repository"
	"fieldcrew/backend/pkg/clock"
	"fieldcrew/backend/pkg/dateutil"
	pkgerrors "fieldcrew/backend/pkg/errors"
)

// 日历订阅的最大跨度
const maxCalendarDays = 366

var ErrCalendarRangeInvalid = pkgerrors.Validation(fmt.Sprintf("日历区间无效，结束日期不能早于开始日期且跨度不超过 %d 天", maxCalendarDays))

// CalendarService 员工派工日历（iCalendar）
//
// 每条派工生成一个 VEVENT：有班次时间的为定时事件（跨午夜时结束于次日），
// 否则为全天事件。UID 取派工 ID，订阅端重复拉取时可据此去重。
type CalendarService interface {
	EmployeeCalendar(ctx context.Context, username, from, to string) (string, error)
}

type calendarService struct {
	repo   *repository.Repository
	loc    *time.Location
	clock  clock.Clock
	logger *zap.Logger
}

// NewCalendarService 创建 CalendarService 实例；loc 为班次时间所在时区
func NewCalendarService(repo *repository.Repository, loc *time.Location, clk clock.Clock, logger *zap.Logger) CalendarService {
	if loc == nil {
		loc = time.UTC
	}
	return &calendarService{repo: repo, loc: loc, clock: clk, logger: logger}
}

func (s *calendarService) EmployeeCalendar(ctx context.Context, username, fromStr, toStr string) (string, error) {
	from, err := dateutil.ParseDate(fromStr)
	if err != nil {
		return "", pkgerrors.Wrap(ErrInvalidDate, err)
	}
	to, err := dateutil.ParseDate(toStr)
	if err != nil {
		return "", pkgerrors.Wrap(ErrInvalidDate, err)
	}
	if to.Before(from) || to.Sub(from) > maxCalendarDays*24*time.Hour {
		return "", ErrCalendarRangeInvalid
	}

	assignments, err := s.repo.Crew.ListByUsernameInRange(ctx, username, from, to)
	if err != nil {
		s.logger.Error("查询员工派工失败", zap.String("username", username), zap.Error(err))
		return "", err
	}

	jobIDs := make([]string, 0, len(assignments))
	for _, a := range assignments {
		if a.ScheduleDate != nil {
			jobIDs = append(jobIDs, a.ScheduleDate.JobID)
		}
	}
	jobs := make(map[string]model.Job)
	if len(jobIDs) > 0 {
		list, err := s.repo.Job.ListByIDs(ctx, jobIDs)
		if err != nil {
			s.logger.Error("查询工单失败", zap.Error(err))
			return "", err
		}
		for _, j := range list {
			jobs[j.JobID] = j
		}
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//fieldcrew//crew schedule//ZH")
	cal.SetXWRCalName(fmt.Sprintf("%s 的派工", username))
	cal.SetXWRTimezone(s.loc.String())

	stamp := s.clock.Now().UTC()
	for i := range assignments {
		a := &assignments[i]
		if a.ScheduleDate == nil {
			continue
		}
		job := jobs[a.ScheduleDate.JobID]
		s.addEvent(cal, a, &job, stamp)
	}

	return cal.Serialize(), nil
}

func (s *calendarService) addEvent(cal *ics.Calendar, a *model.CrewAssignment, job *model.Job, stamp time.Time) {
	event := cal.AddEvent(a.CrewAssignmentID + "@fieldcrew")
	event.SetDtStampTime(stamp)
	event.SetCreatedTime(a.AssignedAt)

	title := job.Title
	if title == "" {
		title = a.ScheduleDate.JobID
	}
	if a.IsLead {
		title = "★ " + title
	}
	event.SetSummary(title)
	if job.Address != "" {
		event.SetLocation(job.Address)
	}
	desc := fmt.Sprintf("工单 %s", a.ScheduleDate.JobID)
	if job.CustomerName != "" {
		desc += "，客户 " + job.CustomerName
	}
	if a.IsLead {
		desc += "，本日负责人"
	}
	event.SetDescription(desc)

	day := a.ScheduleDate.WorkDate
	start, end, ok := shiftBounds(day, a.StartTime, a.EndTime, s.loc)
	if !ok {
		local := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, s.loc)
		event.SetAllDayStartAt(local)
		event.SetAllDayEndAt(local.AddDate(0, 0, 1))
		return
	}
	event.SetStartAt(start)
	event.SetEndAt(end)
}

// shiftBounds 班次的起止时刻；结束不晚于开始视为跨午夜
func shiftBounds(day time.Time, startTime, endTime *string, loc *time.Location) (time.Time, time.Time, bool) {
	if startTime == nil || endTime == nil {
		return time.Time{}, time.Time{}, false
	}
	sm, err := dateutil.ParseClock(*startTime)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	em, err := dateutil.ParseClock(*endTime)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	base := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	start := base.Add(time.Duration(sm) * time.Minute)
	end := base.Add(time.Duration(em) * time.Minute)
	if !end.After(start) {
		end = end.AddDate(0, 0, 1)
	}
	return start, end, true
}
