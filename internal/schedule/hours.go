package schedule

import (
	"math"

	"fieldcrew/backend/internal/model"
	"fieldcrew/backend/pkg/dateutil"
)

// ScheduledHours 派工的计划工时：有起止时间时按时间差计算（跨午夜按次日结束），
// 否则取默认班次时长
func ScheduledHours(a *model.CrewAssignment, defaultHours float64) float64 {
	if a.StartTime == nil || a.EndTime == nil {
		return defaultHours
	}
	start, err := dateutil.ParseClock(*a.StartTime)
	if err != nil {
		return defaultHours
	}
	end, err := dateutil.ParseClock(*a.EndTime)
	if err != nil {
		return defaultHours
	}
	minutes := end - start
	if minutes <= 0 {
		minutes += 24 * 60
	}
	return RoundHours(float64(minutes) / 60)
}

// BackfillShift 为补录派工生成起止时间，使计划工时等于实际工时。
// 从 defaultStart 开始；若会越过午夜则改为从 00:00 开始。
func BackfillShift(defaultStart string, hours float64) (string, string) {
	start, err := dateutil.ParseClock(defaultStart)
	if err != nil {
		start = 7 * 60
	}
	minutes := int(math.Round(hours * 60))
	if minutes > 24*60 {
		minutes = 24 * 60
	}
	if start+minutes > 24*60 {
		start = 0
	}
	return dateutil.FormatClock(start), dateutil.FormatClock(start + minutes)
}

// RoundHours 工时保留两位小数
func RoundHours(h float64) float64 {
	return math.Round(h*100) / 100
}

// HoursDiffer 实际与计划工时是否超出容差。
// 班次时间精确到分钟，比较前先折算为整分钟，不足一分钟的差异忽略。
func HoursDiffer(logged, scheduled, tolerance float64) bool {
	diff := math.Round(logged*60) - math.Round(scheduled*60)
	return math.Abs(diff) > tolerance*60
}
