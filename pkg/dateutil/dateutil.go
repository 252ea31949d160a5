// Package dateutil 日历日期运算：周边界、日期区间、区间重叠。
//
// 所有日期统一表示为 UTC 零点的 time.Time，只比较日历日，不含时刻。
package dateutil

import (
	"errors"
	"fmt"
	"time"
)

// Layout 日期文本格式
const Layout = "2006-01-02"

var (
	ErrInvalidDate  = errors.New("日期格式无效，应为 YYYY-MM-DD")
	ErrInvalidRange = errors.New("结束日期不能早于开始日期")
	ErrInvalidClock = errors.New("时间格式无效，应为 HH:MM")
)

// Normalize 取 t 所在日历日的 UTC 零点
func Normalize(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate 解析 YYYY-MM-DD
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(Layout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}

// Format 输出 YYYY-MM-DD
func Format(t time.Time) string {
	return t.Format(Layout)
}

// AddDays 日期加减天数
func AddDays(d time.Time, n int) time.Time {
	return Normalize(d).AddDate(0, 0, n)
}

// WeekEndingSunday 返回 d 当天或之后最近的周日
func WeekEndingSunday(d time.Time) time.Time {
	d = Normalize(d)
	offset := (7 - int(d.Weekday())) % 7
	return d.AddDate(0, 0, offset)
}

// IsSunday 判断是否为周日
func IsSunday(d time.Time) bool {
	return d.Weekday() == time.Sunday
}

// WeekStart 周结束日（周日）对应的周一
func WeekStart(weekEnding time.Time) time.Time {
	return AddDays(weekEnding, -6)
}

// DateRange 返回 [start, end] 内的全部日期（升序、含两端）
func DateRange(start, end time.Time) ([]time.Time, error) {
	start, end = Normalize(start), Normalize(end)
	if end.Before(start) {
		return nil, ErrInvalidRange
	}
	days := int(end.Sub(start).Hours()/24) + 1
	out := make([]time.Time, 0, days)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out, nil
}

// InRange d 是否落在 [start, end] 内（含两端）
func InRange(d, start, end time.Time) bool {
	d = Normalize(d)
	return !d.Before(Normalize(start)) && !d.After(Normalize(end))
}

// Range 日期区间；End 为 nil 表示无限期
type Range struct {
	Start time.Time
	End   *time.Time
}

// Indefinite 是否为无限期区间
func (r Range) Indefinite() bool { return r.End == nil }

// Contains d 是否在区间内
func (r Range) Contains(d time.Time) bool {
	d = Normalize(d)
	if d.Before(Normalize(r.Start)) {
		return false
	}
	return r.End == nil || !d.After(Normalize(*r.End))
}

// Overlaps 两个区间是否有交集
func (r Range) Overlaps(o Range) bool {
	// r 在 o 之前结束
	if r.End != nil && Normalize(*r.End).Before(Normalize(o.Start)) {
		return false
	}
	if o.End != nil && Normalize(*o.End).Before(Normalize(r.Start)) {
		return false
	}
	return true
}

// ── 钟点（HH:MM） ──

// ParseClock 解析 HH:MM 为当日分钟数，允许 24:00 表示当日结束
func ParseClock(s string) (int, error) {
	var h, m int
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	if _, err := fmt.Sscanf(s, "%02d:%02d", &h, &m); err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	if h < 0 || h > 24 || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return h*60 + m, nil
}

// FormatClock 分钟数输出为 HH:MM
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
