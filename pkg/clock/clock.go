// Package clock 抽象"当前时间"，让依赖"今天"的排班逻辑可在测试中固定时间。
package clock

import "time"

// Clock 时间来源
type Clock interface {
	Now() time.Time
}

// Real 系统时钟，按指定时区返回当前时间
type Real struct {
	Loc *time.Location
}

func (r Real) Now() time.Time {
	if r.Loc == nil {
		return time.Now()
	}
	return time.Now().In(r.Loc)
}

// Fixed 固定时钟（测试用）
type Fixed struct {
	T time.Time
}

func (f Fixed) Now() time.Time { return f.T }

// Today 当前日历日（UTC 零点表示）
func Today(c Clock) time.Time {
	now := c.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
