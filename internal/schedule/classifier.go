// Package schedule 排班派生状态的纯函数：工单分类、负责人补位策略、班次工时。
// 不访问存储，输入相同则输出相同。
package schedule

import (
	"time"

	"fieldcrew/backend/internal/model"
	"fieldcrew/backend/pkg/dateutil"
)

// Category 工单排班分类（实时计算，不落库）
type Category string

const (
	CategoryCompleted  Category = "completed"
	CategoryNeedsDate  Category = "needs_date"
	CategoryDelayed    Category = "delayed"
	CategoryScheduled  Category = "scheduled"
	CategoryUnassigned Category = "unassigned"
)

// ParseCategory 校验分类名
func ParseCategory(s string) (Category, bool) {
	switch c := Category(s); c {
	case CategoryCompleted, CategoryNeedsDate, CategoryDelayed, CategoryScheduled, CategoryUnassigned:
		return c, true
	}
	return "", false
}

// DefaultLookaheadDays 默认前瞻天数
const DefaultLookaheadDays = 14

// ClassifyInput 分类所需的全部数据
type ClassifyInput struct {
	Job           *model.Job
	Window        *model.DelayWindow // 当前未关闭的延期窗口，可为 nil
	CrewDates     []time.Time        // 至少有一名派工人员的排班日
	Today         time.Time
	LookaheadDays int
}

// Classify 按优先级判定分类，先命中者生效：
// completed → needs_date → delayed → scheduled → unassigned
func Classify(in ClassifyInput) Category {
	job := in.Job
	today := dateutil.Normalize(in.Today)

	if job.IsTerminal() {
		return CategoryCompleted
	}
	if job.StartDate == nil {
		return CategoryNeedsDate
	}

	var window *model.DelayWindow
	if in.Window != nil && in.Window.ActiveOn(today) {
		window = in.Window
	}

	if window != nil && (window.Indefinite() || window.Range().Contains(today)) {
		return CategoryDelayed
	}

	lookahead := in.LookaheadDays
	if lookahead <= 0 {
		lookahead = DefaultLookaheadDays
	}
	horizon := dateutil.AddDays(today, lookahead)

	for _, d := range in.CrewDates {
		d = dateutil.Normalize(d)
		if d.Before(today) || d.After(horizon) {
			continue
		}
		// 区间延期只屏蔽区间内的日期；区间外的派工仍然有效
		if window != nil && window.Range().Contains(d) {
			continue
		}
		return CategoryScheduled
	}

	return CategoryUnassigned
}
