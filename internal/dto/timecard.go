package dto

// ── 工时 DTO ──

// LogTimeEntryRequest 记录单条工时
type LogTimeEntryRequest struct {
	JobID       string  `json:"job_id"       binding:"required"`
	WorkDate    string  `json:"work_date"    binding:"required,datetime=2006-01-02"`
	HoursWorked float64 `json:"hours_worked" binding:"required,gt=0,lte=24"`
	Notes       string  `json:"notes"        binding:"omitempty,max=1000"`
}

// UpdateTimeEntryRequest 修改工时
type UpdateTimeEntryRequest = LogTimeEntryRequest

// LogWeekRequest 按周批量记录工时（全部成功或全部失败）
type LogWeekRequest struct {
	WeekEnding string                `json:"week_ending" binding:"required,datetime=2006-01-02"`
	Entries    []LogTimeEntryRequest `json:"entries"     binding:"required,min=1,dive"`
}

// WeekQuery 周查询参数；username 省略时取当前用户
type WeekQuery struct {
	Username   string `form:"username"    json:"username"    binding:"omitempty,max=64"`
	WeekEnding string `form:"week_ending" json:"week_ending" binding:"required,datetime=2006-01-02"`
}

// ── 响应 ──

// TimeEntryResponse 工时记录
type TimeEntryResponse struct {
	ID          string  `json:"id"`
	Username    string  `json:"username"`
	JobID       string  `json:"job_id"`
	WorkDate    string  `json:"work_date"`
	HoursWorked float64 `json:"hours_worked"`
	Notes       string  `json:"notes,omitempty"`
	Locked      bool    `json:"locked"`
}

// ContradictionResponse 工时与排班的差异
type ContradictionResponse struct {
	Type           string  `json:"type"`
	JobID          string  `json:"job_id"`
	Date           string  `json:"date"`
	ScheduledHours float64 `json:"scheduled_hours"`
	ActualHours    float64 `json:"actual_hours"`
	Difference     float64 `json:"difference"`
}

// ReconciliationResult 周工时提交核对结果；contradictions_found=0 即完全一致
type ReconciliationResult struct {
	Username            string                  `json:"username"`
	WeekEnding          string                  `json:"week_ending"`
	Status              string                  `json:"status"`
	SubmittedAt         string                  `json:"submitted_at"`
	ContradictionsFound int                     `json:"contradictions_found"`
	Contradictions      []ContradictionResponse `json:"contradictions"`
	SchedulesCreated    int                     `json:"schedules_created"`
}

// WeekLockResult 工资锁定 / 解锁结果
type WeekLockResult struct {
	Username       string `json:"username"`
	WeekEnding     string `json:"week_ending"`
	Status         string `json:"status"`
	EntriesTouched int64  `json:"entries_touched"`
}
