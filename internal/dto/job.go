package dto

// ── 工单分类 & 延期 DTO ──

// ListJobsRequest 按排班分类列出工单
type ListJobsRequest struct {
	Category string `form:"category" binding:"required,oneof=completed needs_date delayed scheduled unassigned"`
}

// ApplyDelayRequest 设置延期请求；end_date 省略表示无限期
type ApplyDelayRequest struct {
	StartDate string  `json:"start_date" binding:"required,datetime=2006-01-02"`
	EndDate   *string `json:"end_date"   binding:"omitempty,datetime=2006-01-02"`
	Reason    string  `json:"reason"     binding:"required,min=1,max=500"`
}

// ClearDelayRequest 解除延期查询参数
type ClearDelayRequest struct {
	ClearHistory bool `form:"clear_history"`
}

// ── 响应 ──

// DelayWindowResponse 延期窗口
type DelayWindowResponse struct {
	ID         string  `json:"id"`
	JobID      string  `json:"job_id"`
	StartDate  string  `json:"start_date"`
	EndDate    *string `json:"end_date"`
	Indefinite bool    `json:"indefinite"`
	Active     bool    `json:"active"`
	Reason     string  `json:"reason"`
	CreatedBy  string  `json:"created_by"`
	CreatedAt  string  `json:"created_at"`
}

// JobCategoryResponse 工单及其实时排班分类
type JobCategoryResponse struct {
	JobID           string               `json:"job_id"`
	Title           string               `json:"title"`
	Status          string               `json:"status"`
	StartDate       *string              `json:"start_date"`
	Category        string               `json:"category"`
	DelayWindow     *DelayWindowResponse `json:"delay_window,omitempty"`
	LastDelayReason string               `json:"last_delay_reason,omitempty"`
}

// SweepResult 延期自动到期清扫结果
type SweepResult struct {
	Expired []string          `json:"expired"`
	Failed  map[string]string `json:"failed,omitempty"`
}
