package dto

// ── 休假 DTO ──

// CreatePTORequest 提交休假申请；username 仅管理员可代填
type CreatePTORequest struct {
	Username  string `json:"username"   binding:"omitempty,max=64"`
	StartDate string `json:"start_date" binding:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date"   binding:"required,datetime=2006-01-02"`
	Reason    string `json:"reason"     binding:"omitempty,max=500"`
}

// DecidePTORequest 审批 / 驳回请求
type DecidePTORequest struct {
	RemoveFromSchedule bool   `json:"remove_from_schedule"`
	AdminNotes         string `json:"admin_notes" binding:"omitempty,max=1000"`
}

// PTOListRequest 休假列表查询参数
type PTOListRequest struct {
	Username string `form:"username" binding:"omitempty,max=64"`
	Status   string `form:"status"   binding:"omitempty,oneof=pending approved denied"`
	PaginationRequest
}

// ── 响应 ──

// PTOResponse 休假申请
type PTOResponse struct {
	ID                 string  `json:"id"`
	Username           string  `json:"username"`
	StartDate          string  `json:"start_date"`
	EndDate            string  `json:"end_date"`
	Status             string  `json:"status"`
	Reason             string  `json:"reason,omitempty"`
	ApprovedBy         *string `json:"approved_by,omitempty"`
	DecidedAt          *string `json:"decided_at,omitempty"`
	AdminNotes         string  `json:"admin_notes,omitempty"`
	RemoveFromSchedule bool    `json:"remove_from_schedule"`
	CreatedAt          string  `json:"created_at"`
}

// CascadeItem 休假联动中单个排班日的处理结果
type CascadeItem struct {
	JobID             string  `json:"job_id"`
	ScheduleDateID    string  `json:"schedule_date_id"`
	Date              string  `json:"date"`
	WasLead           bool    `json:"was_lead"`
	NewLeadAssigned   *string `json:"new_lead_assigned"`
	NeedsReassignment bool    `json:"needs_reassignment"`
	Success           bool    `json:"success"`
	Error             string  `json:"error,omitempty"`
}

// CascadeResult 休假联动汇总；affected_jobs 按日期升序
type CascadeResult struct {
	TotalAffectedJobs       int           `json:"total_affected_jobs"`
	JobsNeedingReassignment int           `json:"jobs_needing_reassignment"`
	FailedCount             int           `json:"failed_count"`
	AffectedJobs            []CascadeItem `json:"affected_jobs"`
}

// PTODecisionResponse 审批结果
type PTODecisionResponse struct {
	Request PTOResponse    `json:"request"`
	Cascade *CascadeResult `json:"cascade,omitempty"`

	// 审批已生效但联动未执行完时的提示
	CascadeError string `json:"cascade_error,omitempty"`
}
