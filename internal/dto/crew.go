package dto

// ── 派工 DTO ──

// AssignCrewRequest 单人派工请求
type AssignCrewRequest struct {
	Date      string  `json:"date"       binding:"required,datetime=2006-01-02"`
	Username  string  `json:"username"   binding:"required,max=64"`
	IsLead    bool    `json:"is_lead"`
	StartTime *string `json:"start_time" binding:"omitempty,len=5"`
	EndTime   *string `json:"end_time"   binding:"omitempty,len=5"`
}

// CrewMemberInput 整体替换时的单个成员
type CrewMemberInput struct {
	Username  string  `json:"username"   binding:"required,max=64"`
	IsLead    bool    `json:"is_lead"`
	StartTime *string `json:"start_time" binding:"omitempty,len=5"`
	EndTime   *string `json:"end_time"   binding:"omitempty,len=5"`
}

// BulkReplaceRequest 整体替换某日人员；空列表表示清空
type BulkReplaceRequest struct {
	Members []CrewMemberInput `json:"members" binding:"dive"`
}

// SetLeadRequest 指定负责人
type SetLeadRequest struct {
	Username string `json:"username" binding:"required,max=64"`
}

// ── 响应 ──

// CrewMemberResponse 派工成员
type CrewMemberResponse struct {
	CrewAssignmentID string  `json:"crew_assignment_id"`
	Username         string  `json:"username"`
	IsLead           bool    `json:"is_lead"`
	StartTime        *string `json:"start_time,omitempty"`
	EndTime          *string `json:"end_time,omitempty"`
	AssignedAt       string  `json:"assigned_at"`
	AssignedBy       string  `json:"assigned_by"`
}

// ScheduleDateResponse 排班日及其人员
type ScheduleDateResponse struct {
	ScheduleDateID string               `json:"schedule_date_id"`
	JobID          string               `json:"job_id"`
	Date           string               `json:"date"`
	Crew           []CrewMemberResponse `json:"crew"`
}

// UnassignResult 移除派工结果
type UnassignResult struct {
	ScheduleDateID    string  `json:"schedule_date_id"`
	JobID             string  `json:"job_id"`
	Date              string  `json:"date"`
	WasLead           bool    `json:"was_lead"`
	NewLead           *string `json:"new_lead_assigned"`
	RemainingCrew     int     `json:"remaining_crew"`
	NeedsReassignment bool    `json:"needs_reassignment"`
}
