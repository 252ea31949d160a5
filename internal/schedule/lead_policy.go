package schedule

import (
	"sort"
	"time"

	"fieldcrew/backend/config"
	"fieldcrew/backend/internal/model"
)

// Candidate 补位负责人候选
type Candidate struct {
	Username   string
	AssignedAt time.Time
	Role       string     // 花名册角色，未知时为空
	HiredAt    *time.Time // 入职日期，未知时为 nil
}

// LeadPolicy 负责人被移除后，从剩余人员中选出新负责人
type LeadPolicy interface {
	Name() string
	// NeedsRoster 是否需要花名册信息（角色、入职日期）
	NeedsRoster() bool
	Pick(candidates []Candidate) (Candidate, bool)
}

// NewLeadPolicy 按配置名创建策略，未知名称回落到 earliest_assigned
func NewLeadPolicy(name string) LeadPolicy {
	if name == config.LeadPolicyRoleSeniority {
		return RoleSeniority{}
	}
	return EarliestAssigned{}
}

// EarliestAssigned 派工最早者优先；同一时刻按用户名
type EarliestAssigned struct{}

func (EarliestAssigned) Name() string      { return config.LeadPolicyEarliestAssigned }
func (EarliestAssigned) NeedsRoster() bool { return false }

func (EarliestAssigned) Pick(candidates []Candidate) (Candidate, bool) {
	if len(candidates) == 0 {
		return Candidate{}, false
	}
	sorted := append([]Candidate(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return earlierAssignment(sorted[i], sorted[j])
	})
	return sorted[0], true
}

// RoleSeniority 角色资历 → 入职早 → 派工早
type RoleSeniority struct{}

func (RoleSeniority) Name() string      { return config.LeadPolicyRoleSeniority }
func (RoleSeniority) NeedsRoster() bool { return true }

func (RoleSeniority) Pick(candidates []Candidate) (Candidate, bool) {
	if len(candidates) == 0 {
		return Candidate{}, false
	}
	sorted := append([]Candidate(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if ra, rb := model.RoleRank(a.Role), model.RoleRank(b.Role); ra != rb {
			return ra < rb
		}
		switch {
		case a.HiredAt != nil && b.HiredAt != nil && !a.HiredAt.Equal(*b.HiredAt):
			return a.HiredAt.Before(*b.HiredAt)
		case a.HiredAt != nil && b.HiredAt == nil:
			return true
		case a.HiredAt == nil && b.HiredAt != nil:
			return false
		}
		return earlierAssignment(a, b)
	})
	return sorted[0], true
}

func earlierAssignment(a, b Candidate) bool {
	if !a.AssignedAt.Equal(b.AssignedAt) {
		return a.AssignedAt.Before(b.AssignedAt)
	}
	return a.Username < b.Username
}
