package handler

import (
	"github.com/gin-gonic/gin"

	"fieldcrew/backend/internal/api/middleware"
	"fieldcrew/backend/internal/model"
	"fieldcrew/backend/pkg/response"
)

// MustGetUsername 从 Gin 上下文中安全提取当前用户名。
// 如果 JWT 中间件未正确注入，返回 false 并写入 401 响应。
// 调用方应在 ok=false 时直接 return。
func MustGetUsername(c *gin.Context) (string, bool) {
	username := c.GetString(middleware.ContextUsername)
	if username == "" {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	return username, true
}

// isPrivileged 管理员与经理可代其他员工操作
func isPrivileged(c *gin.Context) bool {
	switch c.GetString(middleware.ContextRole) {
	case model.RoleAdmin, model.RoleManager:
		return true
	}
	return false
}

// resolveSubject 确定本次操作针对的员工：
// 未指定时为当前用户；指定他人时要求管理角色，否则写入 403。
func resolveSubject(c *gin.Context, requested string) (string, bool) {
	self, ok := MustGetUsername(c)
	if !ok {
		return "", false
	}
	if requested == "" || requested == self {
		return self, true
	}
	if !isPrivileged(c) {
		response.Forbidden(c, 10003, "只能操作本人的数据")
		return "", false
	}
	return requested, true
}
