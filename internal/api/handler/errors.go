package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	pkgerrors "fieldcrew/backend/pkg/errors"
	"fieldcrew/backend/pkg/response"
)

// 业务错误码：按错误分类区分
const (
	codeBadParam     = 10001
	codeValidation   = 40001
	codeNotFound     = 40401
	codeConflict     = 40901
	codeInvalidState = 42201
)

// handleError 按业务错误分类映射 HTTP 状态码；非业务错误统一 500
func handleError(c *gin.Context, err error) {
	msg := pkgerrors.MessageOf(err)
	switch pkgerrors.KindOf(err) {
	case pkgerrors.KindValidation:
		if detail := err.Error(); detail != msg {
			response.ErrorWithDetails(c, http.StatusBadRequest, codeValidation, msg, detail)
			return
		}
		response.BadRequest(c, codeValidation, msg)
	case pkgerrors.KindNotFound:
		response.NotFound(c, codeNotFound, msg)
	case pkgerrors.KindConflict:
		response.Conflict(c, codeConflict, msg)
	case pkgerrors.KindInvalidState:
		response.Unprocessable(c, codeInvalidState, msg)
	default:
		_ = c.Error(err)
		response.InternalError(c)
	}
}

// badParam 请求参数绑定失败
func badParam(c *gin.Context, err error) {
	response.ErrorWithDetails(c, http.StatusBadRequest, codeBadParam, "参数校验失败", err.Error())
}
