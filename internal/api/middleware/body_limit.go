package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"fieldcrew/backend/pkg/response"
)

// BodyLimit 请求体大小限制
// 批量工时与整表派工是最大的请求体，maxBytes 按它们估算
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			tooLarge(c, maxBytes)
			c.Abort()
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}

		c.Next()

		if c.Writer.Written() {
			return
		}
		for _, ginErr := range c.Errors {
			var maxErr *http.MaxBytesError
			if errors.As(ginErr.Err, &maxErr) {
				tooLarge(c, maxBytes)
				return
			}
		}
	}
}

func tooLarge(c *gin.Context, maxBytes int64) {
	response.Error(c, http.StatusRequestEntityTooLarge, 10005, fmt.Sprintf("请求体过大，上限 %d 字节", maxBytes))
}
