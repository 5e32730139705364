package api

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader 是请求ID在请求和响应中使用的头名称。
const RequestIDHeader = "X-Request-ID"

// RequestIDMiddleware 为每个请求分配一个UUID，用于日志关联。
// 调用方已携带请求ID时原样沿用。
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(RequestIDHeader, requestID)
		c.Header(RequestIDHeader, requestID)
		c.Next()
	}
}
