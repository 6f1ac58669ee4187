package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"example.com/BoltServer/utils"
)

const requestIDKey = "request_id"

// requestLog 给每个请求发一个 uuid 并记录访问日志
// 慢目标会把单个请求拖很久，这属于正常情况，日志里带时长方便观察
func requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.NewString()
		c.Set(requestIDKey, id)
		c.Header("X-Request-Id", id)

		start := time.Now()
		c.Next()

		utils.Logger.Info("request",
			"request_id", id,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
		)
	}
}

func requestID(c *gin.Context) string {
	if id, ok := c.Get(requestIDKey); ok {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}
