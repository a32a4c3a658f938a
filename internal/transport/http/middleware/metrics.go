package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

type RequestRecorder interface {
	StartRequest()
	FinishRequest(method, path string, status int, duration time.Duration)
}

// Metrics records request counts and latency labelled by route template.
func Metrics(rec RequestRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		rec.StartRequest()
		c.Next()
		rec.FinishRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}
