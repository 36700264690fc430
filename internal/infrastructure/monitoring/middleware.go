package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection. The route
// template is used as the path label so IDs do not explode cardinality.
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method

		reqSize := c.Request.ContentLength
		if reqSize < 0 {
			reqSize = 0
		}

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		duration := time.Since(start)
		status := strconv.Itoa(c.Writer.Status())
		respSize := int64(c.Writer.Size())
		if respSize < 0 {
			respSize = 0
		}

		metrics.RecordHTTPRequest(method, path, status, duration, reqSize, respSize)
	}
}

// Timer measures a sandbox run
type Timer struct {
	start   time.Time
	metrics *Metrics
	trigger string
}

// NewTimer starts timing a run
func NewTimer(metrics *Metrics, trigger string) *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: metrics,
		trigger: trigger,
	}
}

// Stop records the run with its final state
func (t *Timer) Stop(state string) time.Duration {
	duration := time.Since(t.start)
	t.metrics.RecordRun(t.trigger, state, duration)
	return duration
}
