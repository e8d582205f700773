package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/catalog-authz/internal/observability"
)

// Metrics returns a middleware that records request count, latency and
// in-flight requests. Requests are labelled by route template so that
// product ids never become label values.
func Metrics(m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Request.Method
		m.IncrementActiveRequests(method)
		start := time.Now()

		c.Next()

		m.DecrementActiveRequests(method)
		m.RecordRequest(method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}
