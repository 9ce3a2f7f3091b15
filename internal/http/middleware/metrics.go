package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/sales/internal/metrics"
)

// Metrics считает запросы и их длительность по шаблону маршрута.
func Metrics(m *metrics.HTTPMetrics) gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		m.Observe(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
