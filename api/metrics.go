package api

import (
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

const (
	metricsKey    = "tasksync.request.metrics"
	metricsSubsys = "tasksync"
)

type requestMetrics struct {
	start         time.Time
	tasksReturned int
	errorStage    string
}

func (m *requestMetrics) fields(c echo.Context, err error) log.Fields {
	fields := log.Fields{
		"route":    c.Path(),
		"method":   c.Request().Method,
		"status":   c.Response().Status,
		"total_ms": durationToMillis(time.Since(m.start)),
	}
	if m.tasksReturned > 0 {
		fields["tasks_returned"] = m.tasksReturned
	}
	if m.errorStage != "" {
		fields["error_stage"] = m.errorStage
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	return fields
}

// RequestMetrics logs one structured line per API request. The event stream
// is logged when it closes.
func RequestMetrics(logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m := &requestMetrics{start: time.Now()}
			c.Set(metricsKey, m)
			err := next(c)
			if c.Path() == "/healthz" {
				return err
			}
			logger.WithFields(m.fields(c, err)).Info("api.request.metrics")
			return err
		}
	}
}

func metricsFrom(c echo.Context) *requestMetrics {
	m, _ := c.Get(metricsKey).(*requestMetrics)
	return m
}

func setTasksReturned(c echo.Context, n int) {
	if m := metricsFrom(c); m != nil && n > 0 {
		m.tasksReturned = n
	}
}

func setErrorStage(c echo.Context, stage string) {
	if m := metricsFrom(c); m != nil {
		m.errorStage = stage
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}

// RegisterMetrics serves prometheus metrics gathered from reg on /metrics and
// records HTTP request metrics into it.
func RegisterMetrics(e *echo.Echo, reg *prometheus.Registry) {
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  metricsSubsys,
		Registerer: reg,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics" || c.Path() == "/api/stream"
		},
	}))
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: reg}))
}
