package api

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"tasksync/domain"
	"tasksync/identity"
	"tasksync/syncer"
)

// Tasks is the orchestrator surface served over HTTP.
type Tasks interface {
	ListTasks(ctx context.Context) ([]domain.Task, error)
	AddTask(ctx context.Context, in domain.TaskInput) (syncer.WriteResult, error)
	ToggleTask(ctx context.Context, id string, current bool) (syncer.WriteResult, error)
	SetPriority(ctx context.Context, id string, priority domain.Priority) (syncer.WriteResult, error)
	SetAlarm(ctx context.Context, id string, at time.Time, notificationID string) (syncer.WriteResult, error)
	ClearAlarm(ctx context.Context, id string) (syncer.WriteResult, error)
	DeleteTask(ctx context.Context, id string) (syncer.WriteResult, error)
	Status() domain.SyncState
	Subscribe(ctx context.Context, onChange func([]domain.Task)) syncer.Unsubscribe
	Diagnose(ctx context.Context) syncer.Report
}

// Sessions issues anonymous sessions.
type Sessions interface {
	Anonymous() (identity.Session, error)
}

// Register wires up all API routes on the provided Echo instance. sessions
// may be nil, in which case no session endpoint is served.
func Register(e *echo.Echo, tasks Tasks, sessions Sessions, logger *log.Logger) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	e.Use(RequestMetrics(logger))

	e.GET("/api/tasks", listTasks(tasks))
	e.POST("/api/tasks", addTask(tasks))
	e.POST("/api/tasks/:id/toggle", toggleTask(tasks))
	e.PUT("/api/tasks/:id/priority", setPriority(tasks))
	e.PUT("/api/tasks/:id/alarm", setAlarm(tasks))
	e.DELETE("/api/tasks/:id/alarm", clearAlarm(tasks))
	e.DELETE("/api/tasks/:id", deleteTask(tasks))
	e.GET("/api/status", status(tasks))
	e.GET("/api/diagnostics", diagnose(tasks))
	e.GET("/api/stream", streamTasks(tasks, logger))
	if sessions != nil {
		e.POST(identity.AnonymousPath, anonymousSession(sessions, logger))
	}
	e.GET("/healthz", healthz)
}
