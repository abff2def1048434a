package api

import (
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"tasksync/domain"
)

var streamHeartbeat = 30 * time.Second

type streamEvent struct {
	Tasks  []domain.Task `json:"tasks"`
	Online bool          `json:"online"`
}

// streamTasks pushes every task list the orchestrator delivers as a
// server-sent event. Only the newest undelivered list is kept per client.
func streamTasks(tasks Tasks, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}
		c.Response().WriteHeader(http.StatusOK)
		if _, err := c.Response().Write([]byte(":ok\n\n")); err != nil {
			return nil
		}
		flusher.Flush()

		ctx := c.Request().Context()
		ch := make(chan []domain.Task, 1)
		unsubscribe := tasks.Subscribe(ctx, func(list []domain.Task) {
			select {
			case ch <- list:
			default:
				select {
				case <-ch:
				default:
				}
				select {
				case ch <- list:
				default:
				}
			}
		})
		defer unsubscribe()

		entry := logger.WithField("remote", c.RealIP())
		entry.Debug("stream opened")
		defer entry.Debug("stream closed")

		ticker := time.NewTicker(streamHeartbeat)
		defer ticker.Stop()
		for {
			select {
			case list := <-ch:
				data, err := sonic.Marshal(streamEvent{Tasks: list, Online: tasks.Status().Online})
				if err != nil {
					entry.WithError(err).Error("failed to encode stream event")
					return err
				}
				if _, err := c.Response().Write([]byte("data: ")); err != nil {
					return nil
				}
				if _, err := c.Response().Write(data); err != nil {
					return nil
				}
				if _, err := c.Response().Write([]byte("\n\n")); err != nil {
					return nil
				}
				flusher.Flush()
			case <-ticker.C:
				if _, err := c.Response().Write([]byte(":keepalive\n\n")); err != nil {
					return nil
				}
				flusher.Flush()
			case <-ctx.Done():
				return nil
			}
		}
	}
}
