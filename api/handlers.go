package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"tasksync/domain"
)

const maxBodySize = 64 << 10

type toggleRequest struct {
	Completed bool `json:"completed"`
}

type priorityRequest struct {
	Priority domain.Priority `json:"priority"`
}

type alarmRequest struct {
	AlarmTime      *time.Time `json:"alarmTime"`
	NotificationID string     `json:"notificationId"`
}

type tasksResponse struct {
	Tasks   []domain.Task `json:"tasks"`
	Offline bool          `json:"offline"`
}

func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, maxBodySize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// writeError maps the error taxonomy onto status codes.
func writeError(c echo.Context, err error) error {
	status, stage := http.StatusInternalServerError, "internal"
	switch {
	case errors.Is(err, domain.ErrInvalidTask):
		status, stage = http.StatusBadRequest, "validation"
	case errors.Is(err, domain.ErrNotFound):
		status, stage = http.StatusNotFound, "not_found"
	case domain.IsConnectivity(err):
		status, stage = http.StatusServiceUnavailable, "remote"
	default:
		c.Logger().Error(err)
	}
	setErrorStage(c, stage)
	return c.String(status, err.Error())
}

func healthz(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func listTasks(tasks Tasks) echo.HandlerFunc {
	return func(c echo.Context) error {
		list, err := tasks.ListTasks(c.Request().Context())
		if err != nil {
			return writeError(c, err)
		}
		setTasksReturned(c, len(list))
		return c.JSON(http.StatusOK, tasksResponse{Tasks: list, Offline: !tasks.Status().Online})
	}
}

func addTask(tasks Tasks) echo.HandlerFunc {
	return func(c echo.Context) error {
		var in domain.TaskInput
		if err := decodeBody(c, &in); err != nil {
			setErrorStage(c, "decode")
			return c.String(http.StatusBadRequest, "invalid body")
		}
		res, err := tasks.AddTask(c.Request().Context(), in)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusCreated, res)
	}
}

func toggleTask(tasks Tasks) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req toggleRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		res, err := tasks.ToggleTask(c.Request().Context(), c.Param("id"), req.Completed)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, res)
	}
}

func setPriority(tasks Tasks) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req priorityRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		p, err := domain.ParsePriority(string(req.Priority))
		if err != nil || req.Priority == "" {
			return c.String(http.StatusBadRequest, "invalid priority")
		}
		res, err := tasks.SetPriority(c.Request().Context(), c.Param("id"), p)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, res)
	}
}

func setAlarm(tasks Tasks) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req alarmRequest
		if err := decodeBody(c, &req); err != nil || req.AlarmTime == nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		res, err := tasks.SetAlarm(c.Request().Context(), c.Param("id"), *req.AlarmTime, req.NotificationID)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, res)
	}
}

func clearAlarm(tasks Tasks) echo.HandlerFunc {
	return func(c echo.Context) error {
		res, err := tasks.ClearAlarm(c.Request().Context(), c.Param("id"))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, res)
	}
}

func deleteTask(tasks Tasks) echo.HandlerFunc {
	return func(c echo.Context) error {
		res, err := tasks.DeleteTask(c.Request().Context(), c.Param("id"))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, res)
	}
}

func status(tasks Tasks) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, tasks.Status())
	}
}

func diagnose(tasks Tasks) echo.HandlerFunc {
	return func(c echo.Context) error {
		rep := tasks.Diagnose(c.Request().Context())
		if !rep.OK() {
			return c.JSON(http.StatusServiceUnavailable, rep)
		}
		return c.JSON(http.StatusOK, rep)
	}
}
