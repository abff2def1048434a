package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

func anonymousSession(sessions Sessions, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		s, err := sessions.Anonymous()
		if err != nil {
			logger.WithError(err).Error("failed to issue anonymous session")
			return c.String(http.StatusServiceUnavailable, "session unavailable")
		}
		logger.WithField("subject", s.Subject).Info("anonymous session issued")
		return c.JSON(http.StatusCreated, s)
	}
}
