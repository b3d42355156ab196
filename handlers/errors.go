package handlers

import (
	"encoding/xml"
	"net/http"

	"github.com/juju/errors"
	"github.com/labstack/echo/v4"

	"github.com/nci/sdi/configuration"
)

type ErrorResponse struct {
	XMLName xml.Name `json:"-" xml:"Error"`
	Error   string   `json:"error" xml:"message"`
}

// StatusOf maps an error to the HTTP status reported to clients.
func StatusOf(err error) int {
	var he *echo.HTTPError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &he):
		return he.Code
	case errors.Is(err, configuration.ErrNotRunningService):
		return http.StatusServiceUnavailable
	case errors.Is(err, configuration.ErrNoSuchInstance), errors.Is(err, errors.NotFound):
		return http.StatusNotFound
	case errors.Is(err, configuration.ErrMissingConfiguration), errors.Is(err, errors.AlreadyExists):
		return http.StatusConflict
	case errors.Is(err, errors.NotValid):
		return http.StatusBadRequest
	case errors.Is(err, errors.NotSupported):
		return http.StatusNotImplemented
	case errors.Is(err, errors.QuotaLimitExceeded):
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// ErrorHandler writes errors returned by handlers as {"error": ...}.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := StatusOf(err)
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg = http.StatusText(he.Code)
		if m, ok := he.Message.(string); ok {
			msg = m
		}
	}
	if code >= http.StatusInternalServerError {
		logger.Errorf("%s %s: %s", c.Request().Method, c.Request().URL, errors.ErrorStack(err))
	} else {
		logger.Debugf("%s %s: %v", c.Request().Method, c.Request().URL, err)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = respond(c, code, ErrorResponse{Error: msg})
	}
	if err != nil {
		logger.Errorf("writing error response: %v", err)
	}
}
