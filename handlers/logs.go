package handlers

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/nci/sdi/metrics"
)

func LogHandlerFunc(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		meth := c.Request().Method
		path := c.Request().URL
		BEGIN := time.Now()
		c.Logger().Debugf("< request @[%s] %s %s", BEGIN, meth, path)

		var err error

		defer func() {
			END := time.Now()
			c.Logger().Infof(
				"> response status = %d (for request @[%s] %s %s) in %v / error = %v",
				c.Response().Status, BEGIN, meth, path, END.Sub(BEGIN), err,
			)
		}()

		err = next(c)
		return err
	}
}

// SetLevel sets the echo logger level from debug, info, warn, error or
// off.
func SetLevel(e *echo.Echo, loglevel string) {
	switch strings.ToLower(loglevel) {
	case "debug":
		e.Logger.SetLevel(log.DEBUG)
	case "info":
		e.Logger.SetLevel(log.INFO)
	case "warn", "warning", "":
		e.Logger.SetLevel(log.WARN)
	case "error":
		e.Logger.SetLevel(log.ERROR)
	case "off":
		e.Logger.SetLevel(log.OFF)
	default:
		e.Logger.SetLevel(log.WARN)
		e.Logger.Warnf("unknown loglevel: %s . fall-backed to warn", loglevel)
	}
}

// MetricsMiddleware records every request in Prometheus and in the
// metrics log when l is set.
func MetricsMiddleware(l metrics.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m := metrics.NewMetricsCollector(l)
			start := time.Now()

			err := next(c)
			if err != nil {
				// commit the error response so its status is recorded
				c.Error(err)
				m.Info.Admin.Error = err.Error()
			}

			req := c.Request()
			m.Info.ReqDuration = time.Since(start)
			m.Info.Method = req.Method
			m.Info.URL.RawURL = req.URL.String()
			m.Info.URL.Host = req.Host
			m.Info.URL.Path = req.URL.Path
			m.Info.RemoteAddr = req.RemoteAddr
			m.Info.HTTPStatus = c.Response().Status
			m.Info.Admin.Route = c.Path()
			m.Info.Admin.Spec = c.Param("spec")
			m.Info.Admin.Instance = c.Param("id")
			m.Log()
			return nil
		}
	}
}
