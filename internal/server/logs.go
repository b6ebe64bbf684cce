package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

// routeFields names the path parameters that identify a record in log lines.
var routeFields = map[string]string{
	"project": "project_id",
	"version": "version",
}

// LogHandlerFunc logs each request with the project and version it addresses,
// the resulting status and latency.
func LogHandlerFunc(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		target := fmt.Sprintf("%s %s%s", req.Method, req.URL.Path, recordFields(c))
		begin := time.Now()
		c.Logger().Debugf("< %s", target)

		err := next(c)

		elapsed := time.Since(begin)
		if err != nil {
			c.Logger().Infof("> %s status=%d in %v error=%v", target, statusOf(c, err), elapsed, err)
			return err
		}
		c.Logger().Infof("> %s status=%d in %v", target, statusOf(c, nil), elapsed)
		return nil
	}
}

func recordFields(c echo.Context) string {
	var b strings.Builder
	for _, name := range c.ParamNames() {
		field, ok := routeFields[name]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, " %s=%s", field, c.Param(name))
	}
	return b.String()
}

// statusOf reports the status the client will see. Errors are rendered by
// the error handler after the middleware returns.
func statusOf(c echo.Context, err error) int {
	if err == nil {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

// SetLevel maps a level name onto the echo logger. Unknown names fall back to warn.
func SetLevel(e *echo.Echo, loglevel string) {
	switch strings.ToLower(loglevel) {
	case "debug":
		e.Logger.SetLevel(log.DEBUG)
	case "info":
		e.Logger.SetLevel(log.INFO)
	case "", "warn":
		e.Logger.SetLevel(log.WARN)
	case "error":
		e.Logger.SetLevel(log.ERROR)
	case "off":
		e.Logger.SetLevel(log.OFF)
	default:
		e.Logger.SetLevel(log.WARN)
		e.Logger.Warnf("unknown loglevel: %s, falling back to warn", loglevel)
	}
}
