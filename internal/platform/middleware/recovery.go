package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// recordParams are the route parameters that identify the billing record a
// request was working on.
var recordParams = []string{"patient_id", "encounter_id", "code"}

func withRecordParams(evt *zerolog.Event, c echo.Context) *zerolog.Event {
	for _, name := range recordParams {
		if v := c.Param(name); v != "" {
			evt = evt.Str(name, v)
		}
	}
	return evt
}

// Recovery turns a handler panic into a 500 and logs it against the route
// and record ids. http.ErrAbortHandler is re-raised so net/http can abort the
// response.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if e, ok := r.(error); ok && errors.Is(e, http.ErrAbortHandler) {
					panic(r)
				}

				rid, _ := c.Get("request_id").(string)
				evt := withRecordParams(logger.Error().
					Str("request_id", rid).
					Str("method", c.Request().Method).
					Str("route", c.Path()), c)
				if e, ok := r.(error); ok {
					evt = evt.Err(e)
				} else {
					evt = evt.Interface("panic", r)
				}
				evt.Bytes("stack", debug.Stack()).Msg("panic recovered")

				err = echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
			}()
			return next(c)
		}
	}
}
