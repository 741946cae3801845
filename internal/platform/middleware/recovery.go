package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/galepedia/galepedia/internal/platform/auth"
	"github.com/galepedia/galepedia/internal/platform/metrics"
)

const stackSize = 4 << 10

// Recovery turns a handler panic into a 500 and logs it with the stack of the
// panicking goroutine. http.ErrAbortHandler is re-raised so the server can
// abort the connection.
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

				stack := make([]byte, stackSize)
				stack = stack[:runtime.Stack(stack, false)]

				route := c.Path()
				if route == "" {
					route = c.Request().URL.Path
				}
				metrics.PanicsRecovered.WithLabelValues(route).Inc()

				logger.Error().
					Str("request_id", requestID(c)).
					Str("user_id", auth.UserIDFromContext(c.Request().Context())).
					Str("method", c.Request().Method).
					Str("path", route).
					Str("panic", fmt.Sprint(r)).
					Bytes("stack", stack).
					Msg("panic recovered")

				err = echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
			}()
			return next(c)
		}
	}
}
