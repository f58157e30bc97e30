package middleware

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	applogger "SwingDesk/pkg/logger"
)

// Recover turns a handler panic into a 500 rendered by the server's error
// handler and logs it with the stack.
func Recover(l *applogger.Logger) echo.MiddlewareFunc {
	if l == nil {
		l = applogger.Nop()
	}
	return echomw.RecoverWithConfig(echomw.RecoverConfig{
		StackSize: 8 << 10,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			l.Error("http.panic",
				applogger.String("route", c.Path()),
				applogger.String("stack", string(stack)),
				applogger.Error(err))
			return err
		},
	})
}
