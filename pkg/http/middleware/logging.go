package middleware

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	applogger "SwingDesk/pkg/logger"
)

// RequestLogging writes one debug entry per request.
func RequestLogging(l *applogger.Logger) echo.MiddlewareFunc {
	if l == nil {
		l = applogger.Nop()
	}
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogValuesFunc: func(_ echo.Context, v echomw.RequestLoggerValues) error {
			l.Debug("http.request",
				applogger.String("method", v.Method),
				applogger.String("uri", v.URI),
				applogger.String("remote", v.RemoteIP),
				applogger.Int("status", v.Status),
				applogger.Duration("latency", v.Latency))
			return nil
		},
	})
}
