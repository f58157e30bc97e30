package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"SwingDesk/pkg/http/middleware"
	applogger "SwingDesk/pkg/logger"
)

// Handler mounts a group of routes.
type Handler interface {
	RegisterRoutes(e *echo.Echo)
}

// ServerConfig configures Server. Zero durations take the defaults below.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	SlowRequest     time.Duration
	CORSOrigins     []string
	Metrics         bool
}

func (c ServerConfig) withDefaults() ServerConfig {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 120 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	return c
}

func (c ServerConfig) addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Server is an Echo instance with the desk middleware stack.
type Server struct {
	echo *echo.Echo
	cfg  ServerConfig
	log  *applogger.Logger
}

// NewServer builds the Echo instance and mounts the handlers. /metrics is
// served when cfg.Metrics is set.
func NewServer(cfg ServerConfig, l *applogger.Logger, handlers ...Handler) *Server {
	cfg = cfg.withDefaults()
	if l == nil {
		l = applogger.Nop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout
	e.Validator = std
	e.HTTPErrorHandler = errorHandler

	e.Use(middleware.Recover(l))
	e.Use(middleware.RequestLogging(l))
	e.Use(middleware.CORS(cfg.CORSOrigins))
	if cfg.Metrics {
		e.Use(middleware.Metrics(l, cfg.SlowRequest))
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}
	for _, h := range handlers {
		if h != nil {
			h.RegisterRoutes(e)
		}
	}
	return &Server{echo: e, cfg: cfg, log: l}
}

// Start listens in the background. Listen errors are logged.
func (s *Server) Start() error {
	addr := s.cfg.addr()
	go func() {
		s.log.Info("http.listening", applogger.String("addr", addr))
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http.listen_failed", applogger.String("addr", addr), applogger.Error(err))
		}
	}()
	return nil
}

// Stop drains in-flight requests for at most ShutdownTimeout.
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.log.Info("http.stopped")
	return nil
}

func (s *Server) Echo() *echo.Echo { return s.echo }
