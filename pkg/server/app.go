package server

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"SwingDesk/pkg/config"
	xhttp "SwingDesk/pkg/http"
	pkgkafka "SwingDesk/pkg/kafka"
	applogger "SwingDesk/pkg/logger"
)

// Job is a periodic task. Every <= 0 disables it.
type Job struct {
	Name  string
	Every time.Duration
	Run   func(ctx context.Context) error
}

// Closer releases one infrastructure client on shutdown.
type Closer struct {
	Name  string
	Close func() error
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	l          *applogger.Logger
	handler    xhttp.Handler
	warmup     func(ctx context.Context) error
	consumer   *pkgkafka.Consumer
	outcomes   pkgkafka.MessageHandler
	jobs       []Job
	closers    []Closer
	httpServer *xhttp.Server
	wg         sync.WaitGroup
}

// Components groups what New needs beyond config and logger.
type Components struct {
	Handler  xhttp.Handler
	Warmup   func(ctx context.Context) error
	Consumer *pkgkafka.Consumer
	Outcomes pkgkafka.MessageHandler
	Jobs     []Job
	Closers  []Closer
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, l *applogger.Logger, c Components) *App {
	if l == nil {
		l = applogger.Nop()
	}
	return &App{
		cfg:      cfg,
		l:        l,
		handler:  c.Handler,
		warmup:   c.Warmup,
		consumer: c.Consumer,
		outcomes: c.Outcomes,
		jobs:     c.Jobs,
		closers:  c.Closers,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Start(ctx); err != nil {
		return err
	}

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.l.Info("shutdown signal received")
	cancel()
	return a.Shutdown(context.Background())
}

// Start runs the warmup hook, launches the consumer and jobs and starts serving HTTP.
func (a *App) Start(ctx context.Context) error {
	if a.warmup != nil {
		loadCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := a.warmup(loadCtx); err != nil {
			a.l.Warn("warmup failed, continuing with defaults", applogger.Error(err))
		}
		cancel()
	}

	if a.consumer != nil && a.outcomes != nil {
		a.consumer.RegisterHandler(a.outcomes)
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.l.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.l.Info("kafka consumer started", applogger.String("topic", a.outcomes.Topic()))
	}

	for _, j := range a.jobs {
		if j.Every <= 0 || j.Run == nil {
			continue
		}
		a.wg.Add(1)
		go a.loop(ctx, j)
		a.l.Info("job scheduled", applogger.String("job", j.Name), applogger.Duration("every", j.Every))
	}

	a.httpServer = xhttp.NewServer(xhttp.ServerConfig{
		Host:            a.cfg.Server.Host,
		Port:            a.cfg.Server.Port,
		ReadTimeout:     a.cfg.Server.ReadTimeout,
		WriteTimeout:    a.cfg.Server.WriteTimeout,
		ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
		SlowRequest:     a.cfg.Server.SlowRequest,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		Metrics:         a.cfg.Metrics.Enabled,
	}, a.l, a.handler)
	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}
	return nil
}

// loop runs j on its interval until ctx is cancelled. A run that is still
// going when the next tick fires delays that tick.
func (a *App) loop(ctx context.Context, j Job) {
	defer a.wg.Done()
	t := time.NewTicker(j.Every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			start := time.Now()
			if err := j.Run(ctx); err != nil {
				a.l.Warn("job failed", applogger.String("job", j.Name), applogger.Error(err))
				continue
			}
			a.l.Debug("job done", applogger.String("job", j.Name), applogger.Duration("took", time.Since(start)))
		}
	}
}

// Shutdown gracefully stops all services. Closers run in reverse order.
func (a *App) Shutdown(ctx context.Context) error {
	a.l.Info("shutting down...")

	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.l.Error("http shutdown error", applogger.Error(err))
		}
	}

	if a.consumer != nil {
		stopCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
		if err := a.consumer.Stop(stopCtx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
		cancel()
	}

	a.wg.Wait()

	// flush aggregated error logs before the producer goes away
	a.l.RemoveCollector()

	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.Close(); err != nil {
			a.l.Warn("close error", applogger.String("component", c.Name), applogger.Error(err))
		}
	}

	a.l.Info("shutdown complete")
	return nil
}
