package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"RiskGraph/internal/usecase"
	"RiskGraph/pkg/config"
	xhttp "RiskGraph/pkg/http"
	pkgkafka "RiskGraph/pkg/kafka"
	applogger "RiskGraph/pkg/logger"
	"RiskGraph/pkg/queue"
)

type closer struct {
	name string
	fn   func() error
}

// Recomputer refreshes the stored risk.
type Recomputer interface {
	Recompute(ctx context.Context, maxIterations int) (usecase.RecomputeResult, error)
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg         *config.Config
	log         *applogger.Logger
	engine      Recomputer
	httpHandler xhttp.Handler
	httpOptions []xhttp.ServerOption
	httpServer  *xhttp.Server
	consumer    *pkgkafka.Consumer
	kh          pkgkafka.MessageHandler
	queue       *queue.RedisQueue
	closers     []closer
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, log *applogger.Logger, engine Recomputer, handler xhttp.Handler) *App {
	if log == nil {
		log = applogger.NewNop()
	}
	return &App{cfg: cfg, log: log, engine: engine, httpHandler: handler}
}

// WithKafka consumes scenario requests from Kafka.
func (a *App) WithKafka(consumer *pkgkafka.Consumer, kh pkgkafka.MessageHandler) {
	a.consumer = consumer
	a.kh = kh
}

// WithQueue consumes scenario requests from the Redis queue.
func (a *App) WithQueue(q *queue.RedisQueue) { a.queue = q }

// WithHTTPOptions appends options applied when the HTTP server is built.
func (a *App) WithHTTPOptions(opts ...xhttp.ServerOption) { a.httpOptions = append(a.httpOptions, opts...) }

// OnClose registers a resource released on shutdown, in registration order.
func (a *App) OnClose(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Start(ctx); err != nil {
		_ = a.Shutdown(ctx)
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	return a.Shutdown(ctx)
}

// Start recomputes risk if configured, then starts the intakes and the HTTP server.
func (a *App) Start(ctx context.Context) error {
	if a.cfg.Risk.RecomputeOnStart {
		res, err := a.engine.Recompute(ctx, 0)
		if err != nil {
			return fmt.Errorf("initial recompute: %w", err)
		}
		a.log.Info("initial recompute done",
			applogger.Int("iterations", res.Propagation.Iterations),
			applogger.Bool("converged", res.Propagation.Converged),
			applogger.Float64("portfolio_total", res.Dollarization.PortfolioTotal),
		)
	}

	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		if err := a.consumer.Start(); err != nil {
			return fmt.Errorf("kafka consumer: %w", err)
		}
		a.log.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	if a.queue != nil {
		if err := a.queue.Start(); err != nil {
			return fmt.Errorf("scenario queue: %w", err)
		}
	}

	opts := []xhttp.ServerOption{
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout),
		xhttp.WithBodyLimit(a.cfg.Server.BodyLimit),
		xhttp.WithCORSOrigins(a.cfg.Server.CORSOrigins...),
		xhttp.WithLogger(a.log),
	}
	if a.cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetricsPath(a.cfg.Metrics.Path))
	} else {
		opts = append(opts, xhttp.WithMetricsPath(""))
	}
	opts = append(opts, a.httpOptions...)

	a.httpServer = xhttp.NewServer(a.httpHandler, opts...)
	if err := a.httpServer.Start(); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops the intakes and the HTTP server, then releases resources.
func (a *App) Shutdown(ctx context.Context) error {
	a.log.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
		}
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if a.queue != nil {
		if err := a.queue.Stop(shutdownCtx); err != nil {
			a.log.Warn("scenario queue stop error", applogger.Error(err))
		}
	}

	// flush aggregated logs before the producer goes away
	a.log.RemoveCollector()

	for _, c := range a.closers {
		if err := c.fn(); err != nil {
			a.log.Warn("close error", applogger.String("resource", c.name), applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
