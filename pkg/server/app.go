package server

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"SignalCoord/internal/usecase"
	"SignalCoord/pkg/config"
	xhttp "SignalCoord/pkg/http"
	pkgkafka "SignalCoord/pkg/kafka"
	applogger "SignalCoord/pkg/logger"
)

// drainTimeout bounds the final cycle run on shutdown.
const drainTimeout = 5 * time.Second

type namedCloser struct {
	name string
	c    io.Closer
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	coord      *usecase.Coordinator
	runner     *usecase.CycleRunner
	httpServer *xhttp.Server

	consumer *pkgkafka.Consumer
	kafkaH   []pkgkafka.MessageHandler
	closers  []namedCloser
}

// Option configures optional App components.
type Option func(*App)

// WithConsumer attaches a Kafka consumer and the handlers it should run.
// A nil consumer is ignored.
func WithConsumer(c *pkgkafka.Consumer, handlers ...pkgkafka.MessageHandler) Option {
	return func(a *App) {
		if c == nil {
			return
		}
		a.consumer = c
		a.kafkaH = append(a.kafkaH, handlers...)
	}
}

// WithCloser registers a resource closed on shutdown, in registration order.
func WithCloser(name string, c io.Closer) Option {
	return func(a *App) {
		if c != nil {
			a.closers = append(a.closers, namedCloser{name: name, c: c})
		}
	}
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	coord *usecase.Coordinator,
	runner *usecase.CycleRunner,
	httpServer *xhttp.Server,
	opts ...Option,
) *App {
	if log == nil {
		log = applogger.NewNop()
	}
	a := &App{cfg: cfg, log: log, coord: coord, runner: runner, httpServer: httpServer}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	a.log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout+drainTimeout)
	defer cancel()
	return a.Shutdown(shutdownCtx)
}

// Start restores reliability state and launches the cycle runner, the Kafka
// consumer and the HTTP server. It does not block.
func (a *App) Start(ctx context.Context) error {
	loadCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := a.coord.Tracker().Load(loadCtx); err != nil {
		// start with a clean table rather than refuse to run
		a.log.Warn("reliability snapshot not restored", applogger.Error(err))
	} else {
		a.log.Info("reliability table ready", applogger.Int("agents", len(a.coord.Tracker().Snapshot())))
	}
	cancel()

	if a.runner != nil {
		if err := a.runner.Start(ctx); err != nil {
			return err
		}
		if a.runner.Enabled() {
			a.log.Info("cycle runner started", applogger.Duration("interval_ms", a.cfg.Coordinator.CycleInterval))
		}
	}

	if a.consumer != nil && len(a.kafkaH) > 0 {
		for _, h := range a.kafkaH {
			a.consumer.RegisterHandler(h)
		}
		if err := a.consumer.Start(); err != nil {
			return err
		}
	}

	cc := a.coord.Config()
	a.log.Info("coordinator ready",
		applogger.Float64("consensus_threshold", cc.ConsensusThreshold),
		applogger.Int("min_agents", cc.MinAgents),
		applogger.Int("buffer_capacity", a.coord.Buffer().Cap()),
		applogger.String("topic", cc.Topic),
	)

	if a.httpServer != nil {
		if err := a.httpServer.Start(); err != nil {
			a.log.Error("http server start error", applogger.Error(err))
			return err
		}
	}
	return nil
}

// Shutdown stops intake first, then processes what is still buffered, then
// releases outbound resources. The returned error joins every failure.
func (a *App) Shutdown(ctx context.Context) error {
	a.log.Info("shutting down...")
	var errs []error

	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	if a.runner != nil {
		if err := a.runner.Shutdown(ctx); err != nil {
			a.log.Warn("cycle runner stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}

	if n := a.coord.Buffer().Len(); n > 0 {
		drainCtx, cancel := context.WithTimeout(ctx, drainTimeout)
		dec := a.coord.ProcessPending(drainCtx)
		cancel()
		a.log.Info("final cycle on shutdown",
			applogger.Int("signals", n),
			applogger.String("action", string(dec.Action)),
			applogger.String("path", string(dec.Path)),
		)
	}

	// flush collected logs while the producer is still open
	a.log.RemoveCollector()
	for _, nc := range a.closers {
		if err := nc.c.Close(); err != nil {
			a.log.Warn("close error", applogger.String("component", nc.name), applogger.Error(err))
			errs = append(errs, err)
		}
	}

	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}
