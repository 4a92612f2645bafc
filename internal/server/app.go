// Package server builds the fraud-detection services and owns their
// lifecycle: configuration-driven wiring, serving and graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/fraud-detection/internal/config"
	"github.com/JakeFAU/fraud-detection/internal/logging"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

type closer struct {
	name string
	fn   func(context.Context) error
}

// App contains one command's dependencies. Services also carry an HTTP
// handler and port.
type App struct {
	cfg     config.Config
	service string
	logger  *zap.Logger

	handler http.Handler
	port    int
	// registry receives audit collectors; nil means the default registerer.
	registry prometheus.Registerer

	closers []closer
}

// NewApp builds the logger for service and installs it globally.
func NewApp(cfg config.Config, service string) (*App, error) {
	base, err := logging.New(logging.Options{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(base)
	logger := logging.ForService(base, service)
	logger.Info("creating application",
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.String("tracking_backend", cfg.Tracking.Backend),
		zap.Bool("auth_enabled", cfg.Auth.Enabled),
	)
	return &App{cfg: cfg, service: service, logger: logger}, nil
}

// Logger returns the service logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Handler returns the HTTP handler of a service app, nil for batch commands.
func (a *App) Handler() http.Handler { return a.handler }

func (a *App) onClose(name string, fn func(context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Run serves until ctx is cancelled or SIGINT/SIGTERM arrives, then shuts down.
func (a *App) Run(ctx context.Context) error {
	if a.handler == nil {
		return errors.New("app has no http handler")
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.port),
		Handler:           a.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	closeErr := a.Close(shutdownCtx)

	select {
	case err := <-serveErr:
		return errors.Join(err, closeErr)
	default:
		return closeErr
	}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			a.logger.Warn("close failed", zap.String("resource", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}
	a.closers = nil
	a.logger.Info("shutdown complete")
	_ = a.logger.Sync() //nolint:errcheck // stderr sync fails on some platforms
	return errors.Join(errs...)
}
