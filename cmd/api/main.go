package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bryanwahyu/cbomkit/internal/application/errorcode"
	"github.com/bryanwahyu/cbomkit/internal/config"
	"github.com/bryanwahyu/cbomkit/internal/infra/httpserver"
	"github.com/bryanwahyu/cbomkit/internal/logging"
	"github.com/bryanwahyu/cbomkit/internal/middleware"
	"github.com/bryanwahyu/cbomkit/internal/wiring"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	// load config
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("config load error: %w", err)
	}
	logger := logging.New("cbomkit", cfg.Logging.Level, cfg.Logging.JSON, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := middleware.NewMetrics()
	stack, err := wiring.Build(ctx, cfg, logger, metrics)
	if err != nil {
		return fmt.Errorf("init error: %w", err)
	}

	checkers := map[string]middleware.HealthChecker{}
	if stack.DB != nil {
		checkers["database"] = &middleware.DatabaseHealthChecker{DB: stack.DB}
	}
	readiness := &middleware.Readiness{}
	limiter := middleware.NewRateLimiter(ctx, cfg.Server.RateLimit.Capacity, cfg.Server.RateLimit.RefillRate)

	// init router
	mux := chi.NewRouter()
	mux.Mount("/", httpserver.NewRouter(httpserver.Options{
		Scans:          stack.Scanning,
		CBOMs:          stack.Queries,
		Compliance:     stack.Compliance,
		Metrics:        metrics,
		Readiness:      readiness,
		HealthCheckers: checkers,
		RateLimiter:    limiter,
		ErrorCodes:     errorcode.New(nil),
		APIKeys:        cfg.Server.APIKeys,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Version:        version,
		Logger:         logger.Named("http"),
	}))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// run server
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr, "driver", cfg.Database.Driver, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		stack.Close()
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	// graceful shutdown
	logger.Info("shutting down server")
	readiness.Drain()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", "error", err)
	}
	return stack.Close()
}
