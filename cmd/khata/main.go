package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"khata/internal/auth"
	"khata/internal/cache"
	"khata/internal/cli"
	"khata/internal/config"
	apphttp "khata/internal/http"
	"khata/internal/log"
	"khata/internal/metrics"
	"khata/internal/middleware/ratelimit"
	"khata/internal/services"
)

const (
	shutdownTimeout    = 30 * time.Second
	cacheSweepInterval = time.Minute
)

func main() {
	envErr := cli.LoadEnvFile()

	// Logging settings come straight from the environment so config errors
	// are reported in the configured format.
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"), log.ComponentApp)
	if envErr != nil {
		logger.Warn("Ignoring unreadable .env file", log.FieldError, envErr.Error())
	}

	cfg := cli.LoadAndValidateConfig(logger)
	logger.Info("Starting khata", log.FieldOperation, log.OpStartup, "addr", cfg.Addr(), "events", cfg.EventsBackend)

	if err := run(logger, cfg); err != nil {
		logger.Error("khata stopped with error", log.FieldError, err.Error())
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func run(logger *log.Logger, cfg *config.Config) error {
	ctx, stop := cli.GracefulShutdown(logger)
	defer stop()

	repo, err := cli.OpenStorage(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	publisher, err := cli.NewPublisher(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer publisher.Close()

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
	}

	svc := services.New(repo, publisher, m, auth.NewTokens(cfg.SecretKey, cfg.AccessTokenExpiry))
	if err := svc.Auth.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		return err
	}

	srv := apphttp.NewServer(svc, apphttp.Options{
		Addr:               cfg.Addr(),
		RequestTimeout:     cfg.RequestTimeout,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimit: ratelimit.Config{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		},
		Metrics: m,
		Logger:  logger,
		Ready:   repo.Ping,
	})

	caches := cache.NewManager(logger)
	caches.Register(svc.ProductTypes.Cache())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return caches.Run(gctx, cacheSweepInterval)
	})
	g.Go(func() error {
		logger.WithComponent(log.ComponentHTTP).Info("Listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
