package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dunamismax/pixelbatch/internal/api"
	"github.com/dunamismax/pixelbatch/internal/config"
	"github.com/dunamismax/pixelbatch/internal/jobs"
	applog "github.com/dunamismax/pixelbatch/internal/log"
	"github.com/dunamismax/pixelbatch/internal/ratelimit"
	"github.com/dunamismax/pixelbatch/internal/telemetry"
	"github.com/dunamismax/pixelbatch/internal/thumbnail"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

func newServeCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	logger := applog.New(cfg.Environment)

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  cfg.Tracing.ServiceName,
		Exporter:     cfg.Tracing.Exporter,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		OTLPInsecure: cfg.Tracing.OTLPInsecure,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn().Err(err).Msg("tracing shutdown failed")
		}
	}()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn().Err(err).Msg("close dependencies")
		}
	}()

	thumbs, err := thumbnail.New(cfg.Pipeline.ThumbnailDir)
	if err != nil {
		return err
	}

	var limiter api.RateLimiter
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		bucket, err := ratelimit.NewRedisTokenBucket(rdb, cfg.Redis.RateLimit, cfg.Redis.RateLimitWindow, "")
		if err != nil {
			return err
		}
		limiter = bucket
		logger.Info().Int("files", cfg.Redis.RateLimit).Dur("window", cfg.Redis.RateLimitWindow).Msg("rate limiting enabled")
	}

	sweeper := jobs.NewSweeper(
		[]string{cfg.Pipeline.StagingDir, cfg.Pipeline.OutputDir, cfg.Pipeline.ThumbnailDir},
		cfg.Sweeper.MaxAge,
		logger,
	)
	if err := sweeper.Start(cfg.Sweeper.Schedule); err != nil {
		return err
	}

	srv, err := api.NewServer(api.Options{
		Coordinator:    a.coordinator,
		History:        a.store,
		Presets:        a.store,
		Thumbnails:     thumbs,
		RateLimiter:    limiter,
		JWTSecret:      cfg.Auth.JWTSecret,
		AuthRequired:   cfg.Auth.Required,
		MaxUploadBytes: cfg.HTTP.MaxUploadBytes,
		Registry:       a.registry,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.HTTP.Addr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	sweeper.Stop(shutdownCtx)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}
