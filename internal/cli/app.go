package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dunamismax/pixelbatch/internal/config"
	"github.com/dunamismax/pixelbatch/internal/pipeline"
	"github.com/dunamismax/pixelbatch/internal/segment"
	"github.com/dunamismax/pixelbatch/internal/storage"
	"github.com/dunamismax/pixelbatch/internal/store"
	"github.com/dunamismax/pixelbatch/internal/transform"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// app is the set of long-lived dependencies shared by the commands.
type app struct {
	cfg         config.Config
	logger      zerolog.Logger
	store       store.Store
	coordinator *pipeline.Coordinator
	registry    *prometheus.Registry
	closers     []func() error
}

func newApp(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	ready := false
	defer func() {
		if !ready {
			_ = a.Close()
		}
	}()

	if err := transform.Startup(); err != nil {
		return nil, fmt.Errorf("start image codecs: %w", err)
	}
	a.closers = append(a.closers, func() error { transform.Shutdown(); return nil })

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.store = st
	a.closers = append(a.closers, st.Close)

	opts, err := cfg.PipelineOptions()
	if err != nil {
		return nil, err
	}

	deps := pipeline.Deps{
		History: a.store,
		Metrics: pipeline.NewMetrics(a.registry),
		Logger:  logger,
	}
	if cfg.Model.Endpoint != "" {
		deps.Segmenter = segment.NewClient(segment.Config{
			Endpoint:    cfg.Model.Endpoint,
			Token:       cfg.Model.Token,
			Timeout:     cfg.Model.Timeout,
			MaxAttempts: cfg.Model.MaxAttempts,
		})
	} else {
		logger.Info().Msg("no background model configured, using near-white threshold")
	}

	if cfg.Storage.Endpoint != "" {
		client, err := storage.NewClient(storage.Config{
			Endpoint: cfg.Storage.Endpoint,
			Access:   cfg.Storage.AccessKey,
			Secret:   cfg.Storage.SecretKey,
			Bucket:   cfg.Storage.Bucket,
			UseSSL:   cfg.Storage.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		if err := client.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		deps.Publisher = pipeline.ObjectStorePublisher{Storage: client, Prefix: cfg.Storage.Prefix}
		logger.Info().Str("bucket", cfg.Storage.Bucket).Msg("mirroring outputs to object storage")
	}

	a.coordinator = pipeline.NewCoordinator(opts, deps)
	ready = true
	return a, nil
}

func openStore(ctx context.Context, cfg config.Config, logger zerolog.Logger) (store.Store, error) {
	if cfg.Database.DSN == "" {
		logger.Warn().Msg("no database configured, history and presets are kept in memory")
		return store.NewMemoryStore(), nil
	}
	pg, err := store.NewPostgresStore(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	return pg, nil
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
