package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dunamismax/pixelbatch/internal/domain"
	"github.com/dunamismax/pixelbatch/internal/geometry"
	"github.com/dunamismax/pixelbatch/internal/id"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Coordinator fans a batch out over a bounded pool of runners and collects
// the results in submission order.
type Coordinator struct {
	opts    Options
	runner  *Runner
	metrics *Metrics
	logger  zerolog.Logger
	tracer  trace.Tracer
	newID   func() string
}

func NewCoordinator(opts Options, deps Deps) *Coordinator {
	opts = opts.withDefaults()
	runner := NewRunner(opts, deps)
	return &Coordinator{
		opts:    opts,
		runner:  runner,
		metrics: deps.Metrics,
		logger:  deps.Logger,
		tracer:  runner.tracer,
		newID:   id.New,
	}
}

func (c *Coordinator) Options() Options {
	return c.opts
}

// Validate rejects the whole batch before any file is touched. The request
// must already be normalized.
func (c *Coordinator) Validate(files []SourceFile, req domain.TransformRequest) error {
	if len(files) == 0 {
		return fmt.Errorf("%w: no files uploaded", domain.ErrInvalidInput)
	}
	for _, f := range files {
		if !c.opts.allows(f.Name) {
			return fmt.Errorf("%w: %s has invalid file type", domain.ErrInvalidInput, f.Name)
		}
	}
	if err := req.Validate(); err != nil {
		return err
	}
	return geometry.Check(geometry.FromTransform(req), c.opts.Presets)
}

func (c *Coordinator) Run(ctx context.Context, files []SourceFile, req domain.TransformRequest) (Outcome, error) {
	start := time.Now()
	req = req.Normalize()
	if err := c.Validate(files, req); err != nil {
		c.metrics.batchFinished(err, time.Since(start))
		c.logger.Info().Err(err).Int("files", len(files)).Msg("batch rejected")
		return Outcome{}, err
	}

	batchID := c.newID()
	logger := c.logger.With().Str("batch_id", batchID).Logger()
	ctx, span := c.tracer.Start(ctx, "pipeline.batch", trace.WithAttributes(
		attribute.String("batch.id", batchID),
		attribute.Int("batch.files", len(files)),
	))
	defer span.End()

	results := make([]Result, len(files))
	var g errgroup.Group
	g.SetLimit(c.opts.Workers)
	for i, file := range files {
		g.Go(func() error {
			results[i] = c.runner.Run(ctx, batchID, i, file, req)
			return nil
		})
	}
	_ = g.Wait()

	out := Outcome{BatchID: batchID, Results: results}
	if len(files) > 1 {
		archive, err := BuildArchive(results)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.metrics.batchFinished(nil, time.Since(start))
			return out, fmt.Errorf("%w: %v", domain.ErrStageFailure, err)
		}
		out.Archive = archive
		out.ArchivePath = c.saveArchive(logger, batchID, archive)
	}

	c.metrics.batchFinished(nil, time.Since(start))
	logger.Info().
		Int("files", len(files)).
		Int("succeeded", out.Successes()).
		Dur("elapsed", time.Since(start)).
		Msg("batch processed")
	return out, nil
}

func (c *Coordinator) saveArchive(logger zerolog.Logger, batchID string, archive []byte) string {
	path := filepath.Join(c.opts.OutputDir, sanitizePathToken(batchID), ArchiveName)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		logger.Warn().Err(err).Msg("archive dir not created")
		return ""
	}
	if err := os.WriteFile(path, archive, 0o644); err != nil {
		logger.Warn().Err(err).Msg("archive not saved")
		return ""
	}
	return path
}
