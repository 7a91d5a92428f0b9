package pipeline

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/pixelbatch/internal/domain"
	"github.com/dunamismax/pixelbatch/internal/geometry"
	"github.com/dunamismax/pixelbatch/internal/store"
	"github.com/dunamismax/pixelbatch/internal/transform"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/dunamismax/pixelbatch/internal/pipeline"

// Deps are the collaborators of the pipeline. Every field is optional.
type Deps struct {
	History   store.HistoryStore
	Segmenter transform.Segmenter
	Publisher Publisher
	Metrics   *Metrics
	Logger    zerolog.Logger
}

// Runner processes a single file. It never returns an error: every failure
// is captured in the Result.
type Runner struct {
	opts      Options
	history   store.HistoryStore
	remover   transform.BackgroundRemover
	publisher Publisher
	metrics   *Metrics
	logger    zerolog.Logger
	tracer    trace.Tracer
}

func NewRunner(opts Options, deps Deps) *Runner {
	opts = opts.withDefaults()
	return &Runner{
		opts:      opts,
		history:   deps.History,
		remover:   transform.BackgroundRemover{Model: deps.Segmenter, Timeout: opts.ModelTimeout},
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		tracer:    otel.Tracer(tracerName),
	}
}

func (r *Runner) Run(ctx context.Context, batchID string, index int, file SourceFile, req domain.TransformRequest) (res Result) {
	start := time.Now()
	res = Result{Index: index, OriginalName: file.Name}
	logger := r.logger.With().Str("batch_id", batchID).Int("index", index).Str("file", file.Name).Logger()

	// Once dispatched a file runs to completion even if the caller goes away.
	ctx = context.WithoutCancel(ctx)
	ctx, span := r.tracer.Start(ctx, "pipeline.file", trace.WithAttributes(
		attribute.String("batch.id", batchID),
		attribute.Int("file.index", index),
		attribute.String("file.name", file.Name),
		attribute.Int("file.bytes", len(file.Data)),
	))
	r.metrics.fileStarted()

	defer func() {
		if rec := recover(); rec != nil {
			res = failed(res, fmt.Errorf("%w: unexpected panic: %v", domain.ErrStageFailure, rec))
		}
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, res.Reason)
			logger.Warn().Err(res.Err).Msg("file failed")
		} else {
			span.SetAttributes(attribute.String("output.name", res.OutputName))
			logger.Info().Str("output", res.OutputName).Int("width", res.Width).Int("height", res.Height).Dur("elapsed", time.Since(start)).Msg("file processed")
		}
		span.End()
		r.metrics.fileFinished(res, time.Since(start))
	}()

	if err := r.process(ctx, logger, batchID, index, file, req, &res); err != nil {
		return failed(res, err)
	}
	return res
}

func (r *Runner) process(ctx context.Context, logger zerolog.Logger, batchID string, index int, file SourceFile, req domain.TransformRequest, res *Result) error {
	stagedPath, err := stage(r.opts.StagingDir, StagingKey(batchID, index, file), file.Data)
	if err != nil {
		return err
	}
	res.OriginalPath = stagedPath

	if int64(len(file.Data)) > r.opts.MaxFileBytes {
		return fmt.Errorf("%w: %s exceeds maximum size of %s", domain.ErrFileTooLarge, file.Name, humanize.IBytes(uint64(r.opts.MaxFileBytes)))
	}

	img, _, err := transform.Decode(file.Data)
	if err != nil {
		return err
	}

	bounds := img.Bounds()
	target, err := geometry.Resolve(
		geometry.Size{Width: bounds.Dx(), Height: bounds.Dy()},
		geometry.FromTransform(req),
		r.opts.Presets,
	)
	if err != nil {
		return err
	}

	img = r.applyStages(ctx, logger, img, target, req, res)

	data, err := transform.Encode(img, req.Format, req.Quality)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStageFailure, err)
	}
	data, outcome := transform.CarryMetadata(file.Data, data, req.Format, req.StripMetadata)
	r.record(logger, res, outcome)

	width, height := img.Bounds().Dx(), img.Bounds().Dy()
	name := OutputFilename(req.Prefix, file.Name, target.Width, target.Height, req.Format)
	outDir := filepath.Join(r.opts.OutputDir, sanitizePathToken(batchID), strconv.Itoa(index))
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	outPath := filepath.Join(outDir, name)
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return fmt.Errorf("write output file: %w", err)
	}

	res.OutputName = name
	res.OutputPath = outPath
	res.Width = width
	res.Height = height
	res.Format = strings.ToUpper(req.Format)
	res.Bytes = len(data)
	res.data = data

	if r.publisher != nil {
		key, err := r.publisher.Publish(ctx, batchID, index, name, data, req.Format)
		if err != nil {
			logger.Warn().Err(err).Msg("output mirror failed")
		} else {
			res.RemoteKey = key
		}
	}

	if r.history != nil {
		err := r.history.Record(ctx, domain.HistoryEntry{
			UserID:       req.UserID,
			OriginalName: file.Name,
			OutputName:   name,
			Width:        target.Width,
			Height:       target.Height,
			Format:       res.Format,
			CreatedAt:    time.Now().UTC(),
		})
		if err != nil {
			r.metrics.historyFailed()
			logger.Warn().Err(err).Msg("history write failed")
		}
	}
	return nil
}

// applyStages runs the transform stages in their fixed order: resize,
// background removal, filter, image watermark, text watermark.
func (r *Runner) applyStages(ctx context.Context, logger zerolog.Logger, img *image.NRGBA, target geometry.Size, req domain.TransformRequest, res *Result) *image.NRGBA {
	_, span := r.tracer.Start(ctx, "pipeline.stages")
	defer span.End()

	var outcome transform.StageOutcome
	bounds := img.Bounds()
	if target.Width == bounds.Dx() && target.Height == bounds.Dy() {
		outcome = transform.StageOutcome{Stage: transform.StageResize, Status: transform.StatusNotRequested}
	} else if resized, err := transform.Resize(img, target.Width, target.Height, req.ResizeMode); err != nil {
		outcome = transform.StageOutcome{Stage: transform.StageResize, Status: transform.StatusSkipped, Reason: err.Error()}
	} else {
		img = resized
		outcome = transform.StageOutcome{Stage: transform.StageResize, Status: transform.StatusApplied}
	}
	r.record(logger, res, outcome)

	if req.RemoveBackground {
		img, outcome = r.remover.Remove(ctx, img)
	} else {
		outcome = transform.StageOutcome{Stage: transform.StageBackground, Status: transform.StatusNotRequested}
	}
	r.record(logger, res, outcome)

	img, outcome = transform.ApplyFilter(img, req.Filter)
	r.record(logger, res, outcome)

	img, outcome = transform.OverlayImage(img, req.WatermarkPath)
	r.record(logger, res, outcome)

	img, outcome = transform.DrawText(img, req.WatermarkText)
	r.record(logger, res, outcome)

	return img
}

func (r *Runner) record(logger zerolog.Logger, res *Result, outcome transform.StageOutcome) {
	res.Stages = append(res.Stages, outcome)
	switch outcome.Status {
	case transform.StatusSkipped, transform.StatusFellBack:
		logger.Warn().Str("stage", outcome.Stage).Str("status", string(outcome.Status)).Str("reason", outcome.Reason).Msg("stage degraded")
	}
}

func failed(res Result, err error) Result {
	res.Err = err
	res.Reason = err.Error()
	res.OriginalPath = ""
	res.OutputName = ""
	res.OutputPath = ""
	res.RemoteKey = ""
	res.Width = 0
	res.Height = 0
	res.Format = ""
	res.Bytes = 0
	res.data = nil
	return res
}
