// Package api exposes the batch pipeline, history and presets over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/dunamismax/pixelbatch/internal/domain"
	"github.com/dunamismax/pixelbatch/internal/pipeline"
	"github.com/dunamismax/pixelbatch/internal/ratelimit"
	"github.com/dunamismax/pixelbatch/internal/store"
	"github.com/dunamismax/pixelbatch/internal/thumbnail"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultMaxUploadBytes = 64 << 20

	uploadsRoute = "/files/uploads"
	outputsRoute = "/files/outputs"
)

type RateLimiter interface {
	AllowN(ctx context.Context, subject string, cost int) (ratelimit.Decision, error)
}

type Options struct {
	Coordinator    *pipeline.Coordinator
	History        store.HistoryStore
	Presets        store.PresetStore
	Thumbnails     *thumbnail.Cache
	RateLimiter    RateLimiter
	JWTSecret      string
	AuthRequired   bool
	MaxUploadBytes int64
	// Registry receives the HTTP metrics and is served on /metrics. A new
	// registry is created when nil.
	Registry *prometheus.Registry
	Logger   zerolog.Logger
}

type Server struct {
	coordinator  *pipeline.Coordinator
	pipelineOpts pipeline.Options
	history      store.HistoryStore
	presets      store.PresetStore
	thumbnails   *thumbnail.Cache
	rateLimiter  RateLimiter
	jwtSecret    string
	authRequired bool
	maxUpload    int64
	metrics      *metrics
	logger       zerolog.Logger
	tracer       trace.Tracer
	engine       *gin.Engine
}

func NewServer(opts Options) (*Server, error) {
	if opts.Coordinator == nil {
		return nil, errors.New("coordinator is required")
	}
	if opts.History == nil || opts.Presets == nil {
		return nil, errors.New("history and preset stores are required")
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if opts.AuthRequired && opts.JWTSecret == "" {
		return nil, errors.New("auth required but no jwt secret configured")
	}

	s := &Server{
		coordinator:  opts.Coordinator,
		pipelineOpts: opts.Coordinator.Options(),
		history:      opts.History,
		presets:      opts.Presets,
		thumbnails:   opts.Thumbnails,
		rateLimiter:  opts.RateLimiter,
		jwtSecret:    opts.JWTSecret,
		authRequired: opts.AuthRequired,
		maxUpload:    opts.MaxUploadBytes,
		metrics:      newMetrics(opts.Registry),
		logger:       opts.Logger,
		tracer:       otel.Tracer("github.com/dunamismax/pixelbatch/internal/api"),
		engine:       gin.New(),
	}
	s.routes()
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	r := s.engine
	r.MaxMultipartMemory = 32 << 20
	r.Use(gin.Recovery(), s.withRequestLog(), s.withTracing(), s.metrics.withHTTPMetrics())

	r.GET("/healthz", s.handleHealthz)
	r.GET("/metrics", gin.WrapH(s.metrics.handler()))
	r.Static(uploadsRoute, s.pipelineOpts.StagingDir)
	r.Static(outputsRoute, s.pipelineOpts.OutputDir)

	v1 := r.Group("/v1", s.withAuth())
	v1.POST("/batches", s.handleCreateBatch)
	v1.GET("/history", s.handleHistory)
	v1.GET("/presets", s.handleListPresets)
	v1.GET("/presets/:name", s.handleGetPreset)
	v1.PUT("/presets/:name", s.handlePutPreset)
	v1.GET("/thumbnails", s.handleThumbnail)
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleListPresets(c *gin.Context) {
	bundles, err := s.presets.ListPresets(c.Request.Context(), userID(c))
	if err != nil {
		s.logger.Error().Err(err).Msg("list presets failed")
		writeError(c, http.StatusInternalServerError, "failed to list presets")
		return
	}

	sizes := make(map[string]string, len(s.pipelineOpts.Presets))
	for name, size := range s.pipelineOpts.Presets {
		sizes[name] = size.String()
	}
	c.JSON(http.StatusOK, gin.H{"sizes": sizes, "bundles": bundles})
}

func (s *Server) handleGetPreset(c *gin.Context) {
	preset, err := s.presets.GetPreset(c.Request.Context(), userID(c), presetName(c))
	if errors.Is(err, store.ErrPresetNotFound) {
		writeError(c, http.StatusNotFound, "preset not found")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("get preset failed")
		writeError(c, http.StatusInternalServerError, "failed to load preset")
		return
	}
	c.JSON(http.StatusOK, preset)
}

func (s *Server) handlePutPreset(c *gin.Context) {
	name := presetName(c)
	if name == "" {
		writeError(c, http.StatusBadRequest, "preset name is required")
		return
	}

	var options domain.TransformRequest
	if err := c.ShouldBindJSON(&options); err != nil {
		writeError(c, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	options = options.Normalize()
	options.UserID = ""
	options.WatermarkPath = ""
	if err := options.Validate(); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	if options.Preset != "" {
		if _, ok := s.pipelineOpts.Presets.Lookup(options.Preset); !ok {
			writeError(c, http.StatusBadRequest, "unknown size preset "+options.Preset)
			return
		}
	}

	preset := domain.OptionPreset{Name: name, UserID: userID(c), Options: options}
	if err := s.presets.SavePreset(c.Request.Context(), preset); err != nil {
		s.logger.Error().Err(err).Str("preset", name).Msg("save preset failed")
		writeError(c, http.StatusInternalServerError, "failed to save preset")
		return
	}
	saved, err := s.presets.GetPreset(c.Request.Context(), preset.UserID, name)
	if err != nil {
		saved = preset
	}
	c.JSON(http.StatusOK, saved)
}

func (s *Server) handleHistory(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := s.history.Recent(c.Request.Context(), domain.HistoryQuery{UserID: userID(c), Limit: limit})
	if err != nil {
		s.logger.Error().Err(err).Msg("history query failed")
		writeError(c, http.StatusInternalServerError, "failed to load history")
		return
	}
	if entries == nil {
		entries = []domain.HistoryEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (s *Server) handleThumbnail(c *gin.Context) {
	if s.thumbnails == nil {
		writeError(c, http.StatusNotFound, "thumbnails are disabled")
		return
	}
	path, ok := s.resolveLocator(c.Query("path"))
	if !ok {
		writeError(c, http.StatusBadRequest, "path must reference an uploaded or processed file")
		return
	}

	thumb, err := s.thumbnails.Get(path)
	if err != nil {
		s.logger.Warn().Err(err).Str("path", path).Msg("thumbnail failed")
		writeError(c, http.StatusNotFound, "thumbnail unavailable")
		return
	}
	c.Header("Cache-Control", "public, max-age=86400")
	c.File(thumb)
}

// locator turns a path under the staging or output directory into the URL
// it is served from.
func (s *Server) locator(path string) string {
	if path == "" {
		return ""
	}
	for route, dir := range map[string]string{uploadsRoute: s.pipelineOpts.StagingDir, outputsRoute: s.pipelineOpts.OutputDir} {
		if rel, ok := within(dir, path); ok {
			return route + "/" + filepath.ToSlash(rel)
		}
	}
	return ""
}

func (s *Server) resolveLocator(loc string) (string, bool) {
	for route, dir := range map[string]string{uploadsRoute: s.pipelineOpts.StagingDir, outputsRoute: s.pipelineOpts.OutputDir} {
		rest, ok := strings.CutPrefix(loc, route+"/")
		if !ok {
			continue
		}
		full := filepath.Join(dir, filepath.FromSlash(rest))
		if _, inside := within(dir, full); inside {
			return full, true
		}
	}
	return "", false
}

func within(dir, path string) (string, bool) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return rel, true
}

func presetName(c *gin.Context) string {
	return strings.ToLower(strings.TrimSpace(c.Param("name")))
}

func writeError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
