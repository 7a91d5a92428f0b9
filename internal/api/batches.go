package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dunamismax/pixelbatch/internal/domain"
	"github.com/dunamismax/pixelbatch/internal/id"
	"github.com/dunamismax/pixelbatch/internal/pipeline"
	"github.com/dunamismax/pixelbatch/internal/store"
	"github.com/dunamismax/pixelbatch/internal/transform"
	"github.com/gin-gonic/gin"
)

type previewResponse struct {
	Index        int                      `json:"index"`
	OriginalName string                   `json:"original_name"`
	Original     string                   `json:"original,omitempty"`
	OutputName   string                   `json:"output_name,omitempty"`
	Output       string                   `json:"output,omitempty"`
	Thumbnail    string                   `json:"thumbnail,omitempty"`
	RemoteKey    string                   `json:"remote_key,omitempty"`
	Width        int                      `json:"width,omitempty"`
	Height       int                      `json:"height,omitempty"`
	Format       string                   `json:"format,omitempty"`
	Bytes        int                      `json:"bytes,omitempty"`
	Stages       []transform.StageOutcome `json:"stages,omitempty"`
	Error        string                   `json:"error,omitempty"`
}

type batchResponse struct {
	BatchID   string            `json:"batch_id"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Archive   string            `json:"archive,omitempty"`
	Previews  []previewResponse `json:"previews"`
}

// handleCreateBatch runs one upload through the pipeline. A single file
// answers with its preview, several files answer with the zip archive
// unless response=json is requested.
func (s *Server) handleCreateBatch(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload)
	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(c, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", s.maxUpload))
			return
		}
		writeError(c, http.StatusBadRequest, "expected multipart form upload")
		return
	}

	req, err := s.transformRequest(c, form)
	if err != nil {
		s.writeBatchError(c, err)
		return
	}

	files, err := readUploads(form)
	if err != nil {
		s.writeBatchError(c, err)
		return
	}

	watermark := firstFile(form, "watermark")
	if watermark != nil && !isImageName(watermark.Filename) {
		writeError(c, http.StatusBadRequest, watermark.Filename+" is not a supported watermark image")
		return
	}

	req = req.Normalize()
	if err := s.coordinator.Validate(files, req); err != nil {
		s.writeBatchError(c, err)
		return
	}
	if !s.allow(c, len(files)) {
		return
	}
	s.metrics.uploadedFiles.Add(float64(len(files)))

	if watermark != nil {
		path, err := s.saveWatermark(watermark)
		if err != nil {
			s.logger.Error().Err(err).Msg("watermark upload not saved")
			writeError(c, http.StatusInternalServerError, "failed to store watermark")
			return
		}
		defer os.Remove(path)
		req.WatermarkPath = path
	}

	out, err := s.coordinator.Run(c.Request.Context(), files, req)
	if err != nil {
		s.writeBatchError(c, err)
		return
	}

	c.Header("X-Batch-ID", out.BatchID)
	if out.Archive != nil && c.Query("response") != "json" {
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", pipeline.ArchiveName))
		c.Data(http.StatusOK, pipeline.ArchiveContentType, out.Archive)
		return
	}
	c.JSON(http.StatusOK, s.batchResponse(out))
}

func (s *Server) batchResponse(out pipeline.Outcome) batchResponse {
	resp := batchResponse{
		BatchID:   out.BatchID,
		Succeeded: out.Successes(),
		Failed:    len(out.Results) - out.Successes(),
		Archive:   s.locator(out.ArchivePath),
		Previews:  make([]previewResponse, 0, len(out.Results)),
	}
	for _, r := range out.Results {
		p := previewResponse{
			Index:        r.Index,
			OriginalName: r.OriginalName,
			Original:     s.locator(r.OriginalPath),
			OutputName:   r.OutputName,
			Output:       s.locator(r.OutputPath),
			RemoteKey:    r.RemoteKey,
			Width:        r.Width,
			Height:       r.Height,
			Format:       r.Format,
			Bytes:        r.Bytes,
			Stages:       r.Stages,
			Error:        r.Reason,
		}
		if p.Output != "" && s.thumbnails != nil {
			p.Thumbnail = "/v1/thumbnails?path=" + url.QueryEscape(p.Output)
		}
		resp.Previews = append(resp.Previews, p)
	}
	return resp
}

func (s *Server) writeBatchError(c *gin.Context, err error) {
	if errors.Is(err, domain.ErrInvalidInput) {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Error().Err(err).Msg("batch failed")
	writeError(c, http.StatusInternalServerError, "batch processing failed")
}

// transformRequest starts from the named bundle, if any, and overrides it
// with every option field present on the form.
func (s *Server) transformRequest(c *gin.Context, form *multipart.Form) (domain.TransformRequest, error) {
	var req domain.TransformRequest
	if bundle := strings.TrimSpace(formValue(form, "bundle")); bundle != "" {
		preset, err := s.presets.GetPreset(c.Request.Context(), userID(c), strings.ToLower(bundle))
		if errors.Is(err, store.ErrPresetNotFound) {
			return req, fmt.Errorf("%w: unknown option bundle %q", domain.ErrInvalidInput, bundle)
		}
		if err != nil {
			return req, err
		}
		req = preset.Options
	}

	var err error
	intField := func(name string, dst *int) {
		raw, ok := formField(form, name)
		if !ok || err != nil {
			return
		}
		if raw == "" {
			*dst = 0
			return
		}
		v, convErr := strconv.Atoi(raw)
		if convErr != nil {
			err = fmt.Errorf("%w: %s must be an integer, got %q", domain.ErrInvalidInput, name, raw)
			return
		}
		*dst = v
	}
	stringField := func(name string, dst *string) {
		if raw, ok := formField(form, name); ok {
			*dst = raw
		}
	}
	boolField := func(name string, dst *bool) {
		if raw, ok := formField(form, name); ok {
			*dst = checked(raw)
		}
	}

	intField("width", &req.Width)
	intField("height", &req.Height)
	intField("quality", &req.Quality)
	if err != nil {
		return req, err
	}
	boolField("lock_aspect", &req.LockAspect)
	boolField("remove_bg", &req.RemoveBackground)
	boolField("strip_metadata", &req.StripMetadata)
	boolField("compress_only", &req.CompressOnly)
	stringField("resize_mode", &req.ResizeMode)
	stringField("format", &req.Format)
	stringField("prefix", &req.Prefix)
	stringField("preset", &req.Preset)
	stringField("filter", &req.Filter)
	stringField("watermark_text", &req.WatermarkText)

	req.WatermarkPath = ""
	req.UserID = userID(c)
	return req, nil
}

func readUploads(form *multipart.Form) ([]pipeline.SourceFile, error) {
	headers := make([]*multipart.FileHeader, 0, len(form.File["images"])+len(form.File["images[]"]))
	headers = append(headers, form.File["images"]...)
	headers = append(headers, form.File["images[]"]...)
	files := make([]pipeline.SourceFile, 0, len(headers))
	for _, fh := range headers {
		data, err := readPart(fh)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", domain.ErrInvalidInput, fh.Filename, err)
		}
		files = append(files, pipeline.SourceFile{Name: fh.Filename, Data: data})
	}
	return files, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (s *Server) saveWatermark(fh *multipart.FileHeader) (string, error) {
	data, err := readPart(fh)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(s.pipelineOpts.StagingDir, "watermarks")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, id.New()+strings.ToLower(filepath.Ext(fh.Filename)))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func firstFile(form *multipart.Form, name string) *multipart.FileHeader {
	if files := form.File[name]; len(files) > 0 {
		return files[0]
	}
	return nil
}

func formField(form *multipart.Form, name string) (string, bool) {
	values, ok := form.Value[name]
	if !ok || len(values) == 0 {
		return "", false
	}
	return strings.TrimSpace(values[0]), true
}

func formValue(form *multipart.Form, name string) string {
	v, _ := formField(form, name)
	return v
}

// checked treats any value of a submitted checkbox as on, except explicit
// negatives.
func checked(raw string) bool {
	switch strings.ToLower(raw) {
	case "", "0", "false", "off", "no":
		return false
	default:
		return true
	}
}

func isImageName(name string) bool {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(name), ".")) {
	case "png", "jpg", "jpeg", "gif", "webp", "bmp", "tiff":
		return true
	}
	return false
}
