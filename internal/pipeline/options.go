// Package pipeline runs the per-file transform pipeline and coordinates it
// across a batch of uploads.
package pipeline

import (
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/dunamismax/pixelbatch/internal/geometry"
)

const (
	DefaultMaxFileBytes = 10 << 20
	ArchiveName         = "resized_images.zip"
	ArchiveContentType  = "application/zip"
)

var DefaultAllowedExtensions = []string{"jpg", "jpeg", "png", "webp", "gif", "heic"}

// Options is the immutable configuration shared by a Runner and its
// Coordinator. Callers build it once at startup.
type Options struct {
	StagingDir        string
	OutputDir         string
	MaxFileBytes      int64
	AllowedExtensions []string
	Workers           int
	Presets           geometry.Presets
	ModelTimeout      time.Duration
}

func DefaultOptions() Options {
	return Options{
		StagingDir:        filepath.Join("data", "uploads"),
		OutputDir:         filepath.Join("data", "outputs"),
		MaxFileBytes:      DefaultMaxFileBytes,
		AllowedExtensions: DefaultAllowedExtensions,
		Workers:           runtime.NumCPU(),
		Presets:           geometry.DefaultPresets(),
		ModelTimeout:      20 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.StagingDir == "" {
		o.StagingDir = def.StagingDir
	}
	if o.OutputDir == "" {
		o.OutputDir = def.OutputDir
	}
	if o.MaxFileBytes <= 0 {
		o.MaxFileBytes = def.MaxFileBytes
	}
	if len(o.AllowedExtensions) == 0 {
		o.AllowedExtensions = def.AllowedExtensions
	}
	if o.Workers <= 0 {
		o.Workers = def.Workers
	}
	if o.Presets == nil {
		o.Presets = def.Presets
	}
	if o.ModelTimeout <= 0 {
		o.ModelTimeout = def.ModelTimeout
	}
	return o
}

func (o Options) allows(filename string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if ext == "" {
		return false
	}
	for _, allowed := range o.AllowedExtensions {
		if strings.EqualFold(strings.TrimPrefix(allowed, "."), ext) {
			return true
		}
	}
	return false
}
