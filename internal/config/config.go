// Package config loads pixelbatch settings from defaults, an optional
// config.yaml and PIXELBATCH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/pixelbatch/internal/geometry"
	"github.com/dunamismax/pixelbatch/internal/pipeline"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const envPrefix = "PIXELBATCH"

type Config struct {
	Environment string
	HTTP        HTTPConfig
	Pipeline    PipelineConfig
	Model       ModelConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Storage     StorageConfig
	Auth        AuthConfig
	Tracing     TracingConfig
	Sweeper     SweeperConfig
}

type HTTPConfig struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxUploadBytes int64
}

type PipelineConfig struct {
	StagingDir        string
	OutputDir         string
	ThumbnailDir      string
	MaxFileBytes      int64
	AllowedExtensions []string
	Workers           int
	// Presets holds extra size presets as name=WIDTHxHEIGHT.
	Presets []string
}

type ModelConfig struct {
	Endpoint    string
	Token       string
	Timeout     time.Duration
	MaxAttempts int
}

type DatabaseConfig struct {
	DSN string
}

type RedisConfig struct {
	Addr            string
	Password        string
	DB              int
	RateLimit       int
	RateLimitWindow time.Duration
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Prefix    string
}

type AuthConfig struct {
	JWTSecret string
	Required  bool
}

type TracingConfig struct {
	ServiceName  string
	Exporter     string
	OTLPEndpoint string
	OTLPInsecure bool
}

type SweeperConfig struct {
	Schedule string
	MaxAge   time.Duration
}

// Load reads configuration. An empty path searches the working directory and
// ./config for config.yaml; a missing file is not an error.
func Load(path string) (Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.readtimeout", "30s")
	v.SetDefault("http.writetimeout", "120s")
	v.SetDefault("http.idletimeout", "60s")
	v.SetDefault("http.maxuploadbytes", 64<<20)

	v.SetDefault("pipeline.stagingdir", "./data/uploads")
	v.SetDefault("pipeline.outputdir", "./data/outputs")
	v.SetDefault("pipeline.thumbnaildir", "./data/thumbnails")
	v.SetDefault("pipeline.maxfilebytes", pipeline.DefaultMaxFileBytes)
	v.SetDefault("pipeline.allowedextensions", pipeline.DefaultAllowedExtensions)
	v.SetDefault("pipeline.workers", runtime.NumCPU())
	v.SetDefault("pipeline.presets", []string{})

	v.SetDefault("model.endpoint", "")
	v.SetDefault("model.token", "")
	v.SetDefault("model.timeout", "20s")
	v.SetDefault("model.maxattempts", 2)

	v.SetDefault("database.dsn", "")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ratelimit", 60)
	v.SetDefault("redis.ratelimitwindow", "1m")

	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.accesskey", "")
	v.SetDefault("storage.secretkey", "")
	v.SetDefault("storage.bucket", "pixelbatch-outputs")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.prefix", "outputs")

	v.SetDefault("auth.jwtsecret", "")
	v.SetDefault("auth.required", false)

	v.SetDefault("tracing.servicename", "pixelbatch")
	v.SetDefault("tracing.exporter", "none")
	v.SetDefault("tracing.otlpendpoint", "")
	v.SetDefault("tracing.otlpinsecure", false)

	v.SetDefault("sweeper.schedule", "@hourly")
	v.SetDefault("sweeper.maxage", "24h")
}

// PipelineOptions converts the pipeline section into the immutable options
// handed to the coordinator.
func (c Config) PipelineOptions() (pipeline.Options, error) {
	presets, err := ParsePresets(c.Pipeline.Presets)
	if err != nil {
		return pipeline.Options{}, err
	}

	return pipeline.Options{
		StagingDir:        c.Pipeline.StagingDir,
		OutputDir:         c.Pipeline.OutputDir,
		MaxFileBytes:      c.Pipeline.MaxFileBytes,
		AllowedExtensions: c.Pipeline.AllowedExtensions,
		Workers:           c.Pipeline.Workers,
		Presets:           geometry.DefaultPresets().Merge(presets),
		ModelTimeout:      c.Model.Timeout,
	}, nil
}

// ParsePresets parses entries of the form name=WIDTHxHEIGHT.
func ParsePresets(entries []string) (geometry.Presets, error) {
	out := make(geometry.Presets, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, dims, ok := strings.Cut(entry, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid preset %q: want name=WIDTHxHEIGHT", entry)
		}
		ws, hs, ok := strings.Cut(strings.ToLower(strings.TrimSpace(dims)), "x")
		if !ok {
			return nil, fmt.Errorf("invalid preset %q: want name=WIDTHxHEIGHT", entry)
		}
		w, errW := strconv.Atoi(ws)
		h, errH := strconv.Atoi(hs)
		if errW != nil || errH != nil || w <= 0 || h <= 0 {
			return nil, fmt.Errorf("invalid preset %q: dimensions must be positive integers", entry)
		}
		out[strings.ToLower(strings.TrimSpace(name))] = geometry.Size{Width: w, Height: h}
	}
	return out, nil
}
