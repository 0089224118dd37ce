package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/fmueller/voxbatch/internal/whisper"
)

const EnvPrefix = "VOXBATCH_"

type Config struct {
	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:"127.0.0.1:7860"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"10m"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	CORSOrigins  []string      `env:"CORS_ORIGINS" envSeparator:","`
	MaxUploadMB  int64         `env:"MAX_UPLOAD_MB" envDefault:"2048"`
	ReportMaxAge time.Duration `env:"REPORT_RETENTION" envDefault:"1h"`

	ModelDir        string `env:"MODEL_DIR"`
	DefaultModel    string `env:"DEFAULT_MODEL" envDefault:"base"`
	DefaultLanguage string `env:"DEFAULT_LANGUAGE" envDefault:"auto"`
	AutoDownload    bool   `env:"AUTO_DOWNLOAD" envDefault:"true"`

	FFmpegPath  string `env:"FFMPEG_PATH" envDefault:"ffmpeg"`
	WhisperPath string `env:"WHISPER_PATH"`
	TempDir     string `env:"TEMP_DIR"`

	Workers              int           `env:"WORKERS" envDefault:"1"`
	ItemTimeout          time.Duration `env:"ITEM_TIMEOUT" envDefault:"0s"`
	SilenceGate          bool          `env:"SILENCE_GATE" envDefault:"true"`
	SilenceThresholdDBFS float64       `env:"SILENCE_THRESHOLD_DBFS" envDefault:"-65"`

	LogJSON bool `env:"LOG_JSON"`
	Verbose bool `env:"VERBOSE"`
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile     string
	HTTPAddr    string
	ModelDir    string
	Model       string
	Language    string
	FFmpegPath  string
	WhisperPath string
	TempDir     string
	JSON        bool
	Verbose     bool

	// nil leaves the environment value in place
	Workers              *int
	AutoDownload         *bool
	SilenceGate          *bool
	SilenceThresholdDBFS *float64
	ItemTimeout          *time.Duration
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.ModelDir != "" {
		cfg.ModelDir = overrides.ModelDir
	}
	if overrides.Model != "" {
		cfg.DefaultModel = overrides.Model
	}
	if overrides.Language != "" {
		cfg.DefaultLanguage = overrides.Language
	}
	if overrides.FFmpegPath != "" {
		cfg.FFmpegPath = overrides.FFmpegPath
	}
	if overrides.WhisperPath != "" {
		cfg.WhisperPath = overrides.WhisperPath
	}
	if overrides.TempDir != "" {
		cfg.TempDir = overrides.TempDir
	}
	if overrides.Workers != nil {
		cfg.Workers = *overrides.Workers
	}
	if overrides.AutoDownload != nil {
		cfg.AutoDownload = *overrides.AutoDownload
	}
	if overrides.SilenceGate != nil {
		cfg.SilenceGate = *overrides.SilenceGate
	}
	if overrides.SilenceThresholdDBFS != nil {
		cfg.SilenceThresholdDBFS = *overrides.SilenceThresholdDBFS
	}
	if overrides.ItemTimeout != nil {
		cfg.ItemTimeout = *overrides.ItemTimeout
	}
	if overrides.JSON {
		cfg.LogJSON = true
	}
	if overrides.Verbose {
		cfg.Verbose = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if !whisper.IsModelRef(c.DefaultModel) {
		errs = append(errs, fmt.Errorf("unknown default model %q", c.DefaultModel))
	}
	language, err := whisper.ValidateLanguage(c.DefaultLanguage)
	if err != nil {
		errs = append(errs, err)
	} else {
		c.DefaultLanguage = language
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if c.ItemTimeout < 0 {
		errs = append(errs, errors.New("item timeout must not be negative"))
	}
	if c.MaxUploadMB <= 0 {
		errs = append(errs, errors.New("max upload size must be positive"))
	}
	if c.SilenceThresholdDBFS >= 0 {
		errs = append(errs, fmt.Errorf("silence threshold must be below 0 dBFS, got %v", c.SilenceThresholdDBFS))
	}
	return errors.Join(errs...)
}

func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}
