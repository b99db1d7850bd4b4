// Package config loads docqueue settings from YAML, a .env file and
// DOCQUEUE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jupark12/docqueue/observability"
	"github.com/jupark12/docqueue/operations"
	"github.com/jupark12/docqueue/pages"
	"github.com/jupark12/docqueue/server"
)

const envPrefix = "DOCQUEUE_"

// Config holds all configuration for docqueue.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Jobs     JobsConfig     `yaml:"jobs"`
	Defaults DefaultsConfig `yaml:"defaults"`
	Word     WordConfig     `yaml:"word"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds the dashboard listener and worker pool settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	Workers         int           `yaml:"workers"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	MaxUploadMB     int64         `yaml:"max_upload_mb"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// JobsConfig holds job execution settings.
type JobsConfig struct {
	FlattenErrors     bool    `yaml:"flatten_errors"`
	RenderScale       float64 `yaml:"render_scale"`
	ReleaseOnDownload bool    `yaml:"release_on_download"`
}

// DefaultsConfig holds the parameter values used when a job leaves them unset.
type DefaultsConfig struct {
	SplitRange    string `yaml:"split_range"`
	PagesPerFile  int    `yaml:"pages_per_file"`
	Parts         int    `yaml:"parts"`
	RotateAngle   int    `yaml:"rotate_angle"`
	WatermarkText string `yaml:"watermark_text"`
}

// WordConfig selects how word-to-pdf renders documents.
type WordConfig struct {
	Printer    string        `yaml:"printer"` // text or chrome
	ChromePath string        `yaml:"chrome_path"`
	Timeout    time.Duration `yaml:"timeout"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// Load reads configuration from a YAML file, then a .env file in the
// working directory, then the environment.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	// Variables already set in the environment win over .env.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns the configuration used for local development.
func DefaultConfig() *Config {
	d := operations.DefaultDefaults
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			Workers:         4,
			PollInterval:    time.Second,
			MaxUploadMB:     50,
			ShutdownTimeout: 30 * time.Second,
		},
		Jobs: JobsConfig{
			FlattenErrors: true,
			RenderScale:   2,
		},
		Defaults: DefaultsConfig{
			SplitRange:    d.SplitRange,
			PagesPerFile:  d.PagesPerFile,
			Parts:         d.Parts,
			RotateAngle:   d.RotateAngle,
			WatermarkText: d.WatermarkText,
		},
		Word: WordConfig{
			Printer: "text",
			Timeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Workers < 1 {
		return fmt.Errorf("server.workers must be at least 1, got %d", c.Server.Workers)
	}
	if c.Server.PollInterval <= 0 {
		return fmt.Errorf("server.poll_interval must be positive")
	}
	if c.Server.MaxUploadMB < 1 {
		return fmt.Errorf("server.max_upload_mb must be at least 1")
	}
	if c.Jobs.RenderScale <= 0 || c.Jobs.RenderScale > 8 {
		return fmt.Errorf("jobs.render_scale must be in (0, 8], got %g", c.Jobs.RenderScale)
	}

	// Checked against a 1000 page document.
	if len(pages.ParseRange(c.Defaults.SplitRange, 1000)) == 0 {
		return fmt.Errorf("defaults.split_range %q selects no pages", c.Defaults.SplitRange)
	}
	if c.Defaults.PagesPerFile < 1 {
		return fmt.Errorf("defaults.pages_per_file must be at least 1")
	}
	if c.Defaults.Parts < 1 {
		return fmt.Errorf("defaults.parts must be at least 1")
	}
	if c.Defaults.RotateAngle%90 != 0 {
		return fmt.Errorf("defaults.rotate_angle must be a multiple of 90, got %d", c.Defaults.RotateAngle)
	}
	if strings.TrimSpace(c.Defaults.WatermarkText) == "" {
		return fmt.Errorf("defaults.watermark_text must not be blank")
	}

	if c.Word.Printer != "text" && c.Word.Printer != "chrome" {
		return fmt.Errorf("invalid word.printer: %s", c.Word.Printer)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("invalid log.format: %s", c.Log.Format)
	}
	return nil
}

// ServerSettings converts the server section for server.NewServer.
func (c *Config) ServerSettings() server.Config {
	return server.Config{
		Addr:              c.Server.Addr,
		Workers:           c.Server.Workers,
		PollInterval:      c.Server.PollInterval,
		MaxUploadBytes:    c.Server.MaxUploadMB << 20,
		ReleaseOnDownload: c.Jobs.ReleaseOnDownload,
	}
}

// OperationSettings converts the rendering setup. The printer is left for
// the caller to attach.
func (c *Config) OperationSettings() operations.Settings {
	return operations.Settings{
		RenderScale: c.Jobs.RenderScale,
		Defaults: operations.Defaults{
			SplitRange:    c.Defaults.SplitRange,
			PagesPerFile:  c.Defaults.PagesPerFile,
			Parts:         c.Defaults.Parts,
			RotateAngle:   c.Defaults.RotateAngle,
			WatermarkText: c.Defaults.WatermarkText,
		},
	}
}

func (c *Config) LogSettings() observability.LogConfig {
	return observability.LogConfig{
		Level:       c.Log.Level,
		Format:      c.Log.Format,
		ServiceName: "docqueue",
	}
}

func applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"ADDR":           &cfg.Server.Addr,
		"SPLIT_RANGE":    &cfg.Defaults.SplitRange,
		"WATERMARK_TEXT": &cfg.Defaults.WatermarkText,
		"WORD_PRINTER":   &cfg.Word.Printer,
		"CHROME_PATH":    &cfg.Word.ChromePath,
		"LOG_LEVEL":      &cfg.Log.Level,
		"LOG_FORMAT":     &cfg.Log.Format,
	}
	for name, dst := range strs {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"WORKERS":        &cfg.Server.Workers,
		"PAGES_PER_FILE": &cfg.Defaults.PagesPerFile,
		"PARTS":          &cfg.Defaults.Parts,
		"ROTATE_ANGLE":   &cfg.Defaults.RotateAngle,
	}
	for name, dst := range ints {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", envPrefix, name, err)
			}
			*dst = n
		}
	}

	if v, ok := os.LookupEnv(envPrefix + "MAX_UPLOAD_MB"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%sMAX_UPLOAD_MB: %w", envPrefix, err)
		}
		cfg.Server.MaxUploadMB = n
	}

	durations := map[string]*time.Duration{
		"POLL_INTERVAL":    &cfg.Server.PollInterval,
		"SHUTDOWN_TIMEOUT": &cfg.Server.ShutdownTimeout,
		"WORD_TIMEOUT":     &cfg.Word.Timeout,
	}
	for name, dst := range durations {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", envPrefix, name, err)
			}
			*dst = d
		}
	}

	bools := map[string]*bool{
		"FLATTEN_ERRORS":      &cfg.Jobs.FlattenErrors,
		"RELEASE_ON_DOWNLOAD": &cfg.Jobs.ReleaseOnDownload,
	}
	for name, dst := range bools {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", envPrefix, name, err)
			}
			*dst = b
		}
	}

	if v, ok := os.LookupEnv(envPrefix + "RENDER_SCALE"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%sRENDER_SCALE: %w", envPrefix, err)
		}
		cfg.Jobs.RenderScale = f
	}
	return nil
}
