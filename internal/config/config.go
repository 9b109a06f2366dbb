// Package config provides unified configuration loading for pagesnap.
// Supports YAML files, .env files, environment variables, and programmatic
// overrides.
package config

import (
	"errors"
	"fmt"
	"image/color"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/lucasb-eyer/go-colorful"
	"gopkg.in/yaml.v3"

	"github.com/spherical/pagesnap/internal/codec"
	"github.com/spherical/pagesnap/internal/domain"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PAGESNAP_"

// Config holds all configuration for pagesnap.
type Config struct {
	Export        ExportConfig        `yaml:"export"`
	Encoding      EncodingConfig      `yaml:"encoding"`
	Archive       ArchiveConfig       `yaml:"archive"`
	Delivery      DeliveryConfig      `yaml:"delivery"`
	Import        ImportConfig        `yaml:"import"`
	Thumbnail     ThumbnailConfig     `yaml:"thumbnail"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ExportConfig holds the default export options.
type ExportConfig struct {
	Format     string  `yaml:"format"`
	Scale      float64 `yaml:"scale"`
	Quality    float64 `yaml:"quality"`
	DPR        float64 `yaml:"dpr"`
	Background string  `yaml:"background"`
}

// EncodingConfig holds codec settings.
type EncodingConfig struct {
	DisableWebP bool `yaml:"disable_webp"`
}

// ArchiveConfig holds ZIP settings.
type ArchiveConfig struct {
	Level      int    `yaml:"level"`
	NamePrefix string `yaml:"name_prefix"`
}

// DeliveryConfig holds output settings.
type DeliveryConfig struct {
	OutputDir string        `yaml:"output_dir"`
	Pause     time.Duration `yaml:"pause"`
}

// ImportConfig holds document loading settings.
type ImportConfig struct {
	MaxPasswordAttempts int `yaml:"max_password_attempts"`
}

// ThumbnailConfig holds page preview settings.
type ThumbnailConfig struct {
	Width   int     `yaml:"width"`
	Quality float64 `yaml:"quality"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, domain.ConfigError("read config file", err)
		}

		defaultOut := cfg.Delivery.OutputDir
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, domain.ConfigError("parse config file", err)
		}
		if cfg.Delivery.OutputDir != defaultOut {
			cfg.Delivery.OutputDir = ResolveRelativePath(path, cfg.Delivery.OutputDir)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadDotEnv loads variables from a .env file into the process environment.
// Existing variables win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return domain.ConfigError(fmt.Sprintf("load %s", path), err)
	}
	return nil
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Export: ExportConfig{
			Format:     "jpeg",
			Scale:      2,
			Quality:    0.95,
			DPR:        1,
			Background: "#ffffff",
		},
		Archive: ArchiveConfig{
			Level:      6,
			NamePrefix: "export",
		},
		Delivery: DeliveryConfig{
			OutputDir: ".",
			Pause:     10 * time.Millisecond,
		},
		Import: ImportConfig{
			MaxPasswordAttempts: 3,
		},
		Thumbnail: ThumbnailConfig{
			Width:   160,
			Quality: 0.8,
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "console",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if _, err := c.ExportOptions(); err != nil {
		return domain.ConfigError("invalid export settings", err)
	}

	if c.Archive.Level < 1 || c.Archive.Level > 9 {
		return domain.ConfigError(fmt.Sprintf("archive level must be between 1 and 9, got %d", c.Archive.Level), nil)
	}

	if strings.TrimSpace(c.Archive.NamePrefix) == "" {
		return domain.ConfigError("archive name prefix cannot be empty", nil)
	}

	if c.Delivery.Pause < 0 {
		return domain.ConfigError(fmt.Sprintf("delivery pause cannot be negative, got %v", c.Delivery.Pause), nil)
	}

	if c.Import.MaxPasswordAttempts < 1 {
		return domain.ConfigError(fmt.Sprintf("max_password_attempts must be at least 1, got %d", c.Import.MaxPasswordAttempts), nil)
	}

	if c.Thumbnail.Width < 1 {
		return domain.ConfigError(fmt.Sprintf("thumbnail width must be positive, got %d", c.Thumbnail.Width), nil)
	}

	if c.Thumbnail.Quality <= 0 || c.Thumbnail.Quality > 1 {
		return domain.ConfigError(fmt.Sprintf("thumbnail quality must be in (0, 1], got %g", c.Thumbnail.Quality), nil)
	}

	switch c.Observability.LogFormat {
	case "console", "json":
	default:
		return domain.ConfigError(fmt.Sprintf("invalid log format: %s", c.Observability.LogFormat), nil)
	}

	return nil
}

// ExportOptions converts the export section into domain options.
func (c *Config) ExportOptions() (domain.ExportOptions, error) {
	format, err := codec.ParseFormat(c.Export.Format)
	if err != nil {
		return domain.ExportOptions{}, err
	}

	bg, err := ParseColor(c.Export.Background)
	if err != nil {
		return domain.ExportOptions{}, err
	}

	opts := domain.ExportOptions{
		Format:     format,
		PageScale:  c.Export.Scale,
		Quality:    c.Export.Quality,
		DPR:        c.Export.DPR,
		Background: bg,
	}
	if err := opts.Validate(); err != nil {
		return domain.ExportOptions{}, err
	}
	return opts, nil
}

// LogConfig builds the logger configuration.
func (c *Config) LogConfig() domain.LogConfig {
	return domain.LogConfig{
		Level:   domain.ParseLogLevel(c.Observability.LogLevel),
		Format:  c.Observability.LogFormat,
		Service: "pagesnap",
	}
}

// ParseColor accepts "#rgb", "#rrggbb", "white", "black" and "transparent".
// An empty string means white.
func ParseColor(s string) (color.Color, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "white":
		return color.White, nil
	case "black":
		return color.Black, nil
	case "transparent":
		return color.Transparent, nil
	}

	c, err := colorful.Hex(expandShortHex(strings.TrimSpace(s)))
	if err != nil {
		return nil, domain.ValidationError(fmt.Sprintf("invalid background color %q", s), err)
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 0xff}, nil
}

// expandShortHex turns "#abc" into "#aabbcc".
func expandShortHex(s string) string {
	if len(s) != 4 || s[0] != '#' {
		return s
	}
	return string([]byte{'#', s[1], s[1], s[2], s[2], s[3], s[3]})
}

// applyEnvOverrides applies PAGESNAP_* environment variables to config.
func applyEnvOverrides(cfg *Config) error {
	var errs []error

	str := func(name string, dst *string) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}
	float := func(name string, dst *float64) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = f
		}
	}
	integer := func(name string, dst *int) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}

	str("FORMAT", &cfg.Export.Format)
	float("SCALE", &cfg.Export.Scale)
	float("QUALITY", &cfg.Export.Quality)
	float("DPR", &cfg.Export.DPR)
	str("BACKGROUND", &cfg.Export.Background)
	integer("ZIP_LEVEL", &cfg.Archive.Level)
	str("OUTPUT_DIR", &cfg.Delivery.OutputDir)
	integer("PASSWORD_ATTEMPTS", &cfg.Import.MaxPasswordAttempts)
	integer("THUMB_WIDTH", &cfg.Thumbnail.Width)
	str("LOG_LEVEL", &cfg.Observability.LogLevel)
	str("LOG_FORMAT", &cfg.Observability.LogFormat)

	if v := os.Getenv(EnvPrefix + "DELIVERY_PAUSE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sDELIVERY_PAUSE: %w", EnvPrefix, err))
		} else {
			cfg.Delivery.Pause = d
		}
	}

	if v := os.Getenv(EnvPrefix + "DISABLE_WEBP"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sDISABLE_WEBP: %w", EnvPrefix, err))
		} else {
			cfg.Encoding.DisableWebP = b
		}
	}

	if len(errs) > 0 {
		return domain.ConfigError("invalid environment override", errors.Join(errs...))
	}
	return nil
}

// ResolveRelativePath resolves targetPath against the directory of configPath.
// Absolute paths and an empty configPath leave it unchanged.
func ResolveRelativePath(configPath, targetPath string) string {
	if filepath.IsAbs(targetPath) || configPath == "" {
		return targetPath
	}
	configDir := filepath.Dir(configPath)
	return filepath.Join(configDir, targetPath)
}
