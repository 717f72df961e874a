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
	"gopkg.in/yaml.v2"
)

type Config struct {
	Http     HttpConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Model    ModelConfig    `yaml:"model"`
	Log      LogConfig      `yaml:"log"`
	Logs     LogsConfig     `yaml:"logs"`
	Export   ExportConfig   `yaml:"export"`
}

type HttpConfig struct {
	Port           int           `yaml:"port"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
}

type ModelConfig struct {
	Type       string `yaml:"type"`
	Path       string `yaml:"path"`
	ScalerPath string `yaml:"scaler_path"`
	CacheSize  int    `yaml:"cache_size"`
	Watch      bool   `yaml:"watch"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// LogsConfig controls the prediction log read endpoints.
type LogsConfig struct {
	DefaultLimit int `yaml:"default_limit"`
}

// ExportConfig schedules JSON snapshots of the prediction log. An empty
// schedule disables the job.
type ExportConfig struct {
	Schedule string `yaml:"schedule"`
	Dir      string `yaml:"dir"`
}

func Default() Config {
	return Config{
		Http: HttpConfig{
			Port:           8000,
			Timeout:        30 * time.Second,
			MaxBodyBytes:   1 << 20,
			AllowedOrigins: []string{"*"},
		},
		Database: DatabaseConfig{
			Driver:   "sqlite",
			Path:     "data/watercheck.db",
			MaxConns: 10,
		},
		Model: ModelConfig{
			Type:       "decision_tree",
			Path:       "model/potability_tree.json",
			ScalerPath: "model/potability_scaler.json",
			CacheSize:  4,
			Watch:      true,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Logs: LogsConfig{DefaultLimit: 0},
		Export: ExportConfig{
			Dir: "exports",
		},
	}
}

// Load reads .env, then the YAML file at path, then environment overrides.
// A missing file is only an error when path was given explicitly.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	explicit := path != ""
	if path == "" {
		path = os.Getenv("WATERCHECK_CONFIG")
		explicit = path != ""
	}
	if path == "" {
		path = "config.yaml"
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("config file %s not found: %w", path, err)
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
		if strings.HasPrefix(v, "postgres://") || strings.HasPrefix(v, "postgresql://") {
			cfg.Database.Driver = "postgres"
		}
	}
	if v := os.Getenv("WATERCHECK_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("WATERCHECK_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("WATERCHECK_HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Http.Port = port
		}
	}
	if v := os.Getenv("WATERCHECK_MODEL_TYPE"); v != "" {
		cfg.Model.Type = v
	}
	if v := os.Getenv("WATERCHECK_MODEL_PATH"); v != "" {
		cfg.Model.Path = v
	}
	if v, ok := os.LookupEnv("WATERCHECK_SCALER_PATH"); ok {
		cfg.Model.ScalerPath = v
	}
	if v := os.Getenv("WATERCHECK_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("WATERCHECK_LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
	if v := os.Getenv("WATERCHECK_LOGS_DEFAULT_LIMIT"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil {
			cfg.Logs.DefaultLimit = limit
		}
	}
	if v, ok := os.LookupEnv("WATERCHECK_EXPORT_SCHEDULE"); ok {
		cfg.Export.Schedule = v
	}
	if v := os.Getenv("WATERCHECK_EXPORT_DIR"); v != "" {
		cfg.Export.Dir = v
	}
}

func (c *Config) Validate() error {
	if c.Http.Port <= 0 || c.Http.Port > 65535 {
		return fmt.Errorf("invalid http port %d", c.Http.Port)
	}
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return errors.New("database.path is required for sqlite")
		}
	case "postgres":
		if c.Database.URL == "" {
			return errors.New("database.url (or DATABASE_URL) is required for postgres")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.Model.Type {
	case "decision_tree", "linear":
	default:
		return fmt.Errorf("unsupported model type %q", c.Model.Type)
	}
	if c.Model.Path == "" {
		return errors.New("model.path is required")
	}
	if c.Logs.DefaultLimit < 0 {
		return fmt.Errorf("logs.default_limit must not be negative")
	}
	return nil
}
