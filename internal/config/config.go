// Package config loads the server configuration from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/vyuha/topoview/internal/graph"
	"github.com/vyuha/topoview/internal/viewsync"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TOPOVIEW_"

// Config is the complete server configuration.
type Config struct {
	Server    ServerConfig          `yaml:"server"`
	Generator graph.GeneratorConfig `yaml:"generator"`
	View      viewsync.LoadOptions  `yaml:"view"`
	Storage   StorageConfig         `yaml:"storage"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port            int           `yaml:"port" validate:"min=1,max=65535"`
	LogLevel        string        `yaml:"log_level" validate:"oneof=debug info warn error"`
	RateLimit       float64       `yaml:"rate_limit" validate:"gt=0"`
	RateBurst       int           `yaml:"rate_burst" validate:"min=1"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"min=0"`
}

// StorageConfig configures the snapshot database.
type StorageConfig struct {
	DBPath string `yaml:"db_path" validate:"required"`
}

// ValidationError reports one invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

var validate = validator.New()

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			LogLevel:        "info",
			RateLimit:       20,
			RateBurst:       40,
			ShutdownTimeout: 10 * time.Second,
		},
		Generator: graph.DefaultGeneratorConfig(),
		View:      viewsync.DefaultLoadOptions(),
		Storage:   StorageConfig{DBPath: "./topoview.db"},
	}
}

// Load reads path over the defaults. A missing or empty file yields the
// defaults; an empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section and reports the first invalid field.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config: nil config")
	}
	for _, section := range []any{c.Server, c.Generator, c.View, c.Storage} {
		if err := validate.Struct(section); err != nil {
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) && len(verrs) > 0 {
				fe := verrs[0]
				return ValidationError{
					Field:   fe.Namespace(),
					Message: fmt.Sprintf("failed %q (value %v)", fe.Tag(), fe.Value()),
				}
			}
			return fmt.Errorf("config: %w", err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from TOPOVIEW_* variables found by lookup,
// then re-validates.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, ValidationError{Field: EnvPrefix + key, Message: err.Error()})
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, ValidationError{Field: EnvPrefix + key, Message: err.Error()})
				return
			}
			*dst = d
		}
	}

	num("PORT", &c.Server.Port)
	str("LOG_LEVEL", &c.Server.LogLevel)
	str("DB_PATH", &c.Storage.DBPath)
	num("MAX_NODES_PER_BATCH", &c.View.MaxNodesPerBatch)
	dur("BATCH_DELAY", &c.View.BatchDelay)
	if v, ok := lookup(EnvPrefix + "SEED"); ok && v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, ValidationError{Field: EnvPrefix + "SEED", Message: err.Error()})
		} else {
			c.Generator.Seed = seed
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return c.Validate()
}
