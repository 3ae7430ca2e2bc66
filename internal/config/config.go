package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. SHEET_ENGINE_MAX_DEPTH
const EnvPrefix = "SHEET"

// Config represents the configuration implementation.
type Config struct {
	AppName string
	Logger  *Logger
	Engine  *Engine
	Storage *Storage
	Viper   *viper.Viper
}

// Engine configures formula evaluation
type Engine struct {
	MaxDepth         int
	LenientAddresses bool
	FormulaCacheSize int
}

func getEngineConfig(v *viper.Viper) *Engine {
	return &Engine{
		MaxDepth:         v.GetInt("engine.max_depth"),
		LenientAddresses: v.GetBool("engine.lenient_addresses"),
		FormulaCacheSize: v.GetInt("engine.formula_cache_size"),
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "spreadsheet")

	v.SetDefault("logger.level", "warn")
	v.SetDefault("logger.format", "text")
	v.SetDefault("logger.output", "stderr")
	v.SetDefault("logger.output_file", "")

	v.SetDefault("engine.max_depth", 4096)
	v.SetDefault("engine.lenient_addresses", false)
	v.SetDefault("engine.formula_cache_size", 0)

	v.SetDefault("storage.format", "")
	v.SetDefault("storage.path", "sheet.s2v")
	v.SetDefault("storage.sqlite.dsn", "")
	v.SetDefault("storage.redis.addr", "localhost:6379")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.key", "sheet")
}

// New creates a viper instance with defaults and SHEET_ environment
// overrides but no config file
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfig loads the configuration from the file. an empty configPath
// searches ./spreadsheet.{yaml,toml,json} and $HOME/.spreadsheet/ and
// falls back to the defaults when nothing is found.
func LoadConfig(configPath string) (*Config, error) {
	v := New()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("spreadsheet")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".spreadsheet"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	return FromViper(v)
}

// FromViper builds a validated Config from an already populated viper
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		AppName: v.GetString("app_name"),
		Logger:  getLoggerConfig(v),
		Engine:  getEngineConfig(v),
		Storage: getStorageConfig(v),
		Viper:   v,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first setting that cannot be used
func (c *Config) Validate() error {
	if c.Engine.MaxDepth < 1 {
		return fmt.Errorf("engine.max_depth must be at least 1, got %d", c.Engine.MaxDepth)
	}
	switch c.Logger.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logger.format must be text or json, got %q", c.Logger.Format)
	}
	switch c.Logger.Output {
	case "stdout", "stderr":
	case "file":
		if c.Logger.OutputFile == "" {
			return errors.New("logger.output is file but logger.output_file is empty")
		}
	default:
		return fmt.Errorf("logger.output must be stdout, stderr or file, got %q", c.Logger.Output)
	}
	if c.Storage.Format != "" && !IsStorageFormat(c.Storage.Format) {
		return fmt.Errorf("unknown storage.format %q", c.Storage.Format)
	}
	return nil
}

// Watch calls callback with a freshly loaded Config whenever the config
// file backing cfg changes. reload failures are passed to onError.
func Watch(cfg *Config, callback func(*Config), onError func(error)) {
	cfg.Viper.OnConfigChange(func(e fsnotify.Event) {
		next, err := FromViper(cfg.Viper)
		if err != nil {
			if onError != nil {
				onError(fmt.Errorf("failed to reload config after %s: %w", e.Op, err))
			}
			return
		}
		callback(next)
	})
	cfg.Viper.WatchConfig()
}
