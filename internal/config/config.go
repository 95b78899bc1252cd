package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/pmr-run/pmr/internal/errdef"
	"github.com/pmr-run/pmr/internal/logrotate"
	"github.com/pmr-run/pmr/internal/paths"
)

// Config is everything pmr reads from ~/.pmr/config.toml, the PMR_*
// environment, or built-in defaults. The file is optional.
type Config struct {
	DataDir    string `mapstructure:"data_dir"`
	LogDir     string `mapstructure:"log_dir"`
	StoreDSN   string `mapstructure:"store_dsn"`
	HistoryDSN string `mapstructure:"history_dsn"`

	ServePort int `mapstructure:"serve_port"`

	LogMaxSizeMB int `mapstructure:"log_max_size_mb"`
	LogKeepCount int `mapstructure:"log_keep_count"`

	GraceSeconds int `mapstructure:"grace_seconds"`
}

const (
	DefaultServePort    = 8080
	DefaultGraceSeconds = 5
)

// Load resolves the configuration. path selects an explicit config file;
// empty tries <data root>/config.toml and silently falls back to defaults
// when absent.
func Load(path string) (Config, error) {
	layout := paths.Default()

	v := viper.New()
	v.SetDefault("data_dir", layout.DataDir)
	v.SetDefault("log_dir", layout.LogDir)
	v.SetDefault("store_dsn", "")
	v.SetDefault("history_dsn", "")
	v.SetDefault("serve_port", DefaultServePort)
	v.SetDefault("log_max_size_mb", logrotate.DefaultMaxSize/(1024*1024))
	v.SetDefault("log_keep_count", logrotate.DefaultKeepCount)
	v.SetDefault("grace_seconds", DefaultGraceSeconds)

	v.SetEnvPrefix("PMR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errdef.Wrap(errdef.KindIO, err, "read config %s", path)
		}
	} else {
		candidate := filepath.Join(layout.DataDir, "config.toml")
		if _, err := os.Stat(candidate); err == nil {
			v.SetConfigFile(candidate)
			v.SetConfigType("toml")
			if err := v.ReadInConfig(); err != nil {
				return Config{}, errdef.Wrap(errdef.KindIO, err, "read config %s", candidate)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errdef.Wrap(errdef.KindIO, err, "parse config")
	}
	if cfg.StoreDSN == "" {
		cfg.StoreDSN = filepath.Join(cfg.DataDir, paths.DBFileName)
	}
	return cfg, nil
}

// Layout derives the directory layout from the loaded config.
func (c Config) Layout() paths.Layout {
	return paths.Layout{DataDir: c.DataDir, LogDir: c.LogDir}
}

// Rotator builds the child-log rotator from the configured knobs.
func (c Config) Rotator() logrotate.Rotator {
	return logrotate.New(int64(c.LogMaxSizeMB)*1024*1024, c.LogKeepCount)
}
