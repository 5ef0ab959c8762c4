package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete pumpcache configuration.
type Config struct {
	Timezone string        `mapstructure:"timezone"`
	Device   DeviceConfig  `mapstructure:"device"`
	Cache    CacheConfig   `mapstructure:"cache"`
	Log      LogConfig     `mapstructure:"log"`
	Metrics  MetricsConfig `mapstructure:"metrics"`
}

// DeviceConfig describes how device commands are executed.
type DeviceConfig struct {
	Command string        `mapstructure:"command"`
	Args    []string      `mapstructure:"args"`
	Timeout time.Duration `mapstructure:"timeout"` // 0 waits indefinitely
}

// CacheConfig tunes the query caches.
type CacheConfig struct {
	ScheduleTTL      time.Duration `mapstructure:"schedule_ttl"`
	TTLCapacity      int           `mapstructure:"ttl_capacity"`
	ScatterSeconds   []int         `mapstructure:"scatter_seconds"`
	HistoryTolerance time.Duration `mapstructure:"history_tolerance"`
	GlucoseWindow    time.Duration `mapstructure:"glucose_window"`
}

// LogConfig contains structured logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // auto, json, console
	Output string `mapstructure:"output"` // stderr, stdout
}

// MetricsConfig controls the Prometheus endpoint served alongside the MCP server.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Port      int    `mapstructure:"port"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
}

// LoadConfig loads configuration from an optional file and environment variables.
// Environment variables use envPrefix, e.g. PUMPCACHE_DEVICE_COMMAND.
func LoadConfig(configPath, envPrefix string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if envPrefix != "" {
		v.SetEnvPrefix(envPrefix)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() *Config {
	return &Config{
		Timezone: "Local",
		Device: DeviceConfig{
			Command: DefaultDeviceCommand,
			Args:    append([]string(nil), DefaultDeviceArgs...),
		},
		Cache: CacheConfig{
			ScheduleTTL:      ScheduleTTL,
			TTLCapacity:      TTLCapacity,
			ScatterSeconds:   append([]int(nil), DefaultScatterSeconds...),
			HistoryTolerance: HistoryTolerance,
			GlucoseWindow:    GlucoseWindow,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Port:      9090,
			Path:      "/metrics",
			Namespace: "pumpcache",
		},
	}
}

// setDefaults registers every key with viper so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("timezone", d.Timezone)
	v.SetDefault("device.command", d.Device.Command)
	v.SetDefault("device.args", d.Device.Args)
	v.SetDefault("device.timeout", d.Device.Timeout)
	v.SetDefault("cache.schedule_ttl", d.Cache.ScheduleTTL)
	v.SetDefault("cache.ttl_capacity", d.Cache.TTLCapacity)
	v.SetDefault("cache.scatter_seconds", d.Cache.ScatterSeconds)
	v.SetDefault("cache.history_tolerance", d.Cache.HistoryTolerance)
	v.SetDefault("cache.glucose_window", d.Cache.GlucoseWindow)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.output", d.Log.Output)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.port", d.Metrics.Port)
	v.SetDefault("metrics.path", d.Metrics.Path)
	v.SetDefault("metrics.namespace", d.Metrics.Namespace)
}

// Validate returns an error if any required field is missing or out of range.
func Validate(cfg *Config) error {
	if cfg.Device.Command == "" {
		return fmt.Errorf("device.command is required")
	}
	if cfg.Timezone != "" && !strings.EqualFold(cfg.Timezone, "local") {
		if _, err := time.LoadLocation(cfg.Timezone); err != nil {
			return fmt.Errorf("timezone %q: %w", cfg.Timezone, err)
		}
	}
	if cfg.Device.Timeout < 0 {
		return fmt.Errorf("device.timeout must not be negative")
	}
	if cfg.Cache.ScheduleTTL <= 0 {
		return fmt.Errorf("cache.schedule_ttl must be positive")
	}
	if cfg.Cache.TTLCapacity <= 0 {
		return fmt.Errorf("cache.ttl_capacity must be positive")
	}
	if len(cfg.Cache.ScatterSeconds) == 0 {
		return fmt.Errorf("cache.scatter_seconds must contain at least one offset")
	}
	for _, m := range cfg.Cache.ScatterSeconds {
		if time.Duration(m)*time.Second <= -cfg.Cache.ScheduleTTL {
			return fmt.Errorf("cache.scatter_seconds offset %d exceeds cache.schedule_ttl", m)
		}
	}
	if cfg.Cache.HistoryTolerance <= 0 {
		return fmt.Errorf("cache.history_tolerance must be positive")
	}
	if cfg.Cache.GlucoseWindow <= 0 {
		return fmt.Errorf("cache.glucose_window must be positive")
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Port == 0 {
		return fmt.Errorf("metrics.port is required when metrics are enabled")
	}
	return nil
}
