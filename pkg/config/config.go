// Configuration loading for tracelens from YAML files and TRACELENS_* environment variables
// Uses a dedicated viper instance per load so tests and commands never share state
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/andrewh/tracelens/pkg/tracemodel"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. TRACELENS_LOG_LEVEL.
const EnvPrefix = "TRACELENS"

// Config is the effective tracelens configuration.
type Config struct {
	TopTagPrefixes []string      `mapstructure:"top_tag_prefixes" yaml:"top_tag_prefixes"`
	SpanGroupKey   SpanGroupKey  `mapstructure:"span_group_key" yaml:"span_group_key"`
	LinkPatterns   []LinkPattern `mapstructure:"link_patterns" yaml:"link_patterns"`
	Cache          CacheConfig   `mapstructure:"cache" yaml:"cache"`
	Log            LogConfig     `mapstructure:"log" yaml:"log"`
}

// SpanGroupKey selects the fields spans are grouped by.
type SpanGroupKey struct {
	Preset string   `mapstructure:"preset" yaml:"preset"`
	Tags   []string `mapstructure:"tags" yaml:"tags"`
}

// LinkPattern turns a tag, process tag, log field or trace into a link.
// Templates reference values as #{key}.
type LinkPattern struct {
	Type string `mapstructure:"type" yaml:"type"`
	Key  string `mapstructure:"key" yaml:"key,omitempty"`
	URL  string `mapstructure:"url" yaml:"url"`
	Text string `mapstructure:"text" yaml:"text"`
}

// CacheConfig bounds the per-trace memo caches.
type CacheConfig struct {
	GroupKeys int `mapstructure:"group_keys" yaml:"group_keys"`
}

// LogConfig controls the CLI logger.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

var (
	linkPatternTypes = []string{"process", "tags", "logs", "traces"}
	logLevels        = []string{"debug", "info", "warn", "error"}
	logFormats       = []string{"text", "json"}
)

// Load reads configuration from path, or when path is empty from
// tracelens.yaml in the working directory or $HOME/.config/tracelens.
// A missing search-path file is not an error; a missing explicit path is.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("tracelens")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "tracelens"))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("top_tag_prefixes", []string{"http."})
	v.SetDefault("span_group_key.preset", "")
	v.SetDefault("span_group_key.tags", []string{})
	v.SetDefault("link_patterns", []LinkPattern{})
	v.SetDefault("cache.group_keys", 16)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks a loaded configuration, naming the offending field.
func Validate(cfg *Config) error {
	if cfg.Cache.GroupKeys <= 0 {
		return fmt.Errorf("cache.group_keys: must be positive, got %d", cfg.Cache.GroupKeys)
	}
	for i, p := range cfg.LinkPatterns {
		field := fmt.Sprintf("link_patterns[%d]", i)
		if !slices.Contains(linkPatternTypes, p.Type) {
			return fmt.Errorf("%s: unknown type %q, valid types: %s", field, p.Type, strings.Join(linkPatternTypes, ", "))
		}
		if p.Type != "traces" && p.Key == "" {
			return fmt.Errorf("%s: key is required for type %q", field, p.Type)
		}
		if p.URL == "" {
			return fmt.Errorf("%s: url is required", field)
		}
		if p.Text == "" {
			return fmt.Errorf("%s: text is required", field)
		}
	}
	if !slices.Contains(logLevels, strings.ToLower(cfg.Log.Level)) {
		return fmt.Errorf("log.level: unknown level %q, valid levels: %s", cfg.Log.Level, strings.Join(logLevels, ", "))
	}
	if !slices.Contains(logFormats, strings.ToLower(cfg.Log.Format)) {
		return fmt.Errorf("log.format: unknown format %q, valid formats: %s", cfg.Log.Format, strings.Join(logFormats, ", "))
	}
	return nil
}

// TransformOptions returns the transformer options implied by cfg.
func (c *Config) TransformOptions(logger *slog.Logger) tracemodel.Options {
	return tracemodel.Options{TopTagPrefixes: c.TopTagPrefixes, Logger: logger}
}

// GroupKeyOptions returns the group key deriver options implied by cfg.
func (c *Config) GroupKeyOptions(logger *slog.Logger) tracemodel.GroupKeyOptions {
	return tracemodel.GroupKeyOptions{
		Preset:    c.SpanGroupKey.Preset,
		Tags:      c.SpanGroupKey.Tags,
		CacheSize: c.Cache.GroupKeys,
		Logger:    logger,
	}
}
