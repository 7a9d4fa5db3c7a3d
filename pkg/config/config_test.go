// Tests for configuration loading, environment overrides, and validation
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tracelens.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// isolate points the search paths at empty directories.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, []string{"http."}, cfg.TopTagPrefixes)
	assert.Empty(t, cfg.SpanGroupKey.Preset)
	assert.Empty(t, cfg.SpanGroupKey.Tags)
	assert.Empty(t, cfg.LinkPatterns)
	assert.Equal(t, 16, cfg.Cache.GroupKeys)
	assert.Equal(t, LogConfig{Level: "info", Format: "text"}, cfg.Log)
}

func TestLoad_File(t *testing.T) {
	isolate(t)
	path := writeTestConfig(t, `
top_tag_prefixes: ["db.", "http."]
span_group_key:
  preset: otel-ef4612d
link_patterns:
  - type: tags
    key: db.statement
    url: "https://example.com/#{db.statement}"
    text: "open #{db.statement}"
  - type: traces
    url: "https://example.com/trace/#{traceID}"
    text: "trace"
cache:
  group_keys: 4
log:
  format: json
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"db.", "http."}, cfg.TopTagPrefixes)
	assert.Equal(t, "otel-ef4612d", cfg.SpanGroupKey.Preset)
	require.Len(t, cfg.LinkPatterns, 2)
	assert.Equal(t, LinkPattern{Type: "tags", Key: "db.statement", URL: "https://example.com/#{db.statement}", Text: "open #{db.statement}"}, cfg.LinkPatterns[0])
	assert.Equal(t, 4, cfg.Cache.GroupKeys)
	assert.Equal(t, LogConfig{Level: "info", Format: "json"}, cfg.Log)
}

func TestLoad_SearchPath(t *testing.T) {
	isolate(t)
	require.NoError(t, os.WriteFile("tracelens.yaml", []byte("cache:\n  group_keys: 7\n"), 0o600))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Cache.GroupKeys)
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("TRACELENS_LOG_LEVEL", "debug")
	t.Setenv("TRACELENS_CACHE_GROUP_KEYS", "32")
	t.Setenv("TRACELENS_TOP_TAG_PREFIXES", "rpc.,messaging.")

	cfg, err := Load(writeTestConfig(t, "log:\n  level: warn\n"))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 32, cfg.Cache.GroupKeys)
	assert.Equal(t, []string{"rpc.", "messaging."}, cfg.TopTagPrefixes)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	isolate(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "reading config file")
}

func TestLoad_InvalidYAML(t *testing.T) {
	isolate(t)
	_, err := Load(writeTestConfig(t, "cache: [unclosed"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Cache: CacheConfig{GroupKeys: 1},
			Log:   LogConfig{Level: "info", Format: "text"},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero cache", func(c *Config) { c.Cache.GroupKeys = 0 }, "cache.group_keys: must be positive"},
		{"bad link type", func(c *Config) {
			c.LinkPatterns = []LinkPattern{{Type: "spans", Key: "k", URL: "u", Text: "t"}}
		}, `link_patterns[0]: unknown type "spans"`},
		{"missing key", func(c *Config) {
			c.LinkPatterns = []LinkPattern{{Type: "logs", URL: "u", Text: "t"}}
		}, "link_patterns[0]: key is required"},
		{"missing url", func(c *Config) {
			c.LinkPatterns = []LinkPattern{
				{Type: "traces", URL: "u", Text: "t"},
				{Type: "traces", URL: "u", Text: "t"},
				{Type: "process", Key: "hostname", Text: "t"},
			}
		}, "link_patterns[2]: url is required"},
		{"missing text", func(c *Config) {
			c.LinkPatterns = []LinkPattern{{Type: "traces", URL: "u"}}
		}, "link_patterns[0]: text is required"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, `log.level: unknown level "loud"`},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, `log.format: unknown format "xml"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.ErrorContains(t, Validate(cfg), tt.want)
		})
	}

	assert.NoError(t, Validate(valid()))
}

func TestConfig_Options(t *testing.T) {
	cfg := &Config{
		TopTagPrefixes: []string{"http."},
		SpanGroupKey:   SpanGroupKey{Tags: []string{"serviceName", "hostname"}},
		Cache:          CacheConfig{GroupKeys: 3},
	}
	assert.Equal(t, []string{"http."}, cfg.TransformOptions(nil).TopTagPrefixes)

	gk := cfg.GroupKeyOptions(nil)
	assert.Equal(t, []string{"serviceName", "hostname"}, gk.Tags)
	assert.Equal(t, 3, gk.CacheSize)
}
