package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/magvec"
	"github.com/hupe1980/magvec/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 0, cfg.Store.LazyLoading)
	assert.True(t, cfg.Store.Eager)
	assert.False(t, cfg.Store.Blocking)
	assert.True(t, cfg.Store.Normalized)
	assert.True(t, cfg.OOV.Ngram)
	assert.Equal(t, magvec.DefaultLanguage, cfg.OOV.Language)
	assert.Equal(t, magvec.DefaultBatchSize, cfg.Query.BatchSize)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "magvec.yaml")

	content := `
store:
  lazy_loading: -1
  eager: false
  case_insensitive: true
  placeholders: 4
query:
  pad_to_length: 16
  pad_left: true
oov:
  namespace: "tenant-a"
matrix:
  wait_timeout: 30s
log:
  format: json
  level: debug
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o644))

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)

	assert.Equal(t, -1, cfg.Store.LazyLoading)
	assert.False(t, cfg.Store.Eager)
	assert.True(t, cfg.Store.CaseInsensitive)
	assert.Equal(t, 4, cfg.Store.Placeholders)
	assert.Equal(t, 16, cfg.Query.PadToLength)
	assert.True(t, cfg.Query.PadLeft)
	assert.Equal(t, "tenant-a", cfg.OOV.Namespace)
	assert.Equal(t, 30*time.Second, cfg.Matrix.WaitTimeout)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("MAGVEC_STORE_LAZY_LOADING", "500")
	t.Setenv("MAGVEC_OOV_NAMESPACE", "from-env")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.Store.LazyLoading)
	assert.Equal(t, "from-env", cfg.OOV.Namespace)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoad_InvalidValues(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "magvec.yaml")

	content := `
store:
  lazy_loading: -5
log:
  format: xml
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o644))

	_, err := config.Load(cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.lazy_loading")
	assert.Contains(t, err.Error(), "log.format")
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Query.BatchSize = 0
	cfg.Store.Placeholders = -1
	cfg.Log.Level = "loud"

	errs := cfg.Validate()
	assert.Len(t, errs, 3)
}

func TestOptions(t *testing.T) {
	cfg := validConfig()
	assert.Empty(t, cfg.Validate())

	base := len(cfg.Options())

	cfg.Resources.MaxBackgroundJobs = 2
	cfg.Matrix.PollInterval = 10 * time.Millisecond
	assert.Len(t, cfg.Options(), base+2)
}

// validConfig returns a minimal config that passes all validation.
func validConfig() *config.Config {
	return &config.Config{
		Store: config.StoreConfig{
			Eager:            true,
			Normalized:       true,
			PostingCacheSize: magvec.DefaultPostingCacheSize,
		},
		Query: config.QueryConfig{
			BatchSize: magvec.DefaultBatchSize,
		},
		OOV: config.OOVConfig{
			Ngram:    true,
			Language: magvec.DefaultLanguage,
		},
		Log: config.LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
