package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 9, cfg.Gateway.MaxConcurrent)
	assert.Equal(t, 201*time.Millisecond, cfg.Gateway.ReadRetry())
	assert.Equal(t, int64(15*1024*1024), cfg.Pipeline.PartCeilingBytes)
	assert.Equal(t, "50", cfg.Increase.Margin().String())
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "noticerun.yaml")
	yml := `
upstream:
  base_url: https://example.test/v1
increase:
  guideline_pct: "3.3"
  effective_date: "2025-06-01"
pipeline:
  building_pause_ms: 0
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	t.Setenv("BUILDIUM_MAX_CONCURRENT_REQUESTS", "4")
	t.Setenv("BUILDIUM_REQS_PER_SEC", "2.5")
	t.Setenv("NOTICERUN_HANDOFF_KEY", "k")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://example.test/v1", cfg.Upstream.BaseURL)
	assert.Equal(t, 4, cfg.Gateway.MaxConcurrent)
	assert.Equal(t, 2.5, cfg.Gateway.RequestsPerSecond)
	assert.Equal(t, "k", cfg.Handoff.Key)
	assert.Equal(t, time.Duration(0), cfg.Pipeline.BuildingPause())
	// untouched sections keep their defaults
	assert.Equal(t, 1000, cfg.Upstream.PageSize)

	g, err := cfg.Increase.Guideline()
	require.NoError(t, err)
	assert.Equal(t, "3.3", g.String())

	eff, err := cfg.Increase.Effective()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), eff)
}

func TestLoad_BadEnv(t *testing.T) {
	t.Setenv("BUILDIUM_MAX_CONCURRENT_REQUESTS", "many")
	_, err := Load("")
	assert.Error(t, err)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero concurrency", func(c *Config) { c.Gateway.MaxConcurrent = 0 }},
		{"backoff max below base", func(c *Config) { c.Gateway.BackoffMS.Max = 100 }},
		{"bad guideline", func(c *Config) { c.Increase.GuidelinePct = "abc" }},
		{"bad effective date", func(c *Config) { c.Increase.EffectiveDate = "01/06/2025" }},
		{"postgres without dsn", func(c *Config) { c.Accounts.Source = "postgres" }},
		{"unknown account source", func(c *Config) { c.Accounts.Source = "ldap" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
