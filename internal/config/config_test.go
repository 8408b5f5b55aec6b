package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ModeProduction, cfg.Scraper.Mode)
	assert.Equal(t, 50, cfg.Scraper.PageBudget)
	assert.Equal(t, 3, cfg.Scraper.ConcurrentLimit)
	assert.NotEmpty(t, cfg.Scraper.UserAgents)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, "Europe/Moscow", cfg.Browser.TimezoneID)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SCRAPER_MODE", "debug")
	t.Setenv("SCRAPER_PAGE_BUDGET", "10")
	t.Setenv("SCRAPER_CONCURRENT_LIMIT", "5")
	t.Setenv("BROWSER_HEADLESS", "false")
	t.Setenv("BROWSER_TIMEOUT", "45s")
	t.Setenv("BACKEND_URL", "http://catalog:3000")
	t.Setenv("SCRAPER_USER_AGENTS", "agent-a,agent-b")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ModeDebug, cfg.Scraper.Mode)
	assert.Equal(t, 10, cfg.Scraper.PageBudget)
	assert.Equal(t, 5, cfg.Scraper.ConcurrentLimit)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 45*time.Second, cfg.Browser.Timeout)
	assert.Equal(t, "http://catalog:3000", cfg.Backend.BaseURL)
	assert.Equal(t, []string{"agent-a", "agent-b"}, cfg.Scraper.UserAgents)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "unknown mode",
			mutate:  func(c *Config) { c.Scraper.Mode = "verbose" },
			wantErr: "SCRAPER_MODE",
		},
		{
			name:    "zero page budget",
			mutate:  func(c *Config) { c.Scraper.PageBudget = 0 },
			wantErr: "SCRAPER_PAGE_BUDGET",
		},
		{
			name:    "concurrency above cap",
			mutate:  func(c *Config) { c.Scraper.ConcurrentLimit = 6 },
			wantErr: "SCRAPER_CONCURRENT_LIMIT",
		},
		{
			name:    "no user agents",
			mutate:  func(c *Config) { c.Scraper.UserAgents = nil },
			wantErr: "SCRAPER_USER_AGENTS",
		},
		{
			name:    "missing backend url",
			mutate:  func(c *Config) { c.Backend.BaseURL = "" },
			wantErr: "BACKEND_URL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
