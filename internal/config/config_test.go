package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 10*time.Second, cfg.Rotation.BaseDelay)
	require.Equal(t, 5*time.Minute, cfg.Rotation.MaxDelay)
	require.Equal(t, 5*time.Second, cfg.Rotation.TransportDelay)
	require.Equal(t, 0.2, cfg.Rotation.JitterFraction)
	require.Equal(t, 5, cfg.Rotation.MaxRetries)
	require.Equal(t, 10, cfg.Rotation.EpochRequests)
	require.Equal(t, 24*time.Hour, cfg.Cache.TTL)
	require.Equal(t, 0, cfg.Server.Port, "status server is off by default")
	require.Contains(t, cfg.BlockSignals.Keywords, "captcha")
	require.Contains(t, cfg.BlockSignals.Keywords, "unusual traffic")

	require.Len(t, cfg.Identities, 1)
	require.Equal(t, "direct", cfg.Identities[0].ID)
	require.Equal(t, TransportDirect, cfg.Identities[0].Transport)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
license:
  key: TEST-GRAVY-JOBS-12345
rotation:
  base_delay: 2s
  max_retries: 3
cache:
  ttl: 1h
identities:
  - id: direct
    transport: direct
  - id: tor
    transport: local-socks
    endpoint: 127.0.0.1:9050
  - id: bright-us
    transport: commercial-proxy
    service: brightdata
    country: us
proxy_services:
  brightdata:
    endpoint: brd.superproxy.io
    port: 22225
    username: brd-customer-zone
    password: secret
scrape:
  sites:
    - name: example
      url: https://jobs.example.org/
      selectors:
        item: .job-card
        title: .job-title
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "TEST-GRAVY-JOBS-12345", cfg.License.Key)
	require.Equal(t, 2*time.Second, cfg.Rotation.BaseDelay)
	require.Equal(t, 3, cfg.Rotation.MaxRetries)
	require.Equal(t, time.Hour, cfg.Cache.TTL)
	require.Len(t, cfg.Identities, 3)
	require.Equal(t, "brightdata", cfg.Identities[2].Service)
	require.Equal(t, 22225, cfg.ProxyServices["brightdata"].Port)
	require.Len(t, cfg.Scrape.Sites, 1)
	require.Equal(t, ".job-card", cfg.Scrape.Sites[0].Selectors.Item)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Rotation: RotationConfig{
				BaseDelay:      10 * time.Second,
				MaxDelay:       5 * time.Minute,
				TransportDelay: 5 * time.Second,
				JitterFraction: 0.2,
				MaxRetries:     5,
				EpochRequests:  10,
				RequestTimeout: 30 * time.Second,
				FetchDeadline:  2 * time.Minute,
			},
			Cache:      CacheConfig{Dir: "data/cache", TTL: 24 * time.Hour},
			Identities: []IdentityConfig{{ID: "direct", Transport: TransportDirect}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "zero base delay",
			mutate:  func(c *Config) { c.Rotation.BaseDelay = 0 },
			wantErr: "base_delay",
		},
		{
			name:    "max delay below base",
			mutate:  func(c *Config) { c.Rotation.MaxDelay = time.Second },
			wantErr: "max_delay",
		},
		{
			name:    "jitter out of range",
			mutate:  func(c *Config) { c.Rotation.JitterFraction = 1.5 },
			wantErr: "jitter_fraction",
		},
		{
			name:    "no retries",
			mutate:  func(c *Config) { c.Rotation.MaxRetries = 0 },
			wantErr: "max_retries",
		},
		{
			name: "no epoch bound",
			mutate: func(c *Config) {
				c.Rotation.EpochRequests = 0
				c.Rotation.EpochWindow = 0
			},
			wantErr: "epoch",
		},
		{
			name:    "empty cache dir",
			mutate:  func(c *Config) { c.Cache.Dir = "  " },
			wantErr: "cache.dir",
		},
		{
			name:    "no identities",
			mutate:  func(c *Config) { c.Identities = nil },
			wantErr: "identity",
		},
		{
			name: "duplicate identity id",
			mutate: func(c *Config) {
				c.Identities = append(c.Identities, IdentityConfig{ID: "direct", Transport: TransportDirect})
			},
			wantErr: "duplicate",
		},
		{
			name: "socks identity without endpoint",
			mutate: func(c *Config) {
				c.Identities = append(c.Identities, IdentityConfig{ID: "tor", Transport: TransportLocalSocks})
			},
			wantErr: "endpoint",
		},
		{
			name: "commercial identity without service",
			mutate: func(c *Config) {
				c.Identities = append(c.Identities, IdentityConfig{ID: "bright", Transport: TransportCommercial})
			},
			wantErr: "service",
		},
		{
			name: "commercial identity with unknown service",
			mutate: func(c *Config) {
				c.Identities = append(c.Identities, IdentityConfig{ID: "bright", Transport: TransportCommercial, Service: "ghost"})
			},
			wantErr: "unknown proxy service",
		},
		{
			name: "unknown transport",
			mutate: func(c *Config) {
				c.Identities = append(c.Identities, IdentityConfig{ID: "x", Transport: "carrier-pigeon"})
			},
			wantErr: "unknown transport",
		},
		{
			name: "site without url",
			mutate: func(c *Config) {
				c.Scrape.Sites = []SiteConfig{{Name: "x", Selectors: SelectorConfig{Item: ".job"}}}
			},
			wantErr: "url",
		},
		{
			name: "site without item selector",
			mutate: func(c *Config) {
				c.Scrape.Sites = []SiteConfig{{Name: "x", URL: "https://example.org"}}
			},
			wantErr: "selectors.item",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
