// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
// It is loaded and validated once at startup; components receive the
// sections they need at construction and never re-read configuration.
type Config struct {
	Logging       LoggingConfig                 `mapstructure:"logging"`
	Server        ServerConfig                  `mapstructure:"server"`
	License       LicenseConfig                 `mapstructure:"license"`
	Rotation      RotationConfig                `mapstructure:"rotation"`
	Cache         CacheConfig                   `mapstructure:"cache"`
	Fingerprint   FingerprintConfig             `mapstructure:"fingerprint"`
	BlockSignals  BlockSignalsConfig            `mapstructure:"block_signals"`
	Identities    []IdentityConfig              `mapstructure:"identities"`
	ProxyServices map[string]ProxyServiceConfig `mapstructure:"proxy_services"`
	Scrape        ScrapeConfig                  `mapstructure:"scrape"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// ServerConfig controls the optional status/metrics HTTP server.
// A zero port disables the server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LicenseConfig holds the operator license key and any extra grants.
type LicenseConfig struct {
	Key    string                 `mapstructure:"key"`
	Grants map[string]GrantConfig `mapstructure:"grants"`
}

// GrantConfig describes a configured license grant.
type GrantConfig struct {
	Features []string `mapstructure:"features"`
	Days     int      `mapstructure:"days"`
}

// RotationConfig governs backoff, retries, and fingerprint rotation epochs.
type RotationConfig struct {
	BaseDelay      time.Duration `mapstructure:"base_delay"`
	MaxDelay       time.Duration `mapstructure:"max_delay"`
	TransportDelay time.Duration `mapstructure:"transport_delay"`
	JitterFraction float64       `mapstructure:"jitter_fraction"`
	MaxRetries     int           `mapstructure:"max_retries"`
	EpochRequests  int           `mapstructure:"epoch_requests"`
	EpochWindow    time.Duration `mapstructure:"epoch_window"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	FetchDeadline  time.Duration `mapstructure:"fetch_deadline"`
}

// CacheConfig sets the on-disk fallback cache location and expiry horizon.
type CacheConfig struct {
	Dir string        `mapstructure:"dir"`
	TTL time.Duration `mapstructure:"ttl"`
}

// FingerprintConfig supplies the pools a browser fingerprint is drawn from.
type FingerprintConfig struct {
	UserAgents []string `mapstructure:"user_agents"`
	Languages  []string `mapstructure:"languages"`
	Viewports  []string `mapstructure:"viewports"`
	Timezones  []string `mapstructure:"timezones"`
}

// BlockSignalsConfig configures block-page detection.
type BlockSignalsConfig struct {
	Keywords  []string `mapstructure:"keywords"`
	Selectors []string `mapstructure:"selectors"`
}

// IdentityConfig describes one network egress identity.
type IdentityConfig struct {
	ID        string `mapstructure:"id"`
	Transport string `mapstructure:"transport"`
	Endpoint  string `mapstructure:"endpoint"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	Country   string `mapstructure:"country"`
	Service   string `mapstructure:"service"`
}

// ProxyServiceConfig holds commercial proxy service credentials, keyed by
// service name in Config.ProxyServices.
type ProxyServiceConfig struct {
	Endpoint    string   `mapstructure:"endpoint"`
	Port        int      `mapstructure:"port"`
	Username    string   `mapstructure:"username"`
	Password    string   `mapstructure:"password"`
	Zone        string   `mapstructure:"zone"`
	SessionID   string   `mapstructure:"session_id"`
	CountryPool []string `mapstructure:"country_pool"`
}

// ScrapeConfig drives the job scraping pipeline.
type ScrapeConfig struct {
	Concurrency int          `mapstructure:"concurrency"`
	OutputFile  string       `mapstructure:"output_file"`
	StateFile   string       `mapstructure:"state_file"`
	Sites       []SiteConfig `mapstructure:"sites"`
}

// SiteConfig names one job site target and its extraction selectors.
type SiteConfig struct {
	Name      string         `mapstructure:"name"`
	URL       string         `mapstructure:"url"`
	Features  []string       `mapstructure:"features"`
	Selectors SelectorConfig `mapstructure:"selectors"`
}

// SelectorConfig holds the goquery selectors used to extract listings.
type SelectorConfig struct {
	Item     string `mapstructure:"item"`
	Title    string `mapstructure:"title"`
	Company  string `mapstructure:"company"`
	Location string `mapstructure:"location"`
	Link     string `mapstructure:"link"`
}

// Transport names accepted in identity configuration.
const (
	TransportDirect     = "direct"
	TransportLocalSocks = "local-socks"
	TransportCommercial = "commercial-proxy"
)

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GRAVY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("server.port", 0)

	v.SetDefault("rotation.base_delay", "10s")
	v.SetDefault("rotation.max_delay", "5m")
	v.SetDefault("rotation.transport_delay", "5s")
	v.SetDefault("rotation.jitter_fraction", 0.2)
	v.SetDefault("rotation.max_retries", 5)
	v.SetDefault("rotation.epoch_requests", 10)
	v.SetDefault("rotation.epoch_window", "10m")
	v.SetDefault("rotation.request_timeout", "30s")
	v.SetDefault("rotation.fetch_deadline", "2m")

	v.SetDefault("cache.dir", "data/cache")
	v.SetDefault("cache.ttl", "24h")

	v.SetDefault("block_signals.keywords", []string{
		"captcha",
		"access denied",
		"unusual traffic",
		"automated requests",
		"are you a robot",
	})

	v.SetDefault("scrape.concurrency", 4)
	v.SetDefault("scrape.output_file", "data/jobs.json")
	v.SetDefault("scrape.state_file", "data/seen_jobs.json")

	// A bare config still gets a working direct identity.
	v.SetDefault("identities", []map[string]any{
		{"id": "direct", "transport": TransportDirect},
	})
}

// Validate enforces required values and reasonable limits. Any violation is
// a configuration error and fatal at startup.
func (c Config) Validate() error {
	if c.Rotation.BaseDelay <= 0 {
		return fmt.Errorf("rotation.base_delay must be > 0")
	}
	if c.Rotation.MaxDelay < c.Rotation.BaseDelay {
		return fmt.Errorf("rotation.max_delay must be >= rotation.base_delay")
	}
	if c.Rotation.JitterFraction < 0 || c.Rotation.JitterFraction > 1 {
		return fmt.Errorf("rotation.jitter_fraction must be in [0, 1]")
	}
	if c.Rotation.MaxRetries <= 0 {
		return fmt.Errorf("rotation.max_retries must be > 0")
	}
	if c.Rotation.EpochRequests <= 0 && c.Rotation.EpochWindow <= 0 {
		return fmt.Errorf("rotation requires epoch_requests or epoch_window")
	}
	if c.Rotation.RequestTimeout <= 0 {
		return fmt.Errorf("rotation.request_timeout must be > 0")
	}
	if c.Rotation.FetchDeadline <= 0 {
		return fmt.Errorf("rotation.fetch_deadline must be > 0")
	}
	if strings.TrimSpace(c.Cache.Dir) == "" {
		return fmt.Errorf("cache.dir must be set")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be > 0")
	}
	if len(c.Identities) == 0 {
		return fmt.Errorf("at least one identity must be configured")
	}
	seen := make(map[string]struct{}, len(c.Identities))
	for i, id := range c.Identities {
		if err := c.validateIdentity(id); err != nil {
			return fmt.Errorf("identities[%d]: %w", i, err)
		}
		if _, dup := seen[id.ID]; dup {
			return fmt.Errorf("identities[%d]: duplicate id %q", i, id.ID)
		}
		seen[id.ID] = struct{}{}
	}
	for i, site := range c.Scrape.Sites {
		if strings.TrimSpace(site.URL) == "" {
			return fmt.Errorf("scrape.sites[%d]: url must be set", i)
		}
		if strings.TrimSpace(site.Selectors.Item) == "" {
			return fmt.Errorf("scrape.sites[%d]: selectors.item must be set", i)
		}
	}
	return nil
}

func (c Config) validateIdentity(id IdentityConfig) error {
	if strings.TrimSpace(id.ID) == "" {
		return fmt.Errorf("id must be set")
	}
	switch id.Transport {
	case TransportDirect:
	case TransportLocalSocks:
		if strings.TrimSpace(id.Endpoint) == "" {
			return fmt.Errorf("endpoint must be set for local-socks identity %q", id.ID)
		}
	case TransportCommercial:
		if strings.TrimSpace(id.Service) == "" {
			return fmt.Errorf("service must be set for commercial-proxy identity %q", id.ID)
		}
		if _, ok := c.ProxyServices[id.Service]; !ok {
			return fmt.Errorf("identity %q references unknown proxy service %q", id.ID, id.Service)
		}
	default:
		return fmt.Errorf("unknown transport %q", id.Transport)
	}
	return nil
}
