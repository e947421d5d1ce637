// Package app assembles the service from configuration: logger, license
// gate, identity pool, backoff controller, cache, and the fetch layer.
package app

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gravyjobs/gravyjobs/internal/backoff"
	"github.com/gravyjobs/gravyjobs/internal/blocksig"
	"github.com/gravyjobs/gravyjobs/internal/cache"
	"github.com/gravyjobs/gravyjobs/internal/clock"
	"github.com/gravyjobs/gravyjobs/internal/config"
	"github.com/gravyjobs/gravyjobs/internal/fetch"
	"github.com/gravyjobs/gravyjobs/internal/fingerprint"
	"github.com/gravyjobs/gravyjobs/internal/identity"
	"github.com/gravyjobs/gravyjobs/internal/license"
	"github.com/gravyjobs/gravyjobs/internal/logging"
	"github.com/gravyjobs/gravyjobs/internal/transport"
)

// App holds the wired components for one process run.
type App struct {
	Cfg     config.Config
	Logger  *zap.Logger
	Clock   clock.Clock
	License license.State
	Pool    *identity.Pool
	Cache   *cache.Store
	Fetcher *fetch.Fetcher
}

// New loads configuration and builds every component. Configuration
// errors are fatal here, at startup; an invalid license never is.
func New(cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	clk := clock.NewSystem()

	gate := license.NewGate(operatorGrants(cfg.License.Grants), clk)
	state := gate.Validate(cfg.License.Key)
	if !state.Valid && cfg.License.Key != "" {
		logger.Warn("license key not recognized; running with baseline features")
	}

	ids, err := identity.FromConfig(cfg.Identities)
	if err != nil {
		return nil, fmt.Errorf("build identities: %w", err)
	}

	controller := backoff.NewController(backoff.Config{
		BaseDelay:      cfg.Rotation.BaseDelay,
		MaxDelay:       cfg.Rotation.MaxDelay,
		TransportDelay: cfg.Rotation.TransportDelay,
		JitterFraction: cfg.Rotation.JitterFraction,
	}, clk)

	generator := fingerprint.NewGenerator(fingerprint.Pools{
		UserAgents: cfg.Fingerprint.UserAgents,
		Languages:  cfg.Fingerprint.Languages,
		Viewports:  cfg.Fingerprint.Viewports,
		Timezones:  cfg.Fingerprint.Timezones,
	})

	pool := identity.NewPool(ids, controller, generator, identity.EpochConfig{
		Requests: cfg.Rotation.EpochRequests,
		Window:   cfg.Rotation.EpochWindow,
	}, clk, logger)

	store, err := cache.New(cfg.Cache.Dir, cfg.Cache.TTL, clk, logger)
	if err != nil {
		return nil, fmt.Errorf("init cache: %w", err)
	}

	classifier := backoff.NewClassifier(blocksig.NewDetector(
		cfg.BlockSignals.Keywords,
		cfg.BlockSignals.Selectors,
	))

	executor := transport.NewExecutor(cfg.ProxyServices, cfg.Rotation.RequestTimeout, 0)

	fetcher := fetch.New(pool, executor, store, classifier, state, clk, logger, fetch.Options{
		MaxRetries: cfg.Rotation.MaxRetries,
		Deadline:   cfg.Rotation.FetchDeadline,
	})

	return &App{
		Cfg:     cfg,
		Logger:  logger,
		Clock:   clk,
		License: state,
		Pool:    pool,
		Cache:   store,
		Fetcher: fetcher,
	}, nil
}

// Close flushes buffered log output.
func (a *App) Close() {
	_ = a.Logger.Sync()
}

func operatorGrants(grants map[string]config.GrantConfig) map[string]license.Grant {
	out := make(map[string]license.Grant, len(grants))
	for key, g := range grants {
		// Viper lowercases map keys; license keys are uppercase.
		out[strings.ToUpper(key)] = license.Grant{
			Features: license.ParseFeatures(g.Features),
			Duration: time.Duration(g.Days) * 24 * time.Hour,
		}
	}
	return out
}
