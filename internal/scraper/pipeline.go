package scraper

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gravyjobs/gravyjobs/internal/clock"
	"github.com/gravyjobs/gravyjobs/internal/config"
	"github.com/gravyjobs/gravyjobs/internal/fetch"
	"github.com/gravyjobs/gravyjobs/internal/license"
)

// Fetcher is the slice of the resilient fetch layer the pipeline needs.
type Fetcher interface {
	Fetch(ctx context.Context, req fetch.Request) (fetch.Result, error)
}

// Pipeline scrapes every configured site through a bounded worker pool.
// Each target succeeds or fails on its own; one blocked site never aborts
// the batch.
type Pipeline struct {
	fetcher     Fetcher
	store       *Store
	sites       []config.SiteConfig
	concurrency int
	clock       clock.Clock
	logger      *zap.Logger
}

// NewPipeline constructs a Pipeline.
func NewPipeline(
	fetcher Fetcher,
	store *Store,
	sites []config.SiteConfig,
	concurrency int,
	clk clock.Clock,
	logger *zap.Logger,
) *Pipeline {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Pipeline{
		fetcher:     fetcher,
		store:       store,
		sites:       sites,
		concurrency: concurrency,
		clock:       clk,
		logger:      logger,
	}
}

// Run scrapes all sites and flushes the merged results. The returned slice
// has one entry per site, in completion order.
func (p *Pipeline) Run(ctx context.Context) ([]SiteResult, error) {
	work := make(chan config.SiteConfig)
	results := make(chan SiteResult)

	var wg sync.WaitGroup
	for i := 0; i < p.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for site := range work {
				results <- p.scrapeSite(ctx, site)
			}
		}()
	}

	go func() {
		defer close(work)
		for _, site := range p.sites {
			select {
			case work <- site:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var out []SiteResult
	for res := range results {
		if res.Err != nil {
			p.logger.Warn("site scrape failed",
				zap.String("site", res.Site),
				zap.Error(res.Err),
			)
		} else {
			p.logger.Info("site scraped",
				zap.String("site", res.Site),
				zap.Int("jobs", len(res.Jobs)),
				zap.Int("new", res.NewJobs),
				zap.Bool("stale", res.Stale),
			)
		}
		out = append(out, res)
	}

	if err := p.store.Flush(); err != nil {
		return out, err
	}
	return out, ctx.Err()
}

func (p *Pipeline) scrapeSite(ctx context.Context, site config.SiteConfig) SiteResult {
	res := SiteResult{Site: site.Name}

	result, err := p.fetcher.Fetch(ctx, fetch.Request{
		URL:      site.URL,
		Features: license.ParseFeatures(site.Features),
	})
	if err != nil {
		var featureErr *fetch.FeatureError
		if errors.As(err, &featureErr) {
			p.logger.Warn("site requires unlicensed feature; skipping",
				zap.String("site", site.Name),
				zap.String("feature", string(featureErr.Feature)),
			)
		}
		res.Err = err
		return res
	}

	jobs, err := extract(site, result.Payload)
	if err != nil {
		res.Err = err
		return res
	}

	now := p.clock.Now()
	for i := range jobs {
		jobs[i].FirstSeen = now.Truncate(time.Second)
		jobs[i].Stale = result.Stale
	}
	res.Jobs = jobs
	res.Stale = result.Stale
	res.NewJobs = p.store.Merge(jobs)
	return res
}
