package fetch

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gravyjobs/gravyjobs/internal/backoff"
	"github.com/gravyjobs/gravyjobs/internal/cache"
	"github.com/gravyjobs/gravyjobs/internal/clock"
	"github.com/gravyjobs/gravyjobs/internal/fingerprint"
	"github.com/gravyjobs/gravyjobs/internal/identity"
	"github.com/gravyjobs/gravyjobs/internal/license"
	"github.com/gravyjobs/gravyjobs/internal/transport"
)

// Pool supplies and reclaims identity leases.
type Pool interface {
	Acquire(allowed map[string]struct{}, avoid string) (identity.Lease, error)
	Release(lease identity.Lease, status backoff.Status)
	Discard(lease identity.Lease)
	Identities() []identity.Identity
}

// Executor issues one request through a specific identity.
type Executor interface {
	Do(ctx context.Context, id identity.Identity, profile fingerprint.Profile, method, rawURL string, header http.Header) (transport.Response, error)
}

// Cache is the fallback store consulted after retries are exhausted.
type Cache interface {
	Put(rawURL string, payload []byte) error
	GetStale(rawURL string) (cache.Entry, bool, bool)
}

// Classifier maps raw attempt results onto outcome statuses.
type Classifier interface {
	Classify(statusCode int, body []byte, err error) backoff.Status
}

// Options bound the retry loop.
type Options struct {
	MaxRetries int
	Deadline   time.Duration
}

// Fetcher orchestrates identity selection, execution, classification,
// retry, and cache fallback for logical fetch requests. Side effects are
// confined to pool state, backoff state, and cache writes.
type Fetcher struct {
	pool       Pool
	executor   Executor
	cache      Cache
	classifier Classifier
	license    license.State
	clock      clock.Clock
	logger     *zap.Logger
	opts       Options
}

// New constructs a Fetcher.
func New(
	pool Pool,
	executor Executor,
	store Cache,
	classifier Classifier,
	state license.State,
	clk clock.Clock,
	logger *zap.Logger,
	opts Options,
) *Fetcher {
	return &Fetcher{
		pool:       pool,
		executor:   executor,
		cache:      store,
		classifier: classifier,
		license:    state,
		clock:      clk,
		logger:     logger,
		opts:       opts,
	}
}

// Fetch runs one logical request to completion: select an identity, issue
// the request, classify the outcome, then retry with rotation or fall back
// to cache. Only terminal errors cross this boundary; every retryable
// signal is contained here.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (Result, error) {
	totalRequests.Inc()

	requestID := uuid.NewString()
	log := f.logger.With(zap.String("request_id", requestID), zap.String("url", req.URL))

	for _, feature := range req.Features {
		if !f.license.Has(feature) {
			return Result{}, &FeatureError{URL: req.URL, Feature: feature}
		}
	}

	allowed := identity.Allowed(f.pool.Identities(), func(tag string) bool {
		return f.license.Has(license.Feature(tag))
	})

	ctx, cancel := context.WithTimeout(ctx, f.opts.Deadline)
	defer cancel()
	deadline, _ := ctx.Deadline()

	var (
		lastStatus backoff.Status
		lastFailed string
		attempts   int
	)

	for attempts < f.opts.MaxRetries {
		lease, err := f.acquire(ctx, allowed, lastFailed, deadline)
		if err != nil {
			var none *identity.NoneEligibleError
			switch {
			case errors.As(err, &none):
				totalNoIdentity.Inc()
				log.Warn("deadline exceeded waiting for identity", zap.Time("next_eligible", none.NextEligible))
				return f.fallback(req, lastStatus, attempts, &NoIdentityAvailableError{URL: req.URL, NextEligible: none.NextEligible})
			case errors.Is(err, identity.ErrNoIdentityAllowed):
				return f.fallback(req, lastStatus, attempts, err)
			default:
				return Result{}, err
			}
		}

		attempts++
		totalAttempts.Inc()
		outcome := f.execute(ctx, lease, req)

		if ctx.Err() != nil {
			// Cancelled or timed out mid-flight: the outcome is not
			// recorded, so cancellation cannot corrupt backoff state.
			f.pool.Discard(lease)
			if errors.Is(ctx.Err(), context.Canceled) {
				return Result{}, ctx.Err()
			}
			return f.fallback(req, lastStatus, attempts, nil)
		}

		f.pool.Release(lease, outcome.Status)
		attemptOutcomes.WithLabelValues(string(outcome.Status)).Inc()

		if outcome.Status == backoff.StatusSuccess {
			if err := f.cache.Put(req.URL, outcome.Payload); err != nil {
				log.Warn("cache write failed", zap.Error(err))
			}
			log.Debug("fetch succeeded",
				zap.String("identity", outcome.IdentityID),
				zap.Int("attempts", attempts),
			)
			return Result{
				Payload:    outcome.Payload,
				IdentityID: outcome.IdentityID,
				StatusCode: outcome.StatusCode,
				FetchedAt:  outcome.Timestamp,
			}, nil
		}

		lastStatus = outcome.Status
		lastFailed = outcome.IdentityID
		log.Debug("attempt failed",
			zap.String("identity", outcome.IdentityID),
			zap.String("status", string(outcome.Status)),
			zap.Int("attempt", attempts),
		)
	}

	return f.fallback(req, lastStatus, attempts, nil)
}

// acquire obtains an identity lease, waiting out backoff windows bounded
// by the request deadline. It never blocks past the deadline.
func (f *Fetcher) acquire(ctx context.Context, allowed map[string]struct{}, avoid string, deadline time.Time) (identity.Lease, error) {
	for {
		lease, err := f.pool.Acquire(allowed, avoid)
		if err == nil {
			return lease, nil
		}
		var none *identity.NoneEligibleError
		if !errors.As(err, &none) {
			return identity.Lease{}, err
		}
		if none.NextEligible.After(deadline) {
			return identity.Lease{}, err
		}
		if waitErr := f.sleepUntil(ctx, none.NextEligible); waitErr != nil {
			return identity.Lease{}, waitErr
		}
	}
}

func (f *Fetcher) sleepUntil(ctx context.Context, at time.Time) error {
	delay := at.Sub(f.clock.Now())
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (f *Fetcher) execute(ctx context.Context, lease identity.Lease, req Request) Outcome {
	resp, err := f.executor.Do(ctx, lease.Identity, lease.Profile, req.method(), req.URL, req.Header)
	status := f.classifier.Classify(resp.StatusCode, resp.Body, err)
	return Outcome{
		Status:     status,
		StatusCode: resp.StatusCode,
		Payload:    resp.Body,
		IdentityID: lease.Identity.ID,
		Timestamp:  f.clock.Now(),
	}
}

// fallback consults the cache once the retry budget is spent. A hit
// returns the payload, tagged stale when past the expiry horizon; a miss
// surfaces the terminal error.
func (f *Fetcher) fallback(req Request, lastStatus backoff.Status, attempts int, terminal error) (Result, error) {
	entry, ok, expired := f.cache.GetStale(req.URL)
	if ok {
		totalCacheFallbacks.Inc()
		if expired {
			totalStaleResults.Inc()
		}
		f.logger.Info("serving cache fallback",
			zap.String("url", req.URL),
			zap.Bool("stale", expired),
		)
		return Result{
			Payload:   entry.Payload,
			Stale:     expired,
			FromCache: true,
			FetchedAt: entry.StoredAt,
		}, nil
	}
	if terminal != nil {
		return Result{}, terminal
	}
	if lastStatus == "" {
		lastStatus = backoff.StatusTransportError
	}
	return Result{}, &FailedError{URL: req.URL, LastStatus: lastStatus, Attempts: attempts}
}
