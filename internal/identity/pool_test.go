package identity

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gravyjobs/gravyjobs/internal/backoff"
	"github.com/gravyjobs/gravyjobs/internal/config"
	"github.com/gravyjobs/gravyjobs/internal/fingerprint"
	"github.com/gravyjobs/gravyjobs/internal/license"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testIdentities() []Identity {
	return []Identity{
		{ID: "direct", Transport: TransportDirect, Feature: license.FeatureBasicScraping},
		{ID: "proxy-a", Transport: TransportCommercial, Feature: license.FeatureCommercialProxies},
		{ID: "proxy-b", Transport: TransportCommercial, Feature: license.FeatureCommercialProxies},
	}
}

func allOf(ids []Identity) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id.ID] = struct{}{}
	}
	return out
}

func newTestPool(t *testing.T, ids []Identity, epoch EpochConfig) (*Pool, *backoff.Controller, *fakeClock) {
	t.Helper()
	clk := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	controller := backoff.NewController(backoff.Config{
		BaseDelay:      10 * time.Second,
		MaxDelay:       5 * time.Minute,
		TransportDelay: 5 * time.Second,
	}, clk)
	gen := fingerprint.NewGenerator(fingerprint.Pools{})
	return NewPool(ids, controller, gen, epoch, clk, zap.NewNop()), controller, clk
}

func TestAcquireEmptyAllowedSet(t *testing.T) {
	pool, _, _ := newTestPool(t, testIdentities(), EpochConfig{})
	_, err := pool.Acquire(nil, "")
	require.ErrorIs(t, err, ErrNoIdentityAllowed)
}

func TestAcquireSkipsIdentitiesInBackoff(t *testing.T) {
	ids := testIdentities()
	pool, controller, _ := newTestPool(t, ids, EpochConfig{})
	allowed := allOf(ids)

	controller.Record("proxy-a", backoff.StatusRateLimited)
	controller.Record("proxy-b", backoff.StatusBlocked)

	for i := 0; i < 10; i++ {
		lease, err := pool.Acquire(allowed, "")
		require.NoError(t, err)
		require.Equal(t, "direct", lease.Identity.ID,
			"an identity inside its backoff window must never be selected")
		pool.Release(lease, backoff.StatusSuccess)
	}
}

func TestAcquireRotatesAcrossEligibleIdentities(t *testing.T) {
	ids := testIdentities()
	pool, _, _ := newTestPool(t, ids, EpochConfig{})
	allowed := allOf(ids)

	seen := make(map[string]int)
	for i := 0; i < 9; i++ {
		lease, err := pool.Acquire(allowed, "")
		require.NoError(t, err)
		seen[lease.Identity.ID]++
		pool.Release(lease, backoff.StatusSuccess)
	}
	require.Equal(t, 3, seen["direct"])
	require.Equal(t, 3, seen["proxy-a"])
	require.Equal(t, 3, seen["proxy-b"])
}

func TestAcquireAvoidsLastFailedIdentity(t *testing.T) {
	ids := testIdentities()
	pool, _, _ := newTestPool(t, ids, EpochConfig{})
	allowed := allOf(ids)

	for i := 0; i < 6; i++ {
		lease, err := pool.Acquire(allowed, "proxy-a")
		require.NoError(t, err)
		require.NotEqual(t, "proxy-a", lease.Identity.ID,
			"retries prefer any eligible alternative over the failed identity")
		pool.Release(lease, backoff.StatusSuccess)
	}
}

func TestAcquireFallsBackToAvoidedIdentity(t *testing.T) {
	ids := testIdentities()
	pool, controller, _ := newTestPool(t, ids, EpochConfig{})
	allowed := allOf(ids)

	controller.Record("direct", backoff.StatusRateLimited)
	controller.Record("proxy-b", backoff.StatusRateLimited)

	lease, err := pool.Acquire(allowed, "proxy-a")
	require.NoError(t, err)
	require.Equal(t, "proxy-a", lease.Identity.ID,
		"the avoided identity is still used when it is the only eligible one")
}

func TestAcquireReportsEarliestEligibility(t *testing.T) {
	ids := testIdentities()
	pool, controller, clk := newTestPool(t, ids, EpochConfig{})
	allowed := allOf(ids)

	controller.Record("direct", backoff.StatusRateLimited)
	controller.Record("proxy-a", backoff.StatusRateLimited)
	controller.Record("proxy-a", backoff.StatusRateLimited)
	controller.Record("proxy-b", backoff.StatusRateLimited)
	controller.Record("proxy-b", backoff.StatusRateLimited)
	controller.Record("proxy-b", backoff.StatusRateLimited)

	_, err := pool.Acquire(allowed, "")
	var noneEligible *NoneEligibleError
	require.ErrorAs(t, err, &noneEligible)
	require.Equal(t, controller.NextEligible("direct"), noneEligible.NextEligible,
		"the error carries the earliest instant any identity becomes eligible")

	// Once the earliest window passes, acquisition succeeds again.
	clk.Advance(noneEligible.NextEligible.Sub(clk.Now()))
	lease, err := pool.Acquire(allowed, "")
	require.NoError(t, err)
	require.Equal(t, "direct", lease.Identity.ID)
}

func TestLicenseFilterIsHard(t *testing.T) {
	ids := testIdentities()
	pool, _, _ := newTestPool(t, ids, EpochConfig{})

	basicOnly := Allowed(ids, func(feature string) bool {
		return feature == string(license.FeatureBasicScraping)
	})
	require.Len(t, basicOnly, 1)

	for i := 0; i < 5; i++ {
		lease, err := pool.Acquire(basicOnly, "")
		require.NoError(t, err)
		require.Equal(t, "direct", lease.Identity.ID)
		pool.Release(lease, backoff.StatusSuccess)
	}
}

func TestReleaseRotatesFingerprintOnEpochBoundary(t *testing.T) {
	ids := testIdentities()
	pool, _, _ := newTestPool(t, ids, EpochConfig{Requests: 2})
	allowed := map[string]struct{}{"direct": {}}

	lease, err := pool.Acquire(allowed, "")
	require.NoError(t, err)
	pool.Release(lease, backoff.StatusSuccess)

	b := pool.bindings["direct"]
	require.Equal(t, 1, b.requests)
	require.Equal(t, lease.Profile.ID, b.profile.ID, "profile is stable within an epoch")

	lease, err = pool.Acquire(allowed, "")
	require.NoError(t, err)
	pool.Release(lease, backoff.StatusSuccess)

	require.Equal(t, 0, b.requests, "request counter resets on the epoch boundary")
}

func TestReleaseRotatesFingerprintOnWindowExpiry(t *testing.T) {
	ids := testIdentities()
	pool, _, clk := newTestPool(t, ids, EpochConfig{Requests: 100, Window: 10 * time.Minute})
	allowed := map[string]struct{}{"direct": {}}

	lease, err := pool.Acquire(allowed, "")
	require.NoError(t, err)
	clk.Advance(11 * time.Minute)
	pool.Release(lease, backoff.StatusSuccess)

	b := pool.bindings["direct"]
	require.Equal(t, 0, b.requests)
	require.Equal(t, clk.Now(), b.epochStart, "epoch restarts when the wall-clock window lapses")
}

func TestDiscardRecordsNoOutcome(t *testing.T) {
	ids := testIdentities()
	pool, controller, _ := newTestPool(t, ids, EpochConfig{})
	allowed := allOf(ids)

	lease, err := pool.Acquire(allowed, "")
	require.NoError(t, err)
	pool.Discard(lease)

	require.Equal(t, 0, controller.Failures(lease.Identity.ID))
	require.True(t, controller.NextEligible(lease.Identity.ID).IsZero(),
		"a discarded lease must not touch backoff state")
}

func TestFromConfig(t *testing.T) {
	ids, err := FromConfig([]config.IdentityConfig{
		{ID: "direct", Transport: config.TransportDirect},
		{ID: "tor", Transport: config.TransportLocalSocks, Endpoint: "127.0.0.1:9050"},
		{ID: "bright", Transport: config.TransportCommercial, Service: "brightdata", Country: "us"},
	})
	require.NoError(t, err)
	require.Len(t, ids, 3)
	require.Equal(t, license.FeatureBasicScraping, ids[0].Feature)
	require.Equal(t, license.FeatureAdvancedScraping, ids[1].Feature)
	require.Equal(t, license.FeatureCommercialProxies, ids[2].Feature)
}

func TestFromConfigRejectsUnknownTransport(t *testing.T) {
	_, err := FromConfig([]config.IdentityConfig{{ID: "x", Transport: "carrier-pigeon"}})
	require.Error(t, err)

	_, err = FromConfig(nil)
	require.Error(t, err)
}
