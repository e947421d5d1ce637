// Package backoff tracks failure signals per identity and computes retry
// delays and eligibility windows. Delay computation is a pure function of
// recorded history so it can be tested without real time passing.
package backoff

import (
	"crypto/rand"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/gravyjobs/gravyjobs/internal/clock"
)

// Status classifies one fetch outcome.
type Status string

// Outcome classifications, in the order Classify applies them.
const (
	StatusSuccess        Status = "success"
	StatusRateLimited    Status = "rate-limited"
	StatusBlocked        Status = "blocked"
	StatusTransportError Status = "transport-error"
)

// Retryable reports whether the status should feed another attempt.
func (s Status) Retryable() bool {
	switch s {
	case StatusRateLimited, StatusBlocked, StatusTransportError:
		return true
	default:
		return false
	}
}

// Config controls delay growth.
type Config struct {
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	TransportDelay time.Duration
	JitterFraction float64
}

// state holds the per-identity backoff record.
type state struct {
	failures     int
	nextEligible time.Time
}

// Controller owns all BackoffState. It is safe for concurrent use; a
// success/failure record for one identity never races a read of its
// eligibility window.
type Controller struct {
	mu     sync.Mutex
	states map[string]*state
	cfg    Config
	clock  clock.Clock
}

// NewController builds a Controller around the given clock.
func NewController(cfg Config, clk clock.Clock) *Controller {
	return &Controller{
		states: make(map[string]*state),
		cfg:    cfg,
		clock:  clk,
	}
}

// Record feeds one classified outcome for an identity into its backoff
// state. Success resets the failure count and clears the window.
// Rate-limited and blocked outcomes grow the window exponentially with
// jitter; transport errors apply a flat short delay without growth, since
// transient network faults are not evidence of blocking.
func (c *Controller) Record(identityID string, status Status) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.states[identityID]
	if !ok {
		st = &state{}
		c.states[identityID] = st
	}

	now := c.clock.Now()
	switch status {
	case StatusSuccess:
		st.failures = 0
		st.nextEligible = time.Time{}
	case StatusRateLimited, StatusBlocked:
		st.failures++
		delay := c.exponentialDelay(st.failures)
		st.nextEligible = laterOf(st.nextEligible, now.Add(delay))
	case StatusTransportError:
		st.failures++
		st.nextEligible = laterOf(st.nextEligible, now.Add(c.cfg.TransportDelay))
	}
}

// NextEligible returns when the identity may next be selected. The zero
// time means it is eligible now.
func (c *Controller) NextEligible(identityID string) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.states[identityID]; ok {
		return st.nextEligible
	}
	return time.Time{}
}

// Failures returns the identity's consecutive failure count.
func (c *Controller) Failures(identityID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.states[identityID]; ok {
		return st.failures
	}
	return 0
}

// Eligible reports whether the identity may be used at the given instant.
func (c *Controller) Eligible(identityID string, now time.Time) bool {
	next := c.NextEligible(identityID)
	return next.IsZero() || !next.After(now)
}

// exponentialDelay computes base * 2^(failures-1), capped, plus jitter in
// a fixed fractional window to avoid synchronized retries.
func (c *Controller) exponentialDelay(failures int) time.Duration {
	if failures < 1 {
		failures = 1
	}
	delay := float64(c.cfg.BaseDelay) * math.Pow(2, float64(failures-1))
	if delay > float64(c.cfg.MaxDelay) {
		delay = float64(c.cfg.MaxDelay)
	}
	return time.Duration(delay) + randomJitter(time.Duration(delay*c.cfg.JitterFraction))
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

// laterOf keeps the eligibility window monotonically non-decreasing across
// consecutive failures.
func laterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
