package identity

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gravyjobs/gravyjobs/internal/backoff"
	"github.com/gravyjobs/gravyjobs/internal/clock"
	"github.com/gravyjobs/gravyjobs/internal/fingerprint"
)

// ErrNoIdentityAllowed means the permitted subset was empty; the license
// gate filtered out every configured identity.
var ErrNoIdentityAllowed = errors.New("no identity allowed for requested features")

// NoneEligibleError reports that every allowed identity is inside its
// backoff window. It carries the earliest eligibility instant so the
// caller can decide to wait or abort; the pool itself never blocks.
type NoneEligibleError struct {
	NextEligible time.Time
}

func (e *NoneEligibleError) Error() string {
	return fmt.Sprintf("no identity eligible before %s", e.NextEligible.Format(time.RFC3339))
}

// EpochConfig bounds a rotation epoch: a contiguous run of requests during
// which an identity keeps a single fingerprint profile.
type EpochConfig struct {
	Requests int
	Window   time.Duration
}

// Lease is one acquired identity with its currently bound fingerprint.
type Lease struct {
	Identity Identity
	Profile  fingerprint.Profile
}

// binding tracks the fingerprint epoch for one identity.
type binding struct {
	profile    fingerprint.Profile
	requests   int
	epochStart time.Time
	lastUsed   time.Time
}

// Pool holds the fixed ordered identity set and hands out leases.
// Selection is round-robin among eligible identities with ties broken by
// least-recently-used, so load spreads instead of hammering one egress.
type Pool struct {
	mu        sync.Mutex
	ids       []Identity
	bindings  map[string]*binding
	cursor    int
	backoff   *backoff.Controller
	generator *fingerprint.Generator
	epoch     EpochConfig
	clock     clock.Clock
	logger    *zap.Logger
}

// NewPool constructs a Pool. The identity order is fixed for the process
// lifetime; every identity gets an initial fingerprint draw.
func NewPool(
	ids []Identity,
	controller *backoff.Controller,
	generator *fingerprint.Generator,
	epoch EpochConfig,
	clk clock.Clock,
	logger *zap.Logger,
) *Pool {
	p := &Pool{
		ids:       ids,
		bindings:  make(map[string]*binding, len(ids)),
		backoff:   controller,
		generator: generator,
		epoch:     epoch,
		clock:     clk,
		logger:    logger,
	}
	now := clk.Now()
	for _, id := range ids {
		p.bindings[id.ID] = &binding{
			profile:    generator.Draw(),
			epochStart: now,
		}
	}
	return p
}

// Acquire selects an identity from the permitted subset whose backoff
// window has passed. avoid names an identity to skip when any alternative
// is eligible, so retries prefer a different egress over the one that just
// failed. Returns NoneEligibleError instead of blocking when every
// candidate is still backing off.
func (p *Pool) Acquire(allowed map[string]struct{}, avoid string) (Lease, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(allowed) == 0 {
		return Lease{}, ErrNoIdentityAllowed
	}

	now := p.clock.Now()
	var (
		chosen   = -1
		fallback = -1
		earliest time.Time
		sawAny   bool
	)
	n := len(p.ids)
	for offset := 1; offset <= n; offset++ {
		i := (p.cursor + offset) % n
		id := p.ids[i]
		if _, ok := allowed[id.ID]; !ok {
			continue
		}
		sawAny = true
		next := p.backoff.NextEligible(id.ID)
		if next.After(now) {
			if earliest.IsZero() || next.Before(earliest) {
				earliest = next
			}
			continue
		}
		if id.ID == avoid {
			if fallback < 0 {
				fallback = i
			}
			continue
		}
		if chosen < 0 || p.lessRecentlyUsed(i, chosen) {
			chosen = i
		}
	}
	if !sawAny {
		return Lease{}, ErrNoIdentityAllowed
	}
	if chosen < 0 {
		chosen = fallback
	}
	if chosen < 0 {
		return Lease{}, &NoneEligibleError{NextEligible: earliest}
	}

	p.cursor = chosen
	id := p.ids[chosen]
	b := p.bindings[id.ID]
	b.lastUsed = now
	return Lease{Identity: id, Profile: b.profile}, nil
}

// lessRecentlyUsed breaks round-robin ties toward the colder identity.
func (p *Pool) lessRecentlyUsed(i, j int) bool {
	bi := p.bindings[p.ids[i].ID]
	bj := p.bindings[p.ids[j].ID]
	return bi.lastUsed.Before(bj.lastUsed)
}

// Release feeds the classified outcome back to the backoff controller and
// advances the identity's rotation epoch, redrawing the bound fingerprint
// profile on an epoch boundary.
func (p *Pool) Release(lease Lease, status backoff.Status) {
	p.backoff.Record(lease.Identity.ID, status)
	p.advanceEpoch(lease.Identity.ID)
}

// Discard returns a lease without recording an outcome. Used when the
// request was cancelled before a verdict existed, so cancellation cannot
// corrupt backoff state.
func (p *Pool) Discard(lease Lease) {
	p.advanceEpoch(lease.Identity.ID)
}

func (p *Pool) advanceEpoch(identityID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	b, ok := p.bindings[identityID]
	if !ok {
		return
	}
	b.requests++
	now := p.clock.Now()

	boundary := false
	if p.epoch.Requests > 0 && b.requests >= p.epoch.Requests {
		boundary = true
	}
	if p.epoch.Window > 0 && now.Sub(b.epochStart) >= p.epoch.Window {
		boundary = true
	}
	if !boundary {
		return
	}

	old := b.profile.ID
	b.profile = p.generator.Draw()
	b.requests = 0
	b.epochStart = now
	p.logger.Debug("rotated fingerprint",
		zap.String("identity", identityID),
		zap.String("old_profile", old),
		zap.String("new_profile", b.profile.ID),
	)
}

// Identities returns the fixed identity set in pool order.
func (p *Pool) Identities() []Identity {
	out := make([]Identity, len(p.ids))
	copy(out, p.ids)
	return out
}

// Allowed filters the pool down to the identity IDs whose capability tag
// passes the license check.
func Allowed(ids []Identity, has func(feature string) bool) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if has(string(id.Feature)) {
			out[id.ID] = struct{}{}
		}
	}
	return out
}
