// Package license validates operator license keys and derives the enabled
// capability set. Validation fails closed: any malformed, expired, or
// unrecognized key degrades to the baseline feature set instead of
// blocking operation.
package license

import (
	"regexp"
	"sort"
	"time"

	"github.com/gravyjobs/gravyjobs/internal/clock"
)

// Feature is a named capability gated by license state.
type Feature string

// Capability tags.
const (
	FeatureBasicScraping       Feature = "basic-scraping"
	FeatureCommercialProxies   Feature = "commercial-proxies"
	FeatureAdvancedScraping    Feature = "advanced-scraping"
	FeatureGeneralScraping     Feature = "general-scraping"
	FeatureFingerprintRotation Feature = "fingerprint-rotation"
)

// allFeatures is the full capability set granted by the built-in keys.
var allFeatures = []Feature{
	FeatureBasicScraping,
	FeatureCommercialProxies,
	FeatureAdvancedScraping,
	FeatureGeneralScraping,
	FeatureFingerprintRotation,
}

// State is the read-only result of validating a key. It is safe for
// unsynchronized concurrent reads and re-derivable by re-validating the
// same key.
type State struct {
	Key        string
	Valid      bool
	ValidUntil *time.Time
	features   map[Feature]struct{}
}

// Has reports whether the feature is enabled. Pure lookup, no side effects.
func (s State) Has(f Feature) bool {
	_, ok := s.features[f]
	return ok
}

// Features returns the enabled feature tags in sorted order.
func (s State) Features() []Feature {
	out := make([]Feature, 0, len(s.features))
	for f := range s.features {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Report is the capability report surfaced to operators.
type Report struct {
	Valid           bool     `json:"valid"`
	ValidUntil      *string  `json:"valid_until"`
	EnabledFeatures []string `json:"enabled_features"`
}

// Report renders the state as a capability report.
func (s State) Report() Report {
	r := Report{Valid: s.Valid}
	if s.ValidUntil != nil {
		formatted := s.ValidUntil.Format(time.RFC3339)
		r.ValidUntil = &formatted
	}
	for _, f := range s.Features() {
		r.EnabledFeatures = append(r.EnabledFeatures, string(f))
	}
	return r
}

// Grant describes the capabilities a recognized key unlocks.
type Grant struct {
	Features []Feature
	Duration time.Duration
}

// keyShape is the expected prefix + opaque token form.
var keyShape = regexp.MustCompile(`^[A-Z]+(-[A-Z0-9]+){2,}$`)

// Built-in grants recovered from the original key table.
func builtinGrants() map[string]Grant {
	return map[string]Grant{
		"TEST-GRAVY-JOBS-12345": {Features: allFeatures, Duration: 30 * 24 * time.Hour},
		"DEV-GRAVY-JOBS-ACCESS": {Features: allFeatures, Duration: 3650 * 24 * time.Hour},
	}
}

// Gate validates keys against its grant table. The activation instant is
// fixed at construction so Validate is idempotent: the same key always
// yields an identical State for the lifetime of the gate.
type Gate struct {
	grants      map[string]Grant
	activatedAt time.Time
}

// NewGate builds a gate from the built-in grants merged with operator
// grants (operator entries win on key collision).
func NewGate(extra map[string]Grant, clk clock.Clock) *Gate {
	grants := builtinGrants()
	for key, grant := range extra {
		grants[key] = grant
	}
	return &Gate{
		grants:      grants,
		activatedAt: clk.Now(),
	}
}

// Validate derives the capability set for key. It never returns an error:
// unusable keys produce a baseline State so callers keep operating at
// reduced capability.
func (g *Gate) Validate(key string) State {
	if key == "" || !keyShape.MatchString(key) {
		return baseline(key)
	}

	grant, ok := g.grants[key]
	if !ok {
		// Partial prefix match keeps demo keys working across suffix
		// revisions, as the original validator did.
		for known, candidate := range g.grants {
			if len(known) >= 8 && len(key) >= 8 && key[:8] == known[:8] {
				grant, ok = candidate, true
				break
			}
		}
	}
	if !ok {
		return baseline(key)
	}

	validUntil := g.activatedAt.Add(grant.Duration)
	if !validUntil.After(g.activatedAt) {
		return baseline(key)
	}

	features := make(map[Feature]struct{}, len(grant.Features)+1)
	features[FeatureBasicScraping] = struct{}{}
	for _, f := range grant.Features {
		features[f] = struct{}{}
	}
	return State{
		Key:        key,
		Valid:      true,
		ValidUntil: &validUntil,
		features:   features,
	}
}

func baseline(key string) State {
	return State{
		Key:      key,
		Valid:    false,
		features: map[Feature]struct{}{FeatureBasicScraping: {}},
	}
}

// ParseFeatures converts configured feature tags, dropping unknown ones.
func ParseFeatures(tags []string) []Feature {
	known := make(map[Feature]struct{}, len(allFeatures))
	for _, f := range allFeatures {
		known[f] = struct{}{}
	}
	out := make([]Feature, 0, len(tags))
	for _, tag := range tags {
		f := Feature(tag)
		if _, ok := known[f]; ok {
			out = append(out, f)
		}
	}
	return out
}
