// Package fetch implements the resilient fetch layer: identity selection,
// outcome classification, retry with rotation, and cache fallback.
package fetch

import (
	"net/http"
	"time"

	"github.com/gravyjobs/gravyjobs/internal/backoff"
	"github.com/gravyjobs/gravyjobs/internal/license"
)

// Request is one logical fetch. Created per caller call, immutable,
// consumed once.
type Request struct {
	URL      string
	Method   string
	Header   http.Header
	Features []license.Feature
}

func (r Request) method() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return r.Method
}

// Outcome records what one executed attempt produced. Never mutated after
// creation; classification decisions are recomputed from it, not stored
// into it.
type Outcome struct {
	Status     backoff.Status
	StatusCode int
	Payload    []byte
	IdentityID string
	Timestamp  time.Time
}

// Result is what callers receive: a payload plus provenance. Stale marks a
// cached payload past its expiry horizon served because the live fetch
// failed.
type Result struct {
	Payload    []byte
	Stale      bool
	FromCache  bool
	IdentityID string
	StatusCode int
	FetchedAt  time.Time
}
