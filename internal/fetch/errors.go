package fetch

import (
	"fmt"
	"time"

	"github.com/gravyjobs/gravyjobs/internal/backoff"
	"github.com/gravyjobs/gravyjobs/internal/license"
)

// FailedError is terminal for one request: retries and cache fallback are
// both exhausted. It names the last classification reason. A failed fetch
// is reported per target and never aborts a batch of independent targets.
type FailedError struct {
	URL        string
	LastStatus backoff.Status
	Attempts   int
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("fetch failed for %s after %d attempts: %s", e.URL, e.Attempts, e.LastStatus)
}

// NoIdentityAvailableError is surfaced only when the request deadline was
// exceeded while waiting for any identity to leave its backoff window.
type NoIdentityAvailableError struct {
	URL          string
	NextEligible time.Time
}

func (e *NoIdentityAvailableError) Error() string {
	return fmt.Sprintf("no identity available for %s before deadline (next eligible %s)",
		e.URL, e.NextEligible.Format(time.RFC3339))
}

// FeatureError reports that the request required a capability the current
// license does not grant. It degrades the single request, never the run.
type FeatureError struct {
	URL     string
	Feature license.Feature
}

func (e *FeatureError) Error() string {
	return fmt.Sprintf("fetch of %s requires unlicensed feature %q", e.URL, e.Feature)
}
