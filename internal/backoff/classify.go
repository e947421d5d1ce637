package backoff

import "net/http"

// BodyDetector reports whether a response body carries a block signature.
type BodyDetector interface {
	Blocked(body []byte) bool
}

// Classifier maps raw fetch results onto outcome statuses.
type Classifier struct {
	detector BodyDetector
}

// NewClassifier builds a Classifier around a block-page detector.
func NewClassifier(detector BodyDetector) *Classifier {
	return &Classifier{detector: detector}
}

// Classify applies the classification rules in priority order: 429/403 is
// rate limiting, connection-level failures are transport errors, a block
// signature in the body (even on HTTP 200) means blocked, anything else
// counts as success.
func (c *Classifier) Classify(statusCode int, body []byte, err error) Status {
	if err != nil {
		// Timeouts, resets, and DNS failures are all connection-level;
		// none of them are evidence of blocking.
		return StatusTransportError
	}
	switch statusCode {
	case http.StatusTooManyRequests, http.StatusForbidden, http.StatusServiceUnavailable:
		return StatusRateLimited
	}
	if c.detector != nil && c.detector.Blocked(body) {
		return StatusBlocked
	}
	return StatusSuccess
}
