package backoff

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubDetector struct {
	blocked bool
}

func (d stubDetector) Blocked([]byte) bool { return d.blocked }

func TestClassifyPriorityOrder(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       []byte
		err        error
		blocked    bool
		want       Status
	}{
		{name: "http 429", statusCode: http.StatusTooManyRequests, want: StatusRateLimited},
		{name: "http 403", statusCode: http.StatusForbidden, want: StatusRateLimited},
		{name: "http 503", statusCode: http.StatusServiceUnavailable, want: StatusRateLimited},
		{name: "connection error", err: errors.New("connection reset"), want: StatusTransportError},
		{name: "block page on 200", statusCode: http.StatusOK, body: []byte("<html>captcha</html>"), blocked: true, want: StatusBlocked},
		{name: "plain 200", statusCode: http.StatusOK, body: []byte("<html>jobs</html>"), want: StatusSuccess},
		{name: "404 is not a blocking signal", statusCode: http.StatusNotFound, want: StatusSuccess},
		{name: "rate limit beats block signature", statusCode: http.StatusTooManyRequests, blocked: true, want: StatusRateLimited},
		{name: "error beats status", statusCode: http.StatusOK, err: errors.New("timeout"), want: StatusTransportError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := NewClassifier(stubDetector{blocked: tc.blocked})
			require.Equal(t, tc.want, c.Classify(tc.statusCode, tc.body, tc.err))
		})
	}
}

func TestClassifyWithoutDetector(t *testing.T) {
	c := NewClassifier(nil)
	require.Equal(t, StatusSuccess, c.Classify(http.StatusOK, []byte("captcha"), nil))
}
