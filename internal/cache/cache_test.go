package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
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

func newTestStore(t *testing.T, ttl time.Duration) (*Store, *fakeClock) {
	t.Helper()
	clk := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	store, err := New(t.TempDir(), ttl, clk, zap.NewNop())
	require.NoError(t, err)
	return store, clk
}

func TestRoundTrip(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)

	require.NoError(t, store.Put("https://example.org/jobs", []byte("payload")))

	entry, ok := store.Get("https://example.org/jobs")
	require.True(t, ok)
	require.Equal(t, []byte("payload"), entry.Payload)
	require.Equal(t, "https://example.org/jobs", entry.URL)
}

func TestGetMissesAfterTTL(t *testing.T) {
	store, clk := newTestStore(t, time.Hour)

	require.NoError(t, store.Put("https://example.org/jobs", []byte("payload")))

	clk.Advance(time.Hour + time.Second)
	_, ok := store.Get("https://example.org/jobs")
	require.False(t, ok)

	// The expired entry stays readable for terminal fallback.
	entry, ok, expired := store.GetStale("https://example.org/jobs")
	require.True(t, ok)
	require.True(t, expired)
	require.Equal(t, []byte("payload"), entry.Payload)
}

func TestGetStaleFreshEntry(t *testing.T) {
	store, clk := newTestStore(t, time.Hour)

	require.NoError(t, store.Put("https://example.org/jobs", []byte("payload")))
	clk.Advance(30 * time.Minute)

	_, ok, expired := store.GetStale("https://example.org/jobs")
	require.True(t, ok)
	require.False(t, expired)
}

func TestPutOverwrites(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)

	require.NoError(t, store.Put("https://example.org/jobs", []byte("first")))
	require.NoError(t, store.Put("https://example.org/jobs", []byte("second")))

	entry, ok := store.Get("https://example.org/jobs")
	require.True(t, ok)
	require.Equal(t, []byte("second"), entry.Payload, "last successful write wins")
}

func TestEquivalentURLsShareOneEntry(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)

	require.NoError(t, store.Put("HTTPS://Example.org:443/jobs?b=2&a=1", []byte("payload")))

	entry, ok := store.Get("https://example.org/jobs?a=1&b=2")
	require.True(t, ok)
	require.Equal(t, []byte("payload"), entry.Payload)
}

func TestMissOnUnknownURL(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)
	_, ok := store.Get("https://example.org/never-stored")
	require.False(t, ok)
}

func TestEvict(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)

	require.NoError(t, store.Put("https://example.org/jobs", []byte("payload")))
	require.NoError(t, store.Evict("https://example.org/jobs"))

	_, ok, _ := store.GetStale("https://example.org/jobs")
	require.False(t, ok)

	// Evicting an absent key is not an error.
	require.NoError(t, store.Evict("https://example.org/jobs"))
}

func TestPersistsAcrossInstances(t *testing.T) {
	clk := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	dir := t.TempDir()

	first, err := New(dir, time.Hour, clk, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, first.Put("https://example.org/jobs", []byte("payload")))

	second, err := New(dir, time.Hour, clk, zap.NewNop())
	require.NoError(t, err)
	entry, ok := second.Get("https://example.org/jobs")
	require.True(t, ok)
	require.Equal(t, []byte("payload"), entry.Payload)
}

func TestConcurrentDistinctKeys(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			url := fmt.Sprintf("https://example.org/jobs/%d", n)
			require.NoError(t, store.Put(url, []byte(fmt.Sprintf("payload-%d", n))))
			entry, ok := store.Get(url)
			require.True(t, ok)
			require.Equal(t, []byte(fmt.Sprintf("payload-%d", n)), entry.Payload)
		}(i)
	}
	wg.Wait()
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "lowercases host", in: "https://Example.ORG/jobs", want: "https://example.org/jobs"},
		{name: "strips default https port", in: "https://example.org:443/jobs", want: "https://example.org/jobs"},
		{name: "strips default http port", in: "http://example.org:80/jobs", want: "http://example.org/jobs"},
		{name: "keeps custom port", in: "http://example.org:8080/jobs", want: "http://example.org:8080/jobs"},
		{name: "drops fragment", in: "https://example.org/jobs#top", want: "https://example.org/jobs"},
		{name: "sorts query params", in: "https://example.org/jobs?q=go&loc=remote", want: "https://example.org/jobs?loc=remote&q=go"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeURL(tc.in)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}
