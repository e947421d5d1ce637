// Package cache implements the on-disk fallback store for prior
// successful fetch results. Entries persist across process restarts and
// are only ever served as a fallback, never ahead of a live fetch.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gravyjobs/gravyjobs/internal/clock"
)

// Entry is one cached payload, keyed by normalized target URL.
type Entry struct {
	URL      string    `json:"url"`
	StoredAt time.Time `json:"stored_at"`
	Payload  []byte    `json:"payload"`
}

// Store is a content-addressed on-disk cache with a fixed expiry horizon.
// Reads and writes take a per-key critical section so unrelated targets
// proceed in parallel.
type Store struct {
	dir    string
	ttl    time.Duration
	clock  clock.Clock
	logger *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates the store, making the cache directory if needed.
func New(dir string, ttl time.Duration, clk clock.Clock, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("cache directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create cache dir %s: %w", dir, err)
	}
	return &Store{
		dir:    dir,
		ttl:    ttl,
		clock:  clk,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

// keyLock returns the mutex guarding one cache key.
func (s *Store) keyLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// Put stores the payload for the target URL, overwriting any prior entry.
// Last successful write wins; there is no merge.
func (s *Store) Put(rawURL string, payload []byte) error {
	normalized, err := NormalizeURL(rawURL)
	if err != nil {
		return err
	}
	key := fileKey(normalized)
	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	entry := Entry{
		URL:      normalized,
		StoredAt: s.clock.Now(),
		Payload:  payload,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	path := s.path(key)
	// Write-then-rename keeps a concurrent reader from observing a
	// half-written payload even across processes.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit cache entry: %w", err)
	}
	return nil
}

// Get returns the entry for the target URL if present and within the
// expiry horizon. Expired entries are reported as a miss but kept on disk
// for stale fallback reads.
func (s *Store) Get(rawURL string) (Entry, bool) {
	entry, ok, expired := s.read(rawURL)
	if !ok || expired {
		return Entry{}, false
	}
	return entry, true
}

// GetStale returns the entry regardless of expiry, along with whether it
// is past the horizon. Used only after a live fetch has exhausted its
// retries.
func (s *Store) GetStale(rawURL string) (Entry, bool, bool) {
	return s.read(rawURL)
}

func (s *Store) read(rawURL string) (Entry, bool, bool) {
	normalized, err := NormalizeURL(rawURL)
	if err != nil {
		return Entry{}, false, false
	}
	key := fileKey(normalized)
	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	data, err := os.ReadFile(s.path(key))
	if err != nil {
		return Entry{}, false, false
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		s.logger.Warn("dropping unreadable cache entry", zap.String("url", normalized), zap.Error(err))
		_ = os.Remove(s.path(key))
		return Entry{}, false, false
	}
	expired := s.clock.Now().Sub(entry.StoredAt) > s.ttl
	return entry, true, expired
}

// Evict removes the entry for the target URL if present.
func (s *Store) Evict(rawURL string) error {
	normalized, err := NormalizeURL(rawURL)
	if err != nil {
		return err
	}
	key := fileKey(normalized)
	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("evict cache entry: %w", err)
	}
	return nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}
