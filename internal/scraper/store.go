package scraper

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Store persists scraped jobs and the set of previously seen listings so
// runs only report genuinely new jobs.
type Store struct {
	outputFile string
	stateFile  string

	mu   sync.Mutex
	seen map[string]Job
}

// NewStore loads prior state from disk; a missing state file starts empty.
func NewStore(outputFile, stateFile string) (*Store, error) {
	s := &Store{
		outputFile: outputFile,
		stateFile:  stateFile,
		seen:       make(map[string]Job),
	}
	data, err := os.ReadFile(stateFile)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read job state: %w", err)
	}
	var jobs []Job
	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("parse job state: %w", err)
	}
	for _, j := range jobs {
		s.seen[j.Key()] = j
	}
	return s, nil
}

// Merge records jobs from one site and returns how many were new.
func (s *Store) Merge(jobs []Job) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	fresh := 0
	for _, j := range jobs {
		if _, ok := s.seen[j.Key()]; ok {
			continue
		}
		s.seen[j.Key()] = j
		fresh++
	}
	return fresh
}

// Jobs returns every known job sorted by source then title.
func (s *Store) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, 0, len(s.seen))
	for _, j := range s.seen {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].Source != out[k].Source {
			return out[i].Source < out[k].Source
		}
		return out[i].Title < out[k].Title
	})
	return out
}

// Flush writes the merged job set to the output and state files.
func (s *Store) Flush() error {
	jobs := s.Jobs()
	data, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal jobs: %w", err)
	}
	for _, path := range []string{s.outputFile, s.stateFile} {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return fmt.Errorf("create output dir %s: %w", dir, err)
			}
		}
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	return nil
}
