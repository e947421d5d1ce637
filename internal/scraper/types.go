// Package scraper aggregates job listings from configured sites through
// the resilient fetch layer.
package scraper

import (
	"strings"
	"time"
)

// Job is one extracted listing.
type Job struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Company   string    `json:"company"`
	Location  string    `json:"location,omitempty"`
	URL       string    `json:"url"`
	Source    string    `json:"source"`
	FirstSeen time.Time `json:"first_seen"`
	Stale     bool      `json:"stale,omitempty"`
}

// Key identifies a job across runs: same title at the same company is the
// same job, wherever it was scraped from.
func (j Job) Key() string {
	return strings.ToLower(strings.TrimSpace(j.Title)) + "|" + strings.ToLower(strings.TrimSpace(j.Company))
}

// SiteResult reports the outcome of scraping one configured site.
type SiteResult struct {
	Site    string
	Jobs    []Job
	NewJobs int
	Stale   bool
	Err     error
}
