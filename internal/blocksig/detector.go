// Package blocksig detects block pages and captcha interstitials from
// response bodies, independent of HTTP status.
package blocksig

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Detector inspects response bodies for known block-page signals.
type Detector struct {
	keywords  [][]byte
	selectors []string
}

// NewDetector constructs a Detector from keyword and CSS selector lists.
// Keywords are matched case-insensitively anywhere in the body; a selector
// match such as a captcha widget container also counts as a block signal.
func NewDetector(keywords, selectors []string) *Detector {
	lowered := make([][]byte, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		lowered = append(lowered, bytes.ToLower([]byte(kw)))
	}
	cleaned := make([]string, 0, len(selectors))
	for _, sel := range selectors {
		sel = strings.TrimSpace(sel)
		if sel != "" {
			cleaned = append(cleaned, sel)
		}
	}
	return &Detector{keywords: lowered, selectors: cleaned}
}

// Blocked reports whether body looks like a block page.
func (d *Detector) Blocked(body []byte) bool {
	if d == nil || len(body) == 0 {
		return false
	}
	if d.containsKeywords(body) {
		return true
	}
	return d.matchesSelectors(body)
}

func (d *Detector) containsKeywords(body []byte) bool {
	if len(d.keywords) == 0 {
		return false
	}
	lowerBody := bytes.ToLower(body)
	for _, kw := range d.keywords {
		if bytes.Contains(lowerBody, kw) {
			return true
		}
	}
	return false
}

func (d *Detector) matchesSelectors(body []byte) bool {
	if len(d.selectors) == 0 {
		return false
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false
	}
	for _, sel := range d.selectors {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}
	return false
}
