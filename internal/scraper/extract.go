package scraper

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"github.com/gravyjobs/gravyjobs/internal/config"
)

// extract pulls listings out of a fetched page using the site's selectors.
// Selector upkeep is the operator's problem; extraction itself only
// assumes an item container with optional title/company/location/link
// children.
func extract(site config.SiteConfig, body []byte) ([]Job, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s page: %w", site.Name, err)
	}

	base, err := url.Parse(site.URL)
	if err != nil {
		return nil, fmt.Errorf("parse %s base url: %w", site.Name, err)
	}

	var jobs []Job
	doc.Find(site.Selectors.Item).Each(func(_ int, sel *goquery.Selection) {
		title := text(sel, site.Selectors.Title)
		if title == "" {
			return
		}
		job := Job{
			ID:       uuid.NewString(),
			Title:    title,
			Company:  text(sel, site.Selectors.Company),
			Location: text(sel, site.Selectors.Location),
			URL:      link(sel, site.Selectors.Link, base),
			Source:   site.Name,
		}
		jobs = append(jobs, job)
	})
	return jobs, nil
}

func text(sel *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.TrimSpace(sel.Find(selector).First().Text())
}

func link(sel *goquery.Selection, selector string, base *url.URL) string {
	node := sel
	if selector != "" {
		node = sel.Find(selector).First()
	}
	href, ok := node.Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return ""
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
