// Package fingerprint generates browser fingerprint profiles and the
// request headers that present them.
package fingerprint

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
)

// Profile describes one browser fingerprint. Profiles are immutable;
// rotating an identity's fingerprint produces a new draw, never a
// mutation of an existing profile.
type Profile struct {
	ID             string
	UserAgent      string
	AcceptLanguage string
	ViewportWidth  int
	ViewportHeight int
	Timezone       string
	Platform       string
}

// Pools supplies the value sets a profile is drawn from. Empty pools fall
// back to built-in defaults.
type Pools struct {
	UserAgents []string
	Languages  []string
	Viewports  []string
	Timezones  []string
}

// Defaults mirror the fingerprint inventory shipped with the scraper.
var (
	defaultUserAgents = []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.4 Safari/605.1.15",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:123.0) Gecko/20100101 Firefox/123.0",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:123.0) Gecko/20100101 Firefox/123.0",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
	}
	defaultLanguages = []string{"en-US", "en-GB", "en-CA", "de-DE", "fr-FR", "es-ES"}
	defaultViewports = []string{"1920x1080", "1366x768", "1536x864", "1440x900", "1600x900", "2560x1440"}
	defaultTimezones = []string{
		"America/New_York", "America/Chicago", "America/Los_Angeles",
		"Europe/London", "Europe/Berlin", "Asia/Tokyo",
	}
	defaultPlatforms = []string{"Win32", "MacIntel", "Linux x86_64"}
)

// Generator draws immutable fingerprint profiles from configured pools.
type Generator struct {
	userAgents []string
	languages  []string
	viewports  []string
	timezones  []string
}

// NewGenerator builds a Generator, substituting defaults for empty pools.
func NewGenerator(pools Pools) *Generator {
	return &Generator{
		userAgents: orDefault(pools.UserAgents, defaultUserAgents),
		languages:  orDefault(pools.Languages, defaultLanguages),
		viewports:  orDefault(pools.Viewports, defaultViewports),
		timezones:  orDefault(pools.Timezones, defaultTimezones),
	}
}

func orDefault(values, fallback []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

// Draw produces a fresh profile. Each call is an independent draw.
func (g *Generator) Draw() Profile {
	ua := pick(g.userAgents)
	lang := pick(g.languages)
	viewport := pick(g.viewports)
	width, height := parseViewport(viewport)

	p := Profile{
		UserAgent:      ua,
		AcceptLanguage: fmt.Sprintf("%s,en;q=0.8", lang),
		ViewportWidth:  width,
		ViewportHeight: height,
		Timezone:       pick(g.timezones),
		Platform:       pick(defaultPlatforms),
	}
	sum := sha256.Sum256([]byte(ua + lang + viewport + p.Timezone + p.Platform))
	p.ID = hex.EncodeToString(sum[:])[:16]
	return p
}

func parseViewport(s string) (int, int) {
	parts := strings.SplitN(s, "x", 2)
	if len(parts) != 2 {
		return 1920, 1080
	}
	w, errW := strconv.Atoi(parts[0])
	h, errH := strconv.Atoi(parts[1])
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return 1920, 1080
	}
	return w, h
}

func pick(values []string) string {
	if len(values) == 0 {
		return ""
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(values))))
	if err != nil {
		return values[0]
	}
	return values[n.Int64()]
}

// Headers renders the realistic browser header set for this profile.
func (p Profile) Headers(referer string) http.Header {
	h := http.Header{}
	h.Set("User-Agent", p.UserAgent)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", p.AcceptLanguage)
	h.Set("DNT", "1")
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("Sec-Fetch-Dest", "document")
	h.Set("Sec-Fetch-Mode", "navigate")
	h.Set("Sec-Fetch-Site", "cross-site")
	h.Set("Cache-Control", "max-age=0")
	if referer == "" {
		referer = "https://www.google.com/"
	}
	h.Set("Referer", referer)

	if version := chromeMajorVersion(p.UserAgent); version != "" {
		h.Set("Sec-Ch-UA", fmt.Sprintf(`"Google Chrome";v=%q, "Chromium";v=%q, ";Not A Brand";v="99"`, version, version))
		h.Set("Sec-Ch-UA-Mobile", "?0")
		h.Set("Sec-Ch-UA-Platform", strconv.Quote(p.Platform))
		if p.ViewportWidth > 0 {
			h.Set("Viewport-Width", strconv.Itoa(min(p.ViewportWidth, 1920)))
		}
	}
	return h
}

func chromeMajorVersion(userAgent string) string {
	const marker = "Chrome/"
	idx := strings.Index(userAgent, marker)
	if idx < 0 {
		return ""
	}
	rest := userAgent[idx+len(marker):]
	if dot := strings.IndexByte(rest, '.'); dot > 0 {
		return rest[:dot]
	}
	return ""
}
