// Package identity manages the pool of network egress identities and
// their bound browser fingerprints.
package identity

import (
	"fmt"

	"github.com/gravyjobs/gravyjobs/internal/config"
	"github.com/gravyjobs/gravyjobs/internal/license"
)

// Transport names the egress mechanism an identity uses.
type Transport string

// Supported transports.
const (
	TransportDirect     Transport = config.TransportDirect
	TransportLocalSocks Transport = config.TransportLocalSocks
	TransportCommercial Transport = config.TransportCommercial
)

// Identity is one network egress configuration. Immutable once
// constructed; the pool holds a fixed ordered set per process lifetime.
type Identity struct {
	ID        string
	Transport Transport
	Endpoint  string
	Username  string
	Password  string
	Country   string
	Service   string
	Feature   license.Feature
}

// featureFor derives the capability tag an identity requires.
func featureFor(transport Transport) license.Feature {
	switch transport {
	case TransportCommercial:
		return license.FeatureCommercialProxies
	case TransportLocalSocks:
		return license.FeatureAdvancedScraping
	default:
		return license.FeatureBasicScraping
	}
}

// FromConfig builds the immutable identity set from configuration.
func FromConfig(entries []config.IdentityConfig) ([]Identity, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("no identities configured")
	}
	out := make([]Identity, 0, len(entries))
	for _, e := range entries {
		transport := Transport(e.Transport)
		switch transport {
		case TransportDirect, TransportLocalSocks, TransportCommercial:
		default:
			return nil, fmt.Errorf("identity %q: unknown transport %q", e.ID, e.Transport)
		}
		out = append(out, Identity{
			ID:        e.ID,
			Transport: transport,
			Endpoint:  e.Endpoint,
			Username:  e.Username,
			Password:  e.Password,
			Country:   e.Country,
			Service:   e.Service,
			Feature:   featureFor(transport),
		})
	}
	return out, nil
}
