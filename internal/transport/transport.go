// Package transport executes HTTP requests through a specific network
// identity, presenting that identity's bound browser fingerprint.
package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	xproxy "golang.org/x/net/proxy"

	"github.com/gravyjobs/gravyjobs/internal/config"
	"github.com/gravyjobs/gravyjobs/internal/fingerprint"
	"github.com/gravyjobs/gravyjobs/internal/identity"
)

// Response is the raw result of one executed request.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Executor issues a request using an identity's transport and fingerprint.
type Executor struct {
	services     map[string]config.ProxyServiceConfig
	timeout      time.Duration
	maxBodyBytes int64

	mu      sync.Mutex
	clients map[string]*http.Client
}

// NewExecutor builds an Executor. Clients are constructed lazily per
// identity and reused for connection pooling.
func NewExecutor(services map[string]config.ProxyServiceConfig, timeout time.Duration, maxBodyBytes int64) *Executor {
	if maxBodyBytes <= 0 {
		maxBodyBytes = 5 << 20
	}
	return &Executor{
		services:     services,
		timeout:      timeout,
		maxBodyBytes: maxBodyBytes,
		clients:      make(map[string]*http.Client),
	}
}

// Do executes the request through the identity, with the profile's
// headers applied. Caller-supplied headers win over fingerprint headers.
func (e *Executor) Do(ctx context.Context, id identity.Identity, profile fingerprint.Profile, method, rawURL string, header http.Header) (Response, error) {
	client, err := e.client(id)
	if err != nil {
		return Response{}, err
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}
	req.Header = profile.Headers("")
	for k, vs := range header {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBodyBytes))
	if err != nil {
		return Response{}, fmt.Errorf("read body: %w", err)
	}
	return Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
	}, nil
}

func (e *Executor) client(id identity.Identity) (*http.Client, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.clients[id.ID]; ok {
		return c, nil
	}
	rt, err := e.roundTripper(id)
	if err != nil {
		return nil, err
	}
	c := &http.Client{
		Transport: rt,
		Timeout:   e.timeout,
	}
	e.clients[id.ID] = c
	return c, nil
}

func (e *Executor) roundTripper(id identity.Identity) (http.RoundTripper, error) {
	base := &http.Transport{
		MaxIdleConns:        64,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	switch id.Transport {
	case identity.TransportDirect:
		return base, nil

	case identity.TransportLocalSocks:
		dialer, err := xproxy.SOCKS5("tcp", id.Endpoint, socksAuth(id), &net.Dialer{Timeout: 10 * time.Second})
		if err != nil {
			return nil, fmt.Errorf("socks dialer for %s: %w", id.Endpoint, err)
		}
		base.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			if cd, ok := dialer.(xproxy.ContextDialer); ok {
				return cd.DialContext(ctx, network, addr)
			}
			return dialer.Dial(network, addr)
		}
		return base, nil

	case identity.TransportCommercial:
		proxyURL, err := e.serviceProxyURL(id)
		if err != nil {
			return nil, err
		}
		base.Proxy = http.ProxyURL(proxyURL)
		return base, nil
	}
	return nil, fmt.Errorf("unknown transport %q", id.Transport)
}

func socksAuth(id identity.Identity) *xproxy.Auth {
	if id.Username == "" && id.Password == "" {
		return nil
	}
	return &xproxy.Auth{User: id.Username, Password: id.Password}
}

// serviceProxyURL composes the upstream proxy URL for a commercial
// service. Each provider encodes routing options (zone, session, country)
// into the proxy username.
func (e *Executor) serviceProxyURL(id identity.Identity) (*url.URL, error) {
	svc, ok := e.services[id.Service]
	if !ok {
		return nil, fmt.Errorf("identity %q references unknown proxy service %q", id.ID, id.Service)
	}
	country := id.Country
	if country == "" && len(svc.CountryPool) > 0 {
		country = svc.CountryPool[0]
	}

	var user string
	switch id.Service {
	case "brightdata":
		user = fmt.Sprintf("%s-zone-%s-session-%s", svc.Username, svc.Zone, svc.SessionID)
		if country != "" {
			user += "-country-" + country
		}
	case "oxylabs":
		user = "customer-" + svc.Username
		if country != "" {
			user += "-cc-" + country
		}
	case "smartproxy":
		user = svc.Username
		if country != "" {
			user = "user-" + svc.Username + "-country-" + country
		}
	default:
		// proxymesh and friends take plain credentials.
		user = svc.Username
	}

	u := &url.URL{
		Scheme: "http",
		Host:   fmt.Sprintf("%s:%d", svc.Endpoint, svc.Port),
	}
	if user != "" {
		u.User = url.UserPassword(user, svc.Password)
	}
	return u, nil
}
