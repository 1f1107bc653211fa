// Package probe discovers addresses that DNS alone misses by opening a
// real HTTPS connection to each target and recording which peers the
// connection (and any redirects) actually landed on.
package probe

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"sync"
	"time"

	logpkg "github.com/haukened/rr-block/internal/block/common/log"
)

// DialFunc establishes the underlying network connection. Injectable for
// tests.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Prober issues a HEAD request per target and captures connected peer
// addresses.
type Prober struct {
	timeout     time.Duration
	urlTemplate string
	dial        DialFunc
	logger      logpkg.Logger
}

// Options defines configuration parameters for the prober.
type Options struct {
	Timeout time.Duration
	Logger  logpkg.Logger
	// options to inject for testing purposes
	URLTemplate string // defaults to "https://%s"
	Dial        DialFunc
}

// New creates a Prober. Defaults: 5s timeout, HTTPS URLs, real dialer.
func New(opts Options) *Prober {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.URLTemplate == "" {
		opts.URLTemplate = "https://%s"
	}
	if opts.Dial == nil {
		opts.Dial = (&net.Dialer{}).DialContext
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewNoopLogger()
	}
	return &Prober{
		timeout:     opts.Timeout,
		urlTemplate: opts.URLTemplate,
		dial:        opts.Dial,
		logger:      opts.Logger,
	}
}

// Probe sends a HEAD request to the target and returns every peer address
// the request connected to, including redirect hops.
func (p *Prober) Probe(ctx context.Context, name string) ([]netip.Addr, error) {
	var (
		mu    sync.Mutex
		addrs []netip.Addr
		seen  = make(map[netip.Addr]struct{})
	)

	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, address string) (net.Conn, error) {
			conn, err := p.dial(ctx, network, address)
			if err != nil {
				return nil, err
			}
			if ap, perr := netip.ParseAddrPort(conn.RemoteAddr().String()); perr == nil {
				a := ap.Addr().Unmap()
				mu.Lock()
				if _, ok := seen[a]; !ok {
					seen[a] = struct{}{}
					addrs = append(addrs, a)
				}
				mu.Unlock()
			}
			return conn, nil
		},
	}
	defer transport.CloseIdleConnections()

	client := &http.Client{Transport: transport, Timeout: p.timeout}

	url := fmt.Sprintf(p.urlTemplate, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		// report what we captured even on a failed request body/handshake:
		// the TCP peer is still a real address the target fronts on
		if len(addrs) > 0 {
			p.logger.Debug(map[string]any{"name": name, "error": err.Error()}, "probe_partial")
			return addrs, nil
		}
		return nil, err
	}
	defer resp.Body.Close()

	p.logger.Debug(map[string]any{
		"name":   name,
		"status": resp.StatusCode,
		"addrs":  len(addrs),
	}, "probe_done")
	return addrs, nil
}
