// Package resolver performs forward DNS resolution of block targets by
// fanning each query out across a set of public DNS servers and unioning
// the answers. Different operators see through different CDN rotations,
// so the union blocks more of a target's address footprint than any
// single resolver would.
package resolver

import (
	"context"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/sync/errgroup"

	logpkg "github.com/haukened/rr-block/internal/block/common/log"
)

// Error message constants for consistent error handling
const (
	errNoServersProvided = "no DNS servers provided"
	errAllServersFailed  = "all %d DNS servers failed for %s: last error: %v"
)

// ExchangeFunc sends a single DNS message to a server and returns the
// response. It exists so tests can substitute a stub for real network I/O.
type ExchangeFunc func(ctx context.Context, msg *dns.Msg, server string) (*dns.Msg, error)

// Resolver resolves names to A/AAAA addresses across multiple servers.
type Resolver struct {
	servers     []string
	timeout     time.Duration
	concurrency int
	exchange    ExchangeFunc
	logger      logpkg.Logger
}

// Options defines configuration parameters for the resolver.
type Options struct {
	// required parameters
	Servers     []string
	Timeout     time.Duration
	Concurrency int
	Logger      logpkg.Logger
	// options to inject for testing purposes
	Exchange ExchangeFunc
}

// New creates a resolver with the specified options. Returns an error if
// the server list is empty. Defaults: 5s timeout, concurrency 15, real
// UDP exchange.
func New(opts Options) (*Resolver, error) {
	if len(opts.Servers) == 0 {
		return nil, fmt.Errorf(errNoServersProvided)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 15
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewNoopLogger()
	}
	if opts.Exchange == nil {
		client := &dns.Client{Timeout: opts.Timeout}
		opts.Exchange = func(ctx context.Context, msg *dns.Msg, server string) (*dns.Msg, error) {
			resp, _, err := client.ExchangeContext(ctx, msg, server)
			return resp, err
		}
	}
	return &Resolver{
		servers:     opts.Servers,
		timeout:     opts.Timeout,
		concurrency: opts.Concurrency,
		exchange:    opts.Exchange,
		logger:      opts.Logger,
	}, nil
}

// ensureContextDeadline ensures the context has a deadline, adding the resolver's
// default timeout if needed. Returns the context and a cancel function if one was created.
func (r *Resolver) ensureContextDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); !ok {
		return context.WithTimeout(ctx, r.timeout)
	}
	return ctx, nil
}

// Resolve queries every configured server for A and AAAA records of name
// and returns the union of all answers. It returns an error only when
// every single query failed; a clean "no such records" answer yields an
// empty slice and a nil error.
func (r *Resolver) Resolve(ctx context.Context, name string) ([]netip.Addr, error) {
	ctx, cancel := r.ensureContextDeadline(ctx)
	if cancel != nil {
		defer cancel()
	}

	var (
		mu       sync.Mutex
		addrs    []netip.Addr
		seen     = make(map[netip.Addr]struct{})
		failures int
		lastErr  error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	queries := 0
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		for _, server := range r.servers {
			queries++
			qtype, server := qtype, server
			g.Go(func() error {
				msg := new(dns.Msg)
				msg.SetQuestion(dns.Fqdn(name), qtype)

				resp, err := r.exchange(gctx, msg, server)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failures++
					lastErr = err
					r.logger.Debug(map[string]any{
						"name":   name,
						"server": server,
						"error":  err.Error(),
					}, "dns_query_failed")
					return nil // individual failures don't abort the fan-out
				}
				for _, a := range extractAddrs(resp) {
					if _, ok := seen[a]; ok {
						continue
					}
					seen[a] = struct{}{}
					addrs = append(addrs, a)
				}
				return nil
			})
		}
	}
	_ = g.Wait() // goroutines always return nil

	if failures == queries {
		return nil, fmt.Errorf(errAllServersFailed, len(r.servers), name, lastErr)
	}
	return addrs, nil
}

// extractAddrs pulls A and AAAA answer records out of a response.
func extractAddrs(resp *dns.Msg) []netip.Addr {
	if resp == nil {
		return nil
	}
	var out []netip.Addr
	for _, rr := range resp.Answer {
		switch rec := rr.(type) {
		case *dns.A:
			if a, ok := netip.AddrFromSlice(rec.A); ok {
				out = append(out, a.Unmap())
			}
		case *dns.AAAA:
			if a, ok := netip.AddrFromSlice(rec.AAAA); ok {
				out = append(out, a.Unmap())
			}
		}
	}
	return out
}
