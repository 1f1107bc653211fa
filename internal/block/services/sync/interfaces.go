package sync

import (
	"context"
	"net/netip"

	"github.com/haukened/rr-block/internal/block/domain"
)

// Resolver performs forward DNS resolution of a single name.
type Resolver interface {
	// Resolve returns the union of A/AAAA answers for name. An empty
	// slice with a nil error means the name cleanly has no records; an
	// error means resolution itself failed.
	Resolve(ctx context.Context, name string) ([]netip.Addr, error)
}

// Prober discovers additional addresses for a name by connecting to it.
type Prober interface {
	Probe(ctx context.Context, name string) ([]netip.Addr, error)
}

// RuleTable is the firewall surface the synchronizer drives: replace the
// owned chain's contents, then persist the full ruleset.
type RuleTable interface {
	Replace(ctx context.Context, addrs []domain.ResolvedAddress) (int, error)
	Save(ctx context.Context) error
}

// StateStore records run summaries across invocations.
type StateStore interface {
	LastRun() (domain.SyncReport, bool, error)
	RecordRun(domain.SyncReport) error
}

// ExpandFunc produces the candidate name set to resolve from the input
// targets (subdomain-prefix expansion lives behind this seam).
type ExpandFunc func(tgts []domain.Target) []string
