// Package sync implements the rule synchronizer: resolve a target set to
// addresses, replace the owned firewall chain with DROP rules for them,
// and persist the resulting ruleset.
package sync

import (
	"context"
	"fmt"
	stdsync "sync"

	"golang.org/x/sync/errgroup"

	"github.com/haukened/rr-block/internal/block/common/clock"
	logpkg "github.com/haukened/rr-block/internal/block/common/log"
	"github.com/haukened/rr-block/internal/block/domain"
)

// Synchronizer runs one resolution -> chain replacement -> persistence
// pass. It is single-shot; invocation-level serialization (the lock file)
// is the caller's concern.
type Synchronizer struct {
	resolver    Resolver
	prober      Prober
	rules       RuleTable
	state       StateStore
	expand      ExpandFunc
	clock       clock.Clock
	logger      logpkg.Logger
	concurrency int
}

// Options defines the synchronizer's collaborators. Resolver and Rules
// are required; Prober and State are optional features.
type Options struct {
	Resolver    Resolver
	Prober      Prober
	Rules       RuleTable
	State       StateStore
	Expand      ExpandFunc
	Clock       clock.Clock
	Logger      logpkg.Logger
	Concurrency int
}

// New constructs a Synchronizer.
func New(opts Options) (*Synchronizer, error) {
	if opts.Resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	if opts.Rules == nil {
		return nil, fmt.Errorf("rule table is required")
	}
	if opts.Expand == nil {
		opts.Expand = func(tgts []domain.Target) []string {
			names := make([]string, 0, len(tgts))
			seen := make(map[string]struct{}, len(tgts))
			for _, t := range tgts {
				if _, ok := seen[t.Name]; ok {
					continue
				}
				seen[t.Name] = struct{}{}
				names = append(names, t.Name)
			}
			return names
		}
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewNoopLogger()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 15
	}
	return &Synchronizer{
		resolver:    opts.Resolver,
		prober:      opts.Prober,
		rules:       opts.Rules,
		state:       opts.State,
		expand:      opts.Expand,
		clock:       opts.Clock,
		logger:      opts.Logger,
		concurrency: opts.Concurrency,
	}, nil
}

// Synchronize resolves the targets and rewrites the firewall chain.
//
// Error semantics:
//   - empty target set: domain.ErrNoTargets, firewall untouched. An empty
//     set is refused rather than treated as "clear everything" so a
//     missing targets file can never silently drop all blocking state.
//   - nothing resolved: domain.ErrNoAddressesResolved, firewall untouched
//     (the chain is only flushed after resolution produced addresses).
//   - persistence failure: a *domain.PersistError matching
//     domain.ErrPersistFailed; the kernel rules stay applied.
//
// Per-name resolution failures are warnings in the returned report, not
// errors. The report is meaningful even when err is non-nil.
func (s *Synchronizer) Synchronize(ctx context.Context, tgts []domain.Target) (domain.SyncReport, error) {
	report := domain.SyncReport{
		Targets:   len(tgts),
		StartedAt: s.clock.Now(),
	}

	if len(tgts) == 0 {
		report.FinishedAt = s.clock.Now()
		return report, domain.ErrNoTargets
	}

	names := s.expand(tgts)
	report.Names = len(names)
	s.logger.Debug(map[string]any{"targets": len(tgts), "names": len(names)}, "resolution starting")

	set, warnings := s.resolveAll(ctx, names)
	report.Warnings = warnings
	report.Addresses = set.Len()

	if set.Len() == 0 {
		report.FinishedAt = s.clock.Now()
		return report, domain.ErrNoAddressesResolved
	}

	applied, err := s.rules.Replace(ctx, set.Sorted())
	report.RulesApplied = applied
	if err != nil {
		// the chain may hold fewer rules than intended; nothing to roll
		// back to, the operator re-runs
		report.FinishedAt = s.clock.Now()
		return report, fmt.Errorf("replace chain: %w", err)
	}

	var syncErr error
	if err := s.rules.Save(ctx); err != nil {
		syncErr = &domain.PersistError{RulesApplied: applied, Err: err}
	} else {
		report.Persisted = true
	}

	report.FinishedAt = s.clock.Now()
	s.recordRun(report)
	return report, syncErr
}

// resolveAll fans resolution (and optional probing) out over the names
// with bounded concurrency, accumulating addresses and per-name warnings.
func (s *Synchronizer) resolveAll(ctx context.Context, names []string) (*domain.AddressSet, []domain.ResolutionWarning) {
	var (
		mu       stdsync.Mutex
		set      = domain.NewAddressSet()
		warnings []domain.ResolutionWarning
	)

	warn := func(name, reason string) {
		warnings = append(warnings, domain.ResolutionWarning{Name: name, Reason: reason})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, name := range names {
		name := name
		g.Go(func() error {
			addrs, err := s.resolver.Resolve(gctx, name)

			mu.Lock()
			if err != nil {
				warn(name, err.Error())
			} else if len(addrs) == 0 {
				warn(name, "no addresses")
			} else {
				for _, a := range addrs {
					set.Add(name, a)
				}
			}
			mu.Unlock()

			if s.prober == nil {
				return nil
			}
			paddrs, perr := s.prober.Probe(gctx, name)
			mu.Lock()
			if perr != nil {
				warn(name, "probe: "+perr.Error())
			} else {
				for _, a := range paddrs {
					set.Add(name, a)
				}
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // workers always return nil

	// warning order follows completion order; sort-free but stable enough
	// for aggregate reporting
	return set, warnings
}

// recordRun stores the report; state is best-effort and never fails a run.
func (s *Synchronizer) recordRun(report domain.SyncReport) {
	if s.state == nil {
		return
	}
	if err := s.state.RecordRun(report); err != nil {
		s.logger.Warn(map[string]any{"error": err.Error()}, "failed to record run state")
	}
}
