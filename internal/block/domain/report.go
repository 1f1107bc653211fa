package domain

import "time"

// ResolutionWarning records a name that could not be resolved (or probed).
// Warnings are non-fatal; they are collected and reported in aggregate at
// the end of a run.
type ResolutionWarning struct {
	Name   string
	Reason string
}

// SyncReport summarizes a single synchronization run.
type SyncReport struct {
	Targets      int                 // targets in the input set
	Names        int                 // candidate names after expansion and de-dup
	Addresses    int                 // distinct addresses resolved
	RulesApplied int                 // rules installed in the chain (2 per address)
	Persisted    bool                // whether the ruleset reached disk
	Warnings     []ResolutionWarning // per-name, non-fatal
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Duration returns the wall-clock length of the run.
func (r SyncReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// WarningNames returns just the names that produced warnings, in order.
func (r SyncReport) WarningNames() []string {
	out := make([]string, 0, len(r.Warnings))
	for _, w := range r.Warnings {
		out = append(out, w.Name)
	}
	return out
}
