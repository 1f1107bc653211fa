package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNoTargets is returned when Synchronize is called with an empty
	// target set. An empty set is a caller error, not a request to clear
	// all rules.
	ErrNoTargets = errors.New("no block targets provided")

	// ErrNoAddressesResolved is returned when no target resolved to any
	// address. The firewall is left untouched.
	ErrNoAddressesResolved = errors.New("no addresses resolved for any target")

	// ErrPersistFailed is returned when the ruleset could not be written
	// to disk. The in-kernel rules stay applied; only reboot survival is
	// at risk.
	ErrPersistFailed = errors.New("failed to persist firewall rules")
)

// PersistError wraps a persistence failure with the number of rules that
// were already applied to the live firewall before the write failed.
type PersistError struct {
	RulesApplied int
	Err          error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("%d rules applied but not persisted: %v", e.RulesApplied, e.Err)
}

// Unwrap exposes both the sentinel and the underlying cause so callers can
// match with errors.Is(err, ErrPersistFailed) or dig out the I/O error.
func (e *PersistError) Unwrap() []error {
	return []error{ErrPersistFailed, e.Err}
}
