// Package firewall owns a dedicated iptables chain and rewrites it
// wholesale with DROP rules for resolved block addresses. The chain is
// jumped to from OUTPUT so only outbound traffic is affected.
package firewall

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/coreos/go-iptables/iptables"

	logpkg "github.com/haukened/rr-block/internal/block/common/log"
	"github.com/haukened/rr-block/internal/block/domain"
)

const (
	tableFilter = "filter"
	chainOutput = "OUTPUT"
)

// protocols every blocked address gets a rule for, in emit order.
var protocols = []string{"tcp", "udp"}

// Client is the slice of go-iptables this manager uses. *iptables.IPTables
// satisfies it; tests substitute a fake.
type Client interface {
	ClearChain(table, chain string) error
	AppendUnique(table, chain string, rulespec ...string) error
	Exists(table, chain string, rulespec ...string) (bool, error)
	List(table, chain string) ([]string, error)
}

// SaveFunc runs a ruleset-export command (iptables-save) and returns its
// output. Injectable for tests.
type SaveFunc func(ctx context.Context, command string) ([]byte, error)

// Manager drives the owned chain on the v4 and (best-effort) v6 stacks.
type Manager struct {
	mutex sync.Mutex

	chain       string
	rulesFileV4 string
	rulesFileV6 string

	v4 Client
	v6 Client // nil when ip6tables is unavailable

	save   SaveFunc
	logger logpkg.Logger
}

// Options defines configuration parameters for the firewall manager.
type Options struct {
	// required parameters
	Chain       string
	RulesFileV4 string
	RulesFileV6 string // empty disables v6 persistence
	Logger      logpkg.Logger
	// options to inject for testing purposes
	ClientV4 Client
	ClientV6 Client
	Save     SaveFunc
}

// New creates a firewall manager. The v4 stack is required; a missing
// ip6tables is logged and v6 addresses are skipped (netfilter setups
// without v6 support are common on minimal hosts).
func New(opts Options) (*Manager, error) {
	if opts.Chain == "" {
		return nil, fmt.Errorf("chain name is required")
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewNoopLogger()
	}
	m := &Manager{
		chain:       opts.Chain,
		rulesFileV4: opts.RulesFileV4,
		rulesFileV6: opts.RulesFileV6,
		v4:          opts.ClientV4,
		v6:          opts.ClientV6,
		save:        opts.Save,
		logger:      opts.Logger,
	}
	if m.v4 == nil {
		ipt, err := iptables.NewWithProtocol(iptables.ProtocolIPv4)
		if err != nil {
			return nil, fmt.Errorf("iptables is not installed in the system or not supported")
		}
		m.v4 = ipt

		ip6t, err := iptables.NewWithProtocol(iptables.ProtocolIPv6)
		if err != nil {
			opts.Logger.Warn(map[string]any{"error": err.Error()}, "ip6tables unavailable, IPv6 addresses will be skipped")
		} else {
			m.v6 = ip6t
		}
	}
	if m.save == nil {
		m.save = func(ctx context.Context, command string) ([]byte, error) {
			return exec.CommandContext(ctx, command).Output()
		}
	}
	return m, nil
}

// Replace flushes the owned chain and installs one DROP rule per address
// per protocol (tcp then udp), in the order given. Returns the number of
// rules installed.
//
// The flush-then-append sequence is not atomic: there is a narrow window
// in which the chain is empty and traffic to blocked addresses passes.
// Callers must finish resolution before invoking Replace so a failed run
// never leaves the chain cleared.
func (m *Manager) Replace(ctx context.Context, addrs []domain.ResolvedAddress) (int, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if err := m.ensureChain(m.v4); err != nil {
		return 0, fmt.Errorf("prepare v4 chain: %w", err)
	}
	if m.v6 != nil {
		if err := m.ensureChain(m.v6); err != nil {
			return 0, fmt.Errorf("prepare v6 chain: %w", err)
		}
	}

	installed := 0
	for _, ra := range addrs {
		if err := ctx.Err(); err != nil {
			return installed, err
		}
		client := m.v4
		if ra.Addr.Is6() {
			if m.v6 == nil {
				m.logger.Warn(map[string]any{"addr": ra.Addr.String()}, "skipping IPv6 address, ip6tables unavailable")
				continue
			}
			client = m.v6
		}
		for _, proto := range protocols {
			spec := []string{"-p", proto, "-d", ra.Addr.String(), "-j", "DROP"}
			if err := client.AppendUnique(tableFilter, m.chain, spec...); err != nil {
				return installed, fmt.Errorf("append %s rule for %s: %w", proto, ra.Addr, err)
			}
			installed++
		}
		m.logger.Debug(map[string]any{
			"addr":    ra.Addr.String(),
			"targets": ra.Targets,
		}, "address blocked")
	}
	return installed, nil
}

// ensureChain makes the owned chain exist, empty, and reachable from
// OUTPUT. ClearChain both creates a missing chain and flushes an existing
// one.
func (m *Manager) ensureChain(client Client) error {
	if err := client.ClearChain(tableFilter, m.chain); err != nil {
		return err
	}
	jump := []string{"-j", m.chain}
	ok, err := client.Exists(tableFilter, chainOutput, jump...)
	if err != nil {
		return err
	}
	if !ok {
		if err := client.AppendUnique(tableFilter, chainOutput, jump...); err != nil {
			return err
		}
	}
	return nil
}

// Save serializes the complete current ruleset of each stack to its rules
// file, overwriting it. Kernel state is already applied when this runs;
// failure here only risks rules not surviving a reboot.
func (m *Manager) Save(ctx context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.rulesFileV4 != "" {
		if err := m.saveOne(ctx, "iptables-save", m.rulesFileV4); err != nil {
			return err
		}
	}
	if m.v6 != nil && m.rulesFileV6 != "" {
		if err := m.saveOne(ctx, "ip6tables-save", m.rulesFileV6); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) saveOne(ctx context.Context, command, path string) error {
	out, err := m.save(ctx, command)
	if err != nil {
		return fmt.Errorf("%s: %w", command, err)
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	m.logger.Debug(map[string]any{"path": path, "bytes": len(out)}, "ruleset persisted")
	return nil
}

// RuleCount reports how many rules the owned chain currently holds on the
// v4 stack. List output includes the chain declaration line, which is not
// a rule.
func (m *Manager) RuleCount() (int, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	rules, err := m.v4.List(tableFilter, m.chain)
	if err != nil {
		return 0, err
	}
	count := len(rules)
	if count > 0 {
		count--
	}
	return count, nil
}
