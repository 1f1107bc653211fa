package firewall

import (
	"context"
	"errors"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/haukened/rr-block/internal/block/common/log"
	"github.com/haukened/rr-block/internal/block/domain"
)

// fakeClient is an in-memory iptables stand-in tracking chain contents.
type fakeClient struct {
	chains     map[string][]string // chain -> rule specs (joined)
	failAppend bool
	failClear  bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{chains: map[string][]string{"OUTPUT": {}}}
}

func (f *fakeClient) ClearChain(_, chain string) error {
	if f.failClear {
		return errors.New("clear failed")
	}
	f.chains[chain] = []string{}
	return nil
}

func (f *fakeClient) AppendUnique(_, chain string, rulespec ...string) error {
	if f.failAppend {
		return errors.New("append failed")
	}
	rule := strings.Join(rulespec, " ")
	for _, r := range f.chains[chain] {
		if r == rule {
			return nil
		}
	}
	f.chains[chain] = append(f.chains[chain], rule)
	return nil
}

func (f *fakeClient) Exists(_, chain string, rulespec ...string) (bool, error) {
	rule := strings.Join(rulespec, " ")
	for _, r := range f.chains[chain] {
		if r == rule {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeClient) List(_, chain string) ([]string, error) {
	rules, ok := f.chains[chain]
	if !ok {
		return nil, errors.New("no such chain")
	}
	out := []string{"-N " + chain}
	out = append(out, rules...)
	return out, nil
}

func resolved(t *testing.T, addrs ...string) []domain.ResolvedAddress {
	t.Helper()
	out := make([]domain.ResolvedAddress, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, domain.ResolvedAddress{Addr: netip.MustParseAddr(a), Targets: []string{"example.com"}})
	}
	return out
}

func newTestManager(t *testing.T, v4, v6 Client) *Manager {
	t.Helper()
	m, err := New(Options{
		Chain:    "RR-BLOCK",
		ClientV4: v4,
		ClientV6: v6,
		Logger:   log.NewNoopLogger(),
		Save: func(_ context.Context, _ string) ([]byte, error) {
			return []byte("*filter\nCOMMIT\n"), nil
		},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return m
}

func TestReplace_InstallsTCPAndUDPPerAddress(t *testing.T) {
	v4 := newFakeClient()
	m := newTestManager(t, v4, nil)

	n, err := m.Replace(context.Background(), resolved(t, "93.184.216.34"))
	if err != nil {
		t.Fatalf("Replace returned error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rules, got %d", n)
	}

	want := []string{
		"-p tcp -d 93.184.216.34 -j DROP",
		"-p udp -d 93.184.216.34 -j DROP",
	}
	got := v4.chains["RR-BLOCK"]
	if len(got) != len(want) {
		t.Fatalf("chain = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("rule[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestReplace_AddsOutputJumpOnce(t *testing.T) {
	v4 := newFakeClient()
	m := newTestManager(t, v4, nil)

	for i := 0; i < 2; i++ {
		if _, err := m.Replace(context.Background(), resolved(t, "192.0.2.1")); err != nil {
			t.Fatalf("Replace #%d returned error: %v", i+1, err)
		}
	}

	jumps := 0
	for _, r := range v4.chains["OUTPUT"] {
		if r == "-j RR-BLOCK" {
			jumps++
		}
	}
	if jumps != 1 {
		t.Fatalf("expected exactly 1 OUTPUT jump, got %d", jumps)
	}
}

func TestReplace_IsIdempotent(t *testing.T) {
	v4 := newFakeClient()
	m := newTestManager(t, v4, nil)

	addrs := resolved(t, "192.0.2.1", "192.0.2.2")
	first, err := m.Replace(context.Background(), addrs)
	if err != nil {
		t.Fatalf("first Replace returned error: %v", err)
	}
	second, err := m.Replace(context.Background(), addrs)
	if err != nil {
		t.Fatalf("second Replace returned error: %v", err)
	}

	if first != second {
		t.Fatalf("rule counts differ across identical runs: %d vs %d", first, second)
	}
	count, err := m.RuleCount()
	if err != nil {
		t.Fatalf("RuleCount returned error: %v", err)
	}
	if count != 4 {
		t.Fatalf("chain should hold 4 rules after re-run, got %d", count)
	}
}

func TestReplace_RoutesV6ToV6Client(t *testing.T) {
	v4 := newFakeClient()
	v6 := newFakeClient()
	m := newTestManager(t, v4, v6)

	n, err := m.Replace(context.Background(), resolved(t, "192.0.2.1", "2001:db8::1"))
	if err != nil {
		t.Fatalf("Replace returned error: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4 rules, got %d", n)
	}
	if len(v4.chains["RR-BLOCK"]) != 2 {
		t.Errorf("v4 chain = %v", v4.chains["RR-BLOCK"])
	}
	if len(v6.chains["RR-BLOCK"]) != 2 {
		t.Errorf("v6 chain = %v", v6.chains["RR-BLOCK"])
	}
}

func TestReplace_SkipsV6WithoutClient(t *testing.T) {
	v4 := newFakeClient()
	m := newTestManager(t, v4, nil)

	n, err := m.Replace(context.Background(), resolved(t, "2001:db8::1", "192.0.2.1"))
	if err != nil {
		t.Fatalf("Replace returned error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected only the v4 rules, got %d", n)
	}
}

func TestReplace_AppendFailureStopsRun(t *testing.T) {
	v4 := newFakeClient()
	m := newTestManager(t, v4, nil)
	v4.failAppend = true

	if _, err := m.Replace(context.Background(), resolved(t, "192.0.2.1")); err == nil {
		t.Fatal("expected error when append fails")
	}
}

func TestSave_WritesRulesFiles(t *testing.T) {
	dir := t.TempDir()
	rules4 := filepath.Join(dir, "rules.v4")
	rules6 := filepath.Join(dir, "rules.v6")

	saves := []string{}
	m, err := New(Options{
		Chain:       "RR-BLOCK",
		RulesFileV4: rules4,
		RulesFileV6: rules6,
		ClientV4:    newFakeClient(),
		ClientV6:    newFakeClient(),
		Logger:      log.NewNoopLogger(),
		Save: func(_ context.Context, command string) ([]byte, error) {
			saves = append(saves, command)
			return []byte("*filter\n-A RR-BLOCK -p tcp -d 93.184.216.34 -j DROP\nCOMMIT\n"), nil
		},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if err := m.Save(context.Background()); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	if len(saves) != 2 || saves[0] != "iptables-save" || saves[1] != "ip6tables-save" {
		t.Fatalf("unexpected save commands: %v", saves)
	}
	for _, p := range []string{rules4, rules6} {
		buf, err := os.ReadFile(p)
		if err != nil {
			t.Fatalf("rules file %s not written: %v", p, err)
		}
		if !strings.Contains(string(buf), "RR-BLOCK") {
			t.Errorf("rules file %s missing chain contents", p)
		}
	}
}

func TestSave_SkipsV6WithoutClient(t *testing.T) {
	dir := t.TempDir()
	saves := 0
	m, err := New(Options{
		Chain:       "RR-BLOCK",
		RulesFileV4: filepath.Join(dir, "rules.v4"),
		RulesFileV6: filepath.Join(dir, "rules.v6"),
		ClientV4:    newFakeClient(),
		Logger:      log.NewNoopLogger(),
		Save: func(_ context.Context, _ string) ([]byte, error) {
			saves++
			return []byte("*filter\nCOMMIT\n"), nil
		},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if err := m.Save(context.Background()); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if saves != 1 {
		t.Fatalf("expected only iptables-save, got %d invocations", saves)
	}
}

func TestSave_CommandFailure(t *testing.T) {
	m, err := New(Options{
		Chain:       "RR-BLOCK",
		RulesFileV4: filepath.Join(t.TempDir(), "rules.v4"),
		ClientV4:    newFakeClient(),
		Logger:      log.NewNoopLogger(),
		Save: func(_ context.Context, _ string) ([]byte, error) {
			return nil, errors.New("iptables-save: command not found")
		},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if err := m.Save(context.Background()); err == nil {
		t.Fatal("expected error when save command fails")
	}
}

func TestNew_RequiresChain(t *testing.T) {
	if _, err := New(Options{ClientV4: newFakeClient()}); err == nil {
		t.Fatal("expected error for missing chain name")
	}
}
