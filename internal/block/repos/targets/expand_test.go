package targets

import (
	"testing"

	"github.com/haukened/rr-block/internal/block/domain"
)

func mustTarget(t *testing.T, name string) domain.Target {
	t.Helper()
	tgt, err := domain.NewTarget(name, "test")
	if err != nil {
		t.Fatalf("NewTarget(%q): %v", name, err)
	}
	return tgt
}

func TestExpand_ApexGetsPrefixes(t *testing.T) {
	tgts := []domain.Target{mustTarget(t, "example.com")}
	got := Expand(tgts, []string{"www", "api"})

	want := []string{"example.com", "www.example.com", "api.example.com"}
	if len(got) != len(want) {
		t.Fatalf("Expand = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expand[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestExpand_SubdomainNotExpanded(t *testing.T) {
	tgts := []domain.Target{mustTarget(t, "cdn.example.com")}
	got := Expand(tgts, []string{"www"})
	if len(got) != 1 || got[0] != "cdn.example.com" {
		t.Fatalf("subdomain target should not expand, got %v", got)
	}
}

func TestExpand_Deduplicates(t *testing.T) {
	tgts := []domain.Target{
		mustTarget(t, "example.com"),
		mustTarget(t, "www.example.com"), // collides with expansion
	}
	got := Expand(tgts, []string{"www"})
	want := []string{"example.com", "www.example.com"}
	if len(got) != len(want) {
		t.Fatalf("Expand = %v, want %v", got, want)
	}
}

func TestExpand_NoPrefixes(t *testing.T) {
	tgts := []domain.Target{mustTarget(t, "example.com")}
	got := Expand(tgts, nil)
	if len(got) != 1 || got[0] != "example.com" {
		t.Fatalf("Expand with no prefixes = %v", got)
	}
}
