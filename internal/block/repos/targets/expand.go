package targets

import (
	"github.com/haukened/rr-block/internal/block/common/utils"
	"github.com/haukened/rr-block/internal/block/domain"
)

// Expand produces the candidate name set for resolution: every target
// name, plus prefix variants ("www.example.com" etc.) for targets that
// are registrable apexes. Targets that already carry a subdomain are not
// expanded further. Result is de-duplicated, first-seen order.
func Expand(tgts []domain.Target, prefixes []string) []string {
	seen := make(map[string]struct{}, len(tgts)*(len(prefixes)+1))
	out := make([]string, 0, len(tgts)*(len(prefixes)+1))

	add := func(name string) {
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}

	for _, t := range tgts {
		add(t.Name)
		if !utils.IsApexDomain(t.Name) {
			continue
		}
		for _, p := range prefixes {
			if p == "" {
				continue
			}
			add(p + "." + t.Name)
		}
	}
	return out
}
