package domain

import "net/netip"

// ResolvedAddress is a network address plus the target names that produced
// it. A target may resolve to many addresses and many targets may share an
// address; the set de-duplicates before any rules are built from it.
type ResolvedAddress struct {
	Addr    netip.Addr
	Targets []string // first-seen order
}

// AddressSet accumulates resolved addresses across targets, merging
// duplicates and remembering which names contributed each address.
type AddressSet struct {
	byAddr map[netip.Addr]*ResolvedAddress
	order  []netip.Addr
}

// NewAddressSet returns an empty AddressSet.
func NewAddressSet() *AddressSet {
	return &AddressSet{byAddr: make(map[netip.Addr]*ResolvedAddress)}
}

// Add records that name resolved to addr. Invalid addresses are ignored.
// Duplicate (name, addr) pairs are collapsed.
func (s *AddressSet) Add(name string, addr netip.Addr) {
	if !addr.IsValid() {
		return
	}
	addr = addr.Unmap()
	ra, ok := s.byAddr[addr]
	if !ok {
		ra = &ResolvedAddress{Addr: addr}
		s.byAddr[addr] = ra
		s.order = append(s.order, addr)
	}
	for _, existing := range ra.Targets {
		if existing == name {
			return
		}
	}
	ra.Targets = append(ra.Targets, name)
}

// Len returns the number of distinct addresses in the set.
func (s *AddressSet) Len() int {
	return len(s.byAddr)
}

// Sorted returns the addresses ordered by address value so that rule
// installation is deterministic across runs.
func (s *AddressSet) Sorted() []ResolvedAddress {
	out := make([]ResolvedAddress, 0, len(s.order))
	for _, a := range s.order {
		out = append(out, *s.byAddr[a])
	}
	// insertion sort; sets are small (one entry per distinct address)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Addr.Compare(out[j-1].Addr) < 0; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
