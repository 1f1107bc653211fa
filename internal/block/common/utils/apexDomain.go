package utils

import "golang.org/x/net/publicsuffix"

// GetApexDomain returns the registrable apex (eTLD+1) of a name, or the
// name itself when the public suffix list cannot parse it.
func GetApexDomain(name string) string {
	name = CanonicalDNSName(name)
	apexDomain, err := publicsuffix.EffectiveTLDPlusOne(name)
	if err != nil {
		apexDomain = name // Fallback to the original name if parsing fails
	}
	return apexDomain
}

// IsApexDomain reports whether the name is itself a registrable apex
// (i.e., it carries no subdomain labels beyond the eTLD+1).
func IsApexDomain(name string) bool {
	name = CanonicalDNSName(name)
	return name != "" && name == GetApexDomain(name)
}
