package utils

import "testing"

func TestCanonicalDNSName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Example.COM", "example.com"},
		{"  example.com.  ", "example.com"},
		{"example.com...", "example.com"},
		{"", ""},
		{"UPPER.Example.ORG.", "upper.example.org"},
	}
	for _, tc := range cases {
		if got := CanonicalDNSName(tc.in); got != tc.want {
			t.Errorf("CanonicalDNSName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestGetApexDomain(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"www.example.com", "example.com"},
		{"example.com", "example.com"},
		{"a.b.example.co.uk", "example.co.uk"},
		{"localhost", "localhost"}, // unparseable, falls back to input
	}
	for _, tc := range cases {
		if got := GetApexDomain(tc.in); got != tc.want {
			t.Errorf("GetApexDomain(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestIsApexDomain(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"example.com", true},
		{"www.example.com", false},
		{"example.co.uk", true},
		{"svc.example.co.uk", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := IsApexDomain(tc.in); got != tc.want {
			t.Errorf("IsApexDomain(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
