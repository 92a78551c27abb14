package rules

import "testing"

func TestWhitelistAllowsExactAndSubdomains(t *testing.T) {
	whitelist := []string{"example.com"}

	for _, text := range []string{
		"check https://example.com/x",
		"visit www.example.com today",
		"docs at sub.example.com",
	} {
		if HasForbiddenLink(text, whitelist) {
			t.Fatalf("expected no forbidden link in %q", text)
		}
	}
}

func TestWhitelistRejectsLookalikes(t *testing.T) {
	whitelist := []string{"example.com"}

	for _, text := range []string{
		"go to example.com.evil.net now",
		"also notexample.com is great",
	} {
		if !HasForbiddenLink(text, whitelist) {
			t.Fatalf("expected forbidden link in %q", text)
		}
	}
}

func TestLinkCandidatesShapes(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"plain chat message, no links", false},
		{"https://spam.example.org/buy", true},
		{"www.spam-site.ru promo", true},
		{"free stuff at freestuff.xyz", true},
		{"join t.me/+AbCdEf123", true},
		{"join t.me/joinchat/AbCdEf123", true},
		{"tg://resolve?domain=spambot", true},
		{"version 2.5 released at 18.30", false},
	}

	for _, tc := range cases {
		if got := HasForbiddenLink(tc.text, nil); got != tc.want {
			t.Fatalf("HasForbiddenLink(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestLinkCandidatesDeduplicated(t *testing.T) {
	candidates := LinkCandidates("spam.com and again spam.com")
	if len(candidates) != 1 {
		t.Fatalf("expected 1 distinct candidate, got %d: %v", len(candidates), candidates)
	}
}

func TestCandidateHostSchemeless(t *testing.T) {
	host, ok := CandidateHost("www.Example.COM/path")
	if !ok {
		t.Fatalf("expected host extraction to succeed")
	}
	if host != "www.example.com" {
		t.Fatalf("unexpected host: %s", host)
	}
}

func TestHostAllowedDotBoundary(t *testing.T) {
	whitelist := []string{"example.com"}

	if !HostAllowed("example.com", whitelist) {
		t.Fatalf("exact match should be allowed")
	}
	if !HostAllowed("a.b.example.com", whitelist) {
		t.Fatalf("nested subdomain should be allowed")
	}
	if HostAllowed("evilexample.com", whitelist) {
		t.Fatalf("evilexample.com must not match example.com")
	}
}
