package rules

import (
	"net/url"
	"regexp"
	"strings"
)

// Link detection is deliberately permissive: the goal is to catch things a
// group member would recognize as a link, not to implement a full URL
// grammar. Four candidate shapes are scanned independently and deduplicated.
var (
	schemeURLPattern = regexp.MustCompile(`(?i)\b(?:https?|tg)://[^\s<>"']+`)
	wwwHostPattern   = regexp.MustCompile(`(?i)\bwww\.[a-z0-9][a-z0-9._-]*\.[a-z]{2,}(?:/[^\s<>"']*)?`)
	bareHostPattern  = regexp.MustCompile(`(?i)\b[a-z0-9][a-z0-9-]*(?:\.[a-z0-9-]+)*\.(?:com|net|org|io|me|ru|by|ua|kz|info|biz|xyz|app|dev|gg|tv|cc|link|online|site|store|club|pro|top|vip|bot|chat|news|shop)\b(?:/[^\s<>"']*)?`)
	invitePattern    = regexp.MustCompile(`(?i)\b(?:t\.me|telegram\.me|telegram\.dog)/(?:joinchat/|\+)?[a-z0-9_+\-]+`)
)

// LinkCandidates returns the distinct link-shaped substrings of text.
func LinkCandidates(text string) []string {
	if text == "" {
		return nil
	}

	seen := make(map[string]struct{})
	var candidates []string
	for _, pattern := range []*regexp.Regexp{schemeURLPattern, wwwHostPattern, bareHostPattern, invitePattern} {
		for _, match := range pattern.FindAllString(text, -1) {
			match = strings.TrimRight(match, ".,;:!?)")
			if _, ok := seen[match]; ok {
				continue
			}
			seen[match] = struct{}{}
			candidates = append(candidates, match)
		}
	}
	return candidates
}

// CandidateHost extracts the lowercase hostname of a link candidate.
// Schemeless candidates are parsed with an http:// prefix.
func CandidateHost(candidate string) (string, bool) {
	raw := candidate
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}

	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host == "" {
		return "", false
	}
	return host, true
}

// HostAllowed reports whether host equals, or is a subdomain of, any
// whitelist entry. Matching is dot-boundary aware: x.example.com matches
// entry example.com, evilexample.com does not.
func HostAllowed(host string, whitelist []string) bool {
	host = strings.ToLower(host)
	for _, entry := range whitelist {
		entry = strings.ToLower(strings.TrimSpace(entry))
		if entry == "" {
			continue
		}
		if host == entry || strings.HasSuffix(host, "."+entry) {
			return true
		}
	}
	return false
}

// HasForbiddenLink reports whether text contains at least one link candidate
// whose hostname is not covered by the whitelist. Candidates whose hostname
// cannot be extracted are ignored.
func HasForbiddenLink(text string, whitelist []string) bool {
	for _, candidate := range LinkCandidates(text) {
		host, ok := CandidateHost(candidate)
		if !ok {
			continue
		}
		if !HostAllowed(host, whitelist) {
			return true
		}
	}
	return false
}
