package replay

import (
	"net/url"
	"path"
	"strings"
)

// DenyRule denies a replay when host, method, and path all match.
// MethodSet empty means "any method"; PathGlob empty means "any path".
type DenyRule struct {
	HostGlob  string
	MethodSet []string
	PathGlob  string
}

// Policy is the declarative guardrail set applied before any outbound I/O.
type Policy struct {
	AllowedDomains     []string
	DenyRules          []DenyRule
	EnforceCaptureHost bool
}

func hostAllowed(host string, allowed []string) bool {
	host = strings.ToLower(host)
	for _, d := range allowed {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func globMatch(pattern, value string) bool {
	if pattern == "" {
		return true
	}
	matched, err := path.Match(strings.ToLower(pattern), strings.ToLower(value))
	return err == nil && matched
}

func methodMatches(set []string, method string) bool {
	if len(set) == 0 {
		return true
	}
	for _, m := range set {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

// checkDenyRules returns the index of the first matching deny rule, or -1.
func checkDenyRules(rules []DenyRule, target *url.URL, method string) int {
	for i, r := range rules {
		if globMatch(r.HostGlob, target.Hostname()) && methodMatches(r.MethodSet, method) && globMatch(r.PathGlob, target.Path) {
			return i
		}
	}
	return -1
}
