// Package redirect validates requested redirect URIs against a client's
// registered set. Patterns are either exact URIs or a single-level wildcard
// subdomain of the form scheme://*.domain.tld/path. The grammar is
// deliberately narrow: a wildcard matches exactly one host label and paths
// are compared literally, which closes the open-redirect hole that general
// pattern matching would open.
package redirect

import (
	"net/url"
	"strings"
)

// Matches reports whether candidate is allowed by any of the registered
// URI patterns.
func Matches(registered []string, candidate string) bool {
	for _, pattern := range registered {
		if MatchesPattern(pattern, candidate) {
			return true
		}
	}
	return false
}

// MatchesPattern reports whether candidate is allowed by a single pattern.
func MatchesPattern(pattern, candidate string) bool {
	if pattern == "" || candidate == "" {
		return false
	}
	if pattern == candidate {
		return true
	}
	if !strings.Contains(pattern, "*") {
		return false
	}

	patternURL, err := url.Parse(pattern)
	if err != nil {
		return false
	}
	candidateURL, err := url.Parse(candidate)
	if err != nil {
		return false
	}

	// Only a leading "*." host label is a wildcard; a "*" anywhere else
	// makes the pattern unmatchable rather than silently broader.
	host := patternURL.Host
	if !strings.HasPrefix(host, "*.") || strings.Contains(host[2:], "*") {
		return false
	}
	if patternURL.Scheme != candidateURL.Scheme {
		return false
	}
	// Exact patterns compare the full URI, so a candidate with a query or
	// fragment only matches when the pattern carries the same one. The
	// wildcard branch keeps that strictness.
	if candidateURL.RawQuery != patternURL.RawQuery || candidateURL.Fragment != patternURL.Fragment {
		return false
	}

	suffix := host[1:] // ".domain.tld"
	candidateHost := candidateURL.Host
	if !strings.HasSuffix(candidateHost, suffix) {
		return false
	}
	label := candidateHost[:len(candidateHost)-len(suffix)]
	if !validLabel(label) {
		return false
	}

	return patternURL.Path == candidateURL.Path
}

// validLabel accepts exactly one DNS label: one or more characters from
// [a-zA-Z0-9-] and no dots, so the wildcard never spans subdomain levels.
func validLabel(label string) bool {
	if label == "" {
		return false
	}
	for _, r := range label {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-':
		default:
			return false
		}
	}
	return true
}
