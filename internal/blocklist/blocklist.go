// Package blocklist matches hostnames against the set of blocked domains.
package blocklist

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrInvalidDomain is returned when an entry cannot be reduced to a bare host.
var ErrInvalidDomain = errors.New("invalid domain")

// normalizeHost lowercases a hostname and strips a leading "www.".
func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	host = strings.TrimPrefix(host, "www.")
	return strings.TrimSuffix(host, ".")
}

// IsBlocked reports whether hostname equals a blocked domain or is a
// subdomain of one. The empty hostname never matches.
func IsBlocked(hostname string, domains []string) bool {
	host := normalizeHost(hostname)
	if host == "" {
		return false
	}
	for _, d := range domains {
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// Normalize reduces user input such as "https://www.Reddit.com/r/golang" to
// the bare domain "reddit.com".
func Normalize(entry string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(entry))
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndex(s, "@"); i >= 0 {
		s = s[i+1:]
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	s = normalizeHost(s)
	if s == "" || strings.ContainsAny(s, "/ \t") {
		return "", fmt.Errorf("%w: %q", ErrInvalidDomain, entry)
	}
	return s, nil
}

// Dedupe normalizes every entry and drops duplicates, keeping first-seen
// order. Invalid entries are reported together.
func Dedupe(entries []string) ([]string, error) {
	seen := make(map[string]bool, len(entries))
	out := make([]string, 0, len(entries))
	var errs []error
	for _, e := range entries {
		d, err := Normalize(e)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out, errors.Join(errs...)
}

// Add returns domains with entry added. added is false when it was already
// present.
func Add(domains []string, entry string) (out []string, added bool, err error) {
	d, err := Normalize(entry)
	if err != nil {
		return domains, false, err
	}
	for _, existing := range domains {
		if existing == d {
			return domains, false, nil
		}
	}
	out = append(append([]string{}, domains...), d)
	return out, true, nil
}

// Remove returns domains without entry. removed is false when it was absent.
func Remove(domains []string, entry string) (out []string, removed bool, err error) {
	d, err := Normalize(entry)
	if err != nil {
		return domains, false, err
	}
	out = make([]string, 0, len(domains))
	for _, existing := range domains {
		if existing == d {
			removed = true
			continue
		}
		out = append(out, existing)
	}
	return out, removed, nil
}
