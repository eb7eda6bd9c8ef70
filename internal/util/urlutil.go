package util

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// ParseLocator parses a media locator. Bare hosts ("youtu.be/xyz") are
// treated as https URLs; absolute filesystem paths come back with an empty scheme.
func ParseLocator(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty locator")
	}
	if strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "./") {
		return &url.URL{Path: raw}, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid locator %q: %w", raw, err)
	}
	if u.Scheme == "" && looksLikeHost(raw) {
		if u2, e2 := url.Parse("https://" + raw); e2 == nil && u2.Host != "" {
			u = u2
		}
	}
	return u, nil
}

// looksLikeHost matches "host.tld/..." but not "clip.mp4" or "dir/clip.mp4".
func looksLikeHost(raw string) bool {
	i := strings.Index(raw, "/")
	if i <= 0 || strings.ContainsAny(raw, " \t") {
		return false
	}
	return strings.Contains(raw[:i], ".")
}

// Host returns the lower-cased host of a locator without a leading "www.",
// or "" for local paths and unparsable input.
func Host(raw string) string {
	u, err := ParseLocator(raw)
	if err != nil {
		return ""
	}
	h := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(h, "www.")
}

// IsRemote reports whether raw is a network URL with one of the given schemes.
// With no schemes, http and https are accepted.
func IsRemote(raw string, schemes ...string) bool {
	u, err := ParseLocator(raw)
	if err != nil || u.Host == "" {
		return false
	}
	if len(schemes) == 0 {
		schemes = []string{"http", "https"}
	}
	for _, s := range schemes {
		if strings.EqualFold(u.Scheme, s) {
			return true
		}
	}
	return false
}

// Ext returns the lower-cased extension of the locator's path, without the dot.
func Ext(raw string) string {
	u, err := ParseLocator(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(path.Ext(u.Path), "."))
}
