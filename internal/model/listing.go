package model

import (
	"sort"
	"time"
)

// Listing is one browsable item produced by a provider.
type Listing struct {
	Provider string
	ID       string
	Title    string
	Index    int
	Duration time.Duration
	Sources  []Source
	Meta     map[string]string
}

// Locators returns the locators of all sources in order.
func (l *Listing) Locators() []string {
	out := make([]string, 0, len(l.Sources))
	for _, s := range l.Sources {
		out = append(out, s.Locator)
	}
	return out
}

// MediaTypes returns the sorted union of the sources' media types.
func (l *Listing) MediaTypes() []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range l.Sources {
		if s.MediaType == "" || seen[s.MediaType] {
			continue
		}
		seen[s.MediaType] = true
		out = append(out, s.MediaType)
	}
	sort.Strings(out)
	return out
}

// Vars are the listing-level template variables available to DownloadFilename.
func (l *Listing) Vars() map[string]any {
	v := map[string]any{
		"title":    l.Title,
		"provider": l.Provider,
		"id":       l.ID,
		"index":    l.Index,
	}
	for k, val := range l.Meta {
		if _, taken := v[k]; !taken {
			v[k] = val
		}
	}
	return v
}
