package provider

import (
	"context"
	"path"
	"strings"

	"mediaq/internal/model"
	"mediaq/internal/util"
)

// URLs turns each whitespace-separated locator of the query into a listing.
type URLs struct{}

func NewURLs() *URLs { return &URLs{} }

func (*URLs) Name() string { return "urls" }

func (p *URLs) Listings(ctx context.Context, query string, limit int) ([]*model.Listing, error) {
	var out []*model.Listing
	for i, loc := range strings.Fields(query) {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, &model.Listing{
			Provider: p.Name(),
			ID:       loc,
			Title:    titleFor(loc),
			Index:    i + 1,
			Sources:  []model.Source{{Locator: loc, MediaType: model.GuessMediaType(loc)}},
		})
	}
	return out, nil
}

// titleFor derives a display title from a locator: the last path element
// without extension, else the host.
func titleFor(loc string) string {
	p := loc
	if u, err := util.ParseLocator(loc); err == nil && util.IsRemote(loc) {
		p = u.Path
	}
	base := strings.TrimSuffix(path.Base(strings.TrimRight(p, "/")), path.Ext(p))
	if base == "" || base == "." || base == "/" {
		if h := util.Host(loc); h != "" {
			return h
		}
		return loc
	}
	return base
}
