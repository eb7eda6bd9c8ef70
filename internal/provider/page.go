package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"mediaq/internal/model"
	"mediaq/internal/util"
)

// PageOptions configure the page provider.
type PageOptions struct {
	UserAgent string
	Timeout   time.Duration
	Transport http.RoundTripper
	Logger    *slog.Logger
}

// Page scrapes one web page for embedded media (video, audio and source
// elements) and links to media files.
type Page struct {
	opts PageOptions
}

func NewPage(opts PageOptions) *Page {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Page{opts: opts}
}

func (*Page) Name() string { return "page" }

func (p *Page) newCollector(ctx context.Context) *colly.Collector {
	c := colly.NewCollector(colly.MaxDepth(1))
	if p.opts.UserAgent != "" {
		c.UserAgent = p.opts.UserAgent
	}
	if p.opts.Transport != nil {
		c.WithTransport(p.opts.Transport)
	}
	timeout := p.opts.Timeout
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) < timeout {
		timeout = time.Until(dl)
	}
	c.SetRequestTimeout(timeout)
	return c
}

// Listings visits the page at query and returns one listing per distinct
// media URL found, in document order.
func (p *Page) Listings(ctx context.Context, query string, limit int) ([]*model.Listing, error) {
	target := strings.TrimSpace(query)
	if !util.IsRemote(target) {
		return nil, fmt.Errorf("page provider needs an http(s) URL, got %q", query)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		pageTitle string
		out       []*model.Listing
		seen      = map[string]bool{}
	)
	add := func(raw, label, mediaType string) {
		if raw == "" || seen[raw] || (limit > 0 && len(out) >= limit) {
			return
		}
		seen[raw] = true
		if mediaType == "" {
			mediaType = model.GuessMediaType(raw)
		}
		title := strings.TrimSpace(label)
		if title == "" {
			title = titleFor(raw)
		}
		out = append(out, &model.Listing{
			Provider: p.Name(),
			ID:       raw,
			Title:    title,
			Index:    len(out) + 1,
			Sources:  []model.Source{{Locator: raw, MediaType: mediaType}},
			Meta:     map[string]string{"page": target},
		})
	}

	c := p.newCollector(ctx)
	c.OnHTML("title", func(e *colly.HTMLElement) {
		if pageTitle == "" {
			pageTitle = strings.TrimSpace(e.Text)
		}
	})
	c.OnHTML("video[src], audio[src]", func(e *colly.HTMLElement) {
		add(e.Request.AbsoluteURL(e.Attr("src")), e.Attr("title"), e.Name)
	})
	c.OnHTML("video source[src], audio source[src]", func(e *colly.HTMLElement) {
		mt := model.MediaVideo
		if strings.HasPrefix(e.Attr("type"), "audio/") {
			mt = model.MediaAudio
		}
		add(e.Request.AbsoluteURL(e.Attr("src")), "", mt)
	})
	c.OnHTML("a[href]", func(e *colly.HTMLElement) {
		link := e.Request.AbsoluteURL(e.Attr("href"))
		if !model.IsMediaExt(util.Ext(link)) {
			return
		}
		add(link, e.Text, "")
	})
	c.OnError(func(r *colly.Response, err error) {
		p.opts.Logger.Warn("page fetch failed", "url", r.Request.URL.String(), "status", r.StatusCode, "err", err)
	})

	p.opts.Logger.Debug("scraping page", "url", target)
	if err := c.Visit(target); err != nil {
		return nil, fmt.Errorf("visit %s: %w", target, err)
	}
	c.Wait()

	for _, l := range out {
		if pageTitle != "" {
			l.Meta["page_title"] = pageTitle
		}
	}
	return out, nil
}
