package provider

import (
	"context"
	"log/slog"
	"time"

	"mediaq/internal/downloader"
	"mediaq/internal/model"
	"mediaq/internal/util"
	"mediaq/internal/util/deps"
)

// YouTube searches with yt-dlp (or youtube-dl) and lists flat entries of
// search results, channels and playlists.
type YouTube struct {
	runner util.CmdRunner
	look   deps.LookPathFunc
	logger *slog.Logger
}

func NewYouTube(d Deps) *YouTube {
	return &YouTube{runner: d.Runner, look: d.Look, logger: d.Logger}
}

func (*YouTube) Name() string { return "youtube" }

// DefaultHelperRules: mpv resolves these URLs itself; other players get yt-dlp.
func (*YouTube) DefaultHelperRules() model.HelperRules {
	return model.HelperRules{
		{Player: "mpv", Helper: ""},
		{Player: model.AnyPlayer, Helper: "yt-dlp"},
	}
}

func (p *YouTube) Listings(ctx context.Context, query string, limit int) ([]*model.Listing, error) {
	helper, err := deps.Find(p.look, "yt-dlp", "youtube-dl")
	if err != nil {
		return nil, err
	}
	infos, err := downloader.Search(ctx, query, downloader.SearchOptions{
		HelperPath: helper,
		Limit:      limit,
		Runner:     p.runner,
		Logger:     p.logger,
	})
	if err != nil {
		return nil, err
	}
	out := make([]*model.Listing, 0, len(infos))
	for i, info := range infos {
		loc := info.Locator()
		if loc == "" {
			continue
		}
		meta := map[string]string{}
		if a := info.Author(); a != "" {
			meta["uploader"] = a
		}
		if info.Extractor != "" {
			meta["extractor"] = info.Extractor
		}
		out = append(out, &model.Listing{
			Provider: p.Name(),
			ID:       info.ID,
			Title:    info.Title,
			Index:    i + 1,
			Duration: time.Duration(info.Duration * float64(time.Second)),
			Sources: []model.Source{{
				Locator:          loc,
				MediaType:        model.MediaVideo,
				FilenameTemplate: "{{.title}} [{{.id}}].mp4",
			}},
			Meta: meta,
		})
	}
	return out, nil
}
