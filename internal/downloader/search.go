package downloader

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"mediaq/internal/util"
)

// SearchOptions controls a metadata query.
type SearchOptions struct {
	HelperPath string // Path to yt-dlp or youtube-dl
	Limit      int
	Runner     util.CmdRunner
	Logger     *slog.Logger
}

// Search lists entries for target without downloading media. A URL target
// (channel, playlist, single video) is expanded as-is; anything else becomes
// a "ytsearchN:" query.
func Search(ctx context.Context, target string, opts SearchOptions) ([]Info, error) {
	if opts.HelperPath == "" {
		return nil, errors.New("helper path is required")
	}
	runner := opts.Runner
	if runner == nil {
		runner = util.NewDefaultRunner()
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	args := []string{"--flat-playlist", "--dump-json", "--no-warnings", "--ignore-errors"}
	if util.IsRemote(target) {
		args = append(args, "--playlist-end", strconv.Itoa(limit), target)
	} else {
		args = append(args, fmt.Sprintf("ytsearch%d:%s", limit, target))
	}

	res, runErr := runner.Run(ctx, util.CmdSpec{
		Path:   opts.HelperPath,
		Args:   args,
		Logger: opts.Logger,
	})
	// --ignore-errors exits non-zero when some entries failed; keep what parsed.
	if runErr != nil && len(bytes.TrimSpace(res.Stdout)) == 0 {
		return nil, fmt.Errorf("metadata query failed: %w", runErr)
	}
	entries, err := parseInfoLines(res.Stdout)
	if err != nil {
		return nil, err
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// parseInfoLines decodes one JSON object per line, skipping lines that are not
// JSON. yt-dlp sometimes interleaves informational output on stdout.
func parseInfoLines(data []byte) ([]Info, error) {
	var out []Info
	var lastErr error
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var info Info
		if err := json.Unmarshal(line, &info); err != nil {
			lastErr = err
			continue
		}
		if info.ID == "" && info.URL == "" {
			continue
		}
		out = append(out, info)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	if len(out) == 0 && lastErr != nil {
		return nil, fmt.Errorf("parse metadata JSON: %w", lastErr)
	}
	return out, nil
}
