package downloader

import (
	"strconv"
	"strings"
	"time"

	"mediaq/internal/progress"
	"mediaq/internal/util/format"
)

// ParseProgress parses youtube-dl / yt-dlp output lines.
// Returns a progress.Update if the line carries progress or a destination, and ok=true.
func ParseProgress(line, taskID string) (u progress.Update, ok bool) {
	// yt-dlp outputs lines like: [download]  45.2% of 10.00MiB at  1.50MiB/s ETA 00:04
	line = strings.TrimSpace(line)

	if rest, found := strings.CutPrefix(line, "[Merger] Merging formats into "); found {
		return progress.Update{
			TaskID:  taskID,
			Stage:   progress.StageDownloading,
			Percent: -1,
			Dest:    strings.Trim(rest, `"`),
			Message: "Merging formats",
		}, true
	}
	if !strings.HasPrefix(line, "[download]") {
		return progress.Update{}, false
	}

	rest := strings.TrimSpace(strings.TrimPrefix(line, "[download]"))

	if dest, found := strings.CutPrefix(rest, "Destination: "); found {
		return progress.Update{
			TaskID:  taskID,
			Stage:   progress.StageDownloading,
			Percent: -1,
			Dest:    dest,
			Message: "Downloading",
		}, true
	}
	if dest, found := strings.CutSuffix(rest, " has already been downloaded"); found {
		return progress.Update{
			TaskID:  taskID,
			Stage:   progress.StageDownloading,
			Percent: 100,
			Dest:    dest,
			Message: "Already downloaded",
		}, true
	}

	// Parse percent
	idx := strings.Index(rest, "%")
	if idx == -1 {
		return progress.Update{}, false
	}
	percent, err := strconv.ParseFloat(strings.TrimSpace(rest[:idx]), 64)
	if err != nil {
		return progress.Update{}, false
	}

	// Parse total size (e.g., "of 10.00MiB" or "of ~10.00MiB")
	var size *int64
	if i := strings.Index(rest, " of "); i != -1 {
		if f := strings.Fields(rest[i+4:]); len(f) > 0 {
			if n, ok := format.ParseSize(f[0]); ok {
				size = &n
			}
		}
	}

	// Parse speed (e.g., "at 1.50MiB/s")
	var speed *string
	if i := strings.Index(rest, " at "); i != -1 {
		if f := strings.Fields(rest[i+4:]); len(f) > 0 && f[0] != "Unknown" {
			s := f[0]
			speed = &s
		}
	}

	// Parse ETA (e.g., "ETA 00:04")
	var eta *time.Duration
	if i := strings.Index(rest, "ETA "); i != -1 {
		if f := strings.Fields(rest[i+4:]); len(f) > 0 {
			if d, err := parseETA(f[0]); err == nil {
				eta = &d
			}
		}
	}

	return progress.Update{
		TaskID:  taskID,
		Stage:   progress.StageDownloading,
		Percent: percent,
		Bytes:   size,
		Speed:   speed,
		ETA:     eta,
		Message: "Downloading",
	}, true
}

// ParseStreamlinkProgress parses streamlink's download status line:
//
//	[download] Written 12.3 MiB to out.ts (7s @ 1.8 MiB/s)
//
// Streams have no known length, so Percent is always -1.
func ParseStreamlinkProgress(line, taskID string) (progress.Update, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "[download]") {
		return progress.Update{}, false
	}
	_, rest, found := strings.Cut(line, "Written ")
	if !found {
		return progress.Update{}, false
	}
	u := progress.Update{
		TaskID:  taskID,
		Stage:   progress.StageDownloading,
		Percent: -1,
		Message: "Recording",
	}
	if f := strings.Fields(rest); len(f) >= 2 {
		if n, ok := format.ParseSize(f[0] + f[1]); ok {
			u.Bytes = &n
		}
	}
	if _, r, ok := strings.Cut(rest, "@ "); ok {
		s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(r), ")"))
		if s != "" {
			u.Speed = &s
		}
	}
	return u, true
}

// parseETA parses duration strings like "00:04", "01:23:45", etc.
func parseETA(s string) (time.Duration, error) {
	parts := strings.Split(s, ":")
	var total time.Duration
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, err
		}
		total = total*60 + time.Duration(n)
	}
	return total * time.Second, nil
}
