package downloader

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNoOutput is returned when a finished download left no recognizable file.
var ErrNoOutput = errors.New("no output file found")

// SelectDownloadedFile finds the file a download actually produced for the
// requested destination. Helpers may swap the extension after merging
// formats, so dest's stem is matched against every file in its directory and
// common playable formats (mp4, mkv, webm, etc.) are preferred.
func SelectDownloadedFile(dest string) (string, error) {
	if fi, err := os.Stat(dest); err == nil && !fi.IsDir() {
		return dest, nil
	}
	dir := filepath.Dir(dest)
	stem := strings.TrimSuffix(filepath.Base(dest), filepath.Ext(dest))

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var candidates []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, stem+".") || isPartial(name) {
			continue
		}
		candidates = append(candidates, filepath.Join(dir, name))
	}
	if len(candidates) == 0 {
		return "", ErrNoOutput
	}

	// Sort by extension priority
	sort.SliceStable(candidates, func(i, j int) bool {
		pri := extPriority(filepath.Ext(candidates[i]))
		prj := extPriority(filepath.Ext(candidates[j]))
		if pri == prj {
			return candidates[i] < candidates[j]
		}
		return pri < prj
	})

	return candidates[0], nil
}

func isPartial(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".part", ".ytdl", ".temp", ".tmp":
		return true
	}
	return strings.Contains(name, ".part-Frag")
}

// extPriority returns a priority score for file extensions (lower = better).
// Prefers common playable video formats, then audio.
func extPriority(ext string) int {
	ext = strings.ToLower(ext)
	switch ext {
	case ".mp4":
		return 0
	case ".mkv":
		return 1
	case ".webm":
		return 2
	case ".mov":
		return 3
	case ".avi":
		return 4
	case ".flv":
		return 5
	case ".m4a", ".opus", ".mp3", ".ogg", ".flac":
		return 10
	default:
		return 100
	}
}
