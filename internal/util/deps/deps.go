// Package deps locates external executables.
package deps

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// LookPathFunc resolves a command name to an executable path. exec.LookPath in
// production; tests pass a map-backed fake.
type LookPathFunc func(name string) (string, error)

// Find returns the path to the first of names that resolves. An explicit path
// (containing a separator) is accepted when it exists.
func Find(look LookPathFunc, names ...string) (string, error) {
	if look == nil {
		look = exec.LookPath
	}
	for _, n := range names {
		if n == "" {
			continue
		}
		if filepath.IsAbs(n) || filepath.Base(n) != n {
			if fi, err := os.Stat(n); err == nil && !fi.IsDir() {
				return n, nil
			}
			continue
		}
		if p, err := look(n); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("could not find any of %v in PATH", names)
}

// FindFFmpeg returns the path to ffmpeg, honoring an explicit override.
func FindFFmpeg(look LookPathFunc, custom string) (string, error) {
	p, err := Find(look, custom, "ffmpeg")
	if err != nil {
		return "", fmt.Errorf("could not find ffmpeg in PATH. Please install ffmpeg.")
	}
	return p, nil
}

// FindFFprobe returns the path to ffprobe. A missing ffprobe only disables
// duration-based encoding decisions, so callers usually ignore the error.
func FindFFprobe(look LookPathFunc) (string, error) {
	return Find(look, "ffprobe")
}
