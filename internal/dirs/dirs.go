// Package dirs resolves mediaq's per-user directories.
package dirs

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
)

const appName = "mediaq"

// AppName returns the canonical application name for directory paths.
func AppName() string {
	return appName
}

// xdg resolves $env/mediaq on Linux, falling back to ~/<home...>/mediaq.
// Other systems use fallback(), which may be nil.
func xdg(env string, home []string, fallback func() (string, error)) (string, error) {
	if runtime.GOOS != "linux" && fallback != nil {
		return fallback()
	}
	if v := os.Getenv(env); v != "" {
		return filepath.Join(v, appName), nil
	}
	h, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(append(append([]string{h}, home...), appName)...), nil
}

func userConfig() (string, error) {
	d, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, appName), nil
}

// ConfigDir returns the directory searched for config.{yaml,json,toml}.
// - Linux: $XDG_CONFIG_HOME/mediaq or ~/.config/mediaq
// - elsewhere: os.UserConfigDir()/mediaq
func ConfigDir() (string, error) {
	return xdg("XDG_CONFIG_HOME", []string{".config"}, userConfig)
}

// DataDir holds downloads by default.
// - Linux: $XDG_DATA_HOME/mediaq or ~/.local/share/mediaq
func DataDir() (string, error) {
	return xdg("XDG_DATA_HOME", []string{".local", "share"}, userConfig)
}

// StateDir holds the log file.
// - Linux: $XDG_STATE_HOME/mediaq or ~/.local/state/mediaq
// - elsewhere: <ConfigDir>/state
func StateDir() (string, error) {
	return xdg("XDG_STATE_HOME", []string{".local", "state"}, func() (string, error) {
		if la := os.Getenv("LOCALAPPDATA"); la != "" {
			return filepath.Join(la, appName, "state"), nil
		}
		c, err := userConfig()
		if err != nil {
			return "", err
		}
		return filepath.Join(c, "state"), nil
	})
}

// DefaultOutputDir is where downloads go when neither flags nor config say.
func DefaultOutputDir() (string, error) {
	if runtime.GOOS != "linux" {
		if h, err := os.UserHomeDir(); err == nil {
			return filepath.Join(h, "Downloads", appName), nil
		}
	}
	d, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, "downloads"), nil
}

// LogFile is the default log destination.
func LogFile() (string, error) {
	d, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, appName+".log"), nil
}

// Ensure creates the directory if it doesn't exist.
func Ensure(path string) error {
	if path == "" {
		return errors.New("empty path")
	}
	return os.MkdirAll(path, 0o755)
}

// EnsureAll creates the config and state directories.
func EnsureAll() error {
	for _, f := range []func() (string, error){ConfigDir, StateDir} {
		p, err := f()
		if err != nil {
			continue
		}
		if err := Ensure(p); err != nil {
			return err
		}
	}
	return nil
}
