// Package config loads mediaq's configuration: a file in the config
// directory (or --config), MEDIAQ_* environment variables and bound flags,
// with an optional named profile merged over the defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"mediaq/internal/dirs"
	"mediaq/internal/model"
	"mediaq/internal/postprocess"
	"mediaq/internal/program"
	"mediaq/internal/provider"
	"mediaq/internal/task"
)

// DefaultProfile is merged before any named profile.
const DefaultProfile = "default"

// Jobs are per-category concurrency limits.
type Jobs struct {
	Play     int `mapstructure:"play" yaml:"play"`
	Download int `mapstructure:"download" yaml:"download"`
	Preview  int `mapstructure:"preview" yaml:"preview"`
}

// Config is the decoded configuration.
type Config struct {
	OutputDir      string                     `mapstructure:"output_dir" yaml:"output_dir,omitempty"`
	Template       string                     `mapstructure:"template" yaml:"template,omitempty"`
	Provider       string                     `mapstructure:"provider" yaml:"provider,omitempty"`
	LogFile        string                     `mapstructure:"log_file" yaml:"log_file,omitempty"`
	Verbose        bool                       `mapstructure:"verbose" yaml:"verbose,omitempty"`
	GracePeriod    time.Duration              `mapstructure:"grace_period" yaml:"grace_period,omitempty"`
	Jobs           Jobs                       `mapstructure:"jobs" yaml:"jobs"`
	Programs       program.Config             `mapstructure:"programs" yaml:"programs,omitempty"`
	Postprocessors []postprocess.Config       `mapstructure:"postprocessors" yaml:"postprocessors,omitempty"`
	Providers      map[string]provider.Config `mapstructure:"providers" yaml:"providers,omitempty"`
}

// Limits converts Jobs for the task manager.
func (c Config) Limits() task.Limits {
	return task.Limits{
		task.KindPlay:     c.Jobs.Play,
		task.KindDownload: c.Jobs.Download,
		task.KindPreview:  c.Jobs.Preview,
	}
}

// ProviderConfig returns the section for name (zero when absent).
func (c Config) ProviderConfig(name string) provider.Config {
	return c.Providers[name]
}

// SetDefaults installs the built-in defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("provider", "urls")
	v.SetDefault("template", model.DefaultFilenameTemplate)
	v.SetDefault("grace_period", program.DefaultGracePeriod.String())
	v.SetDefault("jobs.play", 1)
	v.SetDefault("jobs.download", 2)
	v.SetDefault("jobs.preview", 1)
	if out, err := dirs.DefaultOutputDir(); err == nil {
		v.SetDefault("output_dir", out)
	}
	if lf, err := dirs.LogFile(); err == nil {
		v.SetDefault("log_file", lf)
	}
}

// Init wires v with config paths, env, defaults, and flag bindings of root,
// then reads the config file. A missing file is not an error; an explicit
// cfgFile that cannot be read is.
func Init(v *viper.Viper, root *cobra.Command, cfgFile string) error {
	_ = dirs.EnsureAll()
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if cfgDir, err := dirs.ConfigDir(); err == nil {
			v.AddConfigPath(cfgDir)
		}
		v.SetConfigName("config") // supports config.{yaml|yml|json|toml}
	}

	// Environment variables: MEDIAQ_*
	v.SetEnvPrefix("MEDIAQ")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if root != nil {
		flags := root.PersistentFlags()
		for key, flag := range map[string]string{
			"output_dir":    "output-dir",
			"verbose":       "verbose",
			"provider":      "provider",
			"log_file":      "log-file",
			"jobs.download": "jobs",
		} {
			if f := flags.Lookup(flag); f != nil {
				_ = v.BindPFlag(key, f)
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &nf) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Load merges profiles.default and then profiles.<profile> over the file's
// top level and decodes the result. Flags and environment variables still
// win over profile values.
func Load(v *viper.Viper, profile string) (Config, error) {
	names := []string{DefaultProfile}
	if profile != "" && profile != DefaultProfile {
		if !v.IsSet("profiles." + profile) {
			return Config{}, fmt.Errorf("unknown profile %q", profile)
		}
		names = append(names, profile)
	}
	for _, name := range names {
		section := v.GetStringMap("profiles." + name)
		if len(section) == 0 {
			continue
		}
		if err := v.MergeConfigMap(section); err != nil {
			return Config{}, fmt.Errorf("profile %s: %w", name, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return c, nil
}

// Profiles lists the profile names defined in v.
func Profiles(v *viper.Viper) []string {
	var out []string
	for name := range v.GetStringMap("profiles") {
		out = append(out, name)
	}
	return out
}

// Starter renders an example configuration file.
func Starter() ([]byte, error) {
	c := Config{
		Jobs: Jobs{Play: 1, Download: 2, Preview: 1},
		Programs: program.Config{
			Players: []program.Entry{
				{Name: "mpv", Args: []string{"--force-window=immediate"}},
				{Name: "feh", MediaTypes: []string{model.MediaImage}},
			},
			Helpers: []program.Entry{
				{Name: "yt-dlp"},
				{Name: "streamlink", URLPatterns: []string{"twitch.tv", "*.twitch.tv"}},
			},
			Downloaders: []program.Entry{{Name: "yt-dlp"}, {Name: "curl"}},
		},
		Postprocessors: []postprocess.Config{
			{Name: "small", Type: "ffmpeg", MaxSizeMB: 50, LongSide: 720},
			{Name: "archive", Type: "move", Dir: "~/Videos/archive"},
		},
		Providers: map[string]provider.Config{
			"youtube": {
				Helpers:     model.HelperRules{{Player: "mpv", Helper: ""}, {Player: model.AnyPlayer, Helper: "yt-dlp"}},
				Resolution:  "1080p",
				Downloaders: []string{"yt-dlp"},
				Output:      provider.Output{Template: "{{.uploader}}/{{.title}} [{{.id}}].{{.ext}}"},
			},
			"page": {UserAgent: "Mozilla/5.0 (X11; Linux x86_64)"},
		},
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return nil, err
	}
	profiles := "\nprofiles:\n  default: {}\n  small:\n    providers:\n      youtube:\n        resolution: 480p\n        postprocessors: [small]\n"
	return append(b, profiles...), nil
}
