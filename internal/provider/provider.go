// Package provider produces listings for the browse UI and the play and
// download commands.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"

	"mediaq/internal/model"
	"mediaq/internal/util"
	"mediaq/internal/util/deps"
)

// ErrUnknownProvider is returned for a provider name nothing is registered under.
var ErrUnknownProvider = errors.New("unknown provider")

// Provider lists media items. query is provider-specific: URLs, a search
// term or a page address.
type Provider interface {
	Name() string
	Listings(ctx context.Context, query string, limit int) ([]*model.Listing, error)
}

// HelperDefaulter is implemented by providers whose sources need a helper
// unless configuration says otherwise.
type HelperDefaulter interface {
	DefaultHelperRules() model.HelperRules
}

// DefaultHelperRules returns p's built-in rules, or nil.
func DefaultHelperRules(p Provider) model.HelperRules {
	if d, ok := p.(HelperDefaulter); ok {
		return d.DefaultHelperRules()
	}
	return nil
}

// Output configures where and how a provider's downloads are written.
type Output struct {
	Path     string `mapstructure:"path" yaml:"path,omitempty"`
	Template string `mapstructure:"template" yaml:"template,omitempty"`
	Format   string `mapstructure:"format" yaml:"format,omitempty"`
}

// Config is the per-provider section of the configuration file.
type Config struct {
	Player         string            `mapstructure:"player" yaml:"player,omitempty"`
	Helper         string            `mapstructure:"helper" yaml:"helper,omitempty"`
	Helpers        model.HelperRules `mapstructure:"helpers" yaml:"helpers,omitempty"`
	Downloaders    []string          `mapstructure:"downloaders" yaml:"downloaders,omitempty"`
	Resolution     string            `mapstructure:"resolution" yaml:"resolution,omitempty"`
	Headers        map[string]string `mapstructure:"headers" yaml:"headers,omitempty"`
	Cookies        map[string]string `mapstructure:"cookies" yaml:"cookies,omitempty"`
	Output         Output            `mapstructure:"output" yaml:"output,omitempty"`
	Postprocessors []string          `mapstructure:"postprocessors" yaml:"postprocessors,omitempty"`
	// Limit caps listings per query; 0 uses the command's default.
	Limit int `mapstructure:"limit" yaml:"limit,omitempty"`
	// UserAgent is sent by providers that fetch pages themselves.
	UserAgent string `mapstructure:"user_agent" yaml:"user_agent,omitempty"`
}

// Deps are the shared collaborators providers are built with.
type Deps struct {
	Runner util.CmdRunner
	Look   deps.LookPathFunc
	Logger *slog.Logger
}

type factory func(cfg Config, d Deps) Provider

var builtins = map[string]factory{
	"urls":    func(cfg Config, d Deps) Provider { return NewURLs() },
	"youtube": func(cfg Config, d Deps) Provider { return NewYouTube(d) },
	"page":    func(cfg Config, d Deps) Provider { return NewPage(PageOptions{UserAgent: cfg.UserAgent, Logger: d.Logger}) },
}

// Names lists the built-in providers.
func Names() []string {
	out := make([]string, 0, len(builtins))
	for n := range builtins {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Registry holds provider instances and their configuration by name.
type Registry struct {
	providers map[string]Provider
	configs   map[string]Config
}

// NewRegistry instantiates every built-in provider with its section of cfgs.
func NewRegistry(cfgs map[string]Config, d Deps) *Registry {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	r := &Registry{providers: map[string]Provider{}, configs: map[string]Config{}}
	for name, f := range builtins {
		cfg := cfgs[name]
		r.providers[name] = f(cfg, d)
		r.configs[name] = cfg
	}
	return r
}

// Add registers p, replacing a provider of the same name.
func (r *Registry) Add(p Provider, cfg Config) {
	r.providers[p.Name()] = p
	r.configs[p.Name()] = cfg
}

// Get returns the provider called name and its configuration.
func (r *Registry) Get(name string) (Provider, Config, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, Config{}, fmt.Errorf("%w %q (known: %v)", ErrUnknownProvider, name, r.Names())
	}
	return p, r.configs[name], nil
}

// Names lists the registered providers.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.providers))
	for n := range r.providers {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}
