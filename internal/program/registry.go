package program

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/gobwas/glob"

	"mediaq/internal/util/deps"
)

// Entry is one configured program.
type Entry struct {
	Name         string   `mapstructure:"name" yaml:"name"`
	Kind         string   `mapstructure:"kind" yaml:"kind,omitempty"`
	Path         string   `mapstructure:"path" yaml:"path,omitempty"`
	Args         []string `mapstructure:"args" yaml:"args,omitempty"`
	MediaTypes   []string `mapstructure:"media_types" yaml:"media_types,omitempty"`
	ExcludeTypes []string `mapstructure:"exclude_types" yaml:"exclude_types,omitempty"`
	URLPatterns  []string `mapstructure:"url_patterns" yaml:"url_patterns,omitempty"`
	Disabled     bool     `mapstructure:"disabled" yaml:"disabled,omitempty"`
}

// Config lists configured programs per role, in preference order.
type Config struct {
	Players      []Entry `mapstructure:"players" yaml:"players,omitempty"`
	Helpers      []Entry `mapstructure:"helpers" yaml:"helpers,omitempty"`
	Downloaders  []Entry `mapstructure:"downloaders" yaml:"downloaders,omitempty"`
	NoAutoDetect bool    `mapstructure:"no_auto_detect" yaml:"no_auto_detect,omitempty"`
}

func (c Config) entries(r Role) []Entry {
	switch r {
	case RolePlayer:
		return c.Players
	case RoleHelper:
		return c.Helpers
	default:
		return c.Downloaders
	}
}

// Capabilities is a resolve filter. Nil and empty fields match anything.
type Capabilities struct {
	MediaTypes []string
	Integrated *bool
	Foreground *bool
}

// Match reports whether d satisfies every requested capability: the requested
// media types must be a subset of d's, scalars must be equal.
func (c *Capabilities) Match(d *Definition) bool {
	if c == nil {
		return true
	}
	for _, mt := range c.MediaTypes {
		if !slices.Contains(d.MediaTypes, mt) {
			return false
		}
	}
	if c.Integrated != nil && *c.Integrated != d.Integrated() {
		return false
	}
	if c.Foreground != nil && *c.Foreground != d.Foreground() {
		return false
	}
	return true
}

// Spec requests programs either by exact name or by capability filter.
type Spec struct {
	Name   string
	Filter *Capabilities
}

func (s Spec) IsZero() bool { return s.Name == "" && s.Filter == nil }

func (s Spec) String() string {
	switch {
	case s.Name != "":
		return s.Name
	case s.Filter != nil:
		return fmt.Sprintf("%+v", *s.Filter)
	default:
		return "*"
	}
}

// Registry holds program definitions per role. It is populated once at
// startup and only read afterwards.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]*Kind
	defs  map[Role][]*Definition
}

// NewRegistry returns an empty registry that knows kinds (Builtins when none).
func NewRegistry(kinds ...*Kind) *Registry {
	if len(kinds) == 0 {
		kinds = Builtins()
	}
	r := &Registry{
		kinds: make(map[string]*Kind, len(kinds)),
		defs:  make(map[Role][]*Definition),
	}
	for _, k := range kinds {
		r.kinds[k.Name] = k
	}
	return r
}

// Register adds a definition for e under role. The first registration of a
// name in a role wins; later ones are ignored.
func (r *Registry) Register(role Role, e Entry) (*Definition, error) {
	if e.Name == "" {
		return nil, errors.New("program entry without a name")
	}
	kindName := e.Kind
	if kindName == "" {
		kindName = e.Name
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, d := range r.defs[role] {
		if d.Name == e.Name {
			return d, nil
		}
	}
	kind, ok := r.kinds[kindName]
	if !ok {
		kind = GenericKind(kindName, role)
	}
	path := e.Path
	if path == "" {
		path = e.Name
	}
	types := e.MediaTypes
	if len(types) == 0 {
		types = kind.MediaTypes
	}
	var mts []string
	for _, mt := range types {
		if !slices.Contains(e.ExcludeTypes, mt) && !slices.Contains(mts, mt) {
			mts = append(mts, mt)
		}
	}
	d := &Definition{
		Name:       e.Name,
		Role:       role,
		Path:       path,
		Args:       slices.Clone(e.Args),
		MediaTypes: mts,
		Patterns:   slices.Clone(e.URLPatterns),
		Kind:       kind,
	}
	for _, p := range e.URLPatterns {
		g, err := glob.Compile(p, '.')
		if err != nil {
			return nil, fmt.Errorf("%s %s: url pattern %q: %w", role, e.Name, p, err)
		}
		d.globs = append(d.globs, g)
	}
	r.defs[role] = append(r.defs[role], d)
	return d, nil
}

// Load registers configured entries in list order, then every built-in kind
// found by look that was neither configured nor disabled. Entries whose
// executable cannot be found are skipped and reported in the joined error.
func (r *Registry) Load(cfg Config, look deps.LookPathFunc) error {
	var errs []error
	for _, role := range Roles {
		seen := map[string]bool{}
		for _, e := range cfg.entries(role) {
			seen[e.Name] = true
			if e.Disabled {
				continue
			}
			path := e.Path
			if path == "" {
				path = e.Name
			}
			resolved, err := deps.Find(look, path)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s %s: %w", role, e.Name, err))
				continue
			}
			e.Path = resolved
			if _, err := r.Register(role, e); err != nil {
				errs = append(errs, err)
			}
		}
		if cfg.NoAutoDetect {
			continue
		}
		for _, k := range r.kindsFor(role) {
			if seen[k.Name] {
				continue
			}
			resolved, err := deps.Find(look, k.Name)
			if err != nil {
				continue
			}
			if _, err := r.Register(role, Entry{Name: k.Name, Path: resolved}); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// kindsFor returns the built-in kinds serving role, in declaration order.
func (r *Registry) kindsFor(role Role) []*Kind {
	var out []*Kind
	for _, k := range Builtins() {
		if known, ok := r.kinds[k.Name]; ok && known.hasRole(role) {
			out = append(out, known)
		}
	}
	return out
}

// Get returns a fresh instance of the program named name.
func (r *Registry) Get(role Role, name string) (*Program, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.defs[role] {
		if d.Name == name {
			return d.New(), nil
		}
	}
	return nil, &NotFoundError{Role: role, Spec: name}
}

// Resolve returns fresh candidate instances for spec. A name must match
// exactly (NotFound otherwise); a filter returns the matching subset, possibly
// empty; an empty spec returns every program of the role. mediaType, when
// set, further restricts filter and empty-spec results.
func (r *Registry) Resolve(role Role, spec Spec, mediaType string) ([]*Program, error) {
	if spec.Name != "" {
		p, err := r.Get(role, spec.Name)
		if err != nil {
			var nf *NotFoundError
			if errors.As(err, &nf) {
				nf.MediaType = mediaType
			}
			return nil, err
		}
		return []*Program{p}, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Program
	for _, d := range r.defs[role] {
		if !d.SupportsMediaType(mediaType) || !spec.Filter.Match(d) {
			continue
		}
		out = append(out, d.New())
	}
	return out, nil
}

// Definitions returns the registered definitions of role in preference order.
func (r *Registry) Definitions(role Role) []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.defs[role])
}
