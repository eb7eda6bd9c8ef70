package program

import (
	"slices"
	"strings"

	"github.com/gobwas/glob"

	"mediaq/internal/progress"
	"mediaq/internal/util"
)

// Definition is one registered executable in one role. Definitions are
// immutable after registration; every run gets a fresh Program from New.
type Definition struct {
	Name       string
	Role       Role
	Path       string
	Args       []string
	MediaTypes []string
	Patterns   []string
	Kind       *Kind

	globs []glob.Glob
}

func (d *Definition) Integrated() bool { return d.Kind.Integrated }
func (d *Definition) Foreground() bool { return d.Kind.Foreground }

// SupportsMediaType reports whether mt is empty or among the definition's types.
func (d *Definition) SupportsMediaType(mt string) bool {
	return mt == "" || slices.Contains(d.MediaTypes, mt)
}

// SupportsURL reports whether the program can fetch locator. Configured URL
// patterns (matched against the host) take precedence over the kind's rule.
func (d *Definition) SupportsURL(locator string) bool {
	if len(d.globs) > 0 {
		host := util.Host(locator)
		for _, g := range d.globs {
			if g.Match(host) {
				return true
			}
		}
		return false
	}
	if d.Kind.SupportsURL == nil {
		return false
	}
	return d.Kind.SupportsURL(locator)
}

// New returns a standalone Program instance for one run.
func (d *Definition) New() *Program {
	p := &Program{def: d}
	p.pre = append(p.pre, d.Kind.BaseArgs...)
	p.post = append(p.post, d.Kind.BasePost...)
	return p
}

// SourceState describes how a Program receives its media.
type SourceState int

const (
	// StateStandalone: the program opens its locators itself.
	StateStandalone SourceState = iota
	// StatePiped: the program reads media from its source's stdout.
	StatePiped
	// StateIntegrated: the source launches this program through its command line.
	StateIntegrated
)

func (s SourceState) String() string {
	switch s {
	case StatePiped:
		return "piped"
	case StateIntegrated:
		return "integrated"
	default:
		return "standalone"
	}
}

// Program is an ephemeral, per-invocation instance of a Definition.
// The argument vector is path + args + pre + locators + post.
type Program struct {
	def *Definition

	pre      []string
	post     []string
	locators []string
	dest     string

	source *Program
	state  SourceState
	// caller is set on an integrated source: the downstream program whose
	// command line is passed as an argument.
	caller      *Program
	stdinPiped  bool
	stdoutPiped bool
}

func (p *Program) Name() string                { return p.def.Name }
func (p *Program) Role() Role                  { return p.def.Role }
func (p *Program) Path() string                { return p.def.Path }
func (p *Program) Integrated() bool            { return p.def.Integrated() }
func (p *Program) Foreground() bool            { return p.def.Foreground() }
func (p *Program) MediaTypes() []string        { return slices.Clone(p.def.MediaTypes) }
func (p *Program) Definition() *Definition     { return p.def }
func (p *Program) Source() *Program            { return p.source }
func (p *Program) State() SourceState          { return p.state }
func (p *Program) StdinPiped() bool            { return p.stdinPiped }
func (p *Program) StdoutPiped() bool           { return p.stdoutPiped }
func (p *Program) Dest() string                { return p.dest }
func (p *Program) SupportsURL(loc string) bool { return p.def.SupportsURL(loc) }
func (p *Program) Locators() []string          { return slices.Clone(p.locators) }

// AddPre appends arguments that precede the locators.
func (p *Program) AddPre(args ...string) {
	p.pre = append(p.pre, args...)
}

// AddPost appends arguments that follow the locators.
func (p *Program) AddPost(args ...string) {
	p.post = append(p.post, args...)
}

// SetPost replaces the post argument at i, inserting it when post is shorter.
func (p *Program) SetPost(i int, arg string) {
	if i < len(p.post) {
		p.post[i] = arg
		return
	}
	p.post = append(p.post, arg)
}

// ApplyOptions lets the program's kind translate options into arguments.
func (p *Program) ApplyOptions(o Options) {
	if p.def.Kind.Apply != nil {
		p.def.Kind.Apply(p, o)
	}
}

// SetOutput makes the program write its result to dest.
func (p *Program) SetOutput(dest string) {
	p.dest = dest
}

// SetSource points the program at raw locators and makes it standalone.
func (p *Program) SetSource(locators ...string) {
	p.detach()
	p.locators = slices.Clone(locators)
	p.state = StateStandalone
}

// SetSourceProgram chains src in front of p. An integrated src will launch p
// itself; otherwise src's stdout is piped into p's stdin.
func (p *Program) SetSourceProgram(src *Program) error {
	if src == nil {
		p.SetSource()
		return nil
	}
	for s := src; s != nil; s = s.source {
		if s == p {
			return ErrCycle
		}
	}
	p.detach()
	p.locators = nil
	p.source = src
	if src.Integrated() && src.def.Kind.PlayerArgs != nil {
		src.caller = p
		p.state = StateIntegrated
		return nil
	}
	src.stdoutPiped = true
	p.stdinPiped = true
	p.state = StatePiped
	return nil
}

func (p *Program) detach() {
	if p.source != nil {
		p.source.caller = nil
		p.source.stdoutPiped = false
	}
	p.source = nil
	p.stdinPiped = false
}

// Command is the executable path plus configured arguments.
func (p *Program) Command() []string {
	return append([]string{p.def.Path}, p.def.Args...)
}

// CommandLine is the quoted command and pre-arguments, the form an integrated
// source receives as a single argument.
func (p *Program) CommandLine() string {
	argv := append(p.Command(), p.pre...)
	return util.ShellQuote(argv[0], argv[1:])
}

// Argv composes the full argument vector for this stage.
func (p *Program) Argv() []string {
	k := p.def.Kind
	argv := p.Command()
	argv = append(argv, p.pre...)
	if p.caller != nil {
		argv = append(argv, k.PlayerArgs(p.caller.CommandLine())...)
	}
	if p.stdinPiped {
		argv = append(argv, k.StdinArgs...)
	}
	argv = append(argv, p.locators...)
	argv = append(argv, p.post...)
	switch {
	case p.stdoutPiped:
		argv = append(argv, k.StdoutArgs...)
	case p.dest != "" && k.OutputArgs != nil:
		argv = append(argv, k.OutputArgs(p.dest)...)
	}
	return argv
}

// Pipeline renders the shell equivalent of what Start launches.
func (p *Program) Pipeline() string {
	var parts []string
	for _, st := range p.stages() {
		argv := st.Argv()
		parts = append(parts, util.ShellQuote(argv[0], argv[1:]))
	}
	return strings.Join(parts, " | ")
}

// stages lists the programs that are actually launched, upstream first.
func (p *Program) stages() []*Program {
	switch p.state {
	case StateIntegrated:
		return p.source.stages()
	case StatePiped:
		return append(p.source.stages(), p)
	default:
		return []*Program{p}
	}
}

// ProgressParser returns the line parser of the stage that reports progress:
// the source when chained, otherwise p itself. It may be nil.
func (p *Program) ProgressParser() func(line, taskID string) (progress.Update, bool) {
	st := p.stages()
	return st[0].def.Kind.ParseProgress
}
