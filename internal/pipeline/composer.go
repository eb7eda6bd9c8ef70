package pipeline

import (
	"errors"
	"fmt"
	"slices"

	"mediaq/internal/program"
	"mediaq/internal/task"
)

// ErrNoLocator is returned when a task carries no source to open.
var ErrNoLocator = errors.New("task has no locator")

// Programs is the registry view the composer needs. *program.Registry
// implements it.
type Programs interface {
	Get(role program.Role, name string) (*program.Program, error)
	Resolve(role program.Role, spec program.Spec, mediaType string) ([]*program.Program, error)
}

// Composer turns tasks into ready-to-start program pipelines.
type Composer struct {
	programs Programs
}

func NewComposer(p Programs) *Composer {
	return &Composer{programs: p}
}

// Play builds the pipeline for a play or preview task: the first player
// matching the task's player spec, optionally fed by a helper. The helper is
// the task's explicit one, else whatever the helper rules name for the chosen
// player; an empty rule means the player opens the locators itself.
//
// Options go to the stage that fetches the media: the helper when there is
// one, the player otherwise.
func (c *Composer) Play(t *task.Task) (*program.Program, error) {
	locators := t.Locators()
	if len(locators) == 0 {
		return nil, ErrNoLocator
	}
	// a named player is taken as is; anything else must handle the media
	mediaType := ""
	if t.Args.Player.Name == "" {
		mediaType = t.MediaType()
	}
	players, err := c.programs.Resolve(program.RolePlayer, t.Args.Player, mediaType)
	if err != nil {
		return nil, err
	}
	if len(players) == 0 {
		return nil, &program.NotFoundError{Role: program.RolePlayer, Spec: t.Args.Player.String(), MediaType: t.MediaType()}
	}
	player := players[0]

	helperName := t.Args.Helper
	if helperName == "" {
		helperName, _ = t.Args.HelperRules.For(player.Name())
	}
	if helperName == "" {
		player.SetSource(locators...)
		player.ApplyOptions(t.Args.Options)
		return player, nil
	}

	helper, err := c.programs.Get(program.RoleHelper, helperName)
	if err != nil {
		return nil, err
	}
	helper.SetSource(locators...)
	helper.ApplyOptions(t.Args.Options)
	if err := player.SetSourceProgram(helper); err != nil {
		return nil, fmt.Errorf("chain %s into %s: %w", helper.Name(), player.Name(), err)
	}
	return player, nil
}

// Download builds the pipeline for a download task. The program is chosen
// by, in order: the task's explicit helper; helpers then downloaders that
// support the first locator, ordered by the task's downloader preference
// (unlisted programs keep registry order after listed ones); the first
// registered downloader.
func (c *Composer) Download(t *task.Task) (*program.Program, error) {
	locators := t.Locators()
	if len(locators) == 0 {
		return nil, ErrNoLocator
	}
	if t.Args.Dest == "" {
		return nil, errors.New("download task has no destination")
	}
	p, err := c.selectDownloader(t, locators[0])
	if err != nil {
		return nil, err
	}
	p.SetSource(locators...)
	p.ApplyOptions(t.Args.Options)
	p.SetOutput(t.Args.Dest)
	return p, nil
}

func (c *Composer) selectDownloader(t *task.Task, locator string) (*program.Program, error) {
	if t.Args.Helper != "" {
		p, err := c.programs.Get(program.RoleHelper, t.Args.Helper)
		if errors.Is(err, program.ErrNotFound) {
			p, err = c.programs.Get(program.RoleDownloader, t.Args.Helper)
		}
		return p, err
	}

	mediaType := t.MediaType()
	var candidates []*program.Program
	seen := map[string]bool{}
	for _, role := range []program.Role{program.RoleHelper, program.RoleDownloader} {
		ps, err := c.programs.Resolve(role, program.Spec{}, mediaType)
		if err != nil {
			return nil, err
		}
		for _, p := range ps {
			if seen[p.Name()] || !p.SupportsURL(locator) {
				continue
			}
			seen[p.Name()] = true
			candidates = append(candidates, p)
		}
	}
	if len(candidates) > 0 {
		prefs := t.Args.Downloaders
		rank := func(p *program.Program) int {
			if i := slices.Index(prefs, p.Name()); i >= 0 {
				return i
			}
			return len(prefs)
		}
		slices.SortStableFunc(candidates, func(a, b *program.Program) int {
			return rank(a) - rank(b)
		})
		return candidates[0], nil
	}

	fallback, err := c.programs.Resolve(program.RoleDownloader, program.Spec{}, "")
	if err != nil {
		return nil, err
	}
	if len(fallback) == 0 {
		return nil, &program.NotFoundError{Role: program.RoleDownloader, Spec: locator, MediaType: mediaType}
	}
	return fallback[0], nil
}
