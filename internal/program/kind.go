package program

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gobwas/glob"

	"mediaq/internal/downloader"
	"mediaq/internal/model"
	"mediaq/internal/progress"
	"mediaq/internal/util"
	"mediaq/internal/util/format"
)

// Role is the pool a program is registered in.
type Role string

const (
	RolePlayer     Role = "player"
	RoleHelper     Role = "helper"
	RoleDownloader Role = "downloader"
)

// Roles lists every role in registry order.
var Roles = []Role{RolePlayer, RoleHelper, RoleDownloader}

// ParseRole accepts singular or plural role names.
func ParseRole(s string) (Role, error) {
	s = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "s")
	for _, r := range Roles {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q (valid: player, helper, downloader)", s)
}

// Options are per-invocation knobs a kind may translate into arguments.
type Options struct {
	Resolution string
	Offset     time.Duration
	Headers    map[string]string
	Cookies    map[string]string
	Format     string
}

// Kind declares how one family of executables is driven. Built-in kinds are
// matched to registry entries by Name; unknown names get GenericKind.
type Kind struct {
	Name       string
	Roles      []Role
	MediaTypes []string
	Integrated bool // can launch a player given its command line
	Foreground bool // needs exclusive use of the terminal

	BaseArgs []string // always inserted before option arguments
	BasePost []string // initial post-locator arguments

	StdinArgs  []string // stand in for locators when reading media from stdin
	StdoutArgs []string // make the program write media to stdout
	OutputArgs func(dest string) []string
	PlayerArgs func(cmdline string) []string

	Apply         func(p *Program, o Options)
	SupportsURL   func(locator string) bool
	ParseProgress func(line, taskID string) (progress.Update, bool)
}

func (k *Kind) hasRole(r Role) bool {
	for _, kr := range k.Roles {
		if kr == r {
			return true
		}
	}
	return false
}

// GenericKind describes an executable mediaq knows nothing about: "-" for
// stdin/stdout, "-o dest" for output, any http(s) URL.
func GenericKind(name string, roles ...Role) *Kind {
	return &Kind{
		Name:       name,
		Roles:      roles,
		MediaTypes: []string{model.MediaAudio, model.MediaImage, model.MediaVideo},
		StdinArgs:  []string{"-"},
		StdoutArgs: []string{"-"},
		OutputArgs: func(dest string) []string { return []string{"-o", dest} },
		SupportsURL: func(locator string) bool {
			return util.IsRemote(locator)
		},
	}
}

// Builtins returns the known kinds in auto-detection priority order.
func Builtins() []*Kind {
	return []*Kind{
		{
			Name:       "feh",
			Roles:      []Role{RolePlayer},
			MediaTypes: []string{model.MediaImage},
			StdinArgs:  []string{"-"},
		},
		{
			Name:       "mpv",
			Roles:      []Role{RolePlayer},
			MediaTypes: []string{model.MediaAudio, model.MediaImage, model.MediaVideo},
			StdinArgs:  []string{"-"},
			Apply:      applyMPV,
		},
		{
			Name:       "vlc",
			Roles:      []Role{RolePlayer},
			MediaTypes: []string{model.MediaAudio, model.MediaImage, model.MediaVideo},
			StdinArgs:  []string{"-"},
			Apply: func(p *Program, o Options) {
				if o.Offset > 0 {
					p.AddPre("--start-time=" + strconv.Itoa(int(o.Offset.Seconds())))
				}
			},
		},
		{
			Name:       "elinks",
			Roles:      []Role{RolePlayer},
			MediaTypes: []string{model.MediaText},
			Foreground: true,
		},
		ytdlKind("yt-dlp"),
		ytdlKind("youtube-dl"),
		{
			Name:        "streamlink",
			Roles:       []Role{RoleHelper, RoleDownloader},
			MediaTypes:  []string{model.MediaVideo},
			Integrated:  true,
			BasePost:    []string{"best"},
			StdoutArgs:  []string{"--stdout"},
			OutputArgs:  func(dest string) []string { return []string{"--force", "-o", dest} },
			PlayerArgs:  func(cmdline string) []string { return []string{"--player", cmdline} },
			Apply:       applyStreamlink,
			SupportsURL: hostMatcher("twitch.tv", "*.twitch.tv", "kick.com", "youtube.com", "youtu.be", "*.youtube.com", "vimeo.com", "dailymotion.com"),
			ParseProgress: func(line, taskID string) (progress.Update, bool) {
				return downloader.ParseStreamlinkProgress(line, taskID)
			},
		},
		{
			Name:       "wget",
			Roles:      []Role{RoleDownloader},
			MediaTypes: []string{model.MediaAudio, model.MediaImage, model.MediaText, model.MediaVideo},
			BaseArgs:   []string{"--progress=dot:mega"},
			StdoutArgs: []string{"-O", "-"},
			OutputArgs: func(dest string) []string { return []string{"-O", dest} },
			Apply: func(p *Program, o Options) {
				for _, h := range headerPairs(o.Headers, ": ") {
					p.AddPre("--header=" + h)
				}
				if c := cookieHeader(o.Cookies); c != "" {
					p.AddPre("--header=Cookie: " + c)
				}
			},
			SupportsURL: func(locator string) bool {
				return util.IsRemote(locator, "http", "https", "ftp")
			},
		},
		{
			Name:       "curl",
			Roles:      []Role{RoleDownloader},
			MediaTypes: []string{model.MediaAudio, model.MediaImage, model.MediaText, model.MediaVideo},
			BaseArgs:   []string{"-L", "--fail"},
			OutputArgs: func(dest string) []string { return []string{"-o", dest} },
			Apply: func(p *Program, o Options) {
				for _, h := range headerPairs(o.Headers, ": ") {
					p.AddPre("-H", h)
				}
				if c := cookieHeader(o.Cookies); c != "" {
					p.AddPre("-b", c)
				}
			},
			SupportsURL: func(locator string) bool {
				return util.IsRemote(locator, "http", "https", "ftp")
			},
		},
	}
}

func ytdlKind(name string) *Kind {
	return &Kind{
		Name:       name,
		Roles:      []Role{RoleHelper, RoleDownloader},
		MediaTypes: []string{model.MediaAudio, model.MediaVideo},
		BaseArgs:   []string{"--newline"},
		StdoutArgs: []string{"-o", "-"},
		OutputArgs: func(dest string) []string {
			// yt-dlp treats the output as a template; keep literal percent signs.
			return []string{"-o", strings.ReplaceAll(dest, "%", "%%")}
		},
		Apply: func(p *Program, o Options) {
			if f := ytdlFormat(o); f != "" {
				p.AddPre("-f", f)
			}
			for _, h := range headerPairs(o.Headers, ":") {
				p.AddPre("--add-header", h)
			}
			if c := cookieHeader(o.Cookies); c != "" {
				p.AddPre("--add-header", "Cookie:"+c)
			}
		},
		SupportsURL: func(locator string) bool {
			return util.IsRemote(locator)
		},
		ParseProgress: downloader.ParseProgress,
	}
}

// ytdlFormat turns an explicit format or a "720p" style resolution into a -f selector.
func ytdlFormat(o Options) string {
	if o.Format != "" {
		return o.Format
	}
	res := strings.TrimSuffix(strings.ToLower(o.Resolution), "p")
	if h, err := strconv.Atoi(res); err == nil && h > 0 {
		return fmt.Sprintf("bestvideo[height<=%d]+bestaudio/best[height<=%d]", h, h)
	}
	return ""
}

func applyMPV(p *Program, o Options) {
	if o.Offset > 0 {
		p.AddPre("--start=" + strconv.Itoa(int(o.Offset.Seconds())))
	}
	if hs := headerPairs(o.Headers, ": "); len(hs) > 0 {
		p.AddPre("--http-header-fields=" + strings.Join(hs, ","))
	}
}

func applyStreamlink(p *Program, o Options) {
	if o.Resolution != "" {
		p.SetPost(0, o.Resolution)
	}
	if o.Offset > 0 {
		p.AddPre("--hls-start-offset", format.Offset(o.Offset))
	}
	for _, h := range headerPairs(o.Headers, "=") {
		p.AddPre("--http-header", h)
	}
	for _, c := range headerPairs(o.Cookies, "=") {
		p.AddPre("--http-cookie", c)
	}
}

// headerPairs renders a map as sorted "k<sep>v" strings.
func headerPairs(m map[string]string, sep string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+sep+m[k])
	}
	return out
}

func cookieHeader(m map[string]string) string {
	return strings.Join(headerPairs(m, "="), "; ")
}

// hostMatcher builds a SupportsURL predicate from host glob patterns.
func hostMatcher(patterns ...string) func(string) bool {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		globs = append(globs, glob.MustCompile(p, '.'))
	}
	return func(locator string) bool {
		if !util.IsRemote(locator) {
			return false
		}
		host := util.Host(locator)
		for _, g := range globs {
			if g.Match(host) {
				return true
			}
		}
		return false
	}
}
