package program

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"mediaq/internal/model"
)

func fakeLook(found ...string) func(string) (string, error) {
	return func(name string) (string, error) {
		if slices.Contains(found, name) {
			return "/usr/bin/" + name, nil
		}
		return "", errors.New("not found")
	}
}

func mustRegister(t *testing.T, r *Registry, role Role, e Entry) {
	t.Helper()
	if _, err := r.Register(role, e); err != nil {
		t.Fatalf("Register(%s, %s) error = %v", role, e.Name, err)
	}
}

func names(ps []*Program) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Name())
	}
	return out
}

func boolPtr(b bool) *bool { return &b }

func TestResolveCapabilities(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, RolePlayer, Entry{Name: "mpv"})
	mustRegister(t, r, RolePlayer, Entry{Name: "feh"})
	mustRegister(t, r, RolePlayer, Entry{Name: "elinks"})

	tests := []struct {
		name      string
		spec      Spec
		mediaType string
		want      []string
	}{
		{name: "empty spec returns all", want: []string{"mpv", "feh", "elinks"}},
		{name: "empty spec filtered by media type", mediaType: model.MediaImage, want: []string{"mpv", "feh"}},
		{name: "subset of media types", spec: Spec{Filter: &Capabilities{MediaTypes: []string{"image"}}}, want: []string{"mpv", "feh"}},
		{name: "union requires superset", spec: Spec{Filter: &Capabilities{MediaTypes: []string{"image", "video"}}}, want: []string{"mpv"}},
		{name: "scalar equality", spec: Spec{Filter: &Capabilities{Foreground: boolPtr(true)}}, want: []string{"elinks"}},
		{name: "unmatched filter is empty", spec: Spec{Filter: &Capabilities{Integrated: boolPtr(true)}}, want: []string{}},
		{name: "exact name", spec: Spec{Name: "feh"}, want: []string{"feh"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(RolePlayer, tt.spec, tt.mediaType)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if g := names(got); !slices.Equal(g, tt.want) {
				t.Errorf("Resolve() = %v, want %v", g, tt.want)
			}
		})
	}
}

func TestResolveNotFound(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, RolePlayer, Entry{Name: "mpv"})

	_, err := r.Resolve(RolePlayer, Spec{Name: "vlc"}, model.MediaVideo)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Resolve() error = %v, want ErrNotFound", err)
	}
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.Spec != "vlc" || nf.Role != RolePlayer {
		t.Errorf("Resolve() error = %#v, want NotFoundError for player vlc", err)
	}
	if _, err := r.Get(RoleHelper, "mpv"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestResolveIdempotent(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, RoleDownloader, Entry{Name: "curl"})
	mustRegister(t, r, RoleDownloader, Entry{Name: "wget"})

	first, _ := r.Resolve(RoleDownloader, Spec{}, "")
	first[0].AddPre("--mutated")
	first[0].SetSource("https://example.org/a")
	second, _ := r.Resolve(RoleDownloader, Spec{}, "")

	if !slices.Equal(names(first), names(second)) {
		t.Errorf("Resolve() names = %v then %v", names(first), names(second))
	}
	if first[0] == second[0] {
		t.Error("Resolve() returned the same instance twice")
	}
	if got, want := second[0].Argv(), []string{"curl", "-L", "--fail"}; !slices.Equal(got, want) {
		t.Errorf("fresh Argv() = %v, want %v", got, want)
	}
}

func TestRegisterEntry(t *testing.T) {
	r := NewRegistry()
	d, err := r.Register(RolePlayer, Entry{
		Name:         "mpv",
		Path:         "/opt/mpv/bin/mpv",
		Args:         []string{"--fs"},
		ExcludeTypes: []string{model.MediaImage},
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if want := []string{model.MediaAudio, model.MediaVideo}; !slices.Equal(d.MediaTypes, want) {
		t.Errorf("MediaTypes = %v, want %v", d.MediaTypes, want)
	}
	p := d.New()
	p.SetSource("a.mkv")
	if got, want := p.Argv(), []string{"/opt/mpv/bin/mpv", "--fs", "a.mkv"}; !slices.Equal(got, want) {
		t.Errorf("Argv() = %v, want %v", got, want)
	}

	// first registration wins
	d2, _ := r.Register(RolePlayer, Entry{Name: "mpv", Path: "/other"})
	if d2 != d {
		t.Error("Register() replaced an existing definition")
	}

	if _, err := r.Register(RoleHelper, Entry{Name: "x", URLPatterns: []string{"[a-"}}); err == nil {
		t.Error("Register() accepted an invalid url pattern")
	}
}

func TestLoad(t *testing.T) {
	r := NewRegistry()
	cfg := Config{
		Players: []Entry{
			{Name: "vlc", Disabled: true},
			{Name: "mpv", Args: []string{"--no-terminal"}},
			{Name: "ghost"},
		},
		Helpers: []Entry{
			{Name: "yt-dlp", URLPatterns: []string{"*.example.org"}},
		},
	}
	err := r.Load(cfg, fakeLook("mpv", "vlc", "feh", "yt-dlp", "streamlink", "curl"))
	if err == nil || !strings.Contains(err.Error(), "ghost") {
		t.Errorf("Load() error = %v, want missing ghost", err)
	}

	tests := []struct {
		role Role
		want []string
	}{
		{RolePlayer, []string{"mpv", "feh"}},
		{RoleHelper, []string{"yt-dlp", "streamlink"}},
		{RoleDownloader, []string{"yt-dlp", "streamlink", "curl"}},
	}
	for _, tt := range tests {
		var got []string
		for _, d := range r.Definitions(tt.role) {
			got = append(got, d.Name)
		}
		if !slices.Equal(got, tt.want) {
			t.Errorf("Definitions(%s) = %v, want %v", tt.role, got, tt.want)
		}
	}

	mpv, _ := r.Get(RolePlayer, "mpv")
	if got, want := mpv.Command(), []string{"/usr/bin/mpv", "--no-terminal"}; !slices.Equal(got, want) {
		t.Errorf("Command() = %v, want %v", got, want)
	}
	ytdl, _ := r.Get(RoleHelper, "yt-dlp")
	if !ytdl.SupportsURL("https://cdn.example.org/v/1") || ytdl.SupportsURL("https://youtube.com/watch?v=1") {
		t.Error("SupportsURL() ignored configured url patterns")
	}
}

func TestIntegratedPipeline(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, RolePlayer, Entry{Name: "mpv", Path: "/usr/bin/mpv"})
	mustRegister(t, r, RoleHelper, Entry{Name: "streamlink"})

	player, _ := r.Get(RolePlayer, "mpv")
	helper, _ := r.Get(RoleHelper, "streamlink")
	player.ApplyOptions(Options{Offset: 90 * time.Second})
	helper.ApplyOptions(Options{Resolution: "720p"})
	helper.SetSource("https://www.twitch.tv/somechannel")
	if err := player.SetSourceProgram(helper); err != nil {
		t.Fatalf("SetSourceProgram() error = %v", err)
	}

	if player.State() != StateIntegrated {
		t.Errorf("State() = %v, want integrated", player.State())
	}
	want := []string{"streamlink", "--player", "/usr/bin/mpv --start=90", "https://www.twitch.tv/somechannel", "720p"}
	if got := helper.Argv(); !slices.Equal(got, want) {
		t.Errorf("helper Argv() = %q, want %q", got, want)
	}
	if st := player.stages(); len(st) != 1 || st[0] != helper {
		t.Errorf("stages() = %v, want only the helper", names(st))
	}
	if got, want := player.Pipeline(), "streamlink --player '/usr/bin/mpv --start=90' https://www.twitch.tv/somechannel 720p"; got != want {
		t.Errorf("Pipeline() = %q, want %q", got, want)
	}
	if player.StdinPiped() || helper.StdoutPiped() {
		t.Error("integrated pipeline declared piped streams")
	}
}

func TestPipedPipeline(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, RolePlayer, Entry{Name: "mpv"})
	mustRegister(t, r, RoleHelper, Entry{Name: "yt-dlp"})

	player, _ := r.Get(RolePlayer, "mpv")
	helper, _ := r.Get(RoleHelper, "yt-dlp")
	helper.SetSource("https://youtu.be/abc")
	if err := player.SetSourceProgram(helper); err != nil {
		t.Fatalf("SetSourceProgram() error = %v", err)
	}

	if !player.StdinPiped() || !helper.StdoutPiped() {
		t.Errorf("StdinPiped() = %v, StdoutPiped() = %v, want both true", player.StdinPiped(), helper.StdoutPiped())
	}
	if got, want := player.Argv(), []string{"mpv", "-"}; !slices.Equal(got, want) {
		t.Errorf("player Argv() = %v, want %v", got, want)
	}
	if got, want := helper.Argv(), []string{"yt-dlp", "--newline", "https://youtu.be/abc", "-o", "-"}; !slices.Equal(got, want) {
		t.Errorf("helper Argv() = %v, want %v", got, want)
	}
	if st := player.stages(); !slices.Equal(names(st), []string{"yt-dlp", "mpv"}) {
		t.Errorf("stages() = %v", names(st))
	}
	if got, want := player.Pipeline(), "yt-dlp --newline https://youtu.be/abc -o - | mpv -"; got != want {
		t.Errorf("Pipeline() = %q, want %q", got, want)
	}
	if player.ProgressParser() == nil {
		t.Error("ProgressParser() = nil, want the helper's parser")
	}

	// re-pointing at raw locators undoes the pipe on both ends
	player.SetSource("a.mkv")
	if player.StdinPiped() || helper.StdoutPiped() || player.State() != StateStandalone {
		t.Error("SetSource() left the pipeline wired")
	}
}

func TestSetSourceProgramCycle(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, RoleHelper, Entry{Name: "a", Path: "cat"})
	mustRegister(t, r, RoleHelper, Entry{Name: "b", Path: "cat"})
	a, _ := r.Get(RoleHelper, "a")
	b, _ := r.Get(RoleHelper, "b")
	if err := b.SetSourceProgram(a); err != nil {
		t.Fatalf("SetSourceProgram() error = %v", err)
	}
	if err := a.SetSourceProgram(b); !errors.Is(err, ErrCycle) {
		t.Errorf("SetSourceProgram() error = %v, want ErrCycle", err)
	}
	if err := a.SetSourceProgram(a); !errors.Is(err, ErrCycle) {
		t.Errorf("SetSourceProgram(self) error = %v, want ErrCycle", err)
	}
}

func TestArgvOrdering(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, RoleDownloader, Entry{Name: "yt-dlp"})
	p, _ := r.Get(RoleDownloader, "yt-dlp")
	p.ApplyOptions(Options{Resolution: "720p", Headers: map[string]string{"Referer": "https://a"}})
	p.SetSource("https://youtu.be/abc")
	p.SetOutput("/tmp/out/100%.mp4")

	want := []string{
		"yt-dlp", "--newline",
		"-f", "bestvideo[height<=720]+bestaudio/best[height<=720]",
		"--add-header", "Referer:https://a",
		"https://youtu.be/abc",
		"-o", "/tmp/out/100%%.mp4",
	}
	if got := p.Argv(); !slices.Equal(got, want) {
		t.Errorf("Argv() = %q, want %q", got, want)
	}
}

// shProgram registers a generic program that runs script with sh.
func shProgram(t *testing.T, r *Registry, name, script string) *Program {
	t.Helper()
	mustRegister(t, r, RoleDownloader, Entry{Name: name, Path: "sh", Args: []string{"-c", script}})
	p, err := r.Get(RoleDownloader, name)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestStartCapturesLines(t *testing.T) {
	r := NewRegistry()
	p := shProgram(t, r, "talk", `echo one; printf 'two\rthree'; echo err >&2`)

	var mu sync.Mutex
	var lines []string
	proc, err := p.Start(context.Background(), StartOptions{OnLine: func(l Line) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, l.Text)
	}})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := proc.Wait(); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	slices.Sort(lines)
	if want := []string{"err", "one", "three", "two"}; !reflect.DeepEqual(lines, want) {
		t.Errorf("captured lines = %v, want %v", lines, want)
	}
}

func TestStartExitError(t *testing.T) {
	r := NewRegistry()
	p := shProgram(t, r, "fail", `echo boom >&2; exit 3`)
	proc, err := p.Start(context.Background(), StartOptions{})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	err = proc.Wait()
	var ee *ExitError
	if !errors.As(err, &ee) {
		t.Fatalf("Wait() error = %v, want *ExitError", err)
	}
	if ee.Code != 3 || ee.Stderr != "boom" {
		t.Errorf("ExitError = %+v, want code 3 with stderr boom", ee)
	}
}

func TestStartSpawnError(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, RolePlayer, Entry{Name: "missing", Path: filepath.Join(t.TempDir(), "nope")})
	p, _ := r.Get(RolePlayer, "missing")
	_, err := p.Start(context.Background(), StartOptions{})
	var se *SpawnError
	if !errors.As(err, &se) || se.Program != "missing" {
		t.Errorf("Start() error = %v, want *SpawnError", err)
	}
}

func TestStartPiped(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.txt")
	r := NewRegistry()
	src := shProgram(t, r, "producer", `printf 'a\nb\n'`)
	mustRegister(t, r, RolePlayer, Entry{Name: "consumer", Path: "sh", Args: []string{"-c", "cat > '" + out + "'"}})
	dst, _ := r.Get(RolePlayer, "consumer")
	if err := dst.SetSourceProgram(src); err != nil {
		t.Fatal(err)
	}

	proc, err := dst.Start(context.Background(), StartOptions{})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := len(proc.Pids()); got != 2 {
		t.Errorf("Pids() = %d processes, want 2", got)
	}
	if err := proc.Wait(); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "a\nb\n" {
		t.Errorf("piped output = %q, want %q", b, "a\nb\n")
	}
}

func TestTerminateSignalsOnce(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "signals")
	r := NewRegistry()
	p := shProgram(t, r, "sleeper", `trap 'echo term >> "$0"; exit 0' TERM; echo ready; while :; do sleep 0.05; done`)
	p.SetSource(marker)

	ready := make(chan struct{})
	var once sync.Once
	proc, err := p.Start(context.Background(), StartOptions{OnLine: func(l Line) {
		if l.Text == "ready" {
			once.Do(func() { close(ready) })
		}
	}})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		t.Fatal("process never became ready")
	}

	proc.Terminate()
	proc.Terminate()
	if err := proc.Wait(); !errors.Is(err, ErrTerminated) {
		t.Errorf("Wait() error = %v, want ErrTerminated", err)
	}
	b, err := os.ReadFile(marker)
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(b), "term"); n != 1 {
		t.Errorf("process received %d termination signals, want 1", n)
	}
}

func TestTerminalLockSerializes(t *testing.T) {
	var calls []string
	lock := NewTerminalLock()
	lock.SetHooks(
		func() error { calls = append(calls, "suspend"); return nil },
		func() error { calls = append(calls, "resume"); return nil },
	)
	release, err := lock.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := lock.Acquire(ctx); err == nil {
		t.Error("second Acquire() succeeded while the terminal was held")
	}
	release()
	release()
	if want := []string{"suspend", "resume"}; !slices.Equal(calls, want) {
		t.Errorf("hooks = %v, want %v", calls, want)
	}
	release2, err := lock.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() after release error = %v", err)
	}
	release2()
}

func TestParseRole(t *testing.T) {
	for in, want := range map[string]Role{"players": RolePlayer, "Helper": RoleHelper, "downloader": RoleDownloader} {
		if got, err := ParseRole(in); err != nil || got != want {
			t.Errorf("ParseRole(%q) = %v, %v, want %v", in, got, err, want)
		}
	}
	if _, err := ParseRole("encoder"); err == nil {
		t.Error("ParseRole(encoder) error = nil")
	}
}
