package postprocess

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"mediaq/internal/progress"
	"mediaq/internal/util"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRegistryResolve(t *testing.T) {
	r := NewRegistry()
	err := r.Load([]Config{
		{Name: "small", Type: "ffmpeg", MaxSizeMB: 16},
		{Name: "archive", Type: "move", Dir: "/srv/media"},
		{Name: "broken", Type: "zip"},
		{Name: "hook", Type: "exec"},
	}, Deps{})
	if err == nil || !strings.Contains(err.Error(), "broken") || !strings.Contains(err.Error(), "hook") {
		t.Errorf("Load() error = %v, want broken and hook reported", err)
	}
	if got, want := r.Names(), []string{"archive", "small"}; !slices.Equal(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}

	steps, err := r.Resolve([]string{"small", "archive"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(steps) != 2 || steps[0].Name() != "small" || steps[1].Name() != "archive" {
		t.Errorf("Resolve() = %v", steps)
	}

	_, err = r.Resolve([]string{"small", "nope"})
	var nf *NotFoundError
	if !errors.Is(err, ErrNotFound) || !errors.As(err, &nf) || nf.Name != "nope" {
		t.Errorf("Resolve() error = %v, want NotFoundError for nope", err)
	}
}

func TestMoveStep(t *testing.T) {
	src := filepath.Join(t.TempDir(), "clip.mp4")
	writeFile(t, src, "data")
	dstDir := filepath.Join(t.TempDir(), "library", "shows")

	s, err := New(Config{Name: "archive", Type: "move", Dir: dstDir}, Deps{})
	if err != nil {
		t.Fatal(err)
	}
	var updates []progress.Update
	got, err := s.Run(context.Background(), src, func(u progress.Update) { updates = append(updates, u) })
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if want := filepath.Join(dstDir, "clip.mp4"); got != want {
		t.Errorf("Run() = %q, want %q", got, want)
	}
	if util.FileExists(src) {
		t.Error("source still exists after move")
	}
	if len(updates) != 1 || updates[0].Stage != progress.StagePostprocess {
		t.Errorf("updates = %+v", updates)
	}
}

func TestExecStep(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "clip.mp4")
	writeFile(t, src, "data")

	var gotSpec util.CmdSpec
	runner := util.CmdRunnerFunc(func(ctx context.Context, spec util.CmdSpec) (util.CmdResult, error) {
		gotSpec = spec
		writeFile(t, filepath.Join(dir, "clip.srt"), "subs")
		return util.CmdResult{}, nil
	})
	s, err := New(Config{
		Name:    "subs",
		Type:    "exec",
		Command: "subgen",
		Args:    []string{"--in", "{input}", "--out", "{output}", "{name}"},
		Output:  "{dir}/{stem}.srt",
	}, Deps{Runner: runner})
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.Run(context.Background(), src, func(progress.Update) {})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	wantOut := filepath.Join(dir, "clip.srt")
	if got != wantOut {
		t.Errorf("Run() = %q, want %q", got, wantOut)
	}
	if want := []string{"--in", src, "--out", wantOut, "clip.mp4"}; !slices.Equal(gotSpec.Args, want) {
		t.Errorf("args = %v, want %v", gotSpec.Args, want)
	}
	if gotSpec.Path != "subgen" || gotSpec.Dir != dir {
		t.Errorf("spec = %+v", gotSpec)
	}
}

func TestExecStepMissingOutput(t *testing.T) {
	runner := util.CmdRunnerFunc(func(ctx context.Context, spec util.CmdSpec) (util.CmdResult, error) {
		return util.CmdResult{}, nil
	})
	s, _ := New(Config{Name: "x", Type: "exec", Command: "true", Output: "/nonexistent/out.bin"}, Deps{Runner: runner})
	if _, err := s.Run(context.Background(), "/tmp/in.mp4", func(progress.Update) {}); err == nil {
		t.Error("Run() error = nil, want missing output error")
	}
}

func TestTranscodeStep(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "clip.webm")
	writeFile(t, src, "webm")

	runner := util.CmdRunnerFunc(func(ctx context.Context, spec util.CmdSpec) (util.CmdResult, error) {
		if spec.Path == "/bin/ffprobe" {
			return util.CmdResult{Stdout: []byte(`{"streams":[],"format":{"duration":"8"}}`)}, nil
		}
		spec.StdoutLine("out_time_us=4000000")
		spec.StdoutLine("progress=continue")
		writeFile(t, spec.Args[len(spec.Args)-1], "m4a")
		return util.CmdResult{}, nil
	})
	look := func(name string) (string, error) { return "/bin/" + name, nil }
	s, _ := New(Config{Name: "audio", Type: "ffmpeg", AudioOnly: true}, Deps{Runner: runner, Look: look})

	var updates []progress.Update
	got, err := s.Run(context.Background(), src, func(u progress.Update) { updates = append(updates, u) })
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if want := filepath.Join(dir, "clip.m4a"); got != want {
		t.Errorf("Run() = %q, want %q", got, want)
	}
	if util.FileExists(src) {
		t.Error("input kept without keep: true")
	}
	if len(updates) != 1 || updates[0].Percent != 50 {
		t.Errorf("updates = %+v, want one 50%% update", updates)
	}
}

func TestOutputPath(t *testing.T) {
	tests := []struct{ in, ext, want string }{
		{"/a/b.webm", ".mp4", "/a/b.mp4"},
		{"/a/b.mp4", ".mp4", "/a/b.transcoded.mp4"},
		{"/a/b", ".m4a", "/a/b.m4a"},
	}
	for _, tt := range tests {
		if got := outputPath(tt.in, tt.ext); got != tt.want {
			t.Errorf("outputPath(%q, %q) = %q, want %q", tt.in, tt.ext, got, tt.want)
		}
	}
}

type stepFunc struct {
	name string
	fn   func(in string) (string, error)
}

func (s stepFunc) Name() string { return s.name }
func (s stepFunc) Run(ctx context.Context, in string, report func(progress.Update)) (string, error) {
	return s.fn(in)
}

func TestChain(t *testing.T) {
	var seen []string
	mk := func(name, suffix string, err error) Step {
		return stepFunc{name: name, fn: func(in string) (string, error) {
			seen = append(seen, name+":"+in)
			return in + suffix, err
		}}
	}
	got, err := Chain(context.Background(), []Step{mk("a", ".a", nil), mk("b", ".b", nil)}, "x", nil)
	if err != nil || got != "x.a.b" {
		t.Errorf("Chain() = %q, %v, want x.a.b", got, err)
	}
	if want := []string{"a:x", "b:x.a"}; !slices.Equal(seen, want) {
		t.Errorf("steps saw %v, want %v", seen, want)
	}

	seen = nil
	boom := errors.New("boom")
	_, err = Chain(context.Background(), []Step{mk("a", "", boom), mk("b", "", nil)}, "x", nil)
	if !errors.Is(err, boom) || len(seen) != 1 {
		t.Errorf("Chain() error = %v after %v, want boom after one step", err, seen)
	}
}
