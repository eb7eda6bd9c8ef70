package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"mediaq/internal/model"
	"mediaq/internal/postprocess"
	"mediaq/internal/program"
	"mediaq/internal/progress"
	"mediaq/internal/task"
)

type recordingReporter struct {
	mu      sync.Mutex
	updates []progress.Update
	logs    []progress.Log
	results []progress.Result
}

func (r *recordingReporter) Update(u progress.Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *recordingReporter) Log(l progress.Log) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, l)
}

func (r *recordingReporter) Result(res progress.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func (r *recordingReporter) snapshot() ([]progress.Update, []progress.Log) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]progress.Update(nil), r.updates...), append([]progress.Log(nil), r.logs...)
}

// stub registers a /bin/sh script as a program of role. The script sees the
// composed arguments as $0, $1, ...
func stub(t *testing.T, r *program.Registry, role program.Role, name, kind, script string) {
	t.Helper()
	e := program.Entry{Name: name, Kind: kind, Path: "sh", Args: []string{"-c", script}}
	if _, err := r.Register(role, e); err != nil {
		t.Fatalf("Register(%s) error = %v", name, err)
	}
}

func newService(reg *program.Registry, rep progress.Reporter) *Service {
	return NewService(
		WithComposer(NewComposer(reg)),
		WithReporter(rep),
		WithTick(10*time.Millisecond),
		WithGracePeriod(2*time.Second),
	)
}

// blockingScript traps SIGTERM, appending one line to marker, and signals
// readiness by creating ready.
func blockingScript(marker, ready string) string {
	return fmt.Sprintf(`trap 'echo term >> %q; exit 143' TERM; : > %q; while :; do sleep 0.05; done`, marker, ready)
}

func waitFile(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("%s never appeared", path)
}

func TestExecuteDownloadSucceeds(t *testing.T) {
	dir := t.TempDir()
	reg := program.NewRegistry()
	stub(t, reg, program.RoleDownloader, "fetch", "", `exit 0`)

	dest := filepath.Join(dir, "out", "foo.mp4")
	tk := newTask(task.KindDownload, "https://example.com/foo.mp4", task.Args{Dest: dest})
	got, err := newService(reg, nil).Execute(context.Background(), tk)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got != dest {
		t.Errorf("Execute() = %q, want %q", got, dest)
	}
	if fi, err := os.Stat(filepath.Dir(dest)); err != nil || !fi.IsDir() {
		t.Errorf("output directory not created: %v", err)
	}
}

func TestExecuteDownloadProgressAndMergedOutput(t *testing.T) {
	dir := t.TempDir()
	reg := program.NewRegistry()
	// yt-dlp kind: $0=--newline $1=url $2=-o $3=dest
	stub(t, reg, program.RoleHelper, "fake-ytdl", "yt-dlp", `
echo "[download] Destination: $3"
echo "[download]  50.0% of 10.00MiB at  1.00MiB/s ETA 00:05"
echo "[download] 100.0% of 10.00MiB at  1.00MiB/s ETA 00:00"
out="${3%.mp4}.mkv"
printf data > "$out"
echo "[Merger] Merging formats into \"$out\""
`)

	rep := &recordingReporter{}
	dest := filepath.Join(dir, "clip.mp4")
	tk := newTask(task.KindDownload, "https://youtu.be/abc", task.Args{Dest: dest})
	got, err := newService(reg, rep).Execute(context.Background(), tk)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if want := filepath.Join(dir, "clip.mkv"); got != want {
		t.Errorf("Execute() = %q, want %q", got, want)
	}

	p := tk.Progress()
	if p.Percent != 100 || p.Size != 10*1024*1024 || p.Rate != "1.00MiB/s" {
		t.Errorf("Progress() = %+v", p)
	}
	updates, logs := rep.snapshot()
	var sawDownloading bool
	for _, u := range updates {
		if u.TaskID != tk.ID {
			t.Errorf("update for task %q, want %q", u.TaskID, tk.ID)
		}
		if u.Stage == progress.StageDownloading && u.Percent > 0 {
			sawDownloading = true
		}
	}
	if !sawDownloading {
		t.Errorf("no downloading update published: %+v", updates)
	}
	if len(logs) != 4 {
		t.Errorf("got %d log lines, want 4", len(logs))
	}
}

func TestExecuteExitError(t *testing.T) {
	reg := program.NewRegistry()
	stub(t, reg, program.RoleDownloader, "broken", "", `echo "HTTP Error 404" >&2; exit 3`)

	tk := newTask(task.KindDownload, "https://example.com/foo.mp4", task.Args{Dest: filepath.Join(t.TempDir(), "foo.mp4")})
	_, err := newService(reg, nil).Execute(context.Background(), tk)
	var ee *program.ExitError
	if !errors.As(err, &ee) {
		t.Fatalf("Execute() error = %v, want *program.ExitError", err)
	}
	if ee.Code != 3 || !strings.Contains(ee.Stderr, "HTTP Error 404") {
		t.Errorf("ExitError = %+v", ee)
	}
}

func TestExecuteSpawnError(t *testing.T) {
	reg := program.NewRegistry()
	if _, err := reg.Register(program.RolePlayer, program.Entry{Name: "ghost", Path: filepath.Join(t.TempDir(), "missing")}); err != nil {
		t.Fatal(err)
	}
	tk := newTask(task.KindPlay, "https://example.com/a.mp4", task.Args{Player: program.Spec{Name: "ghost"}})
	_, err := newService(reg, nil).Execute(context.Background(), tk)
	var se *program.SpawnError
	if !errors.As(err, &se) {
		t.Errorf("Execute() error = %v, want *program.SpawnError", err)
	}
}

func TestExecuteCancelTerminatesOnce(t *testing.T) {
	dir := t.TempDir()
	marker, ready := filepath.Join(dir, "marker"), filepath.Join(dir, "ready")
	reg := program.NewRegistry()
	stub(t, reg, program.RolePlayer, "player", "", blockingScript(marker, ready))

	tk := newTask(task.KindPlay, "https://example.com/a.mp4", task.Args{Player: program.Spec{Name: "player"}})
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := newService(reg, nil).Execute(ctx, tk)
		errc <- err
	}()
	waitFile(t, ready)
	cancel()

	select {
	case err := <-errc:
		if !errors.Is(err, program.ErrTerminated) {
			t.Errorf("Execute() error = %v, want ErrTerminated", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Execute() did not return after cancellation")
	}
	b, err := os.ReadFile(marker)
	if err != nil {
		t.Fatalf("player never saw SIGTERM: %v", err)
	}
	if n := strings.Count(string(b), "term"); n != 1 {
		t.Errorf("player saw %d SIGTERMs, want 1", n)
	}
}

type suffixStep struct {
	suffix string
}

func (s suffixStep) Name() string { return "suffix" + s.suffix }

func (s suffixStep) Run(ctx context.Context, in string, report func(progress.Update)) (string, error) {
	report(progress.Update{Stage: progress.StagePostprocess, Percent: 50, Message: s.Name()})
	out := in + s.suffix
	return out, os.Rename(in, out)
}

func TestExecutePostprocessChain(t *testing.T) {
	dir := t.TempDir()
	reg := program.NewRegistry()
	stub(t, reg, program.RoleDownloader, "fetch", "", `printf data > "$2"`)

	dest := filepath.Join(dir, "foo.mp4")
	tk := newTask(task.KindDownload, "https://example.com/foo.mp4", task.Args{Dest: dest})
	tk.Postprocessors = []postprocess.Step{suffixStep{".a"}, suffixStep{".b"}}

	got, err := newService(reg, nil).Execute(context.Background(), tk)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if want := dest + ".a.b"; got != want {
		t.Errorf("Execute() = %q, want %q", got, want)
	}
	if tk.Progress().Stage != progress.StagePostprocess {
		t.Errorf("Progress().Stage = %v, want postprocessing", tk.Progress().Stage)
	}
}

func TestExecutePostprocessSkippedOnFailure(t *testing.T) {
	reg := program.NewRegistry()
	stub(t, reg, program.RoleDownloader, "fetch", "", `exit 1`)

	ran := false
	tk := newTask(task.KindDownload, "https://example.com/foo.mp4", task.Args{Dest: filepath.Join(t.TempDir(), "foo.mp4")})
	tk.Postprocessors = []postprocess.Step{funcStep(func() { ran = true })}
	if _, err := newService(reg, nil).Execute(context.Background(), tk); err == nil {
		t.Fatal("Execute() error = nil")
	}
	if ran {
		t.Error("postprocessor ran after a failed download")
	}
}

type funcStep func()

func (f funcStep) Name() string { return "func" }
func (f funcStep) Run(ctx context.Context, in string, report func(progress.Update)) (string, error) {
	f()
	return in, nil
}

// The manager and service together: cancelling a running task signals its
// process once and the task ends cancelled; a second preview for the same
// owner replaces the first.
func TestManagerWithService(t *testing.T) {
	dir := t.TempDir()
	reg := program.NewRegistry()
	for _, name := range []string{"p1", "p2"} {
		stub(t, reg, program.RolePlayer, name, "",
			blockingScript(filepath.Join(dir, name+".marker"), filepath.Join(dir, name+".ready")))
	}

	m := task.NewManager(newService(reg, nil))
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer m.Stop()

	wait := func(tk *task.Task) task.Result {
		t.Helper()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		r, err := tk.Wait(ctx)
		if err != nil {
			t.Fatalf("task %s did not finish", tk.Title)
		}
		return r
	}

	play := newTask(task.KindPlay, "https://example.com/a.mp4", task.Args{Player: program.Spec{Name: "p1"}})
	if err := m.Play(play); err != nil {
		t.Fatal(err)
	}
	waitFile(t, filepath.Join(dir, "p1.ready"))
	if err := m.Cancel(play.ID); err != nil {
		t.Fatal(err)
	}
	if r := wait(play); r.State != task.StateCancelled {
		t.Errorf("play result = %+v, want cancelled", r)
	}
	if b, _ := os.ReadFile(filepath.Join(dir, "p1.marker")); strings.Count(string(b), "term") != 1 {
		t.Errorf("p1 marker = %q, want one SIGTERM", b)
	}

	first := task.New(task.KindPreview, &model.Listing{Title: "first"}, []model.Source{{Locator: "https://example.com/b.mp4"}}, task.Args{Player: program.Spec{Name: "p2"}})
	second := task.New(task.KindPreview, &model.Listing{Title: "second"}, []model.Source{{Locator: "https://example.com/c.mp4"}}, task.Args{Player: program.Spec{Name: "p2"}})
	if err := m.Preview(first, "table"); err != nil {
		t.Fatal(err)
	}
	waitFile(t, filepath.Join(dir, "p2.ready"))
	if err := m.Preview(second, "table"); err != nil {
		t.Fatal(err)
	}
	if r := wait(first); r.State != task.StateCancelled {
		t.Errorf("first preview result = %+v, want cancelled", r)
	}
	m.CancelPreview("table")
	if r := wait(second); r.State != task.StateCancelled {
		t.Errorf("second preview result = %+v, want cancelled", r)
	}
}
