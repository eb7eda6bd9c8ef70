package encoder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"mediaq/internal/progress"
	"mediaq/internal/util"
)

func TestEncode(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "sub", "out.mp4")

	runner := util.CmdRunnerFunc(func(ctx context.Context, spec util.CmdSpec) (util.CmdResult, error) {
		for _, l := range []string{"out_time_us=5000000", "progress=continue", "out_time_us=10000000", "progress=end"} {
			spec.StdoutLine(l)
		}
		return util.CmdResult{}, os.WriteFile(spec.Args[len(spec.Args)-1], []byte("encoded"), 0o644)
	})

	var updates []progress.Update
	got, err := Encode(context.Background(),
		Input{Path: "/tmp/in.webm", DurationSec: 10, Width: 1280, Height: 720},
		Settings{Quality: "low"},
		Options{FFmpegPath: "ffmpeg", OutputPath: out, Runner: runner, TaskID: "t1", OnProgress: func(u progress.Update) {
			updates = append(updates, u)
		}},
	)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if got.Path != out || got.Bytes != int64(len("encoded")) || got.UsedCRF != 26 {
		t.Errorf("Encode() = %+v", got)
	}
	if len(updates) != 2 || updates[0].Percent != 50 || updates[1].Percent != 100 {
		t.Errorf("progress updates = %+v, want 50%% then 100%%", updates)
	}
}

func TestEncodeFailureRemovesOutput(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.m4a")
	runner := util.CmdRunnerFunc(func(ctx context.Context, spec util.CmdSpec) (util.CmdResult, error) {
		_ = os.WriteFile(out, []byte("partial"), 0o644)
		return util.CmdResult{Code: 1}, errors.New("exit 1")
	})
	_, err := Encode(context.Background(), Input{Path: "/tmp/in.webm"}, Settings{AudioOnly: true},
		Options{FFmpegPath: "ffmpeg", OutputPath: out, Runner: runner})
	if err == nil {
		t.Fatal("Encode() error = nil, want failure")
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Errorf("partial output still present: %v", statErr)
	}
}

func TestEncodeValidation(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		opts Options
	}{
		{name: "no ffmpeg", in: Input{Path: "a"}, opts: Options{OutputPath: "b"}},
		{name: "no input", opts: Options{FFmpegPath: "ffmpeg", OutputPath: "b"}},
		{name: "no output", in: Input{Path: "a"}, opts: Options{FFmpegPath: "ffmpeg"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Encode(context.Background(), tt.in, Settings{}, tt.opts); err == nil {
				t.Error("Encode() error = nil, want validation error")
			}
		})
	}
}

func TestProbe(t *testing.T) {
	runner := util.CmdRunnerFunc(func(ctx context.Context, spec util.CmdSpec) (util.CmdResult, error) {
		return util.CmdResult{Stdout: []byte(`{
			"streams": [{"codec_type": "audio"}, {"codec_type": "video", "width": 1920, "height": 1080}],
			"format": {"duration": "12.500000"}
		}`)}, nil
	})
	got, err := Probe(context.Background(), runner, "ffprobe", "/tmp/a.mkv")
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	want := Input{Path: "/tmp/a.mkv", DurationSec: 12.5, Width: 1920, Height: 1080, HasVideo: true}
	if got != want {
		t.Errorf("Probe() = %+v, want %+v", got, want)
	}
}
