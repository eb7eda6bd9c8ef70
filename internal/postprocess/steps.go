package postprocess

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"mediaq/internal/encoder"
	"mediaq/internal/progress"
	"mediaq/internal/util"
	"mediaq/internal/util/deps"
)

type transcodeStep struct {
	cfg  Config
	deps Deps

	once    sync.Once
	ffmpeg  string
	ffprobe string
	findErr error
}

func (s *transcodeStep) Name() string { return s.cfg.Name }

func (s *transcodeStep) tools() (string, string, error) {
	s.once.Do(func() {
		s.ffmpeg, s.findErr = deps.FindFFmpeg(s.deps.Look, s.deps.FFmpegPath)
		// Without ffprobe the transcode runs in CRF mode with unknown progress.
		s.ffprobe, _ = deps.FindFFprobe(s.deps.Look)
	})
	return s.ffmpeg, s.ffprobe, s.findErr
}

func (s *transcodeStep) Run(ctx context.Context, in string, report func(progress.Update)) (string, error) {
	ffmpeg, ffprobe, err := s.tools()
	if err != nil {
		return "", err
	}
	input := encoder.Input{Path: in}
	if ffprobe != "" {
		if probed, err := encoder.Probe(ctx, s.deps.Runner, ffprobe, in); err == nil {
			input = probed
		} else if s.deps.Logger != nil {
			s.deps.Logger.Warn("ffprobe failed", "path", in, "err", err)
		}
	}

	settings := encoder.Settings{
		AudioOnly:  s.cfg.AudioOnly,
		MaxSizeMB:  s.cfg.MaxSizeMB,
		LongSidePx: s.cfg.LongSide,
		Quality:    s.cfg.Quality,
		AudioKbps:  96,
		KeyInt:     48,
	}
	ext := ".mp4"
	if s.cfg.AudioOnly {
		settings.AudioKbps = 128
		ext = ".m4a"
	}
	out := outputPath(in, ext)

	res, err := encoder.Encode(ctx, input, settings, encoder.Options{
		FFmpegPath: ffmpeg,
		OutputPath: out,
		Runner:     s.deps.Runner,
		Logger:     s.deps.Logger,
		OnProgress: report,
	})
	if err != nil {
		return "", err
	}
	if !s.cfg.Keep {
		_ = util.RemoveIfExists(in)
	}
	return res.Path, nil
}

// outputPath swaps in's extension for ext, adding a suffix when that would
// overwrite the input.
func outputPath(in, ext string) string {
	stem := strings.TrimSuffix(in, filepath.Ext(in))
	out := stem + ext
	if out == in {
		out = stem + ".transcoded" + ext
	}
	return out
}

type execStep struct {
	cfg  Config
	deps Deps
}

func (s *execStep) Name() string { return s.cfg.Name }

func (s *execStep) Run(ctx context.Context, in string, report func(progress.Update)) (string, error) {
	out := in
	if s.cfg.Output != "" {
		out = expand(s.cfg.Output, in, "")
	}
	args := make([]string, len(s.cfg.Args))
	for i, a := range s.cfg.Args {
		args[i] = expand(a, in, out)
	}
	report(progress.Update{Stage: progress.StagePostprocess, Percent: -1, Message: "Running " + s.cfg.Name})

	logger := s.deps.Logger
	_, err := s.deps.Runner.Run(ctx, util.CmdSpec{
		Path: s.cfg.Command,
		Args: args,
		Dir:  filepath.Dir(in),
		StdoutLine: func(line string) {
			if logger != nil {
				logger.Debug("postprocess output", "step", s.cfg.Name, "line", line)
			}
		},
		Logger: logger,
	})
	if err != nil {
		return "", err
	}
	if !util.FileExists(out) {
		return "", fmt.Errorf("%s did not produce %s", s.cfg.Command, out)
	}
	return out, nil
}

// expand substitutes {input}, {output}, {dir}, {name} and {stem}.
func expand(tmpl, in, out string) string {
	base := filepath.Base(in)
	return strings.NewReplacer(
		"{input}", in,
		"{output}", out,
		"{dir}", filepath.Dir(in),
		"{name}", base,
		"{stem}", strings.TrimSuffix(base, filepath.Ext(base)),
	).Replace(tmpl)
}

type moveStep struct {
	cfg Config
}

func (s *moveStep) Name() string { return s.cfg.Name }

func (s *moveStep) Run(ctx context.Context, in string, report func(progress.Update)) (string, error) {
	dir := s.cfg.Dir
	if strings.HasPrefix(dir, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, dir[2:])
		}
	}
	if err := util.EnsureDir(dir); err != nil {
		return "", fmt.Errorf("ensure %s: %w", dir, err)
	}
	dst := filepath.Join(dir, filepath.Base(in))
	report(progress.Update{Stage: progress.StagePostprocess, Percent: -1, Dest: dst, Message: "Moving to " + dir})
	if err := util.MoveFile(in, dst); err != nil {
		return "", err
	}
	return dst, nil
}
