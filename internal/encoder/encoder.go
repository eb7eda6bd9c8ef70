package encoder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"mediaq/internal/progress"
	"mediaq/internal/util"
)

// Options control ffmpeg execution.
type Options struct {
	FFmpegPath string
	OutputPath string // Full path of desired output file (including extension)
	Runner     util.CmdRunner
	Logger     *slog.Logger
	TaskID     string
	OnProgress func(progress.Update)
}

// Encode performs the transcoding according to the provided settings.
// It returns metadata about the resulting file on success; a failed run
// removes the partial output.
func Encode(ctx context.Context, in Input, s Settings, opts Options) (Output, error) {
	if opts.FFmpegPath == "" {
		return Output{}, errors.New("ffmpeg path is required")
	}
	if in.Path == "" {
		return Output{}, errors.New("input path is required")
	}
	if opts.OutputPath == "" {
		return Output{}, errors.New("output path is required")
	}
	runner := opts.Runner
	if runner == nil {
		runner = util.NewDefaultRunner()
	}

	out := Output{Path: opts.OutputPath, AudioOnly: s.AudioOnly}
	var args []string
	if s.AudioOnly {
		args = BuildAudioOnlyArgs(in.Path, s, opts.OutputPath, true)
	} else {
		args, out.UsedCRF, out.UsedKbps = BuildVideoArgs(in, s, opts.OutputPath, true)
		out.LongSidePx = s.LongSidePx
	}

	// Ensure output dir exists
	if err := util.EnsureDir(filepath.Dir(opts.OutputPath)); err != nil {
		return Output{}, fmt.Errorf("ensure output dir: %w", err)
	}

	var ps ProgressState
	_, runErr := runner.Run(ctx, util.CmdSpec{
		Path: opts.FFmpegPath,
		Args: args,
		StdoutLine: func(line string) {
			if u, ok := ps.UpdateFromLine(line, opts.TaskID, in.DurationSec, s.AudioOnly); ok && opts.OnProgress != nil {
				opts.OnProgress(u)
			}
		},
		Logger: opts.Logger,
	})
	if runErr != nil {
		// Delete incomplete file
		_ = util.RemoveIfExists(opts.OutputPath)
		return Output{}, fmt.Errorf("ffmpeg failed: %w", runErr)
	}

	fi, err := os.Stat(opts.OutputPath)
	if err != nil {
		return Output{}, fmt.Errorf("stat output: %w", err)
	}
	out.Bytes = fi.Size()
	return out, nil
}
