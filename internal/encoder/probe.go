package encoder

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"mediaq/internal/util"
)

type probeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe reads duration and video dimensions of path with ffprobe.
func Probe(ctx context.Context, runner util.CmdRunner, ffprobePath, path string) (Input, error) {
	if runner == nil {
		runner = util.NewDefaultRunner()
	}
	res, err := runner.Run(ctx, util.CmdSpec{
		Path: ffprobePath,
		Args: []string{"-v", "error", "-print_format", "json", "-show_format", "-show_streams", path},
	})
	if err != nil {
		return Input{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	var po probeOutput
	if err := json.Unmarshal(res.Stdout, &po); err != nil {
		return Input{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	in := Input{Path: path}
	if d, err := strconv.ParseFloat(po.Format.Duration, 64); err == nil {
		in.DurationSec = d
	}
	for _, s := range po.Streams {
		if s.CodecType == "video" && s.Width > 0 {
			in.Width, in.Height, in.HasVideo = s.Width, s.Height, true
			break
		}
	}
	return in, nil
}
