package encoder

import (
	"fmt"
	"strconv"

	"mediaq/internal/util/bitrate"
)

// BuildVideoArgs constructs ffmpeg arguments for video encoding.
// Returns the arguments slice and the used CRF/bitrate values.
func BuildVideoArgs(in Input, s Settings, outputPath string, includeProgress bool) (args []string, usedCRF int, usedBitrateKbps int) {
	vf := scaleFilter(bitrate.LongSide(s.LongSidePx, in.Width, in.Height), in.Width, in.Height)

	args = []string{
		"-y",
		"-i", in.Path,
		"-vf", vf,
		"-c:v", "libx264",
		"-preset", valueOr(s.Preset, "veryfast"),
		"-profile:v", valueOr(s.Profile, "main"),
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", fmt.Sprintf("%dk", bitrate.SafeAudioKbps(s.AudioKbps)),
		"-movflags", "+faststart",
	}

	if s.KeyInt > 0 {
		args = append(args, "-g", strconv.Itoa(s.KeyInt), "-keyint_min", strconv.Itoa(s.KeyInt))
	}

	if s.MaxSizeMB > 0 && in.DurationSec > 0 {
		kbps := bitrate.ComputeVideoKbps(s.MaxSizeMB, in.DurationSec, bitrate.SafeAudioKbps(s.AudioKbps),
			nonZero(s.VideoMinKbps, 300), nonZero(s.VideoMaxKbps, 8000))
		usedBitrateKbps = kbps
		args = append(args, "-b:v", fmt.Sprintf("%dk", kbps))
	} else {
		usedCRF = bitrate.CRF(s.Quality)
		args = append(args, "-crf", strconv.Itoa(usedCRF))
	}

	if includeProgress {
		args = append(args, "-progress", "pipe:1", "-nostats")
	}

	args = append(args, outputPath)
	return args, usedCRF, usedBitrateKbps
}

// BuildAudioOnlyArgs constructs ffmpeg arguments for audio-only encoding.
func BuildAudioOnlyArgs(inputPath string, s Settings, outputPath string, includeProgress bool) []string {
	args := []string{
		"-y",
		"-i", inputPath,
		"-vn",
		"-c:a", "aac",
		"-b:a", fmt.Sprintf("%dk", nonZero(s.AudioKbps, 128)),
		"-movflags", "+faststart",
	}

	if includeProgress {
		args = append(args, "-progress", "pipe:1", "-nostats")
	}

	args = append(args, outputPath)
	return args
}

// scaleFilter returns the ffmpeg scale filter that fits the long side.
func scaleFilter(longSide int, width, height int) string {
	if height > width && height > 0 && width > 0 {
		return fmt.Sprintf("scale=-2:%d", longSide)
	}
	return fmt.Sprintf("scale=%d:-2", longSide)
}

func valueOr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func nonZero(v int, def int) int {
	if v == 0 {
		return def
	}
	return v
}
