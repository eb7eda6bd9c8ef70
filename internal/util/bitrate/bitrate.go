// Package bitrate holds the sizing arithmetic behind the ffmpeg transcode step.
package bitrate

import "strings"

// ComputeVideoKbps calculates the video bitrate (kbps) required to fit maxSizeMB
// given the duration and audio bitrate, clamped between vMinKbps and vMaxKbps.
func ComputeVideoKbps(maxSizeMB int, durationSec float64, audioKbps, vMinKbps, vMaxKbps int) int {
	if durationSec <= 0 {
		return vMaxKbps
	}
	maxBytes := int64(maxSizeMB) * 1024 * 1024
	totalKbps := int((float64(maxBytes*8) / durationSec) / 1000)
	return Clamp(totalKbps-audioKbps, vMinKbps, vMaxKbps)
}

// Clamp returns v constrained to [lo, hi].
func Clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

// SafeAudioKbps ensures audio bitrate is at least 64 kbps.
func SafeAudioKbps(v int) int {
	return max(v, 64)
}

// LongSide returns the target long-side resolution for an input of the given
// dimensions: the requested value (720 when unset), never upscaling.
func LongSide(requested, width, height int) int {
	target := requested
	if target <= 0 {
		target = 720
	}
	if in := max(width, height); in > 0 && in < target {
		return in
	}
	return target
}

// CRF maps a quality preset name to an x264 CRF value.
func CRF(quality string) int {
	switch strings.ToLower(quality) {
	case "low":
		return 26
	case "high":
		return 19
	default:
		return 22
	}
}
