package encoder

import (
	"strconv"
	"strings"

	"mediaq/internal/progress"
)

// ProgressState helps track progress across multiple line parses of
// ffmpeg's -progress output.
type ProgressState struct {
	OutTimeUs int64
	SpeedStr  string
	TotalSize int64
}

// UpdateFromLine updates the state from a progress line and returns an update if progress marker found.
func (ps *ProgressState) UpdateFromLine(line string, taskID string, durationSec float64, isAudioOnly bool) (u progress.Update, ok bool) {
	key, val, found := strings.Cut(line, "=")
	if !found {
		return progress.Update{}, false
	}
	key = strings.TrimSpace(key)
	val = strings.TrimSpace(val)

	switch key {
	case "out_time_us", "out_time_ms":
		// out_time_ms is also microseconds despite its name
		if v, err := strconv.ParseInt(val, 10, 64); err == nil {
			ps.OutTimeUs = v
		}
	case "speed":
		ps.SpeedStr = val
	case "total_size":
		if v, err := strconv.ParseInt(val, 10, 64); err == nil {
			ps.TotalSize = v
		}
	case "progress":
		percent := -1.0
		if durationSec > 0 {
			percent = min(float64(ps.OutTimeUs)/(durationSec*1_000_000)*100.0, 100)
		}
		if val == "end" {
			percent = 100
		}

		var speedPtr *string
		if ps.SpeedStr != "" && ps.SpeedStr != "N/A" {
			s := ps.SpeedStr
			speedPtr = &s
		}

		var bytesPtr *int64
		if ps.TotalSize > 0 {
			b := ps.TotalSize
			bytesPtr = &b
		}

		msg := "Encoding"
		if isAudioOnly {
			msg = "Encoding (audio)"
		}

		return progress.Update{
			TaskID:  taskID,
			Stage:   progress.StageEncoding,
			Percent: percent,
			Speed:   speedPtr,
			Bytes:   bytesPtr,
			Message: msg,
		}, true
	}

	return progress.Update{}, false
}
