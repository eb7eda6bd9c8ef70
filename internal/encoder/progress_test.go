package encoder

import (
	"testing"

	"mediaq/internal/progress"
)

func TestProgressState_UpdateFromLine(t *testing.T) {
	tests := []struct {
		name        string
		lines       []string // Multiple lines to process in sequence
		taskID      string
		durationSec float64
		isAudioOnly bool
		wantOk      bool
		wantPercent float64
		wantMessage string
	}{
		{
			name: "video progress sequence",
			lines: []string{
				"out_time_us=30000000", // 30 seconds
				"speed=1.5x",
				"total_size=10485760",
				"progress=continue",
			},
			taskID:      "task1",
			durationSec: 60.0,
			wantOk:      true,
			wantPercent: 50.0, // 30s / 60s
			wantMessage: "Encoding",
		},
		{
			name: "audio only without duration",
			lines: []string{
				"speed=2.0x",
				"total_size=5242880",
				"progress=continue",
			},
			taskID:      "task2",
			isAudioOnly: true,
			wantOk:      true,
			wantPercent: -1.0, // Unknown without duration
			wantMessage: "Encoding (audio)",
		},
		{
			name: "audio only with duration",
			lines: []string{
				"out_time_ms=15000000",
				"progress=continue",
			},
			taskID:      "task3",
			durationSec: 60.0,
			isAudioOnly: true,
			wantOk:      true,
			wantPercent: 25.0,
			wantMessage: "Encoding (audio)",
		},
		{
			name: "end marker completes",
			lines: []string{
				"out_time_us=59000000",
				"progress=end",
			},
			taskID:      "task4",
			durationSec: 60.0,
			wantOk:      true,
			wantPercent: 100.0,
			wantMessage: "Encoding",
		},
		{
			name:        "non-progress line",
			lines:       []string{"frame=100"},
			taskID:      "task5",
			durationSec: 60.0,
			wantOk:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ps := &ProgressState{}
			var u progress.Update
			var ok bool

			// Process all lines
			for _, line := range tt.lines {
				u, ok = ps.UpdateFromLine(line, tt.taskID, tt.durationSec, tt.isAudioOnly)
			}

			if ok != tt.wantOk {
				t.Errorf("UpdateFromLine() ok = %v, want %v", ok, tt.wantOk)
			}

			if !tt.wantOk {
				return
			}

			if u.TaskID != tt.taskID {
				t.Errorf("UpdateFromLine() TaskID = %v, want %v", u.TaskID, tt.taskID)
			}

			if u.Stage != progress.StageEncoding {
				t.Errorf("UpdateFromLine() Stage = %v, want %v", u.Stage, progress.StageEncoding)
			}

			if u.Percent != tt.wantPercent {
				t.Errorf("UpdateFromLine() Percent = %v, want %v", u.Percent, tt.wantPercent)
			}

			if u.Message != tt.wantMessage {
				t.Errorf("UpdateFromLine() Message = %q, want %q", u.Message, tt.wantMessage)
			}
		})
	}
}

func TestProgressState_StateTracking(t *testing.T) {
	ps := &ProgressState{}

	ps.UpdateFromLine("out_time_us=15000000", "task1", 60.0, false)
	if ps.OutTimeUs != 15000000 {
		t.Errorf("OutTimeUs = %v, want 15000000", ps.OutTimeUs)
	}

	ps.UpdateFromLine("speed=1.2x", "task1", 60.0, false)
	if ps.SpeedStr != "1.2x" {
		t.Errorf("SpeedStr = %v, want '1.2x'", ps.SpeedStr)
	}

	ps.UpdateFromLine("total_size=1048576", "task1", 60.0, false)
	if ps.TotalSize != 1048576 {
		t.Errorf("TotalSize = %v, want 1048576", ps.TotalSize)
	}

	u, ok := ps.UpdateFromLine("progress=continue", "task1", 60.0, false)
	if !ok {
		t.Fatal("UpdateFromLine(progress) ok = false")
	}
	if u.Speed == nil || *u.Speed != "1.2x" {
		t.Errorf("Speed = %v, want 1.2x", u.Speed)
	}
	if u.Bytes == nil || *u.Bytes != 1048576 {
		t.Errorf("Bytes = %v, want 1048576", u.Bytes)
	}
}
