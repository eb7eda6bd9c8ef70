package encoder

// Input describes the media file to transcode.
type Input struct {
	Path        string
	DurationSec float64
	Width       int
	Height      int
	HasVideo    bool
}

// Settings select what the transcode produces. A positive MaxSizeMB with a
// known duration selects bitrate mode; otherwise Quality picks a CRF.
type Settings struct {
	AudioOnly    bool
	MaxSizeMB    int
	LongSidePx   int
	Quality      string // low | medium | high
	AudioKbps    int
	Preset       string
	Profile      string
	KeyInt       int
	VideoMinKbps int
	VideoMaxKbps int
}

// Output reports what an Encode produced.
type Output struct {
	Path       string
	Bytes      int64
	UsedCRF    int
	UsedKbps   int
	LongSidePx int
	AudioOnly  bool
}
