package ffmpeg

import "math"

// Target-size rate control constants
const (
	audioReserveBps    = 128000 // Audio bitrate pinned when a target size keeps audio
	minVideoBitrateBps = 100000 // Floor to avoid degenerate encodes
	fallbackCRF        = 23     // Used when a target size can't be turned into a bitrate
	bitsPerMB          = 8 * 1024 * 1024
)

// TargetVideoBitrate computes the video bitrate (bits/s) that fits targetSizeMB
// into durationSeconds, reserving audio bandwidth when keepAudio is true.
// Returns ok=false when the inputs are degenerate and a fixed CRF should be
// used instead.
func TargetVideoBitrate(targetSizeMB, durationSeconds float64, keepAudio bool) (bps int64, ok bool) {
	if durationSeconds <= 0 || targetSizeMB <= 0 {
		return 0, false
	}

	total := int64(math.Floor(targetSizeMB * bitsPerMB / durationSeconds))
	video := total
	if keepAudio {
		video -= audioReserveBps
	}
	if video < minVideoBitrateBps {
		video = minVideoBitrateBps
	}
	return video, true
}

// TotalTargetKbps is the whole-file bitrate preview (video + audio) in kbps
// for a target size over durationSeconds. Returns 0 when the duration is unknown.
func TotalTargetKbps(targetSizeMB, durationSeconds float64) int64 {
	if durationSeconds <= 0 || targetSizeMB <= 0 {
		return 0
	}
	return int64(math.Round(targetSizeMB * 8192 / durationSeconds))
}
