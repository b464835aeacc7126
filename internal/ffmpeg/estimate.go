package ffmpeg

import (
	"math"
)

// Estimate previews what a transcode will produce before it runs
type Estimate struct {
	ClipDuration   float64 `json:"clip_duration"`   // seconds of source that will be encoded
	OutputDuration float64 `json:"output_duration"` // seconds after the speed factor
	TotalKbps      int64   `json:"total_kbps,omitempty"`
	VideoBitrate   int64   `json:"video_bitrate,omitempty"` // bits/s, target-size mode only
	EstimatedSize  int64   `json:"estimated_size,omitempty"`
	UsesFallback   bool    `json:"uses_fallback,omitempty"` // target size degraded to fixed CRF
	Warning        string  `json:"warning,omitempty"`
}

// EstimateOutput estimates the output for opts given the known source
// duration in seconds (0 = unknown). Sizes are only estimated where the
// bitrate is fixed by the options: target-size and lossy audio outputs.
func EstimateOutput(opts Options, knownDuration float64) *Estimate {
	est := &Estimate{
		OutputDuration: opts.OutputDuration(knownDuration),
	}

	clip := opts.ClipDuration(knownDuration)
	if !opts.HasTrimEnd() && knownDuration > 0 {
		clip = math.Max(knownDuration-opts.TrimStartSeconds, 0)
	}
	est.ClipDuration = clip

	switch {
	case opts.Format.IsLossyAudio():
		if est.OutputDuration > 0 {
			est.TotalKbps = int64(opts.AudioBitrateKbps)
			est.EstimatedSize = int64(float64(opts.AudioBitrateKbps) * 1000 / 8 * est.OutputDuration)
		}

	case opts.Format == FormatGIF || opts.Format.IsAudioOnly():
		// Lossless audio and gif sizes depend on content

	case opts.SizeConstraintMode == SizeTargetSize:
		est.TotalKbps = TotalTargetKbps(opts.TargetSizeMB, opts.ClipDuration(knownDuration))
		video, ok := TargetVideoBitrate(opts.TargetSizeMB, opts.ClipDuration(knownDuration), opts.KeepsAudio())
		if !ok {
			est.UsesFallback = true
			est.Warning = "Source duration unknown. Bitrate can't be calculated; a fixed CRF 23 will be used."
			break
		}
		est.VideoBitrate = video
		total := video
		if opts.KeepsAudio() {
			total += audioReserveBps
		}
		est.EstimatedSize = int64(float64(total) / 8 * opts.ClipDuration(knownDuration))
	}

	return est
}
