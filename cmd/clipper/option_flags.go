package main

import (
	"fmt"
	"strings"

	"github.com/gwlsn/clipper/internal/ffmpeg"
	"github.com/spf13/cobra"
)

// optionFlags are the transcode option flags shared by args and encode.
// Only flags the user set override the configured defaults.
type optionFlags struct {
	format       string
	resolution   string
	crf          int
	speed        float64
	noAudio      bool
	trimStart    float64
	trimEnd      float64
	gifMode      string
	targetSize   float64
	preset       string
	audioBitrate int
}

func (f *optionFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.format, "format", "", "Output format (mp4, mkv, avi, mov, webm, gif, mp3, m4a, wav, flac)")
	flags.StringVar(&f.resolution, "resolution", "", "Output height (original, 1080p, 720p, 480p)")
	flags.IntVar(&f.crf, "crf", 0, fmt.Sprintf("Constant quality factor (%d-%d, lower is better)", ffmpeg.MinCRF, ffmpeg.MaxCRF))
	flags.Float64Var(&f.speed, "speed", 0, fmt.Sprintf("Playback speed factor (%g-%g)", ffmpeg.MinSpeed, ffmpeg.MaxSpeed))
	flags.BoolVar(&f.noAudio, "no-audio", false, "Drop the audio stream")
	flags.Float64Var(&f.trimStart, "trim-start", 0, "Start of the clip in seconds")
	flags.Float64Var(&f.trimEnd, "trim-end", 0, "End of the clip in seconds")
	flags.StringVar(&f.gifMode, "gif-mode", "", "GIF palette mode (basic, pro)")
	flags.Float64Var(&f.targetSize, "target-size", 0, "Target output size in MB (switches to target-size mode)")
	flags.StringVar(&f.preset, "preset", "", "Size preset (discord, whatsapp, email)")
	flags.IntVar(&f.audioBitrate, "audio-bitrate", 0, fmt.Sprintf("Audio bitrate in kbps for mp3/m4a %v", ffmpeg.AudioBitrates))
}

// apply returns base with the flags the user set applied on top. A preset is
// applied before an explicit --target-size.
func (f *optionFlags) apply(cmd *cobra.Command, base ffmpeg.Options) (ffmpeg.Options, error) {
	opts := base
	flags := cmd.Flags()

	if f.preset != "" {
		var err error
		opts, err = ffmpeg.ApplyPreset(opts, strings.ToLower(strings.TrimSpace(f.preset)))
		if err != nil {
			return opts, err
		}
	}
	if flags.Changed("format") {
		opts.Format = ffmpeg.Format(strings.ToLower(strings.TrimSpace(f.format)))
	}
	if flags.Changed("resolution") {
		opts.Resolution = ffmpeg.Resolution(strings.ToLower(strings.TrimSpace(f.resolution)))
	}
	if flags.Changed("crf") {
		opts.QualityCRF = f.crf
		opts.SizeConstraintMode = ffmpeg.SizeConstantQuality
	}
	if flags.Changed("speed") {
		opts.SpeedFactor = f.speed
	}
	if flags.Changed("no-audio") {
		opts.RemoveAudio = f.noAudio
	}
	if flags.Changed("trim-start") {
		opts.TrimStartSeconds = f.trimStart
	}
	if flags.Changed("trim-end") {
		opts = opts.WithTrimEnd(f.trimEnd)
	}
	if flags.Changed("gif-mode") {
		opts.GIFPaletteMode = ffmpeg.GIFPaletteMode(strings.ToLower(strings.TrimSpace(f.gifMode)))
	}
	if flags.Changed("target-size") {
		opts.SizeConstraintMode = ffmpeg.SizeTargetSize
		opts.TargetSizeMB = f.targetSize
	}
	if flags.Changed("audio-bitrate") {
		opts.AudioBitrateKbps = f.audioBitrate
	}
	return opts, nil
}
