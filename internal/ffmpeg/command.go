package ffmpeg

import (
	"strconv"
)

// Stage output labels
const (
	labelVideoProcessed = "v_processed"
	labelPaletteSource  = "pal_src"
	labelPaletteInput   = "pal_in"
	labelPalette        = "palette"
	labelVideoFinal     = "v_final"
	labelAudioProcessed = "a_processed"
)

// BuildProbeArgs returns ffprobe arguments that print only the container
// duration in seconds as a bare number
func BuildProbeArgs(path string) []string {
	return []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
}

// GraphPlan is the filter graph for a transcode together with the pads that
// carry the final video and audio
type GraphPlan struct {
	Graph FilterGraph
	Video Pad
	Audio Pad
}

// PlanFilterGraph builds the filter graph for opts. Stages are added in a
// fixed order (video, gif palette, audio) so the palette is generated from
// the already scaled and retimed frames.
func PlanFilterGraph(opts Options) GraphPlan {
	plan := GraphPlan{Video: InputVideo, Audio: InputAudio}
	audioOnly := opts.Format.IsAudioOnly()

	if !audioOnly {
		var filters []Filter
		if opts.SpeedFactor != 1.0 && opts.SpeedFactor > 0 {
			filters = append(filters, setptsFilter(opts.SpeedFactor))
		}
		if height := opts.Resolution.Height(); height > 0 {
			filters = append(filters, scaleFilter(height))
		}
		if len(filters) > 0 {
			plan.Video = plan.Graph.Add(Stage{
				Kind:    StageVideo,
				Inputs:  []Pad{plan.Video},
				Filters: filters,
				Outputs: []Pad{LabelPad(labelVideoProcessed)},
			})
		}
	}

	if opts.Format == FormatGIF && opts.GIFPaletteMode == GIFPalettePro {
		src, in, palette := LabelPad(labelPaletteSource), LabelPad(labelPaletteInput), LabelPad(labelPalette)
		plan.Graph.Add(Stage{
			Kind:    StageSplit,
			Inputs:  []Pad{plan.Video},
			Filters: []Filter{{Name: "split"}},
			Outputs: []Pad{src, in},
		})
		plan.Graph.Add(Stage{
			Kind:    StagePaletteGen,
			Inputs:  []Pad{src},
			Filters: []Filter{{Name: "palettegen"}},
			Outputs: []Pad{palette},
		})
		plan.Video = plan.Graph.Add(Stage{
			Kind:    StagePaletteUse,
			Inputs:  []Pad{in, palette},
			Filters: []Filter{{Name: "paletteuse"}},
			Outputs: []Pad{LabelPad(labelVideoFinal)},
		})
	}

	if !opts.RemoveAudio && opts.Format != FormatGIF {
		if opts.SpeedFactor != 1.0 && opts.SpeedFactor > 0 {
			plan.Audio = plan.Graph.Add(Stage{
				Kind:    StageAudio,
				Inputs:  []Pad{plan.Audio},
				Filters: []Filter{atempoFilter(opts.SpeedFactor)},
				Outputs: []Pad{LabelPad(labelAudioProcessed)},
			})
		}
	}

	return plan
}

// BuildTranscodeArgs builds the ffmpeg argument list for src and opts.
// src.Duration is the known source duration in seconds (0 = unknown) and is
// only used to size target-size encodes. It never fails: degenerate inputs
// fall back to safe defaults so a runnable command is always produced.
//
// Structure: [-ss start] -i input [-t clip] [-filter_complex graph] maps rate -y output
func BuildTranscodeArgs(src Source, opts Options, outputPath string) []string {
	args := []string{}

	// Input seek: approximate, but fast
	if opts.TrimStartSeconds > 0 {
		args = append(args, "-ss", formatNumber(opts.TrimStartSeconds))
	}

	args = append(args, "-i", src.Path)

	if opts.HasTrimEnd() {
		args = append(args, "-t", formatNumber(*opts.TrimEndSeconds-opts.TrimStartSeconds))
	}

	plan := PlanFilterGraph(opts)
	if !plan.Graph.Empty() {
		args = append(args, "-filter_complex", plan.Graph.String())
	}

	audioOnly := opts.Format.IsAudioOnly()
	if audioOnly {
		args = append(args, "-vn", "-map", plan.Audio.MapArg())
		if opts.Format.IsLossyAudio() {
			args = append(args, "-b:a", strconv.Itoa(opts.AudioBitrateKbps)+"k")
		}
	} else {
		args = append(args, "-map", plan.Video.MapArg())
		if opts.KeepsAudio() {
			args = append(args, "-map", plan.Audio.MapArg())
		}
	}

	if !audioOnly && opts.Format != FormatGIF {
		args = append(args, rateControlArgs(opts, src.Duration)...)
	}

	args = append(args, "-y", outputPath)
	return args
}

// rateControlArgs returns the quality or bitrate flags for video outputs
func rateControlArgs(opts Options, knownDuration float64) []string {
	if opts.SizeConstraintMode != SizeTargetSize {
		return []string{"-crf", strconv.Itoa(opts.QualityCRF)}
	}

	keepAudio := opts.KeepsAudio()
	video, ok := TargetVideoBitrate(opts.TargetSizeMB, opts.ClipDuration(knownDuration), keepAudio)
	if !ok {
		return []string{"-crf", strconv.Itoa(fallbackCRF)}
	}

	rate := strconv.FormatInt(video, 10)
	args := []string{
		"-b:v", rate,
		"-maxrate", rate,
		"-bufsize", strconv.FormatInt(video*2, 10),
	}
	if keepAudio {
		args = append(args, "-b:a", "128k")
	}
	return args
}

// BuildThumbnailArgs builds a single-frame extraction at offset (ffmpeg time
// syntax, e.g. "00:00:01") written to outputPath
func BuildThumbnailArgs(inputPath, outputPath, offset string) []string {
	if offset == "" {
		offset = DefaultThumbnailOffset
	}
	return []string{
		"-y",
		"-ss", offset,
		"-i", inputPath,
		"-vframes", "1",
		"-q:v", "2",
		outputPath,
	}
}
