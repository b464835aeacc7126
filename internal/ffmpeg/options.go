package ffmpeg

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Format is the output container or audio format
type Format string

const (
	FormatMP4  Format = "mp4"
	FormatMKV  Format = "mkv"
	FormatAVI  Format = "avi"
	FormatMOV  Format = "mov"
	FormatWebM Format = "webm"
	FormatGIF  Format = "gif"
	FormatMP3  Format = "mp3"
	FormatM4A  Format = "m4a"
	FormatWAV  Format = "wav"
	FormatFLAC Format = "flac"
)

// Formats lists every supported output format in display order
var Formats = []Format{
	FormatMP4, FormatMKV, FormatAVI, FormatMOV, FormatWebM, FormatGIF,
	FormatMP3, FormatM4A, FormatWAV, FormatFLAC,
}

// IsValid returns true if f is one of the supported formats
func (f Format) IsValid() bool {
	for _, known := range Formats {
		if f == known {
			return true
		}
	}
	return false
}

// IsAudioOnly returns true for formats that carry no video stream
func (f Format) IsAudioOnly() bool {
	switch f {
	case FormatMP3, FormatM4A, FormatWAV, FormatFLAC:
		return true
	}
	return false
}

// IsLossyAudio returns true for audio-only formats that take a bitrate
func (f Format) IsLossyAudio() bool {
	return f == FormatMP3 || f == FormatM4A
}

// Extension returns the file extension including the leading dot
func (f Format) Extension() string {
	return "." + string(f)
}

// Resolution is the requested output height
type Resolution string

const (
	ResolutionOriginal Resolution = "original"
	Resolution1080p    Resolution = "1080p"
	Resolution720p     Resolution = "720p"
	Resolution480p     Resolution = "480p"
)

// Height returns the pixel height for the resolution, or 0 for original
func (r Resolution) Height() int {
	switch r {
	case Resolution1080p:
		return 1080
	case Resolution720p:
		return 720
	case Resolution480p:
		return 480
	}
	return 0
}

// IsValid returns true if r is a known resolution
func (r Resolution) IsValid() bool {
	return r == ResolutionOriginal || r.Height() > 0
}

// GIFPaletteMode selects single-pass or two-pass palette generation
type GIFPaletteMode string

const (
	GIFPaletteBasic GIFPaletteMode = "basic"
	GIFPalettePro   GIFPaletteMode = "pro"
)

// SizeConstraintMode selects the rate control strategy for video outputs
type SizeConstraintMode string

const (
	SizeConstantQuality SizeConstraintMode = "constantQuality"
	SizeTargetSize      SizeConstraintMode = "targetSize"
)

// Quality and speed bounds accepted from users
const (
	MinCRF   = 18
	MaxCRF   = 51
	MinSpeed = 0.5
	MaxSpeed = 2.0
)

// AudioBitrates are the selectable bitrates (kbps) for lossy audio outputs
var AudioBitrates = []int{128, 192, 256, 320}

// Options describes a single transcode. It is treated as an immutable value:
// nothing in this package modifies an Options it is handed.
type Options struct {
	Format             Format             `json:"format" yaml:"format"`
	Resolution         Resolution         `json:"resolution" yaml:"resolution"`
	QualityCRF         int                `json:"quality_crf" yaml:"quality_crf"`
	SpeedFactor        float64            `json:"speed_factor" yaml:"speed_factor"`
	RemoveAudio        bool               `json:"remove_audio" yaml:"remove_audio"`
	TrimStartSeconds   float64            `json:"trim_start" yaml:"trim_start"`
	TrimEndSeconds     *float64           `json:"trim_end,omitempty" yaml:"trim_end,omitempty"` // nil = end of source
	GIFPaletteMode     GIFPaletteMode     `json:"gif_palette_mode" yaml:"gif_palette_mode"`
	SizeConstraintMode SizeConstraintMode `json:"size_constraint_mode" yaml:"size_constraint_mode"`
	TargetSizeMB       float64            `json:"target_size_mb" yaml:"target_size_mb"`
	AudioBitrateKbps   int                `json:"audio_bitrate_kbps" yaml:"audio_bitrate_kbps"`
}

// DefaultOptions returns the options a freshly loaded source starts with
func DefaultOptions() Options {
	return Options{
		Format:             FormatMP4,
		Resolution:         ResolutionOriginal,
		QualityCRF:         23,
		SpeedFactor:        1.0,
		GIFPaletteMode:     GIFPaletteBasic,
		SizeConstraintMode: SizeConstantQuality,
		TargetSizeMB:       25,
		AudioBitrateKbps:   192,
	}
}

// Source identifies the input media. Duration is in seconds; 0 means unknown.
type Source struct {
	Path     string  `json:"path"`
	Duration float64 `json:"duration"`
}

// KeepsAudio reports whether the output carries an audio stream
func (o Options) KeepsAudio() bool {
	if o.Format.IsAudioOnly() {
		return true
	}
	return !o.RemoveAudio && o.Format != FormatGIF
}

// HasTrimEnd reports whether the trim end is set and lies after the trim start.
// An end at or before the start is treated as absent.
func (o Options) HasTrimEnd() bool {
	return o.TrimEndSeconds != nil && *o.TrimEndSeconds > o.TrimStartSeconds
}

// ClipDuration returns the length of the trimmed range, or knownDuration when
// no valid trim end is set
func (o Options) ClipDuration(knownDuration float64) float64 {
	if o.HasTrimEnd() {
		return *o.TrimEndSeconds - o.TrimStartSeconds
	}
	return knownDuration
}

// OutputDuration returns the expected output timeline length in seconds after
// trimming and speed adjustment. Returns 0 when it cannot be determined.
func (o Options) OutputDuration(knownDuration float64) float64 {
	d := o.ClipDuration(knownDuration)
	if !o.HasTrimEnd() && knownDuration > 0 {
		d = knownDuration - o.TrimStartSeconds
	}
	if d <= 0 {
		return 0
	}
	if o.SpeedFactor > 0 && o.SpeedFactor != 1.0 {
		d /= o.SpeedFactor
	}
	return d
}

// WithTrimEnd returns a copy of o with the trim end set
func (o Options) WithTrimEnd(seconds float64) Options {
	o.TrimEndSeconds = &seconds
	return o
}

// Validate checks user-supplied options. knownDuration is the source duration
// in seconds (0 = unknown). A trim end at or before the trim start is not an
// error: it is ignored when building the command.
func (o Options) Validate(knownDuration float64) error {
	var errs []error

	if !o.Format.IsValid() {
		errs = append(errs, fmt.Errorf("format: unsupported value %q", o.Format))
	}
	if !o.Format.IsAudioOnly() && !o.Resolution.IsValid() {
		errs = append(errs, fmt.Errorf("resolution: unsupported value %q", o.Resolution))
	}
	if o.Format != FormatGIF && !o.Format.IsAudioOnly() &&
		o.SizeConstraintMode != SizeTargetSize &&
		(o.QualityCRF < MinCRF || o.QualityCRF > MaxCRF) {
		errs = append(errs, fmt.Errorf("quality_crf: %d outside %d-%d", o.QualityCRF, MinCRF, MaxCRF))
	}
	if o.SpeedFactor < MinSpeed || o.SpeedFactor > MaxSpeed {
		errs = append(errs, fmt.Errorf("speed_factor: %g outside %g-%g", o.SpeedFactor, MinSpeed, MaxSpeed))
	}
	if o.TrimStartSeconds < 0 {
		errs = append(errs, fmt.Errorf("trim_start: must not be negative"))
	}
	if knownDuration > 0 && o.TrimStartSeconds >= knownDuration {
		errs = append(errs, fmt.Errorf("trim_start: %g is past the end of the source (%g)", o.TrimStartSeconds, knownDuration))
	}
	if o.Format == FormatGIF && o.GIFPaletteMode != GIFPaletteBasic && o.GIFPaletteMode != GIFPalettePro {
		errs = append(errs, fmt.Errorf("gif_palette_mode: unsupported value %q", o.GIFPaletteMode))
	}
	switch o.SizeConstraintMode {
	case SizeConstantQuality:
	case SizeTargetSize:
		if o.TargetSizeMB <= 0 {
			errs = append(errs, fmt.Errorf("target_size_mb: must be greater than 0"))
		}
	default:
		errs = append(errs, fmt.Errorf("size_constraint_mode: unsupported value %q", o.SizeConstraintMode))
	}
	if o.Format.IsLossyAudio() && !isAudioBitrate(o.AudioBitrateKbps) {
		errs = append(errs, fmt.Errorf("audio_bitrate_kbps: %d not one of %v", o.AudioBitrateKbps, AudioBitrates))
	}

	return errors.Join(errs...)
}

func isAudioBitrate(kbps int) bool {
	for _, b := range AudioBitrates {
		if kbps == b {
			return true
		}
	}
	return false
}

// DefaultOutputPath derives an output path next to the input with the
// format's extension. The result never equals the input path.
func DefaultOutputPath(inputPath string, format Format) string {
	dir := filepath.Dir(inputPath)
	base := filepath.Base(inputPath)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, name+"_converted"+format.Extension())
}
