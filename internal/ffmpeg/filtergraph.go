package ffmpeg

import (
	"fmt"
	"strconv"
	"strings"
)

// Pad is a connection point in a filter graph. A stream pad refers to a raw
// input stream ("0:v"); a label pad refers to the output of a stage.
type Pad struct {
	name   string
	stream bool
}

// Raw input stream pads
var (
	InputVideo = StreamPad("0:v")
	InputAudio = StreamPad("0:a")
)

// StreamPad returns a pad for an input stream specifier
func StreamPad(spec string) Pad {
	return Pad{name: spec, stream: true}
}

// LabelPad returns a pad for a named stage output
func LabelPad(label string) Pad {
	return Pad{name: label}
}

// Name returns the specifier or label without brackets
func (p Pad) Name() string { return p.name }

// IsStream reports whether p refers to a raw input stream
func (p Pad) IsStream() bool { return p.stream }

// String returns the pad in filter graph form; always bracketed
func (p Pad) String() string {
	return "[" + p.name + "]"
}

// MapArg returns the pad as a -map value. Only stage outputs are bracketed.
func (p Pad) MapArg() string {
	if p.stream {
		return p.name
	}
	return "[" + p.name + "]"
}

// Filter is a single filter invocation within a stage
type Filter struct {
	Name string
	Args string
}

func (f Filter) String() string {
	if f.Args == "" {
		return f.Name
	}
	return f.Name + "=" + f.Args
}

// StageKind identifies what a stage does
type StageKind string

const (
	StageVideo      StageKind = "video"
	StageSplit      StageKind = "split"
	StagePaletteGen StageKind = "palettegen"
	StagePaletteUse StageKind = "paletteuse"
	StageAudio      StageKind = "audio"
)

// Stage is one filter chain: inputs, a comma-joined list of filters, outputs
type Stage struct {
	Kind    StageKind
	Inputs  []Pad
	Filters []Filter
	Outputs []Pad
}

func (s Stage) String() string {
	var b strings.Builder
	for _, in := range s.Inputs {
		b.WriteString(in.String())
	}
	for i, f := range s.Filters {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(f.String())
	}
	for _, out := range s.Outputs {
		b.WriteString(out.String())
	}
	return b.String()
}

// FilterGraph is an ordered list of stages serialized for -filter_complex
type FilterGraph struct {
	stages []Stage
}

// Add appends a stage and returns its first output pad
func (g *FilterGraph) Add(s Stage) Pad {
	g.stages = append(g.stages, s)
	if len(s.Outputs) == 0 {
		return Pad{}
	}
	return s.Outputs[0]
}

// Stages returns a copy of the stages in order
func (g *FilterGraph) Stages() []Stage {
	out := make([]Stage, len(g.stages))
	copy(out, g.stages)
	return out
}

// Empty reports whether no stage has been added
func (g *FilterGraph) Empty() bool {
	return len(g.stages) == 0
}

// String serializes the graph with stages separated by semicolons
func (g *FilterGraph) String() string {
	parts := make([]string, len(g.stages))
	for i, s := range g.stages {
		parts[i] = s.String()
	}
	return strings.Join(parts, ";")
}

// setptsFilter rescales presentation timestamps by 1/speed (2 decimals)
func setptsFilter(speed float64) Filter {
	return Filter{Name: "setpts", Args: fmt.Sprintf("%.2f*PTS", 1/speed)}
}

// scaleFilter scales to height keeping aspect ratio (even width) with lanczos
func scaleFilter(height int) Filter {
	return Filter{Name: "scale", Args: fmt.Sprintf("-2:%d:flags=lanczos", height)}
}

// atempoFilter applies the speed factor as a single tempo stage
func atempoFilter(speed float64) Filter {
	return Filter{Name: "atempo", Args: formatNumber(speed)}
}

// formatNumber renders a float in its shortest exact decimal form
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
