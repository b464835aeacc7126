package ffmpeg

import "fmt"

// Preset is a named target-size shortcut for sharing destinations with
// upload limits
type Preset struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	TargetSizeMB float64 `json:"target_size_mb"`
}

// BasePresets defines the presets in display order
var BasePresets = []Preset{
	{"discord", "Discord", "Fit under Discord's 25 MB upload limit", 25},
	{"whatsapp", "WhatsApp", "Fit under WhatsApp's 16 MB media limit", 16},
	{"email", "Email", "Small enough to attach to an email", 10},
}

// ListPresets returns all presets
func ListPresets() []Preset {
	out := make([]Preset, len(BasePresets))
	copy(out, BasePresets)
	return out
}

// GetPreset returns a preset by ID
func GetPreset(id string) *Preset {
	for _, p := range BasePresets {
		if p.ID == id {
			preset := p
			return &preset
		}
	}
	return nil
}

// ApplyPreset returns a copy of opts switched to target-size mode with the
// preset's size
func ApplyPreset(opts Options, id string) (Options, error) {
	preset := GetPreset(id)
	if preset == nil {
		return opts, fmt.Errorf("unknown preset %q", id)
	}
	opts.SizeConstraintMode = SizeTargetSize
	opts.TargetSizeMB = preset.TargetSizeMB
	return opts, nil
}
