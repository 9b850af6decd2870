package camera

import "sort"

// Preset names for common capture formats
const (
	PresetDefault     = "default"
	Preset720p        = "720p"
	Preset1080p       = "1080p"
	PresetEnvironment = "environment"
	PresetLowPower    = "lowpower"
)

// Presets returns all available preset constraints.
func Presets() map[string]Constraints {
	return map[string]Constraints{
		PresetDefault:     DefaultConstraints(),
		Preset720p:        HD720Constraints(),
		Preset1080p:       HD1080Constraints(),
		PresetEnvironment: EnvironmentConstraints(),
		PresetLowPower:    LowPowerConstraints(),
	}
}

// PresetNames returns the sorted list of available preset names.
func PresetNames() []string {
	names := make([]string, 0, len(Presets()))
	for n := range Presets() {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// GetPreset returns a preset by name, or nil if not found.
func GetPreset(name string) *Constraints {
	if c, ok := Presets()[name]; ok {
		return &c
	}
	return nil
}

// HD720Constraints returns 720p HD from the user camera.
func HD720Constraints() Constraints {
	c := DefaultConstraints()
	c.Width = 1280
	c.Height = 720
	return c
}

// HD1080Constraints returns 1080p from the user camera.
// Detection runs on a downscaled copy, so this mostly affects the preview.
func HD1080Constraints() Constraints {
	c := DefaultConstraints()
	c.Width = 1920
	c.Height = 1080
	return c
}

// EnvironmentConstraints selects the rear camera at the default size.
func EnvironmentConstraints() Constraints {
	c := DefaultConstraints()
	c.FacingMode = FacingEnvironment
	return c
}

// LowPowerConstraints trades resolution and framerate for CPU.
func LowPowerConstraints() Constraints {
	c := DefaultConstraints()
	c.Width = 320
	c.Height = 240
	c.Framerate = 10
	c.Quality = 70
	return c
}
