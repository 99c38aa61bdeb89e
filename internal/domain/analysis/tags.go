package analysis

import "github.com/okian/lutcurate/internal/domain/features"

// Tag thresholds over the lightweight vector.
const (
	neutralSaturation = 0.12
	mutedSaturation   = 0.25
	vividSaturation   = 0.5
	darkValue         = 0.35
	brightValue       = 0.65
	highContrast      = 0.9
	lowContrast       = 0.6
)

// Tags derives descriptive labels from a lightweight vector: temperature
// from the mean hue, saturation and brightness from the HSV means, and
// contrast from the output range.
func Tags(v []float64) []string {
	if len(v) != features.LightweightDims {
		return nil
	}
	hue, sat, val, con := v[0], v[1], v[2], v[6]

	tags := make([]string, 0, 4)
	switch {
	case sat < neutralSaturation:
		tags = append(tags, "neutral")
	case hue < 70 || hue >= 300:
		tags = append(tags, "warm")
	case hue >= 160 && hue < 280:
		tags = append(tags, "cool")
	default:
		tags = append(tags, "neutral")
	}
	switch {
	case sat < mutedSaturation:
		tags = append(tags, "muted")
	case sat > vividSaturation:
		tags = append(tags, "vivid")
	}
	switch {
	case val < darkValue:
		tags = append(tags, "dark")
	case val > brightValue:
		tags = append(tags, "bright")
	}
	switch {
	case con >= highContrast:
		tags = append(tags, "high-contrast")
	case con < lowContrast:
		tags = append(tags, "low-contrast")
	}
	return tags
}
