package evaluation

import (
	"image/color"
	"math"
)

// unknownColor marks voxels and vertices with no nearby surface.
var unknownColor = color.NRGBA{R: 128, G: 128, B: 128, A: 255}

// ErrorFraction normalizes an error value into [0,1] against the clamp
// distance.
func ErrorFraction(err, maximumDistance float64) float64 {
	return math.Min(err, maximumDistance) / maximumDistance
}

// ErrorColor maps a normalized error fraction to the green-to-red gradient
// shared by all coloring modes. Fractions outside [0,1] are clamped.
func ErrorColor(frac float64) color.NRGBA {
	frac = math.Max(0, math.Min(1, frac))
	r := math.Min((frac-0.5)*2+1, 1) * 255
	g := (1 - frac) * 2 * 255
	if frac <= 0.5 {
		g = 190 + 130*frac
	}
	return color.NRGBA{R: uint8(r), G: uint8(g), B: 0, A: 255}
}
