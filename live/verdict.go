// Package live - Frame-by-frame fire detection on a camera or video stream.
package live

import (
	"fmt"
	"image/color"
)

// Labels rendered on the frame.
const (
	FireLabel   = "Fire Detected"
	NoFireLabel = "No Fire"
)

var (
	// FireColor is the overlay colour of a fire verdict.
	FireColor = color.RGBA{255, 0, 0, 0}
	// NoFireColor is the overlay colour of a no-fire verdict.
	NoFireColor = color.RGBA{0, 255, 0, 0}
)

// Verdict is the decision for one frame.
type Verdict struct {
	Probability float32
	Fire        bool
	Label       string
	Color       color.RGBA
}

// Text is the overlay line, e.g. "Fire Detected (0.95)".
func (v Verdict) Text() string {
	return fmt.Sprintf("%s (%.2f)", v.Label, v.Probability)
}

// Classify thresholds a probability. Only probabilities strictly above the
// threshold are fire.
//
// Arguments:
//   - p: The fire probability.
//   - threshold: The decision threshold.
//
// Returns:
//   - Verdict: The decision with its label and colour.
func Classify(p float32, threshold float64) Verdict {
	if p > float32(threshold) {
		return Verdict{Probability: p, Fire: true, Label: FireLabel, Color: FireColor}
	}
	return Verdict{Probability: p, Label: NoFireLabel, Color: NoFireColor}
}
