package sequencer

import "github.com/schollz/orchestron/internal/types"

// sampleCurve evaluates a piecewise-linear controller curve at position
// (0..1 within the pad). Keypoints must be sorted by Position; when pad has
// no keypoints sampleCurve returns 0.
func sampleCurve(pad types.ControllerPad, position float64) float64 {
	kp := pad.Keypoints
	if len(kp) == 0 {
		return 0
	}
	if position <= kp[0].Position {
		return kp[0].Value
	}
	last := kp[len(kp)-1]
	if position >= last.Position {
		return last.Value
	}
	for i := 0; i < len(kp)-1; i++ {
		a, b := kp[i], kp[i+1]
		if position >= a.Position && position <= b.Position {
			if b.Position == a.Position {
				return a.Value
			}
			frac := (position - a.Position) / (b.Position - a.Position)
			return a.Value + frac*(b.Value-a.Value)
		}
	}
	return last.Value
}

// oversamplePositions returns the `oversample` evenly spaced sample positions
// within one step, per spec.md §4.6 step 4's "8 samples per step."
func oversamplePositions(oversample int) []float64 {
	positions := make([]float64, oversample)
	for i := 0; i < oversample; i++ {
		positions[i] = float64(i) / float64(oversample)
	}
	return positions
}
