package monitor

import (
	"math"
	"strings"
)

// brailleDotRow names the four dot rows within one 2x4 Braille cell.
type brailleDotRow int

const (
	brailleDotRow0 brailleDotRow = iota
	brailleDotRow1
	brailleDotRow2
	brailleDotRow3
)

// renderWaveform renders data (assumed in [-1,1]) into a Braille string of
// width x height cells, adapted from the teacher's sample-browser waveform
// strip: each cell is a 2x4 dot matrix, one dot lit per fine column.
func renderWaveform(width, height int, data []float64) string {
	if width <= 0 || height <= 0 || len(data) == 0 {
		return ""
	}

	fineW := width * 2
	fineH := height * 4

	sampleAt := func(p float64) float64 {
		if p <= 0 {
			return data[0]
		}
		max := float64(len(data) - 1)
		if p >= max {
			return data[len(data)-1]
		}
		i := int(math.Floor(p))
		f := p - float64(i)
		return data[i]*(1-f) + data[i+1]*f
	}

	masks := make([]byte, width*height)

	const (
		dot1 = 0x01
		dot2 = 0x02
		dot3 = 0x04
		dot4 = 0x08
		dot5 = 0x10
		dot6 = 0x20
		dot7 = 0x40
		dot8 = 0x80
	)
	const brailleBase = 0x2800

	span := float64(len(data) - 1)
	if span <= 0 {
		span = 1
	}

	for x := 0; x < fineW; x++ {
		p := (float64(x) / float64(fineW-1)) * span
		v := sampleAt(p)

		y := int(math.Round((1.0 - (v+1.0)/2.0) * float64(fineH-1)))
		if y < 0 {
			y = 0
		} else if y >= fineH {
			y = fineH - 1
		}

		cellCol := x >> 1
		cellRow := y >> 2
		inCol := x & 1
		inRow := y & 3

		var bit byte
		switch brailleDotRow(inRow) {
		case brailleDotRow0:
			if inCol == 0 {
				bit = dot1
			} else {
				bit = dot4
			}
		case brailleDotRow1:
			if inCol == 0 {
				bit = dot2
			} else {
				bit = dot5
			}
		case brailleDotRow2:
			if inCol == 0 {
				bit = dot3
			} else {
				bit = dot6
			}
		default:
			if inCol == 0 {
				bit = dot7
			} else {
				bit = dot8
			}
		}

		idx := cellRow*width + cellCol
		masks[idx] |= bit
	}

	var b strings.Builder
	b.Grow(height*width + (height - 1))

	for row := 0; row < height; row++ {
		base := row * width
		for col := 0; col < width; col++ {
			mask := masks[base+col]
			r := rune(brailleBase + int(mask))
			b.WriteRune(r)
		}
		if row != height-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}
