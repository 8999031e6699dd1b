// Package shadow implements BGR->HSV conversion and the shadow/highlight
// suppression test applied to pixels the classifier has already labeled
// FOREGROUND.
package shadow

import "github.com/dbloisi/imbs-mt/internal/pixelmodel"

// HSV is a pixel's hue/saturation/value triple, each channel scaled to
// [0, 255] to match the canonical 8-bit formula used throughout this
// package (avoids carrying floats through the hot per-pixel path).
type HSV struct {
	H, S, V uint8
}

// ToHSV converts a BGR sample to HSV using the canonical formula, with
// hue scaled from its natural [0, 360) range into [0, 255].
func ToHSV(bgr [3]uint8) HSV {
	b, g, r := float64(bgr[0]), float64(bgr[1]), float64(bgr[2])

	max := r
	if g > max {
		max = g
	}
	if b > max {
		max = b
	}
	min := r
	if g < min {
		min = g
	}
	if b < min {
		min = b
	}
	delta := max - min

	v := max

	var s float64
	if max > 0 {
		s = delta / max
	}

	var h float64
	switch {
	case delta == 0:
		h = 0
	case max == r:
		h = 60 * (((g - b) / delta))
	case max == g:
		h = 60 * (((b - r) / delta) + 2)
	default:
		h = 60 * (((r - g) / delta) + 4)
	}
	if h < 0 {
		h += 360
	}

	return HSV{
		H: uint8(h / 360 * 255),
		S: uint8(s * 255),
		V: uint8(v),
	}
}

// Params bundles the thresholds the suppression test needs.
type Params struct {
	TauH  int     // hue tolerance, [0,255] scale
	TauS  int     // saturation tolerance, [0,255] scale
	Alpha float64 // minimum value ratio (inclusive)
	Beta  float64 // maximum value ratio (exclusive)
}

// Suppress walks modes[0:snapshot], skipping any flagged IsFg, and tests
// each remaining valid mode's HSV against frameHSV. It returns true (and
// stops scanning) on the first mode that satisfies the hue, saturation,
// and value-ratio tests simultaneously — meaning frame should be
// relabeled SHADOW instead of FOREGROUND.
func Suppress(frameHSV HSV, modes []pixelmodel.Mode, snapshot int, p Params) bool {
	n := snapshot
	if n > len(modes) {
		n = len(modes)
	}
	for i := 0; i < n; i++ {
		m := modes[i]
		if !m.Valid {
			break
		}
		if m.IsFg {
			continue
		}
		modeHSV := ToHSV(m.Value)

		hDiff := absInt(int(modeHSV.H) - int(frameHSV.H))
		if hDiff > 255-hDiff {
			hDiff = 255 - hDiff
		}
		if hDiff > p.TauH {
			continue
		}

		sDiff := absInt(int(modeHSV.S) - int(frameHSV.S))
		if sDiff > p.TauS {
			continue
		}

		if modeHSV.V == 0 {
			continue
		}
		ratio := float64(frameHSV.V) / float64(modeHSV.V)
		if ratio < p.Alpha || ratio >= p.Beta {
			continue
		}

		return true
	}
	return false
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
