// Package classify implements the per-pixel foreground/background test:
// compare an incoming frame sample against a pixel's committed modes and
// return the matching label.
package classify

import (
	"github.com/dbloisi/imbs-mt/internal/label"
	"github.com/dbloisi/imbs-mt/internal/pixelmodel"
)

// Classify compares sample against the pixel's valid modes, in mode
// order, up to snapshot modes (the committed-count snapshot taken at
// the last commit, not the live counter — a mid-window resample must
// never change a frame's classification outcome). The first mode
// within Chebyshev distance fgThreshold wins:
//
//   - if that mode's IsFg is set, the pixel is PERSISTENCE (an
//     absorbed-but-conditional stationary pattern under watch);
//   - otherwise the pixel is BACKGROUND.
//
// If no mode matches, the pixel is FOREGROUND. If mode 0 is not valid
// (no model has been committed yet), the pixel is BACKGROUND.
//
// Classify does not allocate and is safe to call concurrently for
// different pixels sharing the same read-only modes slice.
func Classify(sample [3]uint8, modes []pixelmodel.Mode, snapshot int, fgThreshold int) label.Label {
	if len(modes) == 0 || !modes[0].Valid {
		return label.Background
	}

	n := snapshot
	if n > len(modes) {
		n = len(modes)
	}

	for i := 0; i < n; i++ {
		m := modes[i]
		if !m.Valid {
			break
		}
		if chebyshev(m.Value, sample) < fgThreshold {
			if m.IsFg {
				return label.Persistence
			}
			return label.Background
		}
	}
	return label.Foreground
}

func chebyshev(a, b [3]uint8) int {
	max := 0
	for c := 0; c < 3; c++ {
		d := int(a[c]) - int(b[c])
		if d < 0 {
			d = -d
		}
		if d > max {
			max = d
		}
	}
	return max
}
