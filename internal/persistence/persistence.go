// Package persistence implements dwell-time accumulation for pixels the
// classifier marks PERSISTENCE, and the absorption that follows once a
// pixel has dwelled long enough to be considered part of the background.
package persistence

import (
	"github.com/dbloisi/imbs-mt/internal/label"
	"github.com/dbloisi/imbs-mt/internal/pixelmodel"
)

// Update advances px's persistence dwell timer given the classifier's
// verdict for the current frame and returns the label the façade should
// actually emit for this frame.
//
// On a PERSISTENCE verdict, dwell accumulates by elapsedMs. Once dwell
// exceeds periodMs, every valid mode in px (the engine always passes the
// stable pipeline's pixel state) has its IsFg flag cleared — the pattern is no longer
// provisional, it is absorbed into the background — and dwell resets to
// 0. This frame's output is still Persistence; the absorption only
// changes how the classifier treats this pixel starting next frame.
//
// On any other verdict, dwell resets to 0 and lbl is returned unchanged.
func Update(px *pixelmodel.PixelState, lbl label.Label, elapsedMs int64, periodMs int64) label.Label {
	if lbl != label.Persistence {
		px.PersistenceDwellMs = 0
		return lbl
	}

	px.PersistenceDwellMs += elapsedMs
	if px.PersistenceDwellMs > periodMs {
		for i := range px.Modes {
			if px.Modes[i].Valid {
				px.Modes[i].IsFg = false
			}
		}
		px.PersistenceDwellMs = 0
	}

	return label.Persistence
}
