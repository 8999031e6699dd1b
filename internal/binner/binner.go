// Package binner implements sample association and bin-to-mode
// commitment: the per-pixel online clustering step that turns a window
// of raw color samples into a small set of committed background modes.
package binner

import (
	"errors"

	"github.com/dbloisi/imbs-mt/internal/pixelmodel"
)

// ErrSampleStarvation is returned when a sample was scheduled for
// association but every bin slot was already in use and none matched
// it. Reaching this is an implementation bug, not a caller error: a
// pixel's Bins slice has capacity equal to the sampling window size, and
// at most one sample per frame is ever associated against it, so the
// window can never hold more samples than it has room for.
var ErrSampleStarvation = errors.New("binner: sample starvation")

// Params bundles the subset of engine configuration the binner needs.
// It is passed by value on every call since it is small and read-only.
type Params struct {
	// AssociationThreshold is the Chebyshev (max channel) distance at
	// or below which a sample is merged into an existing bin instead of
	// starting a new one.
	AssociationThreshold int
	// MinBinHeight is the minimum sample count a bin must reach during
	// a commit scan to be promoted to a mode.
	MinBinHeight int
	// PreserveDisplacedMode0 controls what happens to the incumbent
	// mode 0 when a taller bin displaces it during Commit. When true
	// (the historical IMBS behavior) the displaced incumbent is
	// moved into the slot the new winner came from instead of being
	// dropped; when false it is dropped.
	PreserveDisplacedMode0 bool
}

// Associate merges sample into the first of px's existing bins whose
// per-channel distance to sample is within AssociationThreshold on
// every channel, or opens a new bin otherwise. A matched bin's value is
// updated to the running per-channel mean `(value*height + sample) /
// (height+1)` (integer division) and its height incremented.
//
// countsAsFg is the caller's foreground-origin verdict for this sample,
// already resolved against the pipeline-specific policy (the stable
// pipeline only counts a hard FOREGROUND classification; the
// incremental pipeline counts any non-BACKGROUND label). A matched
// bin's IsFg is OR'd with countsAsFg; a newly opened bin's IsFg is set
// to it directly.
//
// Associate never allocates: bins live in px.Bins, a fixed-capacity
// slice sized to the sampling window at construction time. It returns
// ErrSampleStarvation if every bin slot is already in use and sample
// does not match any of them — a condition the caller should treat as
// fatal, since the sampling window and scheduling cadence together are
// supposed to make it structurally impossible.
func Associate(px *pixelmodel.PixelState, sample [3]uint8, countsAsFg bool, p Params) error {
	for i := range px.Bins {
		b := &px.Bins[i]
		if b.Height == 0 {
			b.Value = sample
			b.Height = 1
			b.IsFg = countsAsFg
			return nil
		}
		if chebyshev(b.Value, sample) <= p.AssociationThreshold {
			h := int(b.Height)
			for c := 0; c < 3; c++ {
				b.Value[c] = uint8((int(b.Value[c])*h + int(sample[c])) / (h + 1))
			}
			b.Height++
			b.IsFg = b.IsFg || countsAsFg
			return nil
		}
	}
	return ErrSampleStarvation
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

// Commit scans px.Bins for the tallest qualifying bin (height >=
// MinBinHeight) and promotes it to mode 0; the other qualifying bins
// follow it in encounter order, except that a displaced incumbent takes
// the slot its replacement came from. It then clears all bins so the
// pixel begins a fresh sampling window.
//
// The scan is a single left-to-right pass that tracks the tallest
// qualifying bin seen so far (the incumbent winner). Every bin at or
// above MinBinHeight is written into the next free mode slot in the
// order it is encountered; the first such bin always lands in slot 0
// and becomes the incumbent. Whenever a later bin exceeds the
// incumbent's height, it takes over slot 0 and — if
// PreserveDisplacedMode0 is set — the displaced incumbent moves into the
// slot the new winner was written to rather than being discarded; when
// the flag is unset the incumbent is dropped and that slot is reused by
// the next qualifying bin. Ties do not displace:
// the first bin to reach a given height keeps the win. This
// displacement is local to the current commit; it never reaches back
// into modes left over from a previous commit. Because bins are always
// packed left-to-right with no gaps, the scan stops at the first bin
// with Height == 0.
//
// Commit returns the number of modes committed and whether more than
// len(px.Modes) (K) bins qualified (height >= MinBinHeight) during this
// commit — the TooManyModes condition — in which case only the first K
// qualifying bins are kept and the scan stops at the offending bin,
// matching "increment a counter to remember overflow was one too many,
// then stop."
func Commit(px *pixelmodel.PixelState, p Params) (committed int, overflowed bool) {
	for i := range px.Modes {
		px.Modes[i] = pixelmodel.Mode{}
	}

	winnerHeight := uint16(0)
	haveWinner := false
	next := 0

	for i := range px.Bins {
		b := px.Bins[i]
		if b.Height == 0 {
			break
		}
		if int(b.Height) < p.MinBinHeight {
			continue
		}
		if next >= len(px.Modes) {
			overflowed = true
			break
		}
		slot := next
		px.Modes[slot] = pixelmodel.Mode{Value: b.Value, Valid: true, IsFg: b.IsFg, Counter: b.Height}
		next++

		if !haveWinner {
			// The first qualifying bin always lands at slot 0 (slot ==
			// 0 here), so it becomes the incumbent winner with no
			// swap needed.
			haveWinner = true
			winnerHeight = b.Height
			continue
		}

		if b.Height > winnerHeight {
			// Displace the incumbent out of slot 0. With
			// PreserveDisplacedMode0 set, the incumbent is relocated
			// to the slot the new winner was just written into;
			// otherwise it is overwritten and that slot is freed for
			// the next qualifying bin.
			if p.PreserveDisplacedMode0 {
				px.Modes[0], px.Modes[slot] = px.Modes[slot], px.Modes[0]
			} else {
				px.Modes[0] = px.Modes[slot]
				px.Modes[slot] = pixelmodel.Mode{}
				next--
			}
			winnerHeight = b.Height
		}
	}

	committed = next

	for i := range px.Bins {
		px.Bins[i] = pixelmodel.Bin{}
	}

	// CommittedCount/CommittedCountSnapshot both track the number of
	// currently valid modes (0..len(px.Modes)), not a cumulative count
	// of commits ever made: the classifier bounds its scan by this
	// value, so it must never exceed the mode table's capacity.
	px.CommittedCount = committed
	px.CommittedCountSnapshot = committed

	return committed, overflowed
}
