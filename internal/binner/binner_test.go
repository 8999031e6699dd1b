package binner

import (
	"errors"
	"testing"

	"github.com/dbloisi/imbs-mt/internal/pixelmodel"
)

func newPixelState(maxBins, maxModes int) pixelmodel.PixelState {
	return pixelmodel.PixelState{
		Bins:  make([]pixelmodel.Bin, maxBins),
		Modes: make([]pixelmodel.Mode, maxModes),
	}
}

func TestAssociate_NewBinOnMismatch(t *testing.T) {
	px := newPixelState(4, 2)
	p := Params{AssociationThreshold: 5}

	Associate(&px, [3]uint8{10, 10, 10}, false, p)
	Associate(&px, [3]uint8{200, 200, 200}, false, p)

	if px.Bins[0].Height != 1 || px.Bins[1].Height != 1 {
		t.Fatalf("expected two separate bins of height 1, got %+v", px.Bins[:2])
	}
}

func TestAssociate_MergesWithinThreshold(t *testing.T) {
	px := newPixelState(4, 2)
	p := Params{AssociationThreshold: 5}

	Associate(&px, [3]uint8{10, 10, 10}, false, p)
	Associate(&px, [3]uint8{12, 11, 9}, false, p)

	if px.Bins[0].Height != 2 {
		t.Fatalf("expected bin 0 height 2, got %d", px.Bins[0].Height)
	}
	if px.Bins[1].Height != 0 {
		t.Fatalf("expected no second bin opened, got height %d", px.Bins[1].Height)
	}
	want := [3]uint8{11, 10, 9}
	if px.Bins[0].Value != want {
		t.Fatalf("bin 0 running mean = %v, want %v", px.Bins[0].Value, want)
	}
}

func TestAssociate_MatchesAtExactThreshold(t *testing.T) {
	px := newPixelState(4, 2)
	p := Params{AssociationThreshold: 5}

	Associate(&px, [3]uint8{10, 10, 10}, false, p)
	Associate(&px, [3]uint8{15, 10, 10}, false, p)

	if px.Bins[0].Height != 2 {
		t.Fatalf("expected merge at exact threshold distance, got height %d", px.Bins[0].Height)
	}
	if px.Bins[1].Height != 0 {
		t.Fatalf("expected no second bin opened at exact threshold, got height %d", px.Bins[1].Height)
	}
}

func TestAssociate_OrsInIsFgOnMerge(t *testing.T) {
	px := newPixelState(4, 2)
	p := Params{AssociationThreshold: 5}

	Associate(&px, [3]uint8{10, 10, 10}, false, p)
	Associate(&px, [3]uint8{12, 11, 9}, true, p)

	if !px.Bins[0].IsFg {
		t.Fatalf("expected IsFg to be OR'd in true on merge")
	}
}

func TestAssociate_ReportsStarvationWhenFull(t *testing.T) {
	px := newPixelState(1, 1)
	p := Params{AssociationThreshold: 5}

	if err := Associate(&px, [3]uint8{10, 10, 10}, false, p); err != nil {
		t.Fatalf("first sample: unexpected error %v", err)
	}
	err := Associate(&px, [3]uint8{200, 200, 200}, false, p)
	if !errors.Is(err, ErrSampleStarvation) {
		t.Fatalf("expected ErrSampleStarvation, got %v", err)
	}

	if px.Bins[0].Height != 1 {
		t.Fatalf("expected the sole bin to remain at height 1, got %d", px.Bins[0].Height)
	}
}

func TestCommit_PromotesTallestBinToMode0(t *testing.T) {
	px := newPixelState(4, 4)
	p := Params{AssociationThreshold: 5, MinBinHeight: 2, PreserveDisplacedMode0: true}

	px.Bins[0] = pixelmodel.Bin{Value: [3]uint8{1, 1, 1}, Height: 3}
	px.Bins[1] = pixelmodel.Bin{Value: [3]uint8{2, 2, 2}, Height: 6}
	px.Bins[2] = pixelmodel.Bin{Value: [3]uint8{3, 3, 3}, Height: 2}

	committed, overflowed := Commit(&px, p)

	if committed != 3 {
		t.Fatalf("committed = %d, want 3", committed)
	}
	if overflowed {
		t.Fatalf("expected no overflow")
	}
	if px.Modes[0].Value != [3]uint8{2, 2, 2} {
		t.Fatalf("mode 0 = %+v, want the tallest bin's color", px.Modes[0])
	}
	for i := 0; i < 3; i++ {
		if !px.Modes[i].Valid {
			t.Fatalf("mode %d should be valid", i)
		}
	}
	if px.Modes[3].Valid {
		t.Fatalf("mode 3 should remain empty")
	}
}

func TestCommit_SkipsBinsBelowMinHeight(t *testing.T) {
	px := newPixelState(4, 4)
	p := Params{AssociationThreshold: 5, MinBinHeight: 3}

	px.Bins[0] = pixelmodel.Bin{Value: [3]uint8{1, 1, 1}, Height: 1}
	px.Bins[1] = pixelmodel.Bin{Value: [3]uint8{2, 2, 2}, Height: 5}

	committed, _ := Commit(&px, p)

	if committed != 1 {
		t.Fatalf("committed = %d, want 1", committed)
	}
	if px.Modes[0].Value != [3]uint8{2, 2, 2} {
		t.Fatalf("mode 0 = %+v, want the only qualifying bin", px.Modes[0])
	}
}

func TestCommit_PreservesDisplacedIncumbent(t *testing.T) {
	px := newPixelState(4, 4)
	p := Params{AssociationThreshold: 5, MinBinHeight: 1, PreserveDisplacedMode0: true}

	px.Bins[0] = pixelmodel.Bin{Value: [3]uint8{1, 1, 1}, Height: 4}
	px.Bins[1] = pixelmodel.Bin{Value: [3]uint8{2, 2, 2}, Height: 9}

	committed, _ := Commit(&px, p)

	if committed != 2 {
		t.Fatalf("committed = %d, want 2", committed)
	}
	if px.Modes[0].Value != [3]uint8{2, 2, 2} {
		t.Fatalf("mode 0 = %+v, want the new winner", px.Modes[0])
	}
	if px.Modes[1].Value != [3]uint8{1, 1, 1} {
		t.Fatalf("mode 1 = %+v, want the displaced incumbent preserved", px.Modes[1])
	}
}

func TestCommit_DiscardsDisplacedIncumbentWhenFlagUnset(t *testing.T) {
	px := newPixelState(4, 4)
	p := Params{AssociationThreshold: 5, MinBinHeight: 1, PreserveDisplacedMode0: false}

	px.Bins[0] = pixelmodel.Bin{Value: [3]uint8{1, 1, 1}, Height: 4}
	px.Bins[1] = pixelmodel.Bin{Value: [3]uint8{2, 2, 2}, Height: 9}

	committed, _ := Commit(&px, p)

	if committed != 1 {
		t.Fatalf("committed = %d, want 1", committed)
	}
	if px.Modes[0].Value != [3]uint8{2, 2, 2} {
		t.Fatalf("mode 0 = %+v, want the new winner", px.Modes[0])
	}
	if px.Modes[1].Valid {
		t.Fatalf("mode 1 = %+v, want empty: the old winner is discarded", px.Modes[1])
	}
}

func TestCommit_TiesDoNotDisplace(t *testing.T) {
	px := newPixelState(4, 4)
	p := Params{AssociationThreshold: 5, MinBinHeight: 1}

	px.Bins[0] = pixelmodel.Bin{Value: [3]uint8{1, 1, 1}, Height: 5}
	px.Bins[1] = pixelmodel.Bin{Value: [3]uint8{2, 2, 2}, Height: 5}

	Commit(&px, p)

	if px.Modes[0].Value != [3]uint8{1, 1, 1} {
		t.Fatalf("mode 0 = %+v, want the first bin to keep the win on a tie", px.Modes[0])
	}
}

func TestCommit_ClearsBinsAndTracksCommittedCount(t *testing.T) {
	px := newPixelState(4, 4)
	p := Params{AssociationThreshold: 5, MinBinHeight: 1}

	px.Bins[0] = pixelmodel.Bin{Value: [3]uint8{1, 1, 1}, Height: 5}
	px.Bins[1] = pixelmodel.Bin{Value: [3]uint8{2, 2, 2}, Height: 3}
	// A stale value from a prior commit must be overwritten, not
	// accumulated: CommittedCount/CommittedCountSnapshot bound the
	// classifier's scan over px.Modes and so must never exceed its
	// capacity, regardless of how many commits have happened before.
	px.CommittedCount = 7

	Commit(&px, p)

	if px.CommittedCountSnapshot != 2 {
		t.Fatalf("CommittedCountSnapshot = %d, want 2 (modes just committed)", px.CommittedCountSnapshot)
	}
	if px.CommittedCount != 2 {
		t.Fatalf("CommittedCount = %d, want 2, not accumulated across commits", px.CommittedCount)
	}
	for i := range px.Bins {
		if px.Bins[i].Height != 0 {
			t.Fatalf("bin %d not cleared: %+v", i, px.Bins[i])
		}
	}
}

func TestCommit_NoOverflowWhenQualifyingBinsExactlyFillModeCapacity(t *testing.T) {
	px := newPixelState(2, 2)
	p := Params{AssociationThreshold: 5, MinBinHeight: 1}

	px.Bins[0] = pixelmodel.Bin{Value: [3]uint8{1, 1, 1}, Height: 3}
	px.Bins[1] = pixelmodel.Bin{Value: [3]uint8{2, 2, 2}, Height: 3}

	committed, overflowed := Commit(&px, p)

	if overflowed {
		t.Fatalf("expected no overflow: committed == K is not > K")
	}
	if committed != 2 {
		t.Fatalf("committed = %d, want 2", committed)
	}
}

func TestCommit_ReportsOverflowWhenMoreBinsQualifyThanModeCapacity(t *testing.T) {
	px := newPixelState(3, 2)
	p := Params{AssociationThreshold: 5, MinBinHeight: 1}

	px.Bins[0] = pixelmodel.Bin{Value: [3]uint8{1, 1, 1}, Height: 3}
	px.Bins[1] = pixelmodel.Bin{Value: [3]uint8{2, 2, 2}, Height: 3}
	px.Bins[2] = pixelmodel.Bin{Value: [3]uint8{3, 3, 3}, Height: 3}

	committed, overflowed := Commit(&px, p)

	if !overflowed {
		t.Fatalf("expected overflow when 3 bins qualify but only 2 mode slots exist")
	}
	if committed != 2 {
		t.Fatalf("committed = %d, want 2 (only K kept)", committed)
	}
}

func TestCommit_StopsAtFreeBinSlot(t *testing.T) {
	px := newPixelState(4, 4)
	p := Params{AssociationThreshold: 5, MinBinHeight: 1}

	px.Bins[0] = pixelmodel.Bin{Value: [3]uint8{1, 1, 1}, Height: 3}
	// Bins[1] left at Height 0; Bins[2] would otherwise qualify but
	// must never be reached since bins are packed left-to-right.
	px.Bins[2] = pixelmodel.Bin{Value: [3]uint8{9, 9, 9}, Height: 9}

	committed, overflowed := Commit(&px, p)

	if committed != 1 {
		t.Fatalf("committed = %d, want 1 (scan must stop at the first empty bin)", committed)
	}
	if overflowed {
		t.Fatalf("expected no overflow")
	}
}

func TestChebyshev(t *testing.T) {
	tests := []struct {
		a, b [3]uint8
		want int
	}{
		{[3]uint8{0, 0, 0}, [3]uint8{0, 0, 0}, 0},
		{[3]uint8{10, 20, 30}, [3]uint8{12, 15, 31}, 5},
		{[3]uint8{255, 0, 0}, [3]uint8{0, 0, 0}, 255},
	}
	for _, tt := range tests {
		if got := chebyshev(tt.a, tt.b); got != tt.want {
			t.Errorf("chebyshev(%v, %v) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
