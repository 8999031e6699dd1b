// Package tile partitions a frame into a grid of equal-size regions and
// dispatches one worker goroutine per tile. The per-tile pixel model
// stores and sampling controllers that survive across frames are owned
// by the caller, not by this package.
package tile

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Grid describes how a W x H frame is split among numWorkers workers.
type Grid struct {
	Width, Height int
	HSplits       int
	VSplits       int
	TileW         int
	TileH         int
}

// NewGrid computes the tile layout for a frame of the given dimensions
// and worker count: hSplits = ceil(numWorkers/2), vSplits =
// floor(numWorkers/hSplits), so hSplits*vSplits <= numWorkers. The frame
// is divided into a vSplits x hSplits grid of equal tiles; remainder
// rows and columns past the grid's extent belong to no tile.
func NewGrid(width, height, numWorkers int) Grid {
	if numWorkers < 1 {
		numWorkers = 1
	}
	hSplits := (numWorkers + 1) / 2
	vSplits := numWorkers / hSplits
	if vSplits < 1 {
		vSplits = 1
	}
	return Grid{
		Width:   width,
		Height:  height,
		HSplits: hSplits,
		VSplits: vSplits,
		TileW:   width / hSplits,
		TileH:   height / vSplits,
	}
}

// Count returns the number of tiles in the grid.
func (g Grid) Count() int {
	return g.HSplits * g.VSplits
}

// Bounds returns the pixel-rectangle [x0,x1) x [y0,y1) for tile index i,
// in row-major order (tile 0 is top-left, tiles fill left-to-right then
// top-to-bottom).
func (g Grid) Bounds(i int) (x0, y0, x1, y1 int) {
	col := i % g.HSplits
	row := i / g.HSplits
	x0 = col * g.TileW
	y0 = row * g.TileH
	x1 = x0 + g.TileW
	y1 = y0 + g.TileH
	return
}

// TileFunc processes one tile's region of a frame. i is the tile index;
// x0,y0,x1,y1 bound the tile's pixels within the frame.
type TileFunc func(i, x0, y0, x1, y1 int) error

// Run spawns one goroutine per tile in the grid and waits for all of
// them to finish. If any tile returns a non-nil error, Run returns the
// first such error wrapped with the failing tile's index; no partial
// result should be trusted by the caller in that case. Tiles do not
// receive a context (the per-tile work here has no cancellation points
// of its own), and neither Run nor the tiles observe ctx, so cancelling
// it or giving it a deadline does not stop a frame in progress: every
// tile runs to completion before Run returns.
func Run(ctx context.Context, g Grid, fn TileFunc) error {
	eg, _ := errgroup.WithContext(ctx)
	for i := 0; i < g.Count(); i++ {
		i := i
		x0, y0, x1, y1 := g.Bounds(i)
		eg.Go(func() error {
			if err := fn(i, x0, y0, x1, y1); err != nil {
				return fmt.Errorf("tile %d: %w", i, err)
			}
			return nil
		})
	}
	return eg.Wait()
}
