package imbs

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dbloisi/imbs-mt/internal/pixelmodel"
)

// tileIndexFor maps a global pixel coordinate to its owning tile index
// and within-tile offset. It reports ok=false for pixels that fall in
// the remainder strip outside the tile grid (dropped per the tile
// scheduler's "remainder rows/columns are dropped" rule), which never
// have any pixel state to save or load.
func (e *Engine) tileIndexFor(x, y int) (tileIdx, local int, ok bool) {
	g := e.grid
	if x >= g.HSplits*g.TileW || y >= g.VSplits*g.TileH {
		return 0, 0, false
	}
	col := x / g.TileW
	row := y / g.TileH
	lx := x - col*g.TileW
	ly := y - row*g.TileH
	return row*g.HSplits + col, ly*g.TileW + lx, true
}

// SaveModel writes eng's current stable-pipeline model in the
// project's text persistence format: a width/height header line, an
// opaque frame-type line (always "0"; LoadModel reads that line and
// discards its value, so a frame type from a loaded file is not written
// back), then one data line per pixel
// (row-major) of up to K space-separated "R G B" triples (note: disk
// order is R,G,B; in-memory storage is BGR), each followed by a blank
// separator line.
func SaveModel(w io.Writer, eng *Engine) error {
	bw := bufio.NewWriter(w)

	if _, err := fmt.Fprintf(bw, "%d %d\n", eng.width, eng.height); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(bw, "%d\n", 0); err != nil {
		return err
	}

	for y := 0; y < eng.height; y++ {
		for x := 0; x < eng.width; x++ {
			tileIdx, local, ok := eng.tileIndexFor(x, y)
			var px *pixelmodel.PixelState
			if ok {
				px = &eng.tiles[tileIdx].store.Stable[local]
			}

			var parts []string
			if px != nil {
				for i := range px.Modes {
					m := px.Modes[i]
					if !m.Valid {
						break
					}
					parts = append(parts, strconv.Itoa(int(m.Value[2])), strconv.Itoa(int(m.Value[1])), strconv.Itoa(int(m.Value[0])))
				}
			}
			if _, err := fmt.Fprintln(bw, strings.Join(parts, " ")); err != nil {
				return err
			}
			if _, err := fmt.Fprintln(bw); err != nil {
				return err
			}
		}
	}

	return bw.Flush()
}

// LoadModel reads a model previously written by SaveModel and returns a
// new Engine seeded with it. The engine's stable pipeline is treated as
// already committed (classification reads it from the first Apply call)
// and its incremental pipeline is permanently disabled, matching "the
// incremental pipeline is disabled for a loaded model."
func LoadModel(r io.Reader, cfg Config) (*Engine, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)

	if !sc.Scan() {
		return nil, fmt.Errorf("%w: missing header line", ErrModelLoadFormat)
	}
	var width, height int
	if _, err := fmt.Sscanf(sc.Text(), "%d %d", &width, &height); err != nil {
		return nil, fmt.Errorf("%w: malformed header %q: %v", ErrModelLoadFormat, sc.Text(), err)
	}

	if !sc.Scan() {
		return nil, fmt.Errorf("%w: missing frame-type line", ErrModelLoadFormat)
	}
	// frame-type value is intentionally discarded: the original format
	// round-trips it verbatim but no consumer interprets it.

	eng, err := New(cfg, width, height)
	if err != nil {
		return nil, err
	}

	minBinHeight := eng.cfg.MinBinHeight

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if !sc.Scan() {
				return nil, fmt.Errorf("%w: truncated before pixel (%d,%d)", ErrModelLoadFormat, x, y)
			}
			line := strings.TrimSpace(sc.Text())

			tileIdx, local, ok := eng.tileIndexFor(x, y)

			if !sc.Scan() {
				return nil, fmt.Errorf("%w: missing blank separator after pixel (%d,%d)", ErrModelLoadFormat, x, y)
			}
			if strings.TrimSpace(sc.Text()) != "" {
				return nil, fmt.Errorf("%w: expected blank separator after pixel (%d,%d)", ErrModelLoadFormat, x, y)
			}

			if line == "" || !ok {
				continue
			}

			fields := strings.Fields(line)
			if len(fields)%3 != 0 {
				return nil, fmt.Errorf("%w: pixel (%d,%d) has %d fields, not a multiple of 3", ErrModelLoadFormat, x, y, len(fields))
			}

			px := &eng.tiles[tileIdx].store.Stable[local]
			numModes := len(fields) / 3
			if numModes > len(px.Modes) {
				numModes = len(px.Modes)
			}
			for i := 0; i < numModes; i++ {
				r, err1 := strconv.Atoi(fields[i*3])
				g, err2 := strconv.Atoi(fields[i*3+1])
				b, err3 := strconv.Atoi(fields[i*3+2])
				if err1 != nil || err2 != nil || err3 != nil {
					return nil, fmt.Errorf("%w: pixel (%d,%d) mode %d has non-integer channel", ErrModelLoadFormat, x, y, i)
				}
				px.Modes[i] = pixelmodel.Mode{
					Value:   [3]uint8{byte(b), byte(g), byte(r)},
					Valid:   true,
					IsFg:    false,
					Counter: uint16(minBinHeight),
				}
			}
			px.CommittedCount = numModes
			px.CommittedCountSnapshot = numModes
		}
	}

	for i := range eng.tiles {
		eng.tiles[i].ctrl.MarkLoaded()
	}

	return eng, nil
}
