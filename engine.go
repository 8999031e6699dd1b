// Package imbs implements independent multi-modal background
// subtraction: a tiled, dual-pipeline, per-pixel color-mode model that
// classifies video frames into background, foreground, shadow, and
// persistence-absorbed regions.
package imbs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dbloisi/imbs-mt/internal/binner"
	"github.com/dbloisi/imbs-mt/internal/classify"
	"github.com/dbloisi/imbs-mt/internal/label"
	"github.com/dbloisi/imbs-mt/internal/persistence"
	"github.com/dbloisi/imbs-mt/internal/pipeline"
	"github.com/dbloisi/imbs-mt/internal/pixelmodel"
	"github.com/dbloisi/imbs-mt/internal/shadow"
	"github.com/dbloisi/imbs-mt/internal/tile"
)

// ModeView is a read-only snapshot of one committed mode, returned by
// Engine.Modes for callers that want to inspect the multi-modal
// structure directly rather than through the flattened background
// image.
type ModeView struct {
	Value   [3]uint8
	IsFg    bool
	Counter int
}

// Diagnostics reports counts of recovered, non-fatal conditions
// encountered since the engine was constructed. These are not part of
// Engine's error contract; they exist purely for optional observability.
type Diagnostics struct {
	TooManyModes    int64
	EmptyShadowScan int64
}

type tileState struct {
	store *pixelmodel.Store
	ctrl  *pipeline.Controller

	prevForegroundCount int
	prevTotalPixels     int
}

// Engine is a background subtractor bound to one fixed frame size. It is
// not safe for concurrent use: Apply, BackgroundImage, Modes, and
// Diagnostics must all be called from the same goroutine (or under the
// caller's own external synchronization), since each call may mutate the
// engine's internal state.
type Engine struct {
	cfg    Config
	width  int
	height int

	grid  tile.Grid
	tiles []tileState

	binParams      binner.Params
	classifyThresh int
	shadowParams   shadow.Params
	pipeParams     pipeline.Params

	prevTimestampMs int64
	haveTimestamp   bool

	outScratch []byte
	bgScratch  []byte

	tooManyModes    atomic.Int64
	emptyShadowScan atomic.Int64

	logger *slog.Logger
}

// New constructs an Engine for a frame of the given pixel dimensions.
// width and height are fixed for the engine's lifetime: every frame
// passed to Apply must be exactly width*height*3 bytes (BGR, row-major).
func New(cfg Config, width, height int) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("imbs: invalid frame dimensions %dx%d", width, height)
	}

	cfg.MinBinHeight = resolveMinBinHeight(cfg.MinBinHeight)
	numWorkers := resolveNumWorkers(cfg.NumWorkers)

	logger := cfg.Logger
	if logger == nil {
		logger = discardLogger()
	}

	logger.Debug("imbs: engine constructed", "width", width, "height", height, "numWorkers", numWorkers)

	grid := tile.NewGrid(width, height, numWorkers)
	maxModes := cfg.NumSamples / cfg.MinBinHeight
	if maxModes < 1 {
		maxModes = 1
	}

	tiles := make([]tileState, grid.Count())
	pipeParams := pipeline.Params{
		SamplingPeriodMs: cfg.SamplingPeriodMs,
		NumSamples:       cfg.NumSamples,
		FPS:              cfg.FPS,
	}
	for i := range tiles {
		x0, y0, x1, y1 := grid.Bounds(i)
		numPixels := (x1 - x0) * (y1 - y0)
		tiles[i] = tileState{
			store: pixelmodel.New(numPixels, cfg.NumSamples, maxModes),
			ctrl:  pipeline.NewController(pipeParams),
		}
	}

	e := &Engine{
		cfg:    cfg,
		width:  width,
		height: height,
		grid:   grid,
		tiles:  tiles,
		binParams: binner.Params{
			AssociationThreshold:   cfg.AssociationThreshold,
			MinBinHeight:           cfg.MinBinHeight,
			PreserveDisplacedMode0: cfg.PreserveDisplacedMode0,
		},
		classifyThresh: cfg.FgThreshold,
		shadowParams: shadow.Params{
			TauH:  cfg.TauH,
			TauS:  cfg.TauS,
			Alpha: cfg.Alpha,
			Beta:  cfg.Beta,
		},
		pipeParams: pipeParams,
		outScratch: make([]byte, width*height),
		bgScratch:  make([]byte, width*height*3),
		logger:     logger,
	}
	return e, nil
}

// Apply classifies frame (BGR, row-major, width*height*3 bytes) and
// writes the resulting single-channel mask into out (width*height
// bytes, values in {0, 80, 180, 255}). out is only overwritten once
// every tile has finished successfully; on error, out is left
// untouched. The frame's timestamp advances automatically: by
// 1000/Config.FPS milliseconds if FPS > 0, otherwise from a wall-clock
// reading. Use ApplyAt to drive the timestamp explicitly instead (test
// harnesses and offline batch processing over a recorded frame
// sequence with known capture times should prefer it).
func (e *Engine) Apply(frame []byte, out []byte) error {
	return e.apply(frame, out, e.nextTimestamp())
}

// ApplyAt behaves like Apply but uses the caller-supplied timestamp
// (milliseconds, monotonically non-decreasing across calls) instead of
// deriving one from Config.FPS or the wall clock. This is the Go
// realization of the spec's "sequence of (frameBGR, optionalTimestampMs)"
// input model.
func (e *Engine) ApplyAt(frame []byte, out []byte, timestampMs int64) error {
	return e.apply(frame, out, timestampMs)
}

func (e *Engine) apply(frame []byte, out []byte, ts int64) error {
	if len(frame) != e.width*e.height*3 {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrShapeMismatch, len(frame), e.width*e.height*3)
	}
	if len(out) != e.width*e.height {
		return fmt.Errorf("%w: output buffer is %d bytes, want %d", ErrShapeMismatch, len(out), e.width*e.height)
	}

	elapsedMs := int64(0)
	if e.haveTimestamp {
		elapsedMs = ts - e.prevTimestampMs
	}
	e.prevTimestampMs = ts
	e.haveTimestamp = true

	err := tile.Run(context.Background(), e.grid, func(i, x0, y0, x1, y1 int) error {
		return e.processTile(i, x0, y0, x1, y1, frame, e.outScratch, ts, elapsedMs)
	})
	if err != nil {
		return err
	}

	copy(out, e.outScratch)
	return nil
}

func (e *Engine) nextTimestamp() int64 {
	if e.cfg.FPS > 0 {
		if !e.haveTimestamp {
			return 0
		}
		return pipeline.NextTimestamp(e.prevTimestampMs, e.cfg.FPS)
	}
	return time.Now().UnixMilli()
}

func (e *Engine) processTile(i, x0, y0, x1, y1 int, frame, out []byte, ts, elapsedMs int64) error {
	tst := e.tiles[i]
	prevRatio := 0.0
	if tst.prevTotalPixels > 0 {
		prevRatio = float64(tst.prevForegroundCount) / float64(tst.prevTotalPixels)
	}
	decision := tst.ctrl.Advance(ts, prevRatio, e.pipeParams)

	tileW := x1 - x0
	foregroundHard := 0
	total := 0

	activeStable := tst.ctrl.ActiveModel()

	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			global := y*e.width + x
			local := (y-y0)*tileW + (x - x0)
			total++

			sample := [3]uint8{frame[global*3], frame[global*3+1], frame[global*3+2]}

			var active *pixelmodel.PixelState
			if activeStable {
				active = &tst.store.Stable[local]
			} else {
				active = &tst.store.Incremental[local]
			}

			lbl := classify.Classify(sample, active.Modes, active.CommittedCountSnapshot, e.classifyThresh)

			if lbl == label.Foreground {
				foregroundHard++
				hsv := shadow.ToHSV(sample)
				if shadow.Suppress(hsv, active.Modes, active.CommittedCountSnapshot, e.shadowParams) {
					lbl = label.Shadow
				} else {
					anyCandidate := false
					for _, m := range active.Modes {
						if m.Valid && !m.IsFg {
							anyCandidate = true
							break
						}
					}
					if !anyCandidate && active.CommittedCountSnapshot > 0 {
						e.emptyShadowScan.Add(1)
					}
				}
			}

			lbl = persistence.Update(&tst.store.Stable[local], lbl, elapsedMs, e.cfg.PersistencePeriodMs)

			out[global] = byte(lbl)

			stableCountsAsFg := lbl == label.Foreground
			incrementalCountsAsFg := lbl != label.Background

			if decision.SampleStable {
				if err := binner.Associate(&tst.store.Stable[local], sample, stableCountsAsFg, e.binParams); err != nil {
					return fmt.Errorf("%w: tile %d pixel (%d,%d) stable window", ErrSampleStarvation, i, x, y)
				}
			}
			if decision.SampleIncremental {
				if err := binner.Associate(&tst.store.Incremental[local], sample, incrementalCountsAsFg, e.binParams); err != nil {
					return fmt.Errorf("%w: tile %d pixel (%d,%d) incremental window", ErrSampleStarvation, i, x, y)
				}
			}
		}
	}

	if decision.SampleStable {
		tst.ctrl.Stable.SampleIndex++
		if tst.ctrl.Stable.SampleIndex >= tst.ctrl.Stable.TargetSamples {
			overflowCount := 0
			for local := range tst.store.Stable {
				_, overflowed := binner.Commit(&tst.store.Stable[local], e.binParams)
				if overflowed {
					e.tooManyModes.Add(1)
					overflowCount++
				}
			}
			if overflowCount > 0 {
				e.logger.Warn("imbs: stable commit exceeded mode capacity for some pixels", "tile", i, "pixels", overflowCount)
			}
			tst.ctrl.CommitStable(ts, e.pipeParams)
			e.logger.Debug("imbs: stable pipeline committed", "tile", i, "ts", ts)
		}
	}
	if decision.SampleIncremental {
		tst.ctrl.Incremental.SampleIndex++
		if tst.ctrl.Incremental.SampleIndex >= tst.ctrl.Incremental.TargetSamples {
			overflowCount := 0
			for local := range tst.store.Incremental {
				_, overflowed := binner.Commit(&tst.store.Incremental[local], e.binParams)
				if overflowed {
					e.tooManyModes.Add(1)
					overflowCount++
				}
			}
			if overflowCount > 0 {
				e.logger.Warn("imbs: incremental commit exceeded mode capacity for some pixels", "tile", i, "pixels", overflowCount)
			}
			tst.ctrl.CommitIncremental(ts, e.pipeParams)
			e.logger.Debug("imbs: incremental pipeline committed", "tile", i, "ts", ts)
		}
	}

	tst.prevForegroundCount = foregroundHard
	tst.prevTotalPixels = total
	e.tiles[i] = tst

	return nil
}

// BackgroundImage returns the current background model flattened to a
// BGR image: mode 0's color for every pixel, from whichever pipeline
// currently drives classification for that pixel's tile. Its contents
// are undefined (likely all zero) until the first commit has happened.
func (e *Engine) BackgroundImage() []byte {
	for i := range e.tiles {
		x0, y0, x1, y1 := e.grid.Bounds(i)
		tileW := x1 - x0
		ts := e.tiles[i]
		stable := ts.ctrl.ActiveModel()
		for y := y0; y < y1; y++ {
			for x := x0; x < x1; x++ {
				global := y*e.width + x
				local := (y-y0)*tileW + (x - x0)
				var px *pixelmodel.PixelState
				if stable {
					px = &ts.store.Stable[local]
				} else {
					px = &ts.store.Incremental[local]
				}
				var v [3]uint8
				if len(px.Modes) > 0 && px.Modes[0].Valid {
					v = px.Modes[0].Value
				}
				e.bgScratch[global*3] = v[0]
				e.bgScratch[global*3+1] = v[1]
				e.bgScratch[global*3+2] = v[2]
			}
		}
	}
	return e.bgScratch
}

// Modes returns, for every pixel (row-major), the currently committed
// modes of whichever pipeline drives that pixel's classification. This
// mirrors the original implementation's full background-model accessor
// (distinct from BackgroundImage's flattened mode-0-only view).
func (e *Engine) Modes() [][]ModeView {
	out := make([][]ModeView, e.width*e.height)
	for i := range e.tiles {
		x0, y0, x1, y1 := e.grid.Bounds(i)
		tileW := x1 - x0
		ts := e.tiles[i]
		stable := ts.ctrl.ActiveModel()
		for y := y0; y < y1; y++ {
			for x := x0; x < x1; x++ {
				global := y*e.width + x
				local := (y-y0)*tileW + (x - x0)
				var px *pixelmodel.PixelState
				if stable {
					px = &ts.store.Stable[local]
				} else {
					px = &ts.store.Incremental[local]
				}
				views := make([]ModeView, 0, px.CommittedCountSnapshot)
				for j := 0; j < px.CommittedCountSnapshot && j < len(px.Modes); j++ {
					m := px.Modes[j]
					if !m.Valid {
						break
					}
					views = append(views, ModeView{Value: m.Value, IsFg: m.IsFg, Counter: int(m.Counter)})
				}
				out[global] = views
			}
		}
	}
	return out
}

// Diagnostics returns a snapshot of recovered-condition counters.
func (e *Engine) Diagnostics() Diagnostics {
	return Diagnostics{
		TooManyModes:    e.tooManyModes.Load(),
		EmptyShadowScan: e.emptyShadowScan.Load(),
	}
}
