package imbs

import "errors"

// Sentinel errors returned by Engine methods. Callers should compare
// against these with errors.Is; the wrapped detail (dimensions, tile
// index, malformed line number, ...) varies per call site.
var (
	// ErrShapeMismatch is returned by Apply/ApplyAt when the frame or
	// output buffer length does not match the width and height the
	// engine was constructed with.
	ErrShapeMismatch = errors.New("imbs: frame shape mismatch")

	// ErrSampleStarvation is returned by Apply/ApplyAt when a tile
	// worker's per-pixel sample buffer was scheduled to receive a
	// sample but had none free and none matched (wrapping
	// internal/binner.ErrSampleStarvation, detected in
	// internal/binner.Associate and surfaced by (*Engine).processTile).
	// Reaching this is an implementation bug, not a caller error: the
	// sampling window size and the scheduling cadence are supposed to
	// make starvation structurally impossible.
	ErrSampleStarvation = errors.New("imbs: sample starvation")

	// ErrModelLoadFormat is returned by LoadModel when the persisted
	// model text does not match the expected record format.
	ErrModelLoadFormat = errors.New("imbs: malformed model file")
)
