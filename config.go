package imbs

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
)

// Config controls the engine's detection parameters. All fields have
// documented defaults via DefaultConfig; negative sentinel values on a
// handful of fields are resolved to those defaults at engine-construction
// time, matching this package's numeric conventions.
type Config struct {
	// FPS sets the nominal frame rate used to advance the internal
	// timestamp when no wall clock is available (1000/FPS ms per
	// frame). FPS <= 0 falls back to a monotonic wall-clock reading.
	FPS float64

	// FgThreshold is the Chebyshev distance below which a frame pixel
	// matches a committed mode (default 20).
	FgThreshold int

	// AssociationThreshold is the Chebyshev distance at or below which
	// a sample merges into an existing bin instead of opening a new one
	// (default 5).
	AssociationThreshold int

	// SamplingPeriodMs is the stable pipeline's sampling cadence in
	// milliseconds (default 500).
	SamplingPeriodMs int64

	// MinBinHeight is the minimum sample count a bin must reach to be
	// promoted to a mode at commit time (default 2, clamped to >= 1).
	MinBinHeight int

	// NumSamples is the stable pipeline's sampling window size N
	// (default 20).
	NumSamples int

	// Alpha and Beta bound the value-channel ratio test in shadow
	// suppression (defaults 0.65 and 1.15).
	Alpha float64
	Beta  float64

	// TauS and TauH are the saturation and hue tolerances (on a
	// [0,255] scale) for shadow suppression (defaults 60 and 40).
	TauS int
	TauH int

	// MinArea is the minimum connected-component pixel area kept by
	// the optional post-filter (default 50). Unused by the core
	// Engine; the separate postfilter package takes its own minArea
	// argument and does not read this field.
	MinArea int

	// PersistencePeriodMs is the dwell threshold beyond which a
	// PERSISTENCE pixel is absorbed into the background (default
	// 10000, approximately SamplingPeriodMs*NumSamples/3).
	PersistencePeriodMs int64

	// MorphologicalFiltering is accepted for configuration
	// compatibility but has no effect in the core engine; morphology
	// is a post-filter concern, not a core classification one.
	MorphologicalFiltering bool

	// PreserveDisplacedMode0 controls the commit-time mode-0
	// displacement policy (see internal/binner.Params). Default true.
	PreserveDisplacedMode0 bool

	// NumWorkers sets the tile worker count. <= 0 resolves to
	// runtime.NumCPU().
	NumWorkers int

	// Logger receives optional diagnostic breadcrumbs: Debug records at
	// engine construction and at every stable/incremental commit, and a
	// Warn record when a commit hits the TooManyModes condition.
	// EmptyShadowScan recoveries and model loads are counted or done
	// silently. nil is safe and disables logging entirely; nothing in
	// the engine's contract depends on it.
	Logger *slog.Logger
}

// DefaultConfig returns a Config with every field set to its documented
// default.
func DefaultConfig() Config {
	return Config{
		FPS:                    25.0,
		FgThreshold:            20,
		AssociationThreshold:   5,
		SamplingPeriodMs:       500,
		MinBinHeight:           2,
		NumSamples:             20,
		Alpha:                  0.65,
		Beta:                   1.15,
		TauS:                   60,
		TauH:                   40,
		MinArea:                50,
		PersistencePeriodMs:    10000,
		MorphologicalFiltering: false,
		PreserveDisplacedMode0: true,
		NumWorkers:             -1, // sentinel: resolved to runtime.NumCPU()
	}
}

// validate returns an error describing the first invalid field found, or
// nil if cfg is usable as-is (after resolveNumWorkers/resolveMinBinHeight
// are applied).
func (cfg Config) validate() error {
	if cfg.FgThreshold < 0 {
		return fmt.Errorf("imbs: invalid FgThreshold %d (must be >= 0)", cfg.FgThreshold)
	}
	if cfg.AssociationThreshold < 0 {
		return fmt.Errorf("imbs: invalid AssociationThreshold %d (must be >= 0)", cfg.AssociationThreshold)
	}
	if cfg.SamplingPeriodMs <= 0 {
		return fmt.Errorf("imbs: invalid SamplingPeriodMs %d (must be > 0)", cfg.SamplingPeriodMs)
	}
	if cfg.NumSamples < 1 {
		return fmt.Errorf("imbs: invalid NumSamples %d (must be >= 1)", cfg.NumSamples)
	}
	if cfg.Alpha < 0 || cfg.Alpha > cfg.Beta {
		return fmt.Errorf("imbs: invalid Alpha/Beta %.2f/%.2f (must be 0 <= Alpha <= Beta)", cfg.Alpha, cfg.Beta)
	}
	if cfg.TauS < 0 || cfg.TauH < 0 {
		return fmt.Errorf("imbs: invalid TauS/TauH %d/%d (must be >= 0)", cfg.TauS, cfg.TauH)
	}
	if cfg.MinArea < 0 {
		return fmt.Errorf("imbs: invalid MinArea %d (must be >= 0)", cfg.MinArea)
	}
	if cfg.PersistencePeriodMs <= 0 {
		return fmt.Errorf("imbs: invalid PersistencePeriodMs %d (must be > 0)", cfg.PersistencePeriodMs)
	}
	return nil
}

// resolveMinBinHeight returns the effective minimum bin height: values
// below 1 (including the zero value of an unconfigured Config) clamp up
// to 1, matching §6's "clamped >= 1".
func resolveMinBinHeight(v int) int {
	if v < 1 {
		return 1
	}
	return v
}

// resolveNumWorkers returns the effective tile worker count. Non-positive
// values (including the DefaultConfig sentinel -1) resolve to
// runtime.NumCPU().
func resolveNumWorkers(v int) int {
	if v <= 0 {
		return runtime.NumCPU()
	}
	return v
}

// discardHandler is a slog.Handler that drops every record. Used when
// Config.Logger is nil so the engine's internal logging call sites never
// need a nil check. (The standard library gained slog.DiscardHandler
// only in more recent toolchains; this small shim works on any Go
// version that has log/slog at all.)
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool          { return false }
func (discardHandler) Handle(context.Context, slog.Record) error         { return nil }
func (h discardHandler) WithAttrs(_ []slog.Attr) slog.Handler            { return h }
func (h discardHandler) WithGroup(_ string) slog.Handler                 { return h }

func discardLogger() *slog.Logger {
	return slog.New(discardHandler{})
}
