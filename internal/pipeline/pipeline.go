// Package pipeline implements the dual stable/incremental sampling
// controller: which of the two per-pixel pipelines should sample and
// commit on a given frame, and which one currently drives
// classification.
package pipeline

// Params bundles the subset of engine configuration the controller
// needs, all fixed for the engine's lifetime.
type Params struct {
	SamplingPeriodMs int64
	NumSamples       int
	FPS              float64
}

// incrementalPeriodMs returns min(100, samplingPeriod).
func (p Params) incrementalPeriodMs() int64 {
	if p.SamplingPeriodMs < 100 {
		return p.SamplingPeriodMs
	}
	return 100
}

// initialIncrementalSamples returns max(6, N/10).
func (p Params) initialIncrementalSamples() int {
	n := p.NumSamples / 10
	if n < 6 {
		return 6
	}
	return n
}

// PipelineState tracks one pipeline's (stable or incremental) sampling
// cadence: how many samples have been taken in the current window and
// when the window last advanced.
type PipelineState struct {
	SampleIndex      int
	TargetSamples    int
	PrevSampleTimeMs int64
	StableCommitted  bool // set on Stable by CommitStable or MarkLoaded; never set on Incremental
}

// Controller owns both pipelines' cadence state for one tile and decides,
// frame by frame, which should sample and which drives classification.
type Controller struct {
	Stable      PipelineState
	Incremental PipelineState

	incrementalActive   bool
	incrementalDisabled bool // permanently disabled by MarkLoaded; never reactivates
	timestampMs         int64
	initialized         bool
}

// NewController returns a Controller with the incremental pipeline
// active (per the activation rule: "initially ON until the stable
// pipeline makes its first commit") and both pipelines' target sample
// counts set to their starting values.
func NewController(p Params) *Controller {
	return &Controller{
		Stable:            PipelineState{TargetSamples: p.NumSamples},
		Incremental:       PipelineState{TargetSamples: p.initialIncrementalSamples()},
		incrementalActive: true,
	}
}

// Decision reports which pipelines should take a sample (and possibly
// commit) this frame.
type Decision struct {
	SampleStable      bool
	SampleIncremental bool
}

// Advance moves the controller's clock forward by one frame and decides
// whether either pipeline should sample this frame. ts is the frame
// timestamp (monotonically increasing milliseconds); tileForegroundRatio
// is the fraction of this tile's pixels the classifier labeled hard
// FOREGROUND on the *previous* frame (there is no current-frame ratio
// yet, since this decision precedes classification).
func (c *Controller) Advance(ts int64, tileForegroundRatio float64, p Params) Decision {
	if !c.initialized {
		// Both pipelines are immediately due on the very first frame.
		c.Stable.PrevSampleTimeMs = ts - p.SamplingPeriodMs
		c.Incremental.PrevSampleTimeMs = ts - p.incrementalPeriodMs()
		c.initialized = true
	}
	c.timestampMs = ts

	if !c.incrementalDisabled && c.Stable.StableCommitted && tileForegroundRatio > 0.5 {
		c.incrementalActive = true
	}

	var d Decision

	if ts-c.Stable.PrevSampleTimeMs >= p.SamplingPeriodMs {
		d.SampleStable = true
		c.Stable.PrevSampleTimeMs = ts
	}

	if c.incrementalActive && ts-c.Incremental.PrevSampleTimeMs >= p.incrementalPeriodMs() {
		d.SampleIncremental = true
		c.Incremental.PrevSampleTimeMs = ts
	}

	return d
}

// CommitStable records that the stable pipeline just committed: its
// sample window restarts and, once it has ever committed, the
// incremental pipeline deactivates until reactivated by the >50%
// foreground rule.
func (c *Controller) CommitStable(ts int64, p Params) {
	c.Stable.SampleIndex = 0
	c.Stable.TargetSamples = p.NumSamples
	c.Stable.PrevSampleTimeMs = ts
	wasFirstCommit := !c.Stable.StableCommitted
	c.Stable.StableCommitted = true
	if wasFirstCommit {
		c.incrementalActive = false
	}
}

// CommitIncremental records that the incremental pipeline just
// committed: its sample window restarts, doubling the target sample
// count for next time, capped at p.NumSamples.
func (c *Controller) CommitIncremental(ts int64, p Params) {
	next := c.Incremental.TargetSamples * 2
	if next > p.NumSamples {
		next = p.NumSamples
	}
	c.Incremental.SampleIndex = 0
	c.Incremental.TargetSamples = next
	c.Incremental.PrevSampleTimeMs = ts
}

// MarkLoaded forces the controller into the post-load state a persisted
// model implies: the stable pipeline is treated as already committed
// (so classification reads it immediately) and the incremental pipeline
// is disabled permanently, matching "the incremental pipeline is
// disabled for a loaded model."
func (c *Controller) MarkLoaded() {
	c.Stable.StableCommitted = true
	c.incrementalActive = false
	c.incrementalDisabled = true
}

// ActiveModel reports whether classification should currently read the
// stable pipeline's modes (true) or the incremental pipeline's (false).
// The incremental pipeline drives classification whenever it is active:
// either before the stable pipeline's first commit, or after it has been
// reactivated by the >50% hard-foreground staleness rule (§4.6). This
// mirrors the original's getIncrementalFg override, which re-runs
// classification against the incremental model and overwrites the
// stable-based mask whenever incremental_bg is true — the whole point of
// reactivation is that the stable model is presumed stale, so
// classification must stop trusting it, not merely resume sampling it.
func (c *Controller) ActiveModel() bool {
	return !c.incrementalActive
}

// NextTimestamp advances a timestamp by one frame period: 1000/fps
// milliseconds if fps > 0, otherwise the caller must supply a wall-clock
// reading (Controller does not read the clock itself, keeping Advance
// and this helper pure and independently testable).
func NextTimestamp(prev int64, fps float64) int64 {
	if fps > 0 {
		return prev + int64(1000/fps)
	}
	return prev
}
