// Package drift implements the pure phase-drift math behind videowall
// playback synchronization: target-phase computation, wrapped drift,
// frame rounding, and the speed/seek correction decision.
//
// Every function here is deterministic and side-effect-free. They form the
// testable nucleus of the sync engine; nothing in this package touches the
// clock, the network, or a mutex.
package drift

import "math"

// FrameMs is the default video frame duration used for seek rounding,
// 1000/60 ms, i.e. one frame at 60fps.
const FrameMs = 16.6667

// Tuning constants, overridable per call via DecideOptions.
const (
	DeadbandMs           = 25
	SoftMinMs            = 25
	HardThresholdMs      = 500
	HardThresholdWarmCap = 300
	MaxSpeedDeltaNormal  = 0.01
	MaxSpeedDeltaWarmup  = 0.03
	KBase                = 0.0003
)

// Action identifies the kind of correction decide_correction chose.
type Action int

const (
	ActionNone Action = iota
	ActionSoft
	ActionHard
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionSoft:
		return "soft"
	case ActionHard:
		return "hard"
	default:
		return "unknown"
	}
}

// Decision is the outcome of decide_correction: a no-op, a soft speed
// adjustment, or a hard seek back to the wall/beacon target.
type Decision struct {
	Action      Action
	TargetSpeed float64
	SeekToMs    int64 // only meaningful when Action == ActionHard
}

// ComputeTargetPhaseMs returns the phase (ms into the loop, in [0, duration))
// the device should be at right now, or ok=false if the session hasn't
// started yet or the duration is non-positive.
func ComputeTargetPhaseMs(nowMs, startAtMs int64, durationMs int64) (phaseMs int64, ok bool) {
	if durationMs <= 0 || nowMs < startAtMs {
		return 0, false
	}
	return (nowMs - startAtMs) % durationMs, true
}

// ComputeWrappedDriftMs returns the signed minimum-magnitude difference
// (actual - target) over the circular group of order durationMs, in
// [-duration/2, +duration/2].
func ComputeWrappedDriftMs(actualPhaseMs, targetPhaseMs float64, durationMs int64) float64 {
	if durationMs <= 0 {
		return 0
	}
	raw := math.Mod(actualPhaseMs-targetPhaseMs, float64(durationMs))
	half := float64(durationMs) / 2.0
	switch {
	case raw > half:
		raw -= float64(durationMs)
	case raw < -half:
		raw += float64(durationMs)
	}
	return raw
}

// RoundToFrame snaps phaseMs to the nearest multiple of frameMs.
func RoundToFrame(phaseMs float64, frameMs float64) int64 {
	if frameMs <= 0 {
		return int64(math.Round(phaseMs))
	}
	return int64(math.Round(phaseMs/frameMs) * frameMs)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// DecideOptions carries the overridable tuning constants for correction
// decisions. A zero-value DecideOptions is invalid; use DefaultDecideOptions.
type DecideOptions struct {
	DeadbandMs          float64
	SoftMinMs           float64
	HardThresholdMs      float64
	MaxSpeedDeltaNormal float64
	MaxSpeedDeltaWarmup float64
	KBase               float64
	FrameMs             float64
}

// DefaultDecideOptions returns the documented default tuning constants.
func DefaultDecideOptions() DecideOptions {
	return DecideOptions{
		DeadbandMs:          DeadbandMs,
		SoftMinMs:           SoftMinMs,
		HardThresholdMs:      HardThresholdMs,
		MaxSpeedDeltaNormal: MaxSpeedDeltaNormal,
		MaxSpeedDeltaWarmup: MaxSpeedDeltaWarmup,
		KBase:               KBase,
		FrameMs:             FrameMs,
	}
}

// DecideCorrection implements the correction decision: hard resync above
// threshold, no-op inside the deadband, otherwise a proportional-gain soft
// speed adjustment with tiered gain.
func DecideCorrection(driftMs float64, targetPhaseMs int64, inWarmup bool, opts DecideOptions) Decision {
	absDrift := math.Abs(driftMs)

	hardThreshold := opts.HardThresholdMs
	if inWarmup && hardThreshold > HardThresholdWarmCap {
		hardThreshold = HardThresholdWarmCap
	}
	maxSpeedDelta := opts.MaxSpeedDeltaNormal
	if inWarmup {
		maxSpeedDelta = opts.MaxSpeedDeltaWarmup
	}

	if absDrift >= hardThreshold {
		return Decision{
			Action:      ActionHard,
			TargetSpeed: 1.0,
			SeekToMs:    RoundToFrame(float64(targetPhaseMs), opts.FrameMs),
		}
	}

	deadband := opts.DeadbandMs
	if opts.SoftMinMs > deadband {
		deadband = opts.SoftMinMs
	}
	if absDrift < deadband {
		return Decision{Action: ActionNone, TargetSpeed: 1.0}
	}

	gain := opts.KBase
	switch {
	case absDrift > 200:
		gain = opts.KBase * 1.5
	case absDrift < 50:
		gain = opts.KBase * 0.7
	}

	speedAdj := clamp(-gain*driftMs, -maxSpeedDelta, maxSpeedDelta)
	return Decision{Action: ActionSoft, TargetSpeed: 1.0 + speedAdj}
}
