package drift

import (
	"math"
	"testing"
)

func TestComputeTargetPhaseMs(t *testing.T) {
	tests := []struct {
		name       string
		nowMs      int64
		startAtMs  int64
		durationMs int64
		wantPhase  int64
		wantOK     bool
	}{
		{"before start", 100, 500, 10_000, 0, false},
		{"zero duration", 10_000, 500, 0, 0, false},
		{"negative duration", 10_000, 500, -1, 0, false},
		{"at start", 500, 500, 10_000, 0, true},
		{"mid loop", 5_900, 500, 10_000, 5_400, true},
		{"wraps past one loop", 11_000, 500, 10_000, 500, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			phase, ok := ComputeTargetPhaseMs(tt.nowMs, tt.startAtMs, tt.durationMs)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && phase != tt.wantPhase {
				t.Errorf("phase = %d, want %d", phase, tt.wantPhase)
			}
		})
	}
}

func TestComputeWrappedDriftMsRange(t *testing.T) {
	durations := []int64{1000, 10_000, 16_667}
	actuals := []float64{0, 1, 499, 500, 501, 4999, 5000, 5001, 9999}

	for _, d := range durations {
		for _, a := range actuals {
			for _, target := range actuals {
				got := ComputeWrappedDriftMs(a, target, d)
				half := float64(d) / 2.0
				if got < -half-1e-9 || got > half+1e-9 {
					t.Fatalf("wrapped drift %v out of range for a=%v target=%v d=%v", got, a, target, d)
				}
				raw := a - target
				if math.Abs(got) > math.Abs(raw)+1e-9 {
					t.Fatalf("|wrapped|=%v > |raw|=%v for a=%v target=%v d=%v", got, raw, a, target, d)
				}
			}
		}
	}
}

func TestComputeWrappedDriftMsWrapsAcrossBoundary(t *testing.T) {
	// actual just after loop wrap, target just before: should wrap to a small
	// positive drift rather than a near-duration negative one.
	got := ComputeWrappedDriftMs(100, 9900, 10_000)
	if math.Abs(got-200) > 1e-9 {
		t.Errorf("got %v, want 200", got)
	}
}

func TestRoundToFrame(t *testing.T) {
	tests := []struct {
		phase float64
		frame float64
		want  int64
	}{
		{900, FrameMs, 900},
		{8, FrameMs, 0},
		{9, FrameMs, 16},
		{1000, FrameMs, 1000},
		{100, 0, 100},
	}
	for _, tt := range tests {
		if got := RoundToFrame(tt.phase, tt.frame); got != tt.want {
			t.Errorf("RoundToFrame(%v, %v) = %d, want %d", tt.phase, tt.frame, got, tt.want)
		}
	}
}

func TestDecideCorrectionHardThreshold(t *testing.T) {
	opts := DefaultDecideOptions()

	d := DecideCorrection(600, 1234, false, opts)
	if d.Action != ActionHard {
		t.Fatalf("action = %v, want hard", d.Action)
	}
	if d.TargetSpeed != 1.0 {
		t.Errorf("target speed = %v, want 1.0", d.TargetSpeed)
	}
	if d.SeekToMs != RoundToFrame(1234, opts.FrameMs) {
		t.Errorf("seek = %d, want %d", d.SeekToMs, RoundToFrame(1234, opts.FrameMs))
	}
}

func TestDecideCorrectionWarmupLowersHardThreshold(t *testing.T) {
	opts := DefaultDecideOptions()

	// 350ms is below the 500ms normal threshold but above the 300ms warm-up cap.
	d := DecideCorrection(350, 0, true, opts)
	if d.Action != ActionHard {
		t.Fatalf("action = %v, want hard during warm-up at 350ms drift", d.Action)
	}

	d2 := DecideCorrection(350, 0, false, opts)
	if d2.Action == ActionHard {
		t.Fatalf("action = hard outside warm-up at 350ms drift, want soft/none")
	}
}

func TestDecideCorrectionDeadband(t *testing.T) {
	opts := DefaultDecideOptions()
	d := DecideCorrection(10, 0, false, opts)
	if d.Action != ActionNone {
		t.Fatalf("action = %v, want none inside deadband", d.Action)
	}
	if d.TargetSpeed != 1.0 {
		t.Errorf("target speed = %v, want 1.0", d.TargetSpeed)
	}
}

func TestDecideCorrectionSoftGainTiers(t *testing.T) {
	opts := DefaultDecideOptions()

	low := DecideCorrection(40, 0, false, opts)   // < 50 -> 0.7x gain
	mid := DecideCorrection(100, 0, false, opts)  // base gain
	high := DecideCorrection(250, 0, false, opts) // > 200 -> 1.5x gain

	for _, d := range []Decision{low, mid, high} {
		if d.Action != ActionSoft {
			t.Fatalf("action = %v, want soft", d.Action)
		}
	}

	lowAdj := math.Abs(low.TargetSpeed - 1.0)
	midAdj := math.Abs(mid.TargetSpeed - 1.0)
	highAdjWant := opts.MaxSpeedDeltaNormal // clamps at 250 * 1.5 * kbase

	if lowAdj >= midAdj {
		t.Errorf("expected smaller-magnitude drift to produce smaller adjustment: low=%v mid=%v", lowAdj, midAdj)
	}
	if math.Abs(math.Abs(high.TargetSpeed-1.0) - highAdjWant) > 1e-9 {
		t.Errorf("high drift adjustment = %v, want clamp at %v", math.Abs(high.TargetSpeed-1.0), highAdjWant)
	}
}

func TestDecideCorrectionMonotoneAcrossHardThreshold(t *testing.T) {
	opts := DefaultDecideOptions()
	justBelow := DecideCorrection(opts.HardThresholdMs-1, 0, false, opts)
	atThreshold := DecideCorrection(opts.HardThresholdMs, 0, false, opts)

	if justBelow.Action == ActionHard {
		t.Fatalf("expected non-hard action just below threshold")
	}
	if atThreshold.Action != ActionHard {
		t.Fatalf("expected hard action at threshold")
	}
}

func TestWindowEvictsOldSamples(t *testing.T) {
	var w Window
	w.Push(Sample{TimestampMs: 10_000, AbsDriftMs: 1000})
	w.Push(Sample{TimestampMs: 35_000, AbsDriftMs: 100})

	if got := w.Avg(); got != 100 {
		t.Errorf("Avg() = %v, want 100 (old sample should be evicted)", got)
	}
	if w.Len() != 1 {
		t.Errorf("Len() = %d, want 1", w.Len())
	}
}

func TestWindowAvgEmptyIsZero(t *testing.T) {
	var w Window
	if got := w.Avg(); got != 0 {
		t.Errorf("Avg() on empty window = %v, want 0", got)
	}
}
