package synclog

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestEmitWritesExpectedFields(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf})

	Emit(HardResync, "sess-1", "drift_ms", 620.5, "reason", "startup")

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("Emit output is not valid JSON: %v (%s)", err, buf.String())
	}
	if decoded["event"] != "HARD_RESYNC" {
		t.Errorf("event = %v, want HARD_RESYNC", decoded["event"])
	}
	if decoded["session_id"] != "sess-1" {
		t.Errorf("session_id = %v, want sess-1", decoded["session_id"])
	}
	if decoded["reason"] != "startup" {
		t.Errorf("reason = %v, want startup", decoded["reason"])
	}
	if decoded["drift_ms"] != 620.5 {
		t.Errorf("drift_ms = %v, want 620.5", decoded["drift_ms"])
	}
}

func TestTagStringRoundTrip(t *testing.T) {
	tags := []Tag{Ready, Started, SoftCorrection, HardResync, Rejoin, MpvCrash, ThermalThrottle}
	names := []string{"READY", "STARTED", "SOFT_CORRECTION", "HARD_RESYNC", "REJOIN", "MPV_CRASH", "THERMAL_THROTTLE"}
	for i, tag := range tags {
		if got := tag.String(); got != names[i] {
			t.Errorf("Tag(%d).String() = %q, want %q", int(tag), got, names[i])
		}
		if !tag.valid() {
			t.Errorf("Tag %q should be valid", names[i])
		}
	}
}

func TestUnknownTagPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("Emit with unknown tag did not panic")
		}
	}()
	Emit(Tag(999), "sess-1")
}

func TestEmitOddFieldListDropsTrailingKey(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf})

	Emit(Ready, "sess-2", "orphan_key")

	out := buf.String()
	if strings.Contains(out, "orphan_key") {
		t.Errorf("expected orphan trailing key to be dropped, got %q", out)
	}
}
