package cloudapi

import (
	"encoding/json"
	"testing"
)

func TestPayloadUnmarshalSnakeCase(t *testing.T) {
	raw := `{
		"session_id":"sess-1",
		"start_at_ms":1000,
		"duration_ms":10000,
		"master_device_id":"dev-a",
		"sync_config":{"hard_resync_threshold_ms":600,"lan":{"enabled":true,"beacon_hz":20}},
		"media":{"media_id":"m1","local_path":"/abs/loop.mp4"}
	}`

	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if p.SessionID != "sess-1" {
		t.Errorf("SessionID = %q, want sess-1", p.SessionID)
	}
	if p.StartAtMs == nil || *p.StartAtMs != 1000 {
		t.Errorf("StartAtMs = %v, want 1000", p.StartAtMs)
	}
	if p.DurationMs == nil || *p.DurationMs != 10000 {
		t.Errorf("DurationMs = %v, want 10000", p.DurationMs)
	}
	if p.MasterDeviceID == nil || *p.MasterDeviceID != "dev-a" {
		t.Errorf("MasterDeviceID = %v, want dev-a", p.MasterDeviceID)
	}
	if p.SyncConfig == nil || p.SyncConfig.HardResyncThresholdMs != 600 {
		t.Fatalf("SyncConfig.HardResyncThresholdMs missing or wrong: %+v", p.SyncConfig)
	}
	if !p.SyncConfig.Lan.Enabled || p.SyncConfig.Lan.BeaconHz != 20 {
		t.Errorf("SyncConfig.Lan = %+v, want enabled with hz=20", p.SyncConfig.Lan)
	}
	if p.Media.MediaID != "m1" || p.Media.LocalPath != "/abs/loop.mp4" {
		t.Errorf("Media = %+v", p.Media)
	}
}

func TestPayloadUnmarshalCamelCase(t *testing.T) {
	raw := `{
		"sessionId":"sess-2",
		"startAtMs":2000,
		"durationMs":20000,
		"masterDeviceId":"dev-b",
		"syncConfig":{"hardResyncThresholdMs":700},
		"media":{"mediaId":"m2","localPath":"/abs/other.mp4"}
	}`

	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if p.SessionID != "sess-2" {
		t.Errorf("SessionID = %q, want sess-2", p.SessionID)
	}
	if p.StartAtMs == nil || *p.StartAtMs != 2000 {
		t.Errorf("StartAtMs = %v, want 2000", p.StartAtMs)
	}
	if p.MasterDeviceID == nil || *p.MasterDeviceID != "dev-b" {
		t.Errorf("MasterDeviceID = %v, want dev-b", p.MasterDeviceID)
	}
	if p.SyncConfig == nil || p.SyncConfig.HardResyncThresholdMs != 700 {
		t.Fatalf("SyncConfig missing via camelCase: %+v", p.SyncConfig)
	}
	if p.Media.MediaID != "m2" {
		t.Errorf("Media.MediaID = %q, want m2", p.Media.MediaID)
	}
}

func TestPayloadUnmarshalUnknownKeysIgnored(t *testing.T) {
	raw := `{"session_id":"s","unexpected_field":"ignored","media":{"local_path":"/x.mp4"}}`
	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("unmarshal failed on unknown key: %v", err)
	}
	if p.SessionID != "s" {
		t.Errorf("SessionID = %q, want s", p.SessionID)
	}
}

func TestPayloadUnmarshalMissingOptionalFieldsAreNil(t *testing.T) {
	raw := `{"session_id":"s","media":{"local_path":"/x.mp4"}}`
	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if p.StartAtMs != nil {
		t.Errorf("StartAtMs = %v, want nil", p.StartAtMs)
	}
	if p.MasterDeviceID != nil {
		t.Errorf("MasterDeviceID = %v, want nil", p.MasterDeviceID)
	}
	if p.SyncConfig != nil {
		t.Errorf("SyncConfig = %v, want nil", p.SyncConfig)
	}
}
