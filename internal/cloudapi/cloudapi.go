// Package cloudapi defines the external contract the videowall supervisor
// consumes from the fleet coordinator's cloud API. Device
// pairing, token persistence, and HTTP transport are out of scope — this
// package is the interface and wire-envelope types only; callers inject a
// concrete Client implementation.
package cloudapi

import (
	"context"
	"encoding/json"
	"time"
)

// CommandType is the closed set of command types the coordinator issues.
type CommandType string

const (
	CommandSyncPrepare CommandType = "SYNC_PREPARE"
	CommandSyncStop    CommandType = "SYNC_STOP"
)

// AckStatus is the result the supervisor reports back for a command.
type AckStatus string

const (
	AckACKED  AckStatus = "ACKED"
	AckFAILED AckStatus = "FAILED"
)

// LanConfig is the sync_config.lan block of a SYNC_PREPARE payload.
type LanConfig struct {
	Enabled          bool
	BeaconHz         float64
	BeaconPort       int
	TimeoutMs        int
	FallbackToCloud  bool
	BindHost         string
	BroadcastAddr    string
}

// SyncConfig is the sync_config block of a SYNC_PREPARE payload: per-session
// overrides layered onto the env-derived base config.
type SyncConfig struct {
	HardResyncThresholdMs int
	Lan                   LanConfig
}

// Media is the media block of a SYNC_PREPARE payload.
type Media struct {
	MediaID   string
	LocalPath string
}

// Payload is the decoded body of a SYNC_PREPARE command. Both snake_case
// and camelCase keys are accepted at the payload level; unknown keys are
// ignored.
type Payload struct {
	SessionID       string
	StartAtMs       *int64
	DurationMs      *int64
	MasterDeviceID  *string
	TargetDeviceID  *string
	SyncConfig      *SyncConfig
	Media           Media
}

// rawPayload mirrors the wire shape before case-folding; both naming
// conventions decode into it, then UnmarshalJSON picks whichever is set.
type rawPayload struct {
	SessionID      *string `json:"session_id"`
	SessionIDCamel *string `json:"sessionId"`

	StartAtMs      *int64 `json:"start_at_ms"`
	StartAtMsCamel *int64 `json:"startAtMs"`

	DurationMs      *int64 `json:"duration_ms"`
	DurationMsCamel *int64 `json:"durationMs"`

	MasterDeviceID      *string `json:"master_device_id"`
	MasterDeviceIDCamel *string `json:"masterDeviceId"`

	TargetDeviceID      *string `json:"target_device_id"`
	TargetDeviceIDCamel *string `json:"targetDeviceId"`

	SyncConfig      *rawSyncConfig `json:"sync_config"`
	SyncConfigCamel *rawSyncConfig `json:"syncConfig"`

	Media *rawMedia `json:"media"`
}

type rawSyncConfig struct {
	HardResyncThresholdMs      *int     `json:"hard_resync_threshold_ms"`
	HardResyncThresholdMsCamel *int     `json:"hardResyncThresholdMs"`
	Lan                        *rawLan  `json:"lan"`
}

type rawLan struct {
	Enabled         *bool    `json:"enabled"`
	BeaconHz        *float64 `json:"beacon_hz"`
	BeaconPort      *int     `json:"beacon_port"`
	TimeoutMs       *int     `json:"timeout_ms"`
	FallbackToCloud *bool    `json:"fallback_to_cloud"`
	BindHost        *string  `json:"bind_host"`
	BroadcastAddr   *string  `json:"broadcast_addr"`
}

type rawMedia struct {
	MediaID        *string `json:"media_id"`
	MediaIDCamel   *string `json:"mediaId"`
	LocalPath      *string `json:"local_path"`
	LocalPathCamel *string `json:"localPath"`
}

func firstString(a, b *string) string {
	if a != nil {
		return *a
	}
	if b != nil {
		return *b
	}
	return ""
}

func firstInt(a, b *int) *int {
	if a != nil {
		return a
	}
	return b
}

func firstInt64(a, b *int64) *int64 {
	if a != nil {
		return a
	}
	return b
}

// UnmarshalJSON decodes a SYNC_PREPARE payload, accepting both snake_case
// and camelCase keys, except inside the lan block, which is snake_case only.
func (p *Payload) UnmarshalJSON(data []byte) error {
	var raw rawPayload
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	p.SessionID = firstString(raw.SessionID, raw.SessionIDCamel)
	p.StartAtMs = firstInt64(raw.StartAtMs, raw.StartAtMsCamel)
	p.DurationMs = firstInt64(raw.DurationMs, raw.DurationMsCamel)

	if md := firstString(raw.MasterDeviceID, raw.MasterDeviceIDCamel); md != "" {
		p.MasterDeviceID = &md
	}
	if td := firstString(raw.TargetDeviceID, raw.TargetDeviceIDCamel); td != "" {
		p.TargetDeviceID = &td
	}

	sc := raw.SyncConfig
	if sc == nil {
		sc = raw.SyncConfigCamel
	}
	if sc != nil {
		cfg := SyncConfig{}
		if v := firstInt(sc.HardResyncThresholdMs, sc.HardResyncThresholdMsCamel); v != nil {
			cfg.HardResyncThresholdMs = *v
		}
		if sc.Lan != nil {
			l := sc.Lan
			if l.Enabled != nil {
				cfg.Lan.Enabled = *l.Enabled
			}
			if l.BeaconHz != nil {
				cfg.Lan.BeaconHz = *l.BeaconHz
			}
			if l.BeaconPort != nil {
				cfg.Lan.BeaconPort = *l.BeaconPort
			}
			if l.TimeoutMs != nil {
				cfg.Lan.TimeoutMs = *l.TimeoutMs
			}
			if l.FallbackToCloud != nil {
				cfg.Lan.FallbackToCloud = *l.FallbackToCloud
			}
			if l.BindHost != nil {
				cfg.Lan.BindHost = *l.BindHost
			}
			if l.BroadcastAddr != nil {
				cfg.Lan.BroadcastAddr = *l.BroadcastAddr
			}
		}
		p.SyncConfig = &cfg
	}

	media := raw.Media
	if media != nil {
		p.Media = Media{
			MediaID:   firstString(media.MediaID, media.MediaIDCamel),
			LocalPath: firstString(media.LocalPath, media.LocalPathCamel),
		}
	}
	return nil
}

// Command is one coordinator-issued command envelope.
type Command struct {
	ID        string
	Type      CommandType
	SessionID string
	Payload   Payload
}

// SyncRuntime is the telemetry snapshot attached to acks and status
// reports, per the "Telemetry" table.
type SyncRuntime struct {
	SessionID     string  `json:"session_id"`
	Status        string  `json:"status"`
	DriftMs       float64 `json:"drift_ms"`
	ResyncCount   int     `json:"resync_count"`
	AvgDriftMs    float64 `json:"avg_drift_ms"`
	MaxDriftMs    float64 `json:"max_drift_ms"`
	ResyncRate    float64 `json:"resync_rate"`
	ClockOffsetMs float64 `json:"clock_offset_ms"`
	Throttled     bool    `json:"throttled"`
	HealthScore   float64 `json:"health_score"`
	LanMode       string  `json:"lan_mode"`
	LanBeaconAgeMs *int64 `json:"lan_beacon_age_ms,omitempty"`
}

// ClockHealth is the cloud client's own view of clock sync health, used by
// Client.GetClockSyncHealth — distinct from internal/clockhealth.Health,
// which is the supervisor's locally-probed equivalent; the cloud client may
// instead consult a fleet-wide time service.
type ClockHealth struct {
	Healthy     bool
	Critical    bool
	OffsetMs    *float64
	Throttled   bool
	HealthScore float64
}

// Client is the capability interface the supervisor depends on. Device
// pairing and HTTP transport are out of scope for this package; production
// wiring supplies a concrete HTTP-backed client.
type Client interface {
	// PollDeviceCommands fetches up to limit queued commands. Returns an
	// empty slice, never an error, on any transport failure; TransportError
	// is never surfaced to the caller.
	PollDeviceCommands(ctx context.Context, limit int) []Command

	// AckDeviceCommand reports the outcome of one command.
	AckDeviceCommand(ctx context.Context, id string, status AckStatus, errMsg string, runtime *SyncRuntime) bool

	// ReportPlaybackState pushes a status update outside the command/ack
	// cycle — the periodic status report.
	ReportPlaybackState(ctx context.Context, playingPlaylistID, currentContentName, previewPath string, runtime *SyncRuntime) bool

	// GetClockSyncHealth returns the cloud client's own clock-health view.
	GetClockSyncHealth(ctx context.Context, maxOffsetMs float64) ClockHealth

	// GetCurrentDeviceID returns this device's id, or ok=false if
	// unresolvable (device not yet paired).
	GetCurrentDeviceID(ctx context.Context) (deviceID string, ok bool)

	// MediaDir returns the local media cache directory.
	MediaDir(ctx context.Context) string

	// EnsureSyncMediaAvailable resolves or downloads media, returning the
	// local path, or ok=false if it could not be made available.
	EnsureSyncMediaAvailable(ctx context.Context, mediaID, localPath string) (resolvedPath string, ok bool)
}

// CommandPollTimeout bounds a single PollDeviceCommands call to a fixed
// per-call timeout (5-30s tiers are typical for fleet polling intervals).
const CommandPollTimeout = 10 * time.Second
