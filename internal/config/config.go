// Package config loads the SYNC_* environment variables into a typed
// Config using koanf, flat: the sync engine's config has no nested
// device/stream sub-objects, so the TransformFunc here only strips the
// SYNC_ prefix and lower-cases the key instead of splitting it into dotted
// path segments. Per-session
// overrides carried in a SYNC_PREPARE payload's sync_config block are
// layered on afterward through WithSessionOverrides, never re-parsed
// through koanf.
package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/v2"
)

// Config is the daemon's tunable configuration, one field per SYNC_*
// environment variable.
type Config struct {
	CommandPollIdleS         float64 `koanf:"command_poll_idle_s"`
	CommandPollActiveS       float64 `koanf:"command_poll_active_s"`
	CommandPollCriticalS     float64 `koanf:"command_poll_critical_s"`
	StatusIntervalCriticalS  float64 `koanf:"status_interval_critical_s"`
	StatusIntervalPlayingS   float64 `koanf:"status_interval_playing_s"`
	StatusIntervalPlayingLanS float64 `koanf:"status_interval_playing_lan_s"`
	CommandPollPlayingLanS   float64 `koanf:"command_poll_playing_lan_s"`

	HardResyncThresholdMs int `koanf:"hard_resync_threshold_ms"`

	LanEnabled         bool    `koanf:"lan_enabled"`
	LanBeaconHz        float64 `koanf:"lan_beacon_hz"`
	LanBeaconPort      int     `koanf:"lan_beacon_port"`
	LanTimeoutMs       int     `koanf:"lan_timeout_ms"`
	LanFallbackToCloud bool    `koanf:"lan_fallback_to_cloud"`
	LanBindHost        string  `koanf:"lan_bind_host"`
	LanBroadcastAddr   string  `koanf:"lan_broadcast_addr"`
}

// Default returns the built-in defaults from the table, before any
// environment variables are applied.
func Default() Config {
	return Config{
		CommandPollIdleS:          10.0,
		CommandPollActiveS:        2.0,
		CommandPollCriticalS:      1.0,
		StatusIntervalCriticalS:   2.0,
		StatusIntervalPlayingS:    5.0,
		StatusIntervalPlayingLanS: 10.0,
		CommandPollPlayingLanS:    5.0,
		HardResyncThresholdMs:     500,
		LanEnabled:                false,
		LanBeaconHz:               20.0,
		LanBeaconPort:             39051,
		LanTimeoutMs:              1500,
		LanFallbackToCloud:        true,
		LanBindHost:               "0.0.0.0",
		LanBroadcastAddr:          "255.255.255.255",
	}
}

// The minimums from the table, applied after unmarshaling so an
// out-of-range environment value is clamped rather than silently trusted.
const (
	minCommandPollIdleS         = 0.2
	minCommandPollActiveS       = 0.2
	minCommandPollCriticalS     = 0.2
	minStatusIntervalCriticalS  = 0.2
	minStatusIntervalPlayingS   = 0.2
	minStatusIntervalPlayingLanS = 1.0
	minCommandPollPlayingLanS   = 1.0
	minHardResyncThresholdMs    = 25
	minLanBeaconHz              = 1.0
	minLanBeaconPort            = 1024
	minLanTimeoutMs             = 250
)

func clampFloat(v, min float64) float64 {
	if v < min {
		return min
	}
	return v
}

func clampInt(v, min int) int {
	if v < min {
		return min
	}
	return v
}

// normalize clamps every field to its documented minimum in place.
func (c *Config) normalize() {
	c.CommandPollIdleS = clampFloat(c.CommandPollIdleS, minCommandPollIdleS)
	c.CommandPollActiveS = clampFloat(c.CommandPollActiveS, minCommandPollActiveS)
	c.CommandPollCriticalS = clampFloat(c.CommandPollCriticalS, minCommandPollCriticalS)
	c.StatusIntervalCriticalS = clampFloat(c.StatusIntervalCriticalS, minStatusIntervalCriticalS)
	c.StatusIntervalPlayingS = clampFloat(c.StatusIntervalPlayingS, minStatusIntervalPlayingS)
	c.StatusIntervalPlayingLanS = clampFloat(c.StatusIntervalPlayingLanS, minStatusIntervalPlayingLanS)
	c.CommandPollPlayingLanS = clampFloat(c.CommandPollPlayingLanS, minCommandPollPlayingLanS)
	c.HardResyncThresholdMs = clampInt(c.HardResyncThresholdMs, minHardResyncThresholdMs)
	c.LanBeaconHz = clampFloat(c.LanBeaconHz, minLanBeaconHz)
	c.LanBeaconPort = clampInt(c.LanBeaconPort, minLanBeaconPort)
	c.LanTimeoutMs = clampInt(c.LanTimeoutMs, minLanTimeoutMs)
}

// Loader wraps koanf for loading Config from SYNC_* environment variables,
// minus file watching — the sync engine has no YAML file to watch.
type Loader struct {
	envPrefix string
}

// NewLoader returns a Loader using the given environment variable prefix.
// The daemon always uses "SYNC"; an empty prefix defaults to that.
func NewLoader(envPrefix string) *Loader {
	if envPrefix == "" {
		envPrefix = "SYNC"
	}
	return &Loader{envPrefix: envPrefix}
}

// Load reads SYNC_* environment variables over the built-in defaults,
// clamps every field to its documented minimum, and returns the result.
func (l *Loader) Load() (Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaultsMap(Default()), "."), nil); err != nil {
		return Config{}, fmt.Errorf("config: failed to load defaults: %w", err)
	}

	prefix := l.envPrefix + "_"
	envProvider := env.Provider(".", env.Opt{
		Prefix: prefix,
		TransformFunc: func(k, v string) (string, any) {
			// No nested structs to split into — SYNC_* is flat, so
			// lower-casing the remainder is the whole transform.
			return strings.ToLower(strings.TrimPrefix(k, prefix)), v
		},
	})
	if err := k.Load(envProvider, nil); err != nil {
		return Config{}, fmt.Errorf("config: failed to load %s_* environment variables: %w", l.envPrefix, err)
	}

	var out Config
	if err := k.Unmarshal("", &out); err != nil {
		return Config{}, fmt.Errorf("config: failed to unmarshal: %w", err)
	}
	out.normalize()
	return out, nil
}

// WithSessionOverrides layers the hard_resync_threshold_ms and lan.* fields
// from a SYNC_PREPARE payload's sync_config block onto a copy of base.
// Only the fields named above are overridable. This never goes back
// through koanf — it's a plain struct copy-and-patch.
func (c Config) WithSessionOverrides(hardResyncThresholdMs *int, lan *LanOverride) Config {
	out := c
	if hardResyncThresholdMs != nil {
		out.HardResyncThresholdMs = *hardResyncThresholdMs
	}
	if lan != nil {
		if lan.Enabled != nil {
			out.LanEnabled = *lan.Enabled
		}
		if lan.BeaconHz != nil {
			out.LanBeaconHz = *lan.BeaconHz
		}
		if lan.BeaconPort != nil {
			out.LanBeaconPort = *lan.BeaconPort
		}
		if lan.TimeoutMs != nil {
			out.LanTimeoutMs = *lan.TimeoutMs
		}
		if lan.FallbackToCloud != nil {
			out.LanFallbackToCloud = *lan.FallbackToCloud
		}
		if lan.BindHost != nil {
			out.LanBindHost = *lan.BindHost
		}
		if lan.BroadcastAddr != nil {
			out.LanBroadcastAddr = *lan.BroadcastAddr
		}
	}
	out.normalize()
	return out
}

// LanOverride carries the optional per-session lan.* fields from a
// SYNC_PREPARE payload's sync_config.lan block.
type LanOverride struct {
	Enabled         *bool
	BeaconHz        *float64
	BeaconPort      *int
	TimeoutMs       *int
	FallbackToCloud *bool
	BindHost        *string
	BroadcastAddr   *string
}

// defaultsMap mirrors d's koanf tags into a flat map so it can be loaded
// through confmap.Provider as the base layer the environment overrides.
func defaultsMap(d Config) map[string]interface{} {
	return map[string]interface{}{
		"command_poll_idle_s":          d.CommandPollIdleS,
		"command_poll_active_s":        d.CommandPollActiveS,
		"command_poll_critical_s":      d.CommandPollCriticalS,
		"status_interval_critical_s":   d.StatusIntervalCriticalS,
		"status_interval_playing_s":    d.StatusIntervalPlayingS,
		"status_interval_playing_lan_s": d.StatusIntervalPlayingLanS,
		"command_poll_playing_lan_s":   d.CommandPollPlayingLanS,
		"hard_resync_threshold_ms":     d.HardResyncThresholdMs,
		"lan_enabled":                  d.LanEnabled,
		"lan_beacon_hz":                d.LanBeaconHz,
		"lan_beacon_port":              d.LanBeaconPort,
		"lan_timeout_ms":               d.LanTimeoutMs,
		"lan_fallback_to_cloud":        d.LanFallbackToCloud,
		"lan_bind_host":                d.LanBindHost,
		"lan_broadcast_addr":           d.LanBroadcastAddr,
	}
}
