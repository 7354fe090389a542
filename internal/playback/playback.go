// Package playback defines the external contract the videowall supervisor
// drives to control the local media renderer. The actual renderer process
// and its IPC socket are out of scope for this package — it holds the
// interface only, plus test doubles used by internal/videowall's own
// tests.
package playback

import "github.com/alejoRGB/videowall-sync/internal/session"

// Backend is the capability interface the supervisor depends on. No
// implementation lives in this package; production wiring supplies a
// concrete mpv IPC client (see internal/mpvipc).
type Backend interface {
	// StartSyncPlayback begins rendering ctx.LocalPath, paused, ready for
	// an initial seek. Returns false on failure (PlaybackStartError).
	StartSyncPlayback(ctx session.Context) bool

	// StopPlayback forcibly terminates rendering.
	StopPlayback()

	// SeekToPhaseMs performs an absolute seek within the loop.
	SeekToPhaseMs(phaseMs int64) bool

	// SetPause pauses or resumes rendering.
	SetPause(paused bool) bool

	// SetPlaybackSpeed sets the playback rate; speed must be within
	// [0.97, 1.03].
	SetPlaybackSpeed(speed float64) bool

	// IsPlaybackAlive reports whether the renderer process is still
	// running and responsive.
	IsPlaybackAlive() bool

	// GetPlaybackTimeMs returns the current media position, or ok=false
	// if unavailable this tick.
	GetPlaybackTimeMs() (ms float64, ok bool)

	// GetPlaybackDurationMs returns the media's real duration, which may
	// deviate from the session's nominal duration_ms by up to several
	// hundred milliseconds.
	GetPlaybackDurationMs() (ms float64, ok bool)
}
