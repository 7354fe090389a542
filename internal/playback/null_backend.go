package playback

import "github.com/alejoRGB/videowall-sync/internal/session"

// NullBackend is a configurable in-memory Backend double, exported for use
// by other packages' tests (internal/videowall exercises the supervisor
// against it rather than spawning a real mpv process in unit tests).
type NullBackend struct {
	Alive       bool
	PlaybackMs  float64
	HasPosition bool
	DurationMs  float64
	HasDuration bool
	StartOK     bool
	SeekOK      bool

	Paused bool
	Speed  float64

	StartCalls int
	StopCalls  int
	SeekCalls  int
	PauseCalls int
	SpeedCalls int
	LastSeekMs int64
	LastCtx    session.Context
}

// NewNullBackend returns a NullBackend defaulted to a healthy, alive
// playback session at speed 1.0.
func NewNullBackend() *NullBackend {
	return &NullBackend{Alive: true, StartOK: true, SeekOK: true, Speed: 1.0}
}

func (n *NullBackend) StartSyncPlayback(ctx session.Context) bool {
	n.StartCalls++
	n.LastCtx = ctx
	n.Alive = n.StartOK
	return n.StartOK
}

func (n *NullBackend) StopPlayback() {
	n.StopCalls++
	n.Alive = false
}

func (n *NullBackend) SeekToPhaseMs(phaseMs int64) bool {
	n.SeekCalls++
	n.LastSeekMs = phaseMs
	if n.SeekOK {
		n.PlaybackMs = float64(phaseMs)
		n.HasPosition = true
	}
	return n.SeekOK
}

func (n *NullBackend) SetPause(paused bool) bool {
	n.PauseCalls++
	n.Paused = paused
	return true
}

func (n *NullBackend) SetPlaybackSpeed(speed float64) bool {
	n.SpeedCalls++
	n.Speed = speed
	return true
}

func (n *NullBackend) IsPlaybackAlive() bool { return n.Alive }

func (n *NullBackend) GetPlaybackTimeMs() (float64, bool) { return n.PlaybackMs, n.HasPosition }

func (n *NullBackend) GetPlaybackDurationMs() (float64, bool) { return n.DurationMs, n.HasDuration }
