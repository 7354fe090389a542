// Package videowall implements the sync-session supervisor: a single
// cooperative Tick() loop that polls commands, advances the session state
// machine, samples and corrects drift, and reports status.
//
// Grounded on _examples/original_source/player/videowall_controller.py's
// tick/_advance_runtime_state/_handle_prepare/_handle_stop/
// _handle_playback_failure/_build_sync_runtime control flow (that Python
// controller hardcodes drift fields to 0; this package implements that
// part directly against internal/drift and internal/lanbeacon instead of
// porting a stub).
package videowall

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/alejoRGB/videowall-sync/internal/clockhealth"
	"github.com/alejoRGB/videowall-sync/internal/cloudapi"
	"github.com/alejoRGB/videowall-sync/internal/config"
	"github.com/alejoRGB/videowall-sync/internal/drift"
	"github.com/alejoRGB/videowall-sync/internal/lanbeacon"
	"github.com/alejoRGB/videowall-sync/internal/playback"
	"github.com/alejoRGB/videowall-sync/internal/session"
	"github.com/alejoRGB/videowall-sync/internal/synclog"
)

const (
	warmupLoops         = 2
	warmupMinMs   int64 = 2000
	warmupMaxMs   int64 = 12000
	speedChangeThreshold = 0.002
	softCorrectionLogIntervalMs = 5000
	thermalLogInterval          = 30 * time.Second
	maxRestartAttempts          = 5
)

var restartBackoffSeconds = [...]int64{2, 4, 8, 16, 30}

const (
	lanModeDisabled      = "disabled"
	lanModeCloudFallback = "cloud_fallback"
	lanModeMaster        = "master"
	lanModeFollower      = "follower"
)

// Supervisor is the videowall sync supervisor for a single device. Exactly
// one session is active at a time. Tick must be called from one goroutine
// only — single-threaded cooperative use by the supervisor.
type Supervisor struct {
	sm         *session.StateMachine
	client     cloudapi.Client
	backend    playback.Backend
	lan        *lanbeacon.Service
	clockCache *clockhealth.Cache
	cfg        config.Config

	now   func() time.Time
	sleep func(time.Duration)

	lanMode string

	window            drift.Window
	lastDriftMs       float64
	maxDriftMs        float64
	resyncCount       int
	lastAppliedSpeed  float64
	lastSoftLogAtMs   int64
	lastThermalLogAt  time.Time

	warmupUntilMs   *int64
	restartAttempts int
	nextRestartAtMs *int64

	lastPollAt   time.Time
	lastStatusAt time.Time
}

// New builds a Supervisor wired to the given collaborators, all of which
// are consumed as interfaces/concrete exported types from their own
// packages — this package contains no cloud transport, no playback IPC,
// and no socket code of its own.
func New(client cloudapi.Client, backend playback.Backend, lan *lanbeacon.Service, clockCache *clockhealth.Cache, cfg config.Config) *Supervisor {
	return &Supervisor{
		sm:               session.New(),
		client:           client,
		backend:          backend,
		lan:              lan,
		clockCache:       clockCache,
		cfg:              cfg,
		now:              time.Now,
		sleep:            time.Sleep,
		lanMode:          lanModeDisabled,
		lastAppliedSpeed: 1.0,
	}
}

// State returns the current session state, for diagnostics/tests.
func (s *Supervisor) State() session.SessionState { return s.sm.State() }

// Tick performs one iteration of the supervisor's cooperative loop:
// poll commands if due, advance runtime state, report status if due.
// The caller's outer loop must invoke Tick at >= 4 Hz for drift sampling to stay responsive.
func (s *Supervisor) Tick(ctx context.Context) {
	now := s.now()

	if now.Sub(s.lastPollAt) >= s.pollInterval() {
		s.lastPollAt = now
		s.pollCommands(ctx)
	}

	s.advanceRuntimeState(ctx)

	if s.sm.IsActive() && now.Sub(s.lastStatusAt) >= s.statusInterval() {
		s.lastStatusAt = now
		s.reportStatus(ctx)
	}
}

func secs(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// pollInterval selects the command-poll cadence per the table.
func (s *Supervisor) pollInterval() time.Duration {
	if !s.sm.IsActive() {
		return secs(s.cfg.CommandPollIdleS)
	}
	switch s.sm.State() {
	case session.Preloading, session.Ready, session.WarmingUp:
		return secs(s.cfg.CommandPollCriticalS)
	case session.Playing:
		if s.lanMode == lanModeFollower {
			return secs(math.Max(s.cfg.CommandPollActiveS, s.cfg.CommandPollPlayingLanS))
		}
		return secs(s.cfg.CommandPollActiveS)
	default:
		return secs(s.cfg.CommandPollIdleS)
	}
}

// statusInterval selects the status-report cadence per the
// table; only consulted while a session is active (Tick gates on
// sm.IsActive() before checking this).
func (s *Supervisor) statusInterval() time.Duration {
	switch s.sm.State() {
	case session.Ready, session.WarmingUp:
		return secs(s.cfg.StatusIntervalCriticalS)
	case session.Playing:
		if s.lanMode == lanModeFollower {
			return secs(s.cfg.StatusIntervalPlayingLanS)
		}
		return secs(s.cfg.StatusIntervalPlayingS)
	default:
		return secs(s.cfg.StatusIntervalCriticalS)
	}
}

func extractSessionID(payloadSessionID, fallback string) string {
	if payloadSessionID != "" {
		return payloadSessionID
	}
	return fallback
}

func (s *Supervisor) pollCommands(ctx context.Context) {
	commands := s.client.PollDeviceCommands(ctx, 20)
	for _, cmd := range commands {
		var (
			ok     bool
			errMsg string
		)
		switch cmd.Type {
		case cloudapi.CommandSyncPrepare:
			ok, errMsg = s.handlePrepare(ctx, cmd.SessionID, cmd.Payload)
		case cloudapi.CommandSyncStop:
			ok, errMsg = s.handleStop(cmd.SessionID, cmd.Payload)
		default:
			ok, errMsg = false, (&ValidationError{Reason: "unsupported command type: " + string(cmd.Type)}).Error()
		}

		runtime := s.buildSyncRuntime()
		status := cloudapi.AckACKED
		if !ok {
			status = cloudapi.AckFAILED
		}
		s.client.AckDeviceCommand(ctx, cmd.ID, status, errMsg, &runtime)
	}
}

func pathExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

func (s *Supervisor) resolveLocalPath(ctx context.Context, rawPath, mediaID string) (string, bool) {
	if filepath.IsAbs(rawPath) && pathExists(rawPath) {
		return rawPath, true
	}

	mediaDir := s.client.MediaDir(ctx)
	if mediaDir != "" {
		candidate := filepath.Join(mediaDir, filepath.Base(rawPath))
		if pathExists(candidate) {
			return candidate, true
		}
	}

	if pathExists(rawPath) {
		return rawPath, true
	}

	return s.client.EnsureSyncMediaAvailable(ctx, mediaID, rawPath)
}

func (s *Supervisor) handlePrepare(ctx context.Context, fallbackSessionID string, payload cloudapi.Payload) (bool, string) {
	sessionID := extractSessionID(payload.SessionID, fallbackSessionID)
	if sessionID == "" {
		return false, (&ValidationError{Reason: "missing session_id in SYNC_PREPARE"}).Error()
	}
	if payload.Media.LocalPath == "" {
		return false, (&ValidationError{Reason: "missing media.local_path in SYNC_PREPARE"}).Error()
	}
	if payload.StartAtMs == nil || payload.DurationMs == nil {
		return false, (&ValidationError{Reason: "missing start_at_ms or duration_ms in SYNC_PREPARE"}).Error()
	}

	resolvedPath, ok := s.resolveLocalPath(ctx, payload.Media.LocalPath, payload.Media.MediaID)
	if !ok {
		return false, (&ValidationError{Reason: "local media not found: " + payload.Media.LocalPath}).Error()
	}

	masterDeviceID := ""
	if payload.MasterDeviceID != nil {
		masterDeviceID = *payload.MasterDeviceID
	}

	newCtx := session.Context{
		SessionID:      sessionID,
		StartAtMs:      *payload.StartAtMs,
		DurationMs:     *payload.DurationMs,
		LocalPath:      resolvedPath,
		MasterDeviceID: masterDeviceID,
	}

	existing := s.sm.Context()
	if existing != nil && existing.SessionID == sessionID {
		s.sm.UpdateContext(newCtx)
		switch s.sm.State() {
		case session.Ready, session.WarmingUp, session.Playing:
			if s.backend.IsPlaybackAlive() {
				s.configureLanRole(ctx, sessionID, masterDeviceID, newCtx.DurationMs)
				return true, ""
			}
		}
	}

	if s.sm.IsActive() && (existing == nil || existing.SessionID != sessionID) {
		s.stopActiveSession()
	}

	if payload.SyncConfig != nil {
		s.applySessionConfig(*payload.SyncConfig)
	}

	s.sm.Activate(newCtx)

	if !s.sm.Transition(session.Preloading, false) {
		return false, (&ValidationError{Reason: "invalid transition to PRELOADING"}).Error()
	}

	health := s.clockCache.Get(ctx, s.now(), true)
	if health.Critical {
		s.sm.Transition(session.Errored, true)
		err := &ClockCriticalError{OffsetMs: health.OffsetMs, HasOffset: health.HasOffset, Healthy: health.Healthy}
		return false, err.Error()
	}

	active := s.sm.Context()
	if active == nil {
		s.sm.Transition(session.Errored, true)
		return false, (&ValidationError{Reason: "missing session context after activation"}).Error()
	}

	if !s.backend.StartSyncPlayback(*active) {
		s.sm.Transition(session.Errored, true)
		err := &PlaybackStartError{Reason: "failed to start playback in sync mode"}
		return false, err.Error()
	}

	if refinedMs, ok := s.refinePlaybackDuration(); ok {
		refined := *active
		refined.DurationMs = refinedMs
		s.sm.UpdateContext(refined)
		active = &refined
	}

	if !s.sm.Transition(session.Ready, false) {
		s.sm.Transition(session.Errored, true)
		return false, (&ValidationError{Reason: "invalid transition to READY"}).Error()
	}

	s.configureLanRole(ctx, sessionID, masterDeviceID, active.DurationMs)

	synclog.Emit(synclog.Ready, sessionID,
		"local_path", payload.Media.LocalPath,
		"resolved_local_path", resolvedPath,
		"start_at_ms", active.StartAtMs,
		"duration_ms", active.DurationMs,
		"master_device_id", masterDeviceID,
	)

	s.restartAttempts = 0
	s.nextRestartAtMs = nil
	s.resyncCount = 0
	s.window = drift.Window{}
	s.maxDriftMs = 0
	s.lastDriftMs = 0
	s.lastAppliedSpeed = 1.0

	return true, ""
}

// refinePlaybackDuration polls GetPlaybackDurationMs up to 15 times, 100ms
// apart, refining the coordinator-supplied duration_ms from the backend's
// own probe once playback has actually started (media container duration
// is authoritative over the cloud's estimate).
func (s *Supervisor) refinePlaybackDuration() (int64, bool) {
	for i := 0; i < 15; i++ {
		if ms, ok := s.backend.GetPlaybackDurationMs(); ok && ms > 0 {
			return int64(math.Round(ms)), true
		}
		s.sleep(100 * time.Millisecond)
	}
	return 0, false
}

func (s *Supervisor) applySessionConfig(sc cloudapi.SyncConfig) {
	var thresholdPtr *int
	if sc.HardResyncThresholdMs > 0 {
		threshold := sc.HardResyncThresholdMs
		thresholdPtr = &threshold
	}

	var lan *config.LanOverride
	if sc.Lan != (cloudapi.LanConfig{}) {
		enabled, beaconHz, beaconPort := sc.Lan.Enabled, sc.Lan.BeaconHz, sc.Lan.BeaconPort
		timeoutMs, fallback := sc.Lan.TimeoutMs, sc.Lan.FallbackToCloud
		bindHost, broadcastAddr := sc.Lan.BindHost, sc.Lan.BroadcastAddr
		lan = &config.LanOverride{
			Enabled: &enabled, BeaconHz: &beaconHz, BeaconPort: &beaconPort,
			TimeoutMs: &timeoutMs, FallbackToCloud: &fallback,
			BindHost: &bindHost, BroadcastAddr: &broadcastAddr,
		}
	}

	s.cfg = s.cfg.WithSessionOverrides(thresholdPtr, lan)
	s.lan.UpdateSettings(lanbeacon.Config{
		Enabled:       s.cfg.LanEnabled,
		BeaconHz:      s.cfg.LanBeaconHz,
		BeaconPort:    s.cfg.LanBeaconPort,
		TimeoutMs:     int64(s.cfg.LanTimeoutMs),
		BroadcastAddr: s.cfg.LanBroadcastAddr,
		BindHost:      s.cfg.LanBindHost,
	})
}

func (s *Supervisor) handleStop(fallbackSessionID string, payload cloudapi.Payload) (bool, string) {
	sessionID := extractSessionID(payload.SessionID, fallbackSessionID)
	existing := s.sm.Context()
	if existing != nil && sessionID != "" && existing.SessionID != sessionID {
		return true, ""
	}
	s.stopActiveSession()
	return true, ""
}

func (s *Supervisor) stopActiveSession() {
	s.backend.StopPlayback()
	s.lan.Stop()
	s.lanMode = lanModeDisabled
	if s.sm.IsActive() {
		s.sm.Transition(session.Disconnected, true)
	}
	s.sm.Reset()
	s.warmupUntilMs = nil
	s.restartAttempts = 0
	s.nextRestartAtMs = nil
	s.resyncCount = 0
	s.window = drift.Window{}
	s.maxDriftMs = 0
	s.lastDriftMs = 0
}

// configureLanRole implements the LAN role election rules: disabled config
// or an unresolvable local device id force
// cloud_fallback/disabled; otherwise the device becomes master, follower,
// or falls back to cloud depending on whether it matches, differs from,
// or is absent from ctx.master_device_id.
func (s *Supervisor) configureLanRole(ctx context.Context, sessionID, masterDeviceID string, durationMs int64) {
	if !s.cfg.LanEnabled {
		s.lan.Stop()
		s.lanMode = lanModeDisabled
		return
	}

	localDeviceID, ok := s.client.GetCurrentDeviceID(ctx)
	if !ok {
		s.lan.Stop()
		s.lanMode = lanModeCloudFallback
		return
	}

	switch {
	case masterDeviceID != "" && masterDeviceID == localDeviceID:
		source := backendPhaseSource{sup: s}
		if s.lan.StartMaster(sessionID, masterDeviceID, durationMs, source) {
			s.lanMode = lanModeMaster
		} else {
			log.Warn().Err(&LanTransportError{Op: "start_master"}).Str("session_id", sessionID).Msg("lan role election fell back to cloud")
			s.lanMode = lanModeCloudFallback
		}
	case masterDeviceID != "":
		if s.lan.StartFollower(sessionID, masterDeviceID, durationMs) {
			s.lanMode = lanModeFollower
		} else {
			log.Warn().Err(&LanTransportError{Op: "start_follower"}).Str("session_id", sessionID).Msg("lan role election fell back to cloud")
			s.lanMode = lanModeCloudFallback
		}
	default:
		s.lan.Stop()
		s.lanMode = lanModeCloudFallback
	}
}

// backendPhaseSource adapts the supervisor's playback backend and last
// applied correction speed into the lanbeacon.PhaseSource the master loop
// needs to broadcast beacons.
type backendPhaseSource struct {
	sup *Supervisor
}

func (b backendPhaseSource) PhaseMs() (float64, bool) { return b.sup.backend.GetPlaybackTimeMs() }
func (b backendPhaseSource) Speed() float64           { return b.sup.lastAppliedSpeed }

func (s *Supervisor) advanceRuntimeState(ctx context.Context) {
	c := s.sm.Context()
	if c == nil {
		return
	}
	nowMs := s.now().UnixMilli()

	switch s.sm.State() {
	case session.Ready, session.WarmingUp, session.Playing:
		if !s.backend.IsPlaybackAlive() {
			s.handlePlaybackFailure(c, nowMs)
			return
		}
	}

	if s.sm.State() == session.Ready && nowMs >= c.StartAtMs {
		s.startPlaybackAtTarget(c, nowMs)
	}

	switch s.sm.State() {
	case session.WarmingUp, session.Playing:
		s.sampleDriftAndCorrect(ctx, c, nowMs, s.sm.State() == session.WarmingUp)
	}

	if s.sm.State() == session.WarmingUp && s.warmupUntilMs != nil && nowMs >= *s.warmupUntilMs {
		s.sm.Transition(session.Playing, false)
	}
}

func (s *Supervisor) startPlaybackAtTarget(c *session.Context, nowMs int64) {
	var seekToMs int64
	if target, ok := drift.ComputeTargetPhaseMs(nowMs, c.StartAtMs, c.DurationMs); ok {
		seekToMs = drift.RoundToFrame(float64(target), drift.FrameMs)
		if !s.backend.SeekToPhaseMs(seekToMs) {
			log.Warn().Str("session_id", c.SessionID).Int64("seek_to_ms", seekToMs).Msg("initial phase alignment failed")
		}
	}
	s.backend.SetPlaybackSpeed(1.0)
	s.lastAppliedSpeed = 1.0
	s.backend.SetPause(false)

	if s.sm.Transition(session.WarmingUp, false) {
		s.enterWarmup(c, nowMs)
		synclog.Emit(synclog.Started, c.SessionID,
			"start_at_ms", c.StartAtMs,
			"started_at_ms", nowMs,
			"start_delay_ms", nowMs-c.StartAtMs,
			"seek_to_ms", seekToMs,
		)
	}
}

func (s *Supervisor) enterWarmup(c *session.Context, nowMs int64) {
	warmupMs := c.DurationMs * warmupLoops
	if warmupMs < warmupMinMs {
		warmupMs = warmupMinMs
	}
	if warmupMs > warmupMaxMs {
		warmupMs = warmupMaxMs
	}
	until := nowMs + warmupMs
	s.warmupUntilMs = &until
}

func (s *Supervisor) handlePlaybackFailure(c *session.Context, nowMs int64) {
	if s.restartAttempts >= maxRestartAttempts {
		s.sm.Transition(session.Errored, true)
		return
	}

	if s.nextRestartAtMs == nil {
		idx := s.restartAttempts
		if idx >= len(restartBackoffSeconds) {
			idx = len(restartBackoffSeconds) - 1
		}
		delaySeconds := restartBackoffSeconds[idx]
		next := nowMs + delaySeconds*1000
		s.nextRestartAtMs = &next
		synclog.Emit(synclog.MpvCrash, c.SessionID,
			"restart_in_s", delaySeconds,
			"attempt", s.restartAttempts+1,
			"max_attempts", maxRestartAttempts,
		)
		return
	}

	if nowMs < *s.nextRestartAtMs {
		return
	}

	s.restartAttempts++
	s.nextRestartAtMs = nil

	if !s.backend.StartSyncPlayback(*c) {
		if s.restartAttempts >= maxRestartAttempts {
			s.sm.Transition(session.Errored, true)
		}
		return
	}

	var seekToMs int64
	if target, ok := drift.ComputeTargetPhaseMs(nowMs, c.StartAtMs, c.DurationMs); ok {
		seekToMs = drift.RoundToFrame(float64(target), drift.FrameMs)
	}
	s.backend.SeekToPhaseMs(seekToMs)
	s.resyncCount++
	s.backend.SetPlaybackSpeed(1.0)
	s.lastAppliedSpeed = 1.0
	s.backend.SetPause(false)
	s.sm.Transition(session.WarmingUp, true)
	s.enterWarmup(c, nowMs)

	synclog.Emit(synclog.HardResync, c.SessionID,
		"reason", "rejoin",
		"seek_to_ms", seekToMs,
		"restart_attempts", s.restartAttempts,
	)
	synclog.Emit(synclog.Rejoin, c.SessionID,
		"seek_to_ms", seekToMs,
		"restart_attempts", s.restartAttempts,
	)

	s.restartAttempts = 0
}

// resolveTargetPhase implements the "Drift sampling" target
// resolution: prefer the LAN follower target while in follower or
// cloud_fallback mode, otherwise fall back to the cloud-computed target.
func (s *Supervisor) resolveTargetPhase(c *session.Context, nowMs int64) (targetMs int64, ok bool) {
	if s.lanMode == lanModeFollower || s.lanMode == lanModeCloudFallback {
		if phase, ok := s.lan.GetFollowerTargetPhaseMs(s.now()); ok {
			s.lanMode = lanModeFollower
			return int64(math.Round(phase)), true
		}
		if !s.cfg.LanFallbackToCloud {
			return 0, false
		}
		s.lanMode = lanModeCloudFallback
	}
	return drift.ComputeTargetPhaseMs(nowMs, c.StartAtMs, c.DurationMs)
}

func (s *Supervisor) sampleDriftAndCorrect(_ context.Context, c *session.Context, nowMs int64, inWarmup bool) {
	target, ok := s.resolveTargetPhase(c, nowMs)
	if !ok {
		return
	}
	playbackMs, ok := s.backend.GetPlaybackTimeMs()
	if !ok || c.DurationMs <= 0 {
		return
	}

	actual := math.Mod(playbackMs, float64(c.DurationMs))
	if actual < 0 {
		actual += float64(c.DurationMs)
	}

	driftMs := drift.ComputeWrappedDriftMs(actual, float64(target), c.DurationMs)
	s.window.Push(drift.Sample{TimestampMs: nowMs, AbsDriftMs: math.Abs(driftMs)})
	s.lastDriftMs = driftMs
	if math.Abs(driftMs) > s.maxDriftMs {
		s.maxDriftMs = math.Abs(driftMs)
	}

	opts := drift.DefaultDecideOptions()
	if s.cfg.HardResyncThresholdMs > 0 {
		opts.HardThresholdMs = float64(s.cfg.HardResyncThresholdMs)
	}
	decision := drift.DecideCorrection(driftMs, target, inWarmup, opts)
	s.applyCorrection(c, decision, nowMs)
}

func (s *Supervisor) applyCorrection(c *session.Context, decision drift.Decision, nowMs int64) {
	switch decision.Action {
	case drift.ActionHard:
		if s.backend.SeekToPhaseMs(decision.SeekToMs) {
			s.resyncCount++
			s.backend.SetPlaybackSpeed(1.0)
			s.lastAppliedSpeed = 1.0
			synclog.Emit(synclog.HardResync, c.SessionID,
				"reason", "drift",
				"seek_to_ms", decision.SeekToMs,
				"drift_ms", s.lastDriftMs,
			)
		}
	case drift.ActionSoft:
		if math.Abs(decision.TargetSpeed-s.lastAppliedSpeed) >= speedChangeThreshold {
			s.backend.SetPlaybackSpeed(decision.TargetSpeed)
			s.lastAppliedSpeed = decision.TargetSpeed
			if nowMs-s.lastSoftLogAtMs >= softCorrectionLogIntervalMs {
				s.lastSoftLogAtMs = nowMs
				synclog.Emit(synclog.SoftCorrection, c.SessionID,
					"target_speed", decision.TargetSpeed,
					"drift_ms", s.lastDriftMs,
				)
			}
		}
	default:
		if math.Abs(1.0-s.lastAppliedSpeed) >= speedChangeThreshold {
			s.backend.SetPlaybackSpeed(1.0)
			s.lastAppliedSpeed = 1.0
		}
	}
}

// buildSyncRuntime assembles the telemetry snapshot attached to every ack
// and status report, per the "Telemetry" table.
func (s *Supervisor) buildSyncRuntime() cloudapi.SyncRuntime {
	c := s.sm.Context()
	if c == nil {
		return cloudapi.SyncRuntime{}
	}

	health := s.clockCache.Get(context.Background(), s.now(), false)

	var lanAge *int64
	if age, ok := s.lan.GetFollowerBeaconAgeMs(s.now()); ok {
		lanAge = &age
	}

	// Open Question 3: elapsed is measured from start_at_ms, not from
	// whenever READY was reached, and is clamped at zero when now hasn't
	// reached start_at_ms yet — resync_rate reports 0 rather than going
	// unbounded during that window.
	elapsedMs := s.now().UnixMilli() - c.StartAtMs
	if elapsedMs < 0 {
		elapsedMs = 0
	}
	elapsedMinutes := float64(elapsedMs) / 60000.0
	resyncRate := 0.0
	if elapsedMinutes > 0 {
		resyncRate = float64(s.resyncCount) / elapsedMinutes
	}

	return cloudapi.SyncRuntime{
		SessionID:      c.SessionID,
		Status:         s.sm.State().String(),
		DriftMs:        s.lastDriftMs,
		ResyncCount:    s.resyncCount,
		AvgDriftMs:     s.window.Avg(),
		MaxDriftMs:     s.maxDriftMs,
		ResyncRate:     resyncRate,
		ClockOffsetMs:  health.OffsetMs,
		Throttled:      health.Throttled,
		HealthScore:    health.HealthScore,
		LanMode:        s.lanMode,
		LanBeaconAgeMs: lanAge,
	}
}

// SyncRuntime implements telemetry.RuntimeProvider.
func (s *Supervisor) SyncRuntime() cloudapi.SyncRuntime { return s.buildSyncRuntime() }

func (s *Supervisor) reportStatus(ctx context.Context) {
	rt := s.buildSyncRuntime()
	if rt.SessionID == "" {
		return
	}

	if rt.Throttled && s.now().Sub(s.lastThermalLogAt) >= thermalLogInterval {
		s.lastThermalLogAt = s.now()
		synclog.Emit(synclog.ThermalThrottle, rt.SessionID,
			"clock_offset_ms", rt.ClockOffsetMs,
			"health_score", rt.HealthScore,
		)
	}

	contentName := ""
	if c := s.sm.Context(); c != nil {
		contentName = filepath.Base(c.LocalPath)
	}
	s.client.ReportPlaybackState(ctx, "", contentName, "", &rt)
}
