// Package lanbeacon implements the LAN beacon service: UDP broadcast/receive
// of playback phase, and master/follower/idle role election for a single
// sync session at a time.
//
// Exactly one role is active at a time; switching roles tears down the
// previous socket and goroutine first, per the stop-then-start discipline of
// player/lan_sync.py's start_master/start_follower.
package lanbeacon

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Role identifies what a Service is currently doing.
type Role int

const (
	Idle Role = iota
	Master
	Follower
)

func (r Role) String() string {
	switch r {
	case Master:
		return "master"
	case Follower:
		return "follower"
	default:
		return "idle"
	}
}

// Beacon is the wire format broadcast by the master and decoded by
// followers. Compact (no-whitespace) JSON is produced on the wire via
// json.Marshal's default encoding, which already omits insignificant
// whitespace.
type Beacon struct {
	V              int     `json:"v"`
	SessionID      string  `json:"session_id"`
	MasterDeviceID string  `json:"master_device_id"`
	Seq            uint64  `json:"seq"`
	SentAtMs       int64   `json:"sent_at_ms"`
	PhaseMs        float64 `json:"phase_ms"`
	DurationMs     int64   `json:"duration_ms"`
	PlaybackSpeed  float64 `json:"playback_speed"`
}

// PhaseSource supplies the master loop with the current playback phase and
// speed to broadcast. Returning ok=false for phase skips that tick's send.
type PhaseSource interface {
	PhaseMs() (ms float64, ok bool)
	Speed() float64
}

// Config carries the tunables from the SYNC_LAN_* environment
// variables, already validated against their stated minimums.
type Config struct {
	Enabled        bool
	BeaconHz       float64
	BeaconPort     int
	TimeoutMs      int64
	BroadcastAddr  string
	BindHost       string
}

func (c Config) normalized() Config {
	if c.BeaconHz < 1.0 {
		c.BeaconHz = 1.0
	}
	if c.TimeoutMs < 250 {
		c.TimeoutMs = 250
	}
	if c.BroadcastAddr == "" {
		c.BroadcastAddr = "255.255.255.255"
	}
	if c.BindHost == "" {
		c.BindHost = "0.0.0.0"
	}
	return c
}

// Service is the single LAN beacon instance a device runs. Build one with
// New, which returns it idle.
type Service struct {
	mu     sync.Mutex
	cfg    Config
	role   Role
	conn   *net.UDPConn
	stopCh chan struct{}
	wg     sync.WaitGroup

	sessionID      string
	masterDeviceID string
	durationMs     int64
	seq            uint64
	source         PhaseSource

	lastBeacon   *Beacon
	lastReceivedAt time.Time
	hasBeacon    bool

	now func() time.Time // overridable for tests
}

// New returns an idle Service with the given configuration.
func New(cfg Config) *Service {
	return &Service{cfg: cfg.normalized(), now: time.Now}
}

// UpdateSettings replaces the whole configuration with cfg; it does not
// restart an active role.
func (s *Service) UpdateSettings(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg.normalized()
}

// Role reports the current role.
func (s *Service) Role() Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

// Stop tears down any active socket and background goroutine, returning the
// service to idle. Safe to call when already idle.
func (s *Service) Stop() {
	s.mu.Lock()
	conn := s.conn
	stopCh := s.stopCh
	s.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
	}
	if conn != nil {
		_ = conn.Close()
	}
	s.wg.Wait()

	s.mu.Lock()
	s.conn = nil
	s.stopCh = nil
	s.role = Idle
	s.sessionID = ""
	s.masterDeviceID = ""
	s.durationMs = 0
	s.source = nil
	s.lastBeacon = nil
	s.hasBeacon = false
	s.mu.Unlock()
}

// StartMaster begins broadcasting phase beacons for sessionID at the
// configured beacon_hz, reading phase/speed from source. Returns false if
// the service is disabled or socket setup fails.
func (s *Service) StartMaster(sessionID, masterDeviceID string, durationMs int64, source PhaseSource) bool {
	s.Stop()

	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()
	if !cfg.Enabled {
		return false
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: 0})
	if err != nil {
		return false
	}
	if err := setSocketOpt(conn, unix.SO_BROADCAST); err != nil {
		_ = conn.Close()
		return false
	}

	stopCh := make(chan struct{})
	s.mu.Lock()
	s.conn = conn
	s.role = Master
	s.sessionID = sessionID
	s.masterDeviceID = masterDeviceID
	if durationMs < 1 {
		durationMs = 1
	}
	s.durationMs = durationMs
	s.source = source
	s.seq = 0
	s.stopCh = stopCh
	s.mu.Unlock()

	s.wg.Add(1)
	go s.masterLoop(conn, stopCh, cfg)
	return true
}

// StartFollower begins listening for beacons matching sessionID and
// masterDeviceID. Returns false if the service is disabled or the socket
// fails to bind.
func (s *Service) StartFollower(sessionID, masterDeviceID string, durationMs int64) bool {
	s.Stop()

	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()
	if !cfg.Enabled {
		return false
	}

	addr := &net.UDPAddr{IP: net.ParseIP(cfg.BindHost), Port: cfg.BeaconPort}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return false
	}
	if err := setSocketOpt(conn, unix.SO_REUSEADDR); err != nil {
		_ = conn.Close()
		return false
	}

	stopCh := make(chan struct{})
	s.mu.Lock()
	s.conn = conn
	s.role = Follower
	s.sessionID = sessionID
	s.masterDeviceID = masterDeviceID
	if durationMs < 1 {
		durationMs = 1
	}
	s.durationMs = durationMs
	s.seq = 0
	s.lastBeacon = nil
	s.hasBeacon = false
	s.stopCh = stopCh
	s.mu.Unlock()

	s.wg.Add(1)
	go s.followerLoop(conn, stopCh, cfg)
	return true
}

func (s *Service) masterLoop(conn *net.UDPConn, stopCh chan struct{}, cfg Config) {
	defer s.wg.Done()

	interval := time.Duration(float64(time.Second) / cfg.BeaconHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	broadcastAddr := &net.UDPAddr{IP: net.ParseIP(cfg.BroadcastAddr), Port: cfg.BeaconPort}

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			s.sendBeacon(conn, broadcastAddr)
		}
	}
}

func (s *Service) sendBeacon(conn *net.UDPConn, addr *net.UDPAddr) {
	s.mu.Lock()
	sessionID := s.sessionID
	masterDeviceID := s.masterDeviceID
	durationMs := s.durationMs
	source := s.source
	seq := s.seq
	s.seq++
	s.mu.Unlock()

	if sessionID == "" || masterDeviceID == "" || durationMs <= 0 || source == nil {
		return
	}
	phase, ok := source.PhaseMs()
	if !ok {
		return
	}

	payload := Beacon{
		V:              1,
		SessionID:      sessionID,
		MasterDeviceID: masterDeviceID,
		Seq:            seq,
		SentAtMs:       s.now().UnixMilli(),
		PhaseMs:        fmodPositive(phase, float64(durationMs)),
		DurationMs:     durationMs,
		PlaybackSpeed:  source.Speed(),
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	// Sends silently drop on transient OS errors; the network is
	// unreliable by nature and a single missed beacon self-corrects on
	// the next tick.
	_, _ = conn.WriteToUDP(raw, addr)
}

func (s *Service) followerLoop(conn *net.UDPConn, stopCh chan struct{}, cfg Config) {
	defer s.wg.Done()

	buf := make([]byte, 4096)
	for {
		select {
		case <-stopCh:
			return
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-stopCh:
				return
			default:
				continue
			}
		}

		var beacon Beacon
		if err := json.Unmarshal(buf[:n], &beacon); err != nil {
			continue
		}

		s.mu.Lock()
		sessionID := s.sessionID
		masterDeviceID := s.masterDeviceID
		s.mu.Unlock()

		if beacon.SessionID != sessionID || beacon.MasterDeviceID != masterDeviceID {
			continue
		}

		b := beacon
		s.mu.Lock()
		s.lastBeacon = &b
		s.hasBeacon = true
		s.lastReceivedAt = s.now()
		s.mu.Unlock()
	}
}

// GetFollowerTargetPhaseMs returns the extrapolated target phase from the
// last accepted beacon, or ok=false if not a follower, no beacon has ever
// arrived, or the beacon is stale beyond timeout_ms.
func (s *Service) GetFollowerTargetPhaseMs(now time.Time) (phaseMs float64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.role != Follower || !s.hasBeacon || s.lastBeacon == nil {
		return 0, false
	}
	cfg := s.cfg
	if now.Sub(s.lastReceivedAt) > time.Duration(cfg.TimeoutMs)*time.Millisecond {
		return 0, false
	}

	b := s.lastBeacon
	durationMs := b.DurationMs
	if durationMs <= 0 {
		durationMs = s.durationMs
	}
	if durationMs <= 0 {
		return 0, false
	}

	elapsedMs := now.UnixMilli() - b.SentAtMs
	if elapsedMs < 0 {
		elapsedMs = 0
	}
	speed := b.PlaybackSpeed
	if speed == 0 {
		speed = 1.0
	}
	phase := b.PhaseMs + float64(elapsedMs)*speed
	return fmodPositive(phase, float64(durationMs)), true
}

// GetFollowerBeaconAgeMs returns how long ago the last beacon was received,
// or ok=false if not a follower or no beacon has arrived yet.
func (s *Service) GetFollowerBeaconAgeMs(now time.Time) (ageMs int64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.role != Follower || !s.hasBeacon {
		return 0, false
	}
	age := now.Sub(s.lastReceivedAt).Milliseconds()
	if age < 0 {
		age = 0
	}
	return age, true
}

// setSocketOpt enables a SOL_SOCKET-level boolean option on conn's
// underlying file descriptor. net.ListenUDP never sets SO_BROADCAST, so
// without this the master's sends to a broadcast address fail with EACCES
// on Linux — silently, since sendBeacon discards write errors.
func setSocketOpt(conn *net.UDPConn, opt int) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	if err := raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, opt, 1)
	}); err != nil {
		return err
	}
	return sockErr
}

func fmodPositive(v, m float64) float64 {
	if m <= 0 {
		return 0
	}
	r := v - m*float64(int64(v/m))
	if r < 0 {
		r += m
	}
	return r
}

// String renders the service's role for log/status lines from small struct
// fields, the way a terse status-check result would.
func (s *Service) String() string {
	return fmt.Sprintf("lanbeacon(role=%s port=%s)", s.Role(), strconv.Itoa(s.cfg.BeaconPort))
}
