// Package clockhealth probes OS time-synchronization status and
// Raspberry Pi thermal throttling, producing the ClockHealth record the
// videowall supervisor gates SYNC_PREPARE acceptance on.
//
// Both probes shell out to platform utilities via exec.CommandContext and
// parse-or-degrade on failure rather than maintaining a daemon-local time
// library.
package clockhealth

import (
	"context"
	"math"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Health is a point-in-time read of clock synchronization and thermal
// state, per the ClockHealth.
type Health struct {
	Healthy     bool
	Critical    bool
	OffsetMs    float64
	HasOffset   bool
	Throttled   bool
	HealthScore float64
}

// criticalHealth is returned whenever both time-sync probes fail outright.
func criticalHealth() Health {
	return Health{Healthy: false, Critical: true, HealthScore: 0}
}

var offsetLineRe = regexp.MustCompile(`[-+]?\d+(\.\d+)?`)

// Prober queries time-sync and thermal state. The default implementation
// shells out to chronyc/timedatectl/vcgencmd; tests inject a fake via the
// run field.
type Prober struct {
	MaxOffsetMs float64

	// run executes a command and returns its combined stdout, overridable
	// in tests so no real subprocess is spawned.
	run func(ctx context.Context, name string, args ...string) (string, error)
}

// NewProber returns a Prober that shells out to the real system utilities.
func NewProber(maxOffsetMs float64) *Prober {
	return &Prober{
		MaxOffsetMs: maxOffsetMs,
		run:         runCommand,
	}
}

// NewProberWithRunner returns a Prober backed by a caller-supplied command
// runner instead of the real chronyc/timedatectl/vcgencmd utilities — used
// by other packages' tests to exercise Cache/Prober consumers without
// spawning subprocesses.
func NewProberWithRunner(maxOffsetMs float64, run func(ctx context.Context, name string, args ...string) (string, error)) *Prober {
	return &Prober{MaxOffsetMs: maxOffsetMs, run: run}
}

func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	return string(out), err
}

// Probe runs both probes and combines them into a single Health value per
// the scoring rule.
func (p *Prober) Probe(ctx context.Context) Health {
	offsetMs, hasOffset, normalLeap, timeSyncOK := p.probeTimeSync(ctx)
	throttled := p.probeThrottled(ctx)

	if !timeSyncOK {
		return criticalHealth()
	}

	maxOffset := p.MaxOffsetMs
	if maxOffset <= 0 {
		maxOffset = 50
	}

	score := 0.2
	if normalLeap {
		score += 0.4
	}
	withinMax := hasOffset && math.Abs(offsetMs) <= maxOffset
	withinDouble := hasOffset && math.Abs(offsetMs) <= 2*maxOffset
	if withinMax {
		score += 0.4
	}
	if withinDouble {
		score += 0.2
	}
	if throttled {
		score -= 0.3
	}
	score = clamp01(score)

	// The timedatectl fallback reports no offset; health then rests on its
	// sync status alone.
	healthy := normalLeap && (withinMax || !hasOffset) && !throttled

	return Health{
		Healthy:     healthy,
		Critical:    false,
		OffsetMs:    offsetMs,
		HasOffset:   hasOffset,
		Throttled:   throttled,
		HealthScore: score,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// probeTimeSync prefers chronyc tracking, falling back to timedatectl
// when chronyc is unavailable. timeSyncOK is false only when both
// utilities fail entirely.
func (p *Prober) probeTimeSync(ctx context.Context) (offsetMs float64, hasOffset bool, normalLeap bool, timeSyncOK bool) {
	out, err := p.run(ctx, "chronyc", "tracking")
	if err == nil {
		return parseChronyTracking(out)
	}

	out, err = p.run(ctx, "timedatectl", "show", "--property=NTPSynchronized")
	if err != nil {
		return 0, false, false, false
	}
	synced := strings.Contains(out, "NTPSynchronized=yes")
	return 0, false, synced, true
}

// parseChronyTracking parses `chronyc tracking` output: the "Leap status"
// line must read Normal, and the offset is taken from the first of
// Last offset / RMS offset / System time present.
func parseChronyTracking(out string) (offsetMs float64, hasOffset bool, normalLeap bool, timeSyncOK bool) {
	timeSyncOK = true
	lines := strings.Split(out, "\n")

	var lastOffset, rmsOffset, systemTime *float64
	for _, line := range lines {
		switch {
		case strings.HasPrefix(strings.TrimSpace(line), "Leap status"):
			if idx := strings.Index(line, ":"); idx >= 0 {
				normalLeap = strings.TrimSpace(line[idx+1:]) == "Normal"
			}
		case strings.HasPrefix(strings.TrimSpace(line), "Last offset"):
			lastOffset = extractSecondsAsMs(line)
		case strings.HasPrefix(strings.TrimSpace(line), "RMS offset"):
			rmsOffset = extractSecondsAsMs(line)
		case strings.HasPrefix(strings.TrimSpace(line), "System time"):
			systemTime = extractSecondsAsMs(line)
		}
	}

	for _, v := range []*float64{lastOffset, rmsOffset, systemTime} {
		if v != nil {
			return *v, true, normalLeap, timeSyncOK
		}
	}
	return 0, false, normalLeap, timeSyncOK
}

func extractSecondsAsMs(line string) *float64 {
	match := offsetLineRe.FindString(line)
	if match == "" {
		return nil
	}
	seconds, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return nil
	}
	ms := seconds * 1000
	return &ms
}

// probeThrottled runs vcgencmd get_throttled and checks the 0x4 bit
// (currently throttled). Absence of vcgencmd (non-Pi hardware) is treated
// as not throttled, not an error.
func (p *Prober) probeThrottled(ctx context.Context) bool {
	out, err := p.run(ctx, "vcgencmd", "get_throttled")
	if err != nil {
		return false
	}
	return parseThrottled(out)
}

func parseThrottled(out string) bool {
	out = strings.TrimSpace(out)
	idx := strings.Index(out, "0x")
	if idx < 0 {
		return false
	}
	val, err := strconv.ParseUint(out[idx+2:], 16, 64)
	if err != nil {
		return false
	}
	return val&0x4 != 0
}

// Cache wraps a Prober with the supervisor's poll-interval gating: Probe
// results are reused until Interval has elapsed, unless ForceRefresh is
// requested (used before accepting a SYNC_PREPARE).
type Cache struct {
	prober   *Prober
	interval time.Duration

	last     Health
	lastAt   time.Time
	hasValue bool
}

// NewCache wraps prober with caching at the given refresh interval.
func NewCache(prober *Prober, interval time.Duration) *Cache {
	return &Cache{prober: prober, interval: interval}
}

// Get returns the cached health, refreshing if the interval has elapsed
// since the last probe or forceRefresh is set.
func (c *Cache) Get(ctx context.Context, now time.Time, forceRefresh bool) Health {
	if forceRefresh || !c.hasValue || now.Sub(c.lastAt) >= c.interval {
		c.last = c.prober.Probe(ctx)
		c.lastAt = now
		c.hasValue = true
	}
	return c.last
}
