// Package synclog emits the sync-event log taxonomy: a closed set of event
// tags describing session lifecycle milestones and corrections, each
// attached to a session_id and a set of structured fields.
//
// Logging is structured via zerolog (grounded on
// ManuGH-xg2g/internal/log/logger.go's global-logger-behind-a-mutex
// pattern), since the taxonomy's fields (drift magnitudes, offsets, reasons)
// are exactly the kind of queryable key/value data a plain log.Printf call
// has no equivalent for.
package synclog

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Tag is the closed set of sync-event log tags. Unknown tags are rejected
// at the logging boundary.
type Tag int

const (
	Ready Tag = iota
	Started
	SoftCorrection
	HardResync
	Rejoin
	MpvCrash
	ThermalThrottle
)

func (t Tag) String() string {
	switch t {
	case Ready:
		return "READY"
	case Started:
		return "STARTED"
	case SoftCorrection:
		return "SOFT_CORRECTION"
	case HardResync:
		return "HARD_RESYNC"
	case Rejoin:
		return "REJOIN"
	case MpvCrash:
		return "MPV_CRASH"
	case ThermalThrottle:
		return "THERMAL_THROTTLE"
	default:
		return ""
	}
}

func (t Tag) valid() bool {
	return t.String() != ""
}

var (
	mu       sync.RWMutex
	base     zerolog.Logger
	initOnce sync.Once
)

// Config configures the package-level logger, mirroring
// ManuGH-xg2g/internal/log.Config's shape.
type Config struct {
	Level  string
	Output io.Writer
}

// Configure initializes the global sync-event logger. Safe to call once at
// startup; subsequent calls replace the logger. Marks the package as
// configured so a later Emit's lazy default-init does not overwrite an
// explicit call with Config{}.
func Configure(cfg Config) {
	initOnce.Do(func() {})

	mu.Lock()
	defer mu.Unlock()

	level := zerolog.InfoLevel
	if cfg.Level != "" {
		if parsed, err := zerolog.ParseLevel(cfg.Level); err == nil {
			level = parsed
		}
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	writer := cfg.Output
	if writer == nil {
		writer = os.Stdout
	}

	base = zerolog.New(writer).With().
		Timestamp().
		Str("component", "sync-event").
		Logger()
}

func ensureConfigured() {
	initOnce.Do(func() {
		Configure(Config{})
	})
}

// Emit logs one sync event. fields is a set of key/value pairs (must be an
// even-length list of alternating string keys and values); an odd-length
// list drops its trailing orphan key. Emit panics if tag is not one of the
// taxonomy's closed set — this can only happen from a programmer error
// (passing a raw int instead of a Tag constant), never from external input,
// so it is an internal guard rather than a runtime validation path.
func Emit(tag Tag, sessionID string, fields ...any) {
	if !tag.valid() {
		panic("synclog: unknown event tag")
	}
	ensureConfigured()

	mu.RLock()
	logger := base
	mu.RUnlock()

	evt := logger.Info().
		Str("event", tag.String()).
		Str("session_id", sessionID)

	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		evt = evt.Interface(key, fields[i+1])
	}
	evt.Send()
}
