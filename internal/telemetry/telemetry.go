// Package telemetry exposes the sync daemon's runtime state over HTTP: a
// Prometheus /metrics endpoint (via client_golang/promauto, grounded on
// ManuGH-xg2g/internal/metrics/admission.go's registration style) and a
// /healthz endpoint carrying the cloudapi.SyncRuntime telemetry fields in a
// small JSON response envelope.
package telemetry

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alejoRGB/videowall-sync/internal/cloudapi"
)

// Metrics holds the daemon's Prometheus collectors. One fleet device runs
// exactly one session at a time, so these carry no per-session labels — the
// telemetry field set is already fixed and bounded.
type Metrics struct {
	DriftMs        prometheus.Gauge
	ResyncTotal    *prometheus.CounterVec
	ClockOffsetMs  prometheus.Gauge
	ClockHealth    prometheus.Gauge
	Throttled      prometheus.Gauge
	LanRoleGauge   *prometheus.GaugeVec
	SessionState   *prometheus.GaugeVec
}

// NewMetrics registers the daemon's collectors against reg. Pass
// prometheus.NewRegistry() in tests to avoid polluting the global registry
// that promauto.With(nil) (the default) would otherwise use.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DriftMs: factory.NewGauge(prometheus.GaugeOpts{
			Name: "videowall_sync_drift_ms",
			Help: "Most recent wrapped phase drift, in milliseconds.",
		}),
		ResyncTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "videowall_sync_resync_total",
			Help: "Total corrections applied, by kind (soft/hard).",
		}, []string{"kind"}),
		ClockOffsetMs: factory.NewGauge(prometheus.GaugeOpts{
			Name: "videowall_sync_clock_offset_ms",
			Help: "Most recent system clock offset from NTP/chrony, in milliseconds.",
		}),
		ClockHealth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "videowall_sync_clock_health_score",
			Help: "Clock health score in [0,1].",
		}),
		Throttled: factory.NewGauge(prometheus.GaugeOpts{
			Name: "videowall_sync_throttled",
			Help: "1 when the device is currently thermal-throttled, else 0.",
		}),
		LanRoleGauge: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "videowall_sync_lan_role",
			Help: "1 for the LAN role currently held, by role (idle/master/follower).",
		}, []string{"role"}),
		SessionState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "videowall_sync_session_state",
			Help: "1 for the session state currently held, by state.",
		}, []string{"state"}),
	}
}

// Observe updates every gauge/counter from the latest SyncRuntime snapshot
// and the count of corrections applied since the last Observe call.
func (m *Metrics) Observe(rt cloudapi.SyncRuntime, softApplied, hardApplied int, lanRole string) {
	m.DriftMs.Set(rt.DriftMs)
	m.ClockOffsetMs.Set(rt.ClockOffsetMs)
	m.ClockHealth.Set(rt.HealthScore)
	if rt.Throttled {
		m.Throttled.Set(1)
	} else {
		m.Throttled.Set(0)
	}
	if softApplied > 0 {
		m.ResyncTotal.WithLabelValues("soft").Add(float64(softApplied))
	}
	if hardApplied > 0 {
		m.ResyncTotal.WithLabelValues("hard").Add(float64(hardApplied))
	}
	for _, role := range []string{"idle", "master", "follower"} {
		v := 0.0
		if role == lanRole {
			v = 1
		}
		m.LanRoleGauge.WithLabelValues(role).Set(v)
	}
	for _, state := range []string{"disconnected", "assigned", "preloading", "ready", "warming_up", "playing", "errored"} {
		v := 0.0
		if state == strings.ToLower(rt.Status) {
			v = 1
		}
		m.SessionState.WithLabelValues(state).Set(v)
	}
}

// RuntimeProvider supplies the current SyncRuntime snapshot for /healthz.
// The videowall supervisor implements this interface.
type RuntimeProvider interface {
	SyncRuntime() cloudapi.SyncRuntime
}

// Response is the JSON body returned by /healthz, for a single sync
// session rather than a fleet of independently-supervised services.
type Response struct {
	Status    string               `json:"status"`
	Timestamp time.Time            `json:"timestamp"`
	Runtime   cloudapi.SyncRuntime `json:"runtime"`
}

// Handler serves /healthz (JSON) and /metrics (Prometheus exposition
// format, via promhttp — this daemon already depends on client_golang for
// collection, so reusing its own HTTP handler avoids hand-formatting the
// same data twice).
type Handler struct {
	provider RuntimeProvider
	registry *prometheus.Registry
	mux      *http.ServeMux
}

// NewHandler builds a Handler serving /healthz from provider and /metrics
// from reg's collected series.
func NewHandler(provider RuntimeProvider, reg *prometheus.Registry) *Handler {
	h := &Handler{provider: provider, registry: reg}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.serveHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	h.mux = mux
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) serveHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var rt cloudapi.SyncRuntime
	if h.provider != nil {
		rt = h.provider.SyncRuntime()
	}

	status := "healthy"
	switch {
	case strings.EqualFold(rt.Status, "errored"):
		status = "unhealthy"
	case rt.HealthScore > 0 && rt.HealthScore < 0.5:
		status = "degraded"
	case rt.Throttled:
		status = "degraded"
	}

	resp := Response{Status: status, Timestamp: time.Now(), Runtime: rt}

	w.Header().Set("Content-Type", "application/json")
	if status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// ListenAndServeReady starts the telemetry HTTP server on addr, signaling
// ready once bound, and shuts down gracefully when ctx is cancelled. Bind
// failures are detected synchronously before returning control to the
// caller, instead of surfacing only later from inside a goroutine.
func ListenAndServeReady(ctx context.Context, addr string, handler http.Handler, ready chan<- struct{}) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	if ready != nil {
		close(ready)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
