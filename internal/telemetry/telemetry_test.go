package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/alejoRGB/videowall-sync/internal/cloudapi"
)

type fakeProvider struct {
	rt cloudapi.SyncRuntime
}

func (f fakeProvider) SyncRuntime() cloudapi.SyncRuntime { return f.rt }

func TestObserveSetsGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	rt := cloudapi.SyncRuntime{
		Status:        "playing",
		DriftMs:       12.5,
		ClockOffsetMs: 3.2,
		HealthScore:   0.9,
		Throttled:     true,
	}
	m.Observe(rt, 2, 1, "master")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	found := map[string]bool{}
	for _, mf := range mfs {
		found[mf.GetName()] = true
	}
	for _, name := range []string{
		"videowall_sync_drift_ms",
		"videowall_sync_resync_total",
		"videowall_sync_clock_offset_ms",
		"videowall_sync_clock_health_score",
		"videowall_sync_throttled",
		"videowall_sync_lan_role",
		"videowall_sync_session_state",
	} {
		if !found[name] {
			t.Errorf("expected registered metric %q, not found", name)
		}
	}
}

func TestHealthzHealthyStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	provider := fakeProvider{rt: cloudapi.SyncRuntime{Status: "playing", HealthScore: 0.95}}
	h := NewHandler(provider, reg)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("Status = %q, want healthy", resp.Status)
	}
	if resp.Runtime.Status != "playing" {
		t.Errorf("Runtime.Status = %q, want playing", resp.Runtime.Status)
	}
}

func TestHealthzErroredIsUnhealthy(t *testing.T) {
	reg := prometheus.NewRegistry()
	provider := fakeProvider{rt: cloudapi.SyncRuntime{Status: "errored"}}
	h := NewHandler(provider, reg)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestHealthzLowHealthScoreIsDegraded(t *testing.T) {
	reg := prometheus.NewRegistry()
	provider := fakeProvider{rt: cloudapi.SyncRuntime{Status: "playing", HealthScore: 0.1}}
	h := NewHandler(provider, reg)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp.Status != "degraded" {
		t.Errorf("Status = %q, want degraded", resp.Status)
	}
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.Observe(cloudapi.SyncRuntime{Status: "playing"}, 0, 0, "idle")

	h := NewHandler(fakeProvider{}, reg)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(rec.Body.Bytes()) == 0 {
		t.Errorf("expected non-empty metrics body")
	}
}

func TestListenAndServeReadySignalsReadyAndShutsDown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	errCh := make(chan error, 1)

	go func() {
		errCh <- ListenAndServeReady(ctx, "127.0.0.1:0", http.NewServeMux(), ready)
	}()

	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("server never signaled ready")
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("ListenAndServeReady returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never shut down")
	}
}
