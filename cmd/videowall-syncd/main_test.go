package main

import (
	"context"
	"testing"
	"time"

	"github.com/alejoRGB/videowall-sync/internal/clockhealth"
	"github.com/alejoRGB/videowall-sync/internal/cloudapi"
	"github.com/alejoRGB/videowall-sync/internal/config"
	"github.com/alejoRGB/videowall-sync/internal/lanbeacon"
	"github.com/alejoRGB/videowall-sync/internal/playback"
	"github.com/alejoRGB/videowall-sync/internal/telemetry"
	"github.com/alejoRGB/videowall-sync/internal/videowall"
	"github.com/prometheus/client_golang/prometheus"
)

func TestLanRoleOf(t *testing.T) {
	cases := map[string]string{
		"master":        "master",
		"follower":      "follower",
		"disabled":      "idle",
		"cloud_fallback": "idle",
		"":              "idle",
	}
	for in, want := range cases {
		if got := lanRoleOf(in); got != want {
			t.Errorf("lanRoleOf(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPrintUsageDoesNotPanic(t *testing.T) {
	printUsage()
}

// TestRunLoopStopsOnCancel runs the outer ticker loop at 50 Hz for about
// 50ms against a real Supervisor wired to test doubles, then cancels its
// context and checks that it returns promptly.
func TestRunLoopStopsOnCancel(t *testing.T) {
	backend := playback.NewNullBackend()
	client := &noopClient{}
	lan := lanbeacon.New(lanbeacon.Config{Enabled: false})
	cache := clockhealth.NewCache(clockhealth.NewProberWithRunner(50, func(ctx context.Context, name string, args ...string) (string, error) {
		return "", context.DeadlineExceeded
	}), time.Minute)
	sup := videowall.New(client, backend, lan, cache, config.Default())

	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runLoop(ctx, sup, metrics, 50.0)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runLoop did not return after context cancellation")
	}
}

// noopClient is a minimal cloudapi.Client double: every call is a no-op
// returning zero values, just enough to let the Supervisor's idle-state
// Tick path run without a real network dependency.
type noopClient struct{}

func (noopClient) PollDeviceCommands(ctx context.Context, limit int) []cloudapi.Command {
	return nil
}

func (noopClient) AckDeviceCommand(ctx context.Context, id string, status cloudapi.AckStatus, errMsg string, runtime *cloudapi.SyncRuntime) bool {
	return true
}

func (noopClient) ReportPlaybackState(ctx context.Context, playingPlaylistID, currentContentName, previewPath string, runtime *cloudapi.SyncRuntime) bool {
	return true
}

func (noopClient) GetClockSyncHealth(ctx context.Context, maxOffsetMs float64) cloudapi.ClockHealth {
	return cloudapi.ClockHealth{Healthy: true, HealthScore: 1}
}

func (noopClient) GetCurrentDeviceID(ctx context.Context) (string, bool) { return "", false }

func (noopClient) MediaDir(ctx context.Context) string { return "" }

func (noopClient) EnsureSyncMediaAvailable(ctx context.Context, mediaID, localPath string) (string, bool) {
	return "", false
}

var _ cloudapi.Client = noopClient{}
