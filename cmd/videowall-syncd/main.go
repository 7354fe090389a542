// Package main implements videowall-syncd, the on-device playback-sync
// daemon for a single video-wall fleet device.
//
// videowall-syncd polls the cloud API for SYNC_PREPARE/SYNC_STOP commands,
// drives a local mpv renderer into and out of phase-locked playback, and
// arbitrates its sync source between the cloud and a LAN beacon.
//
// Usage:
//
//	videowall-syncd [options]
//
// Options:
//
//	--cloud-url=URL     Base URL of the device cloud API (required)
//	--device-id=ID      Paired device ID (default: discovered via --cloud-url)
//	--api-key=KEY       Cloud API bearer token (default: $SYNC_API_KEY)
//	--mpv-path=PATH     Path to the mpv binary (default: mpv on $PATH)
//	--ipc-socket=PATH   Path for mpv's JSON IPC socket (default: /run/videowall/mpv.sock)
//	--listen=ADDR       Address for the /healthz and /metrics HTTP server (default: :9102)
//	--log-level=LEVEL   Log level: debug, info, warn, error (default: info)
//	--tick-hz=N         Cooperative loop frequency in Hz (default: 4, minimum for responsive drift sampling)
//	--help              Show this help message
//
// Example:
//
//	videowall-syncd --cloud-url=https://fleet.example.com/api --device-id=wall-07
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/alejoRGB/videowall-sync/internal/clockhealth"
	"github.com/alejoRGB/videowall-sync/internal/cloudhttp"
	"github.com/alejoRGB/videowall-sync/internal/config"
	"github.com/alejoRGB/videowall-sync/internal/lanbeacon"
	"github.com/alejoRGB/videowall-sync/internal/lock"
	"github.com/alejoRGB/videowall-sync/internal/mpvipc"
	"github.com/alejoRGB/videowall-sync/internal/synclog"
	"github.com/alejoRGB/videowall-sync/internal/telemetry"
	"github.com/alejoRGB/videowall-sync/internal/util"
	"github.com/alejoRGB/videowall-sync/internal/videowall"
)

// Build information (set via ldflags).
var (
	Version = "dev"
	Commit  = "unknown"
)

var (
	cloudURL   = flag.String("cloud-url", "", "Base URL of the device cloud API (required)")
	deviceID   = flag.String("device-id", "", "Paired device ID (default: discovered via --cloud-url)")
	apiKey     = flag.String("api-key", os.Getenv("SYNC_API_KEY"), "Cloud API bearer token")
	mpvPath    = flag.String("mpv-path", "mpv", "Path to the mpv binary")
	ipcSocket  = flag.String("ipc-socket", "/run/videowall/mpv.sock", "Path for mpv's JSON IPC socket")
	listenAddr = flag.String("listen", ":9102", "Address for the /healthz and /metrics HTTP server")
	logLevel   = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	tickHz     = flag.Float64("tick-hz", 4.0, "Cooperative loop frequency in Hz (minimum 4 for responsive drift sampling)")
	lockFile   = flag.String("lock-file", "/run/videowall/videowall-syncd.lock", "Path to the single-instance lock file")
	showHelp   = flag.Bool("help", false, "Show help message")
)

func main() {
	flag.Parse()

	if *showHelp {
		printUsage()
		os.Exit(0)
	}

	synclog.Configure(synclog.Config{Level: *logLevel})
	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().Str("version", Version).Str("commit", Commit).Msg("starting videowall-syncd")

	if *cloudURL == "" {
		log.Fatal().Msg("--cloud-url is required")
	}

	fl, err := lock.NewFileLock(*lockFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to prepare single-instance lock")
	}
	if err := fl.Acquire(5 * time.Second); err != nil {
		log.Fatal().Err(err).Msg("another videowall-syncd instance already holds the lock")
	}
	defer func() { _ = fl.Release() }()

	if err := os.MkdirAll(filepath.Dir(*ipcSocket), 0o750); err != nil {
		log.Fatal().Err(err).Msg("failed to create IPC socket directory")
	}
	_ = os.Remove(*ipcSocket) // mpv refuses to bind a stale socket left by a prior crash

	cfg, err := config.NewLoader("SYNC").Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	client := cloudhttp.NewClient(*cloudURL, *deviceID, *apiKey)
	backend := mpvipc.New(*mpvPath, *ipcSocket)
	lan := lanbeacon.New(lanbeacon.Config{
		Enabled:       cfg.LanEnabled,
		BeaconHz:      cfg.LanBeaconHz,
		BeaconPort:    cfg.LanBeaconPort,
		TimeoutMs:     int64(cfg.LanTimeoutMs),
		BroadcastAddr: cfg.LanBroadcastAddr,
		BindHost:      cfg.LanBindHost,
	})
	clockCache := clockhealth.NewCache(clockhealth.NewProber(25.0), time.Minute)

	sup := videowall.New(client, backend, lan, clockCache, cfg)

	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)
	handler := telemetry.NewHandler(sup, reg)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	util.SafeGo("signal-handler", os.Stderr, func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("received signal, shutting down")
		cancel()
	}, nil)

	ready := make(chan struct{})
	httpErrCh := make(chan error, 1)
	util.SafeGo("telemetry-server", os.Stderr, func() {
		httpErrCh <- telemetry.ListenAndServeReady(ctx, *listenAddr, handler, ready)
	}, nil)
	select {
	case <-ready:
		log.Info().Str("addr", *listenAddr).Msg("telemetry server listening")
	case err := <-httpErrCh:
		log.Fatal().Err(err).Msg("telemetry server failed to start")
	}

	runLoop(ctx, sup, metrics, *tickHz)

	backend.StopPlayback()
	lan.Stop()
	log.Info().Msg("shutdown complete")
}

// runLoop drives the supervisor's cooperative Tick at tickHz until ctx is
// cancelled. The outer loop must invoke Tick at >= 4 Hz for drift sampling
// to stay responsive.
func runLoop(ctx context.Context, sup *videowall.Supervisor, metrics *telemetry.Metrics, tickHz float64) {
	if tickHz < 4.0 {
		tickHz = 4.0
	}
	ticker := time.NewTicker(time.Duration(float64(time.Second) / tickHz))
	defer ticker.Stop()

	lastResyncCount := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sup.Tick(ctx)
			rt := sup.SyncRuntime()
			hardApplied := rt.ResyncCount - lastResyncCount
			if hardApplied < 0 {
				hardApplied = 0
			}
			lastResyncCount = rt.ResyncCount
			metrics.Observe(rt, 0, hardApplied, lanRoleOf(rt.LanMode))
		}
	}
}

func lanRoleOf(lanMode string) string {
	switch lanMode {
	case "master":
		return "master"
	case "follower":
		return "follower"
	default:
		return "idle"
	}
}

func printUsage() {
	fmt.Println("videowall-syncd - on-device playback-sync daemon")
	fmt.Printf("Version: %s (%s)\n\n", Version, Commit)
	fmt.Println("Usage: videowall-syncd [options]")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("Signals:")
	fmt.Println("  SIGINT, SIGTERM  Graceful shutdown")
}
