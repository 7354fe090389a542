// Package cloudhttp is the concrete HTTP-backed implementation of
// cloudapi.Client that cmd/videowall-syncd wires at startup.
// internal/cloudapi itself stays interface-only — device pairing and HTTP
// transport are out of scope for that package; this package is the
// "production wiring" its doc comment anticipates, built on the same
// request/decode/error-wrapping shape a hand-rolled REST client typically
// uses over net/http.
package cloudhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/alejoRGB/videowall-sync/internal/cloudapi"
)

// DefaultTimeout bounds every request this client issues. The supervisor
// treats any failure here as transient (videowall.TransportError) and never
// blocks a tick on it, but a hung connection must still not stall Tick
// indefinitely.
const DefaultTimeout = 5 * time.Second

// Client is a cloudapi.Client backed by a JSON/HTTP device API.
type Client struct {
	baseURL    string
	deviceID   string
	apiKey     string
	mediaDir   string
	httpClient *http.Client
}

// Option configures a Client via the functional-options pattern.
type Option func(*Client)

// WithHTTPClient swaps in a caller-supplied *http.Client, e.g. for tests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithMediaDir overrides the directory reported by MediaDir; defaults to
// the SYNC_MEDIA_DIR environment variable, falling back to /var/lib/videowall/media.
func WithMediaDir(dir string) Option {
	return func(c *Client) { c.mediaDir = dir }
}

// NewClient builds a Client against baseURL (e.g. "https://fleet.example.com/api"),
// authenticating with apiKey for a device already paired as deviceID. Device
// pairing itself is out of scope for this package — deviceID/apiKey are
// supplied by whatever provisioning step ran before the daemon starts.
func NewClient(baseURL, deviceID, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:  baseURL,
		deviceID: deviceID,
		apiKey:   apiKey,
		mediaDir: envOr("SYNC_MEDIA_DIR", "/var/lib/videowall/media"),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("cloudhttp: failed to encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("cloudhttp: failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("cloudhttp: request to %s failed: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("cloudhttp: %s returned status %d: %s", path, resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("cloudhttp: failed to decode response from %s: %w", path, err)
	}
	return nil
}

type pollRequest struct {
	DeviceID string `json:"device_id"`
	Limit    int    `json:"limit"`
}

type pollResponse struct {
	Commands []cloudapi.Command `json:"commands"`
}

// PollDeviceCommands implements cloudapi.Client.
func (c *Client) PollDeviceCommands(ctx context.Context, limit int) []cloudapi.Command {
	var resp pollResponse
	if err := c.do(ctx, http.MethodPost, "/v1/devices/commands/poll", pollRequest{DeviceID: c.deviceID, Limit: limit}, &resp); err != nil {
		return nil
	}
	return resp.Commands
}

type ackRequest struct {
	CommandID string                `json:"command_id"`
	Status    cloudapi.AckStatus    `json:"status"`
	Error     string                `json:"error,omitempty"`
	Runtime   *cloudapi.SyncRuntime `json:"sync_runtime,omitempty"`
}

// AckDeviceCommand implements cloudapi.Client.
func (c *Client) AckDeviceCommand(ctx context.Context, id string, status cloudapi.AckStatus, errMsg string, runtime *cloudapi.SyncRuntime) bool {
	err := c.do(ctx, http.MethodPost, "/v1/devices/commands/ack", ackRequest{CommandID: id, Status: status, Error: errMsg, Runtime: runtime}, nil)
	return err == nil
}

type statusRequest struct {
	DeviceID            string                `json:"device_id"`
	PlayingPlaylistID   string                `json:"playing_playlist_id,omitempty"`
	CurrentContentName  string                `json:"current_content_name,omitempty"`
	PreviewPath         string                `json:"preview_path,omitempty"`
	Runtime             *cloudapi.SyncRuntime `json:"sync_runtime,omitempty"`
}

// ReportPlaybackState implements cloudapi.Client.
func (c *Client) ReportPlaybackState(ctx context.Context, playingPlaylistID, currentContentName, previewPath string, runtime *cloudapi.SyncRuntime) bool {
	req := statusRequest{
		DeviceID:           c.deviceID,
		PlayingPlaylistID:  playingPlaylistID,
		CurrentContentName: currentContentName,
		PreviewPath:        previewPath,
		Runtime:            runtime,
	}
	err := c.do(ctx, http.MethodPost, "/v1/devices/status", req, nil)
	return err == nil
}

// GetClockSyncHealth implements cloudapi.Client. A cloud round trip cannot
// itself measure the device's clock offset; the clock probe the supervisor
// actually drives lives in internal/clockhealth. This method only exists to
// satisfy callers that want the cloud's own view (e.g. NTP reachability
// from the cloud's vantage point) and degrades to "unknown" on any failure.
func (c *Client) GetClockSyncHealth(ctx context.Context, maxOffsetMs float64) cloudapi.ClockHealth {
	var health cloudapi.ClockHealth
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/devices/%s/clock-health?max_offset_ms=%.2f", c.deviceID, maxOffsetMs), nil, &health); err != nil {
		return cloudapi.ClockHealth{Healthy: false, Critical: false, HealthScore: 0}
	}
	return health
}

type deviceIDResponse struct {
	DeviceID string `json:"device_id"`
}

// GetCurrentDeviceID implements cloudapi.Client.
func (c *Client) GetCurrentDeviceID(ctx context.Context) (string, bool) {
	if c.deviceID != "" {
		return c.deviceID, true
	}
	var resp deviceIDResponse
	if err := c.do(ctx, http.MethodGet, "/v1/devices/self", nil, &resp); err != nil || resp.DeviceID == "" {
		return "", false
	}
	c.deviceID = resp.DeviceID
	return resp.DeviceID, true
}

// MediaDir implements cloudapi.Client.
func (c *Client) MediaDir(ctx context.Context) string { return c.mediaDir }

type ensureMediaResponse struct {
	LocalPath string `json:"local_path"`
}

// EnsureSyncMediaAvailable implements cloudapi.Client by asking the cloud
// API to confirm (and, if needed, trigger download of) mediaID, then
// reports back wherever it landed on disk.
func (c *Client) EnsureSyncMediaAvailable(ctx context.Context, mediaID, localPath string) (string, bool) {
	var resp ensureMediaResponse
	path := fmt.Sprintf("/v1/devices/%s/media/%s/ensure?local_path=%s", c.deviceID, mediaID, localPath)
	if err := c.do(ctx, http.MethodPost, path, nil, &resp); err != nil || resp.LocalPath == "" {
		return "", false
	}
	return resp.LocalPath, true
}

var _ cloudapi.Client = (*Client)(nil)
