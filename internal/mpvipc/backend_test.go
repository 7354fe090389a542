package mpvipc

import (
	"bufio"
	"encoding/json"
	"net"
	"testing"
	"time"
)

// fakeMpvPeer answers every JSON-IPC request it reads from conn with a
// "success" response carrying data, mimicking mpv's own reply shape closely
// enough to exercise Backend's request/response framing without spawning a
// real mpv process.
func fakeMpvPeer(t *testing.T, conn net.Conn, data any) {
	t.Helper()
	go func() {
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			var req request
			if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
				continue
			}
			resp := response{RequestID: req.RequestID, Error: "success", Data: data}
			enc := json.NewEncoder(conn)
			_ = enc.Encode(resp)
		}
	}()
}

func newConnectedBackend(t *testing.T, data any) (*Backend, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	fakeMpvPeer(t, server, data)

	b := New("mpv", "/tmp/unused.sock")
	b.conn = client
	go b.readLoop(client)
	return b, server
}

func TestSeekToPhaseMs(t *testing.T) {
	b, server := newConnectedBackend(t, nil)
	defer server.Close()

	if !b.SeekToPhaseMs(5000) {
		t.Fatal("SeekToPhaseMs() = false, want true")
	}
}

func TestSetPause(t *testing.T) {
	b, server := newConnectedBackend(t, nil)
	defer server.Close()

	if !b.SetPause(true) {
		t.Fatal("SetPause() = false, want true")
	}
}

func TestGetPlaybackTimeMs(t *testing.T) {
	b, server := newConnectedBackend(t, 12.5)
	defer server.Close()

	ms, ok := b.GetPlaybackTimeMs()
	if !ok {
		t.Fatal("GetPlaybackTimeMs() ok = false, want true")
	}
	if ms != 12500 {
		t.Errorf("GetPlaybackTimeMs() = %v, want 12500", ms)
	}
}

func TestGetPlaybackDurationMs(t *testing.T) {
	b, server := newConnectedBackend(t, 30.0)
	defer server.Close()

	ms, ok := b.GetPlaybackDurationMs()
	if !ok {
		t.Fatal("GetPlaybackDurationMs() ok = false, want true")
	}
	if ms != 30000 {
		t.Errorf("GetPlaybackDurationMs() = %v, want 30000", ms)
	}
}

func TestCallNotConnected(t *testing.T) {
	b := New("mpv", "/tmp/unused.sock")
	if _, err := b.call("get_property", "pause"); err == nil {
		t.Fatal("call() on a disconnected backend should error")
	}
}

func TestIsPlaybackAliveDefaultsFalse(t *testing.T) {
	b := New("mpv", "/tmp/unused.sock")
	if b.IsPlaybackAlive() {
		t.Fatal("IsPlaybackAlive() = true before StartSyncPlayback, want false")
	}
}

func TestStopPlaybackWithoutStartIsSafe(t *testing.T) {
	b := New("mpv", "/tmp/unused.sock")
	b.StopPlayback()
	if b.IsPlaybackAlive() {
		t.Fatal("IsPlaybackAlive() = true after StopPlayback, want false")
	}
}

func TestDialWithRetryTimesOut(t *testing.T) {
	_, err := dialWithRetry("/tmp/videowall-sync-test-nonexistent.sock", 100*time.Millisecond)
	if err == nil {
		t.Fatal("dialWithRetry() against a nonexistent socket should error")
	}
}
