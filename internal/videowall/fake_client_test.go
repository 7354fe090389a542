package videowall

import (
	"context"

	"github.com/alejoRGB/videowall-sync/internal/cloudapi"
)

// fakeClient is a scriptable cloudapi.Client test double. Commands is
// drained one call at a time (mirroring PollDeviceCommands' "up to limit
// queued commands" contract); every ack and status report is recorded for
// assertions.
type fakeClient struct {
	commands [][]cloudapi.Command

	deviceID   string
	hasDevice  bool
	mediaDir   string
	ensurePath string
	ensureOK   bool

	acks     []ackCall
	statuses []cloudapi.SyncRuntime
}

type ackCall struct {
	id      string
	status  cloudapi.AckStatus
	errMsg  string
	runtime cloudapi.SyncRuntime
}

func (f *fakeClient) PollDeviceCommands(ctx context.Context, limit int) []cloudapi.Command {
	if len(f.commands) == 0 {
		return nil
	}
	batch := f.commands[0]
	f.commands = f.commands[1:]
	return batch
}

func (f *fakeClient) AckDeviceCommand(ctx context.Context, id string, status cloudapi.AckStatus, errMsg string, runtime *cloudapi.SyncRuntime) bool {
	call := ackCall{id: id, status: status, errMsg: errMsg}
	if runtime != nil {
		call.runtime = *runtime
	}
	f.acks = append(f.acks, call)
	return true
}

func (f *fakeClient) ReportPlaybackState(ctx context.Context, playingPlaylistID, currentContentName, previewPath string, runtime *cloudapi.SyncRuntime) bool {
	if runtime != nil {
		f.statuses = append(f.statuses, *runtime)
	}
	return true
}

func (f *fakeClient) GetClockSyncHealth(ctx context.Context, maxOffsetMs float64) cloudapi.ClockHealth {
	return cloudapi.ClockHealth{Healthy: true, HealthScore: 1}
}

func (f *fakeClient) GetCurrentDeviceID(ctx context.Context) (string, bool) {
	return f.deviceID, f.hasDevice
}

func (f *fakeClient) MediaDir(ctx context.Context) string { return f.mediaDir }

func (f *fakeClient) EnsureSyncMediaAvailable(ctx context.Context, mediaID, localPath string) (string, bool) {
	return f.ensurePath, f.ensureOK
}

func (f *fakeClient) lastAck() ackCall {
	if len(f.acks) == 0 {
		return ackCall{}
	}
	return f.acks[len(f.acks)-1]
}
