package model

import (
	"strings"
	"testing"

	apperrors "orctorrent/internal/errors"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func TestAddTorrentRequest_Validate(t *testing.T) {
	magnet := strPtr("magnet:?xt=urn:btih:" + strings.Repeat("a", 40))

	tests := []struct {
		name    string
		req     AddTorrentRequest
		wantErr bool
	}{
		{"Magnet only", AddTorrentRequest{Magnet: magnet}, false},
		{"Torrent only", AddTorrentRequest{TorrentB64: strPtr("ZGU=")}, false},
		{"Neither", AddTorrentRequest{}, true},
		{"Both", AddTorrentRequest{Magnet: magnet, TorrentB64: strPtr("ZGU=")}, true},
		{"Long name hint", AddTorrentRequest{Magnet: magnet, NameHint: strPtr(strings.Repeat("n", 1001))}, true},
		{"Blank save path", AddTorrentRequest{Magnet: magnet, SavePath: strPtr("   ")}, true},
		{"NUL in save path", AddTorrentRequest{Magnet: magnet, SavePath: strPtr("/tmp/a\x00b")}, true},
		{"Long save path", AddTorrentRequest{Magnet: magnet, SavePath: strPtr("/" + strings.Repeat("p", 4096))}, true},
		{"Good save path", AddTorrentRequest{Magnet: magnet, SavePath: strPtr("/data/torrents")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.True(t, apperrors.Is(err, apperrors.CodeInvalidInput), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPatchFilePriorityRequest_Validate(t *testing.T) {
	deep := make([]string, MaxPathDepth+1)
	for i := range deep {
		deep[i] = "d"
	}

	tests := []struct {
		name    string
		req     PatchFilePriorityRequest
		wantErr bool
	}{
		{"Valid", PatchFilePriorityRequest{Paths: [][]string{{"a", "b.txt"}}, Priority: PrioritySkip}, false},
		{"Bad priority", PatchFilePriorityRequest{Paths: [][]string{{"a"}}, Priority: "urgent"}, true},
		{"Too deep", PatchFilePriorityRequest{Paths: [][]string{deep}, Priority: PriorityLow}, true},
		{"Long component", PatchFilePriorityRequest{Paths: [][]string{{strings.Repeat("c", 256)}}, Priority: PriorityHigh}, true},
		{"Too many paths", PatchFilePriorityRequest{Paths: make([][]string, MaxPatchPaths+1), Priority: PriorityNormal}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			assert.Equal(t, tt.wantErr, err != nil, "got %v", err)
		})
	}
}

func TestPatchKillSwitchRequest_Validate(t *testing.T) {
	over := uint64(MaxGracePeriodSec + 1)
	ok := uint64(MaxGracePeriodSec)
	bad := KillSwitchScope("global")

	assert.NoError(t, (&PatchKillSwitchRequest{GracePeriodSec: &ok}).Validate())
	assert.Error(t, (&PatchKillSwitchRequest{GracePeriodSec: &over}).Validate())
	assert.Error(t, (&PatchKillSwitchRequest{Scope: &bad}).Validate())
}

func TestTorrentProfile_Validate(t *testing.T) {
	assert.NoError(t, Validate(TorrentProfile{Mode: ModeAnonymous, Hops: 3}))
	assert.Error(t, Validate(TorrentProfile{Mode: ModeAnonymous, Hops: 11}))
	assert.Error(t, Validate(TorrentProfile{Mode: "onion", Hops: 1}))
}

func TestVPNStatus_Connected(t *testing.T) {
	yes, no := true, false
	tests := []struct {
		name   string
		status VPNStatus
		want   bool
	}{
		{"Connected VPN", VPNStatus{Posture: PostureConnected, ConnectionType: ConnectionVPN, Detected: &yes}, true},
		{"Detection unset", VPNStatus{Posture: PostureConnected, ConnectionType: ConnectionVPN}, true},
		{"Explicitly not detected", VPNStatus{Posture: PostureConnected, ConnectionType: ConnectionVPN, Detected: &no}, false},
		{"Tor is not VPN", VPNStatus{Posture: PostureConnected, ConnectionType: ConnectionTor}, false},
		{"Disconnected", VPNStatus{Posture: PostureDisconnected, ConnectionType: ConnectionNonVPN}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.Connected())
		})
	}
}
