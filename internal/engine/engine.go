package engine

import (
	"context"
	"strings"
)

// Engine state strings reported by Stats. Unknown values are tolerated by
// callers and treated as active.
const (
	StateInitializing = "initializing"
	StateLive         = "live"
	StatePaused       = "paused"
	StateError        = "error"
)

// Source is either a magnet URI or raw .torrent bytes. Exactly one is set.
type Source struct {
	Magnet       string
	TorrentBytes []byte
}

type AddOptions struct {
	OutputFolder string
	// Overwrite allows the engine to resume onto files already on disk.
	Overwrite bool
	Paused    bool
	// OnlyFiles limits the download to the given file indexes. Nil means all.
	OnlyFiles []int
}

type FileInfo struct {
	// Path uses '/' separators and is relative to the torrent root.
	Path   string
	Length uint64
}

type AddResult struct {
	EngineID     string
	InfoHash     string
	Name         string
	OutputFolder string
	Files        []FileInfo
}

type Stats struct {
	TotalBytes    uint64
	ProgressBytes uint64
	UploadedBytes uint64
	Finished      bool
	State         string
	Error         string
	// FileProgress holds bytes completed per file, in file order. May be nil.
	FileProgress []uint64
}

type PeerFilter struct {
	State string
}

// LivePeers selects currently connected peers.
var LivePeers = PeerFilter{State: "live"}

type ActionKind string

const (
	ActionStart           ActionKind = "start"
	ActionPause           ActionKind = "pause"
	ActionForget          ActionKind = "forget"
	ActionUpdateOnlyFiles ActionKind = "update_only_files"
)

type Action struct {
	Kind      ActionKind
	OnlyFiles []int
}

// TransferEngine performs the actual peer-wire transfer. The core only
// reconciles against it.
type TransferEngine interface {
	// Lifecycle
	Start(ctx context.Context) error
	Stop() error

	Add(ctx context.Context, src Source, opts AddOptions) (*AddResult, error)
	Stats(ctx context.Context, engineID string) (*Stats, error)
	// PeerStats returns a JSON-like snapshot (maps, slices, strings,
	// numbers, bools). Field names vary by engine.
	PeerStats(ctx context.Context, engineID string, filter PeerFilter) (map[string]any, error)
	Action(ctx context.Context, engineID string, action Action) error

	Version(ctx context.Context) (string, error)
}

var fileExistsMarkers = []string{
	"file exists",
	"already exists",
	"the file exists",
	"cannot create a file when that file already exists",
	"eexist",
	"file already exists",
}

// IsFileExists reports whether err belongs to the "file already exists"
// family that an overwrite retry can recover from.
func IsFileExists(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range fileExistsMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
