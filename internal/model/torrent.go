package model

// TorrentState is the discrete state shown for a torrent
// @enum stopped,downloading,seeding,checking,error
type TorrentState string

const (
	StateStopped     TorrentState = "stopped"
	StateDownloading TorrentState = "downloading"
	StateSeeding     TorrentState = "seeding"
	StateChecking    TorrentState = "checking"
	StateError       TorrentState = "error"
)

// Active reports whether a torrent in this state is moving data.
func (s TorrentState) Active() bool {
	return s != StateStopped && s != StateError
}

type TorrentMode string

const (
	ModeStandard  TorrentMode = "standard"
	ModePrivate   TorrentMode = "private"
	ModeAnonymous TorrentMode = "anonymous"
	ModeTorAssist TorrentMode = "tor_assist"
)

type TorrentProfile struct {
	Mode TorrentMode `json:"mode" validate:"required,oneof=standard private anonymous tor_assist"`
	Hops uint32      `json:"hops" validate:"max=10"`
}

func DefaultProfile() TorrentProfile {
	return TorrentProfile{Mode: ModeStandard}
}

type Torrent struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	AddedAtMs   int64          `json:"added_at_ms"`
	Running     bool           `json:"running"`
	Profile     TorrentProfile `json:"profile"`
	InfoHashHex string         `json:"info_hash_hex,omitempty"`
	SavePath    string         `json:"save_path,omitempty"`
}

type TorrentStatus struct {
	ID              string       `json:"id"`
	State           TorrentState `json:"state"`
	Progress        float64      `json:"progress"`
	DownRateBps     uint64       `json:"down_rate_bps"`
	UpRateBps       uint64       `json:"up_rate_bps"`
	EtaSec          uint64       `json:"eta_sec"`
	TotalBytes      uint64       `json:"total_bytes"`
	DownloadedBytes uint64       `json:"downloaded_bytes"`
	UploadedBytes   uint64       `json:"uploaded_bytes"`
	PeersSeen       uint32       `json:"peers_seen"`
	Error           string       `json:"error,omitempty"`
}

type FilePriority string

const (
	PrioritySkip   FilePriority = "skip"
	PriorityLow    FilePriority = "low"
	PriorityNormal FilePriority = "normal"
	PriorityHigh   FilePriority = "high"
)

type TorrentFileEntry struct {
	Path       []string     `json:"path"`
	Size       uint64       `json:"size"`
	Priority   FilePriority `json:"priority"`
	Downloaded bool         `json:"downloaded"`
}

type TorrentContent struct {
	Files []TorrentFileEntry `json:"files"`
}

type TorrentListResponse struct {
	Items []Torrent `json:"items"`
}
