package model

type PieceBin struct {
	HaveRatio   float64 `json:"have_ratio"`
	MinAvail    uint32  `json:"min_avail"`
	PiecesInBin uint32  `json:"pieces_in_bin"`
}

type TorrentRowSnapshot struct {
	Progress         float64      `json:"progress"`
	State            TorrentState `json:"state"`
	PiecesBins       []PieceBin   `json:"pieces_bins"`
	HeartbeatSamples []uint64     `json:"heartbeat_samples"`
}

// PeerRow is one connected peer as shown in the peers table. Optional
// fields are nil when the engine did not report them.
type PeerRow struct {
	ID         string   `json:"id"`
	IP         string   `json:"ip"`
	Port       uint16   `json:"port"`
	DownRate   int64    `json:"down_rate"`
	UpRate     int64    `json:"up_rate"`
	Downloaded uint64   `json:"downloaded"`
	Uploaded   uint64   `json:"uploaded"`
	Client     *string  `json:"client"`
	Flags      *string  `json:"flags"`
	Progress   *float64 `json:"progress"`
	Snubbed    bool     `json:"snubbed"`
	Choked     bool     `json:"choked"`
	Interested *bool    `json:"interested"`
	Optimistic *bool    `json:"optimistic"`
	Incoming   *bool    `json:"incoming"`
	Encrypted  *bool    `json:"encrypted"`
	RttMs      *uint32  `json:"rtt_ms"`
	Country    *string  `json:"country"`
	LastSeenMs int64    `json:"last_seen_ms"`
}

type PeersResponse struct {
	Peers []PeerRow `json:"peers"`
}

type TrackerRow struct {
	URL            string  `json:"url"`
	Tier           *uint32 `json:"tier"`
	Status         string  `json:"status"`
	Seeders        *uint32 `json:"seeders"`
	Leechers       *uint32 `json:"leechers"`
	LastAnnounceMs *int64  `json:"last_announce_ms"`
	NextAnnounceMs *int64  `json:"next_announce_ms"`
	Error          *string `json:"error"`
	AnnounceCount  *uint32 `json:"announce_count"`
	ScrapeCount    *uint32 `json:"scrape_count"`
}

type TrackersResponse struct {
	Trackers []TrackerRow `json:"trackers"`
}

const (
	TrackerWorking    = "working"
	TrackerUpdating   = "updating"
	TrackerDisabled   = "disabled"
	TrackerNotWorking = "not_working"
)
