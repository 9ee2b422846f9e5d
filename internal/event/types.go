package event

import (
	"time"
)

// EventType represents the type of event
type EventType string

const (
	// Torrent lifecycle events
	TorrentAdded        EventType = "torrent.added"
	TorrentStarted      EventType = "torrent.started"
	TorrentStopped      EventType = "torrent.stopped"
	TorrentRemoved      EventType = "torrent.removed"
	TorrentRechecked    EventType = "torrent.rechecked"
	TorrentAnnounced    EventType = "torrent.announced"
	TorrentUpdated      EventType = "torrent.updated"
	TorrentStateChanged EventType = "torrent.state"
	TorrentRestored     EventType = "torrent.restored"

	// Security events
	PolicyUpdated      EventType = "policy.updated"
	KillSwitchUpdated  EventType = "killswitch.updated"
	KillSwitchEngaged  EventType = "killswitch.engaged"
	KillSwitchReleased EventType = "killswitch.released"
	NetworkChanged     EventType = "network.changed"

	// System events
	StatsUpdate EventType = "stats"
)

// LifecycleEvent is the payload of torrent.* events.
type LifecycleEvent struct {
	ID    string `json:"id"`
	From  string `json:"from,omitempty"`
	To    string `json:"to,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// KillSwitchEvent is the payload of killswitch.* events.
type KillSwitchEvent struct {
	From   string   `json:"from"`
	To     string   `json:"to"`
	Halted []string `json:"halted,omitempty"`
}

// StatsEvent represents periodic stats broadcast
type StatsEvent struct {
	Speeds struct {
		Download uint64 `json:"download"`
		Upload   uint64 `json:"upload"`
	} `json:"speeds"`
	Tasks struct {
		Downloading int `json:"downloading"`
		Seeding     int `json:"seeding"`
		Checking    int `json:"checking"`
		Stopped     int `json:"stopped"`
		Failed      int `json:"failed"`
	} `json:"tasks"`
	NetworkAllowed bool  `json:"networkAllowed"`
	Uptime         int64 `json:"uptime"`
}

type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

func New(t EventType, data any) Event {
	return Event{Type: t, Timestamp: time.Now(), Data: data}
}
