package core

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"orctorrent/internal/engine"
	apperrors "orctorrent/internal/errors"
	"orctorrent/internal/metainfo"
	"orctorrent/internal/model"
	"orctorrent/internal/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Ingest describes a torrent the engine has accepted, together with the
// parts of the original request the registry keeps.
type Ingest struct {
	// ID and AddedAtMs are set when restoring a saved session; a fresh id
	// and the current time are used otherwise.
	ID           string
	AddedAtMs    int64
	EngineID     string
	InfoHash     string
	Name         string
	OutputFolder string
	Files        []engine.FileInfo
	NameHint     string
	Trackers     []string
}

type fileEntry struct {
	path       []string
	size       uint64
	priority   model.FilePriority
	downloaded bool
}

type stateOverride struct {
	state model.TorrentState
	until time.Time
}

type torrentRuntime struct {
	record   model.Torrent
	engineID string

	totalBytes      uint64
	downloadedBytes uint64
	uploadedBytes   uint64
	running         bool
	state           model.TorrentState
	downRate        uint64
	upRate          uint64
	peersSeen       uint32
	files           []fileEntry
	lastError       string

	trackers     []string
	trackerState map[string]*trackerRuntime
	peerSamples  map[string]*peerSample

	override *stateOverride
	// Set when the kill switch stopped this torrent; cleared on re-arm.
	haltedByKillSwitch bool

	sampled        bool
	lastSampleAt   time.Time
	lastDownloaded uint64
	lastUploaded   uint64

	heartbeats      []uint64
	heartbeatAt     time.Time
	heartbeatAnchor uint64

	totalPieces  uint32
	availability []uint32
	peerProgress map[string]float64
}

// DuplicateError is returned by Add when a torrent with the same info-hash
// was registered first. ID names the existing record.
type DuplicateError struct {
	ID       string
	EngineID string
	Running  bool
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("torrent already registered as %s", e.ID)
}

// Add registers an engine-confirmed torrent and returns its new id. The
// info-hash is checked again under the lock, so concurrent adds of one
// torrent yield a single record.
func (s *State) Add(in Ingest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, rt, ok := s.findByHashLocked(in.InfoHash); ok {
		return "", &DuplicateError{ID: id, EngineID: rt.engineID, Running: rt.running}
	}

	if len(s.torrents) >= MaxTorrents {
		return "", apperrors.New(apperrors.CodeCapacityExceeded, fmt.Sprintf("Maximum number of torrents (%d) reached", MaxTorrents))
	}

	now := s.now()
	id := in.ID
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	} else if _, taken := s.torrents[id]; taken {
		id = uuid.NewString()
	}
	addedAt := in.AddedAtMs
	if addedAt <= 0 {
		addedAt = now.UnixMilli()
	}
	hash := strings.ToLower(in.InfoHash)

	files := make([]fileEntry, 0, len(in.Files))
	var total uint64
	for _, f := range in.Files {
		files = append(files, fileEntry{
			path:     utils.SanitizeComponents(f.Path),
			size:     f.Length,
			priority: model.PriorityNormal,
		})
		total += f.Length
	}

	trackers := metainfo.Dedup(in.Trackers)
	trackerState := make(map[string]*trackerRuntime, len(trackers))
	for _, u := range trackers {
		trackerState[u] = &trackerRuntime{}
	}

	pieces := estimatePieces(total)
	rt := &torrentRuntime{
		record: model.Torrent{
			ID:          id,
			Name:        resolveName(in.NameHint, in.Name, hash),
			AddedAtMs:   addedAt,
			Running:     true,
			Profile:     model.DefaultProfile(),
			InfoHashHex: hash,
			SavePath:    in.OutputFolder,
		},
		engineID:     in.EngineID,
		totalBytes:   total,
		running:      true,
		state:        model.StateChecking,
		files:        files,
		trackers:     trackers,
		trackerState: trackerState,
		peerSamples:  make(map[string]*peerSample),
		lastSampleAt: now,
		heartbeatAt:  now,
		totalPieces:  pieces,
		availability: make([]uint32, pieces),
		peerProgress: make(map[string]float64),
	}
	s.torrents[id] = rt

	s.logger.Info("torrent registered",
		zap.String("id", id),
		zap.String("name", rt.record.Name),
		zap.String("engine_id", in.EngineID),
		zap.Int("files", len(files)),
		zap.Int("trackers", len(trackers)),
	)
	return id, nil
}

func resolveName(hint, engineName, hash string) string {
	if strings.TrimSpace(hint) != "" {
		return hint
	}
	if strings.TrimSpace(engineName) != "" {
		return engineName
	}
	prefix := hash
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return "torrent-" + prefix
}

// estimatePieces guesses a piece count from the total size. It only sizes
// the availability heatmap and is not the engine's real piece layout.
func estimatePieces(total uint64) uint32 {
	const (
		kib = 1 << 10
		mib = 1 << 20
		gib = 1 << 30
	)
	size := uint64(256 * kib)
	switch {
	case total > 4*gib:
		size = 4 * mib
	case total > 500*mib:
		size = 2 * mib
	case total > 50*mib:
		size = 512 * kib
	}
	n := max(total/size, 1)
	if n > uint64(^uint32(0)) {
		n = uint64(^uint32(0))
	}
	return uint32(n)
}

func (s *State) lookup(id string) (*torrentRuntime, error) {
	rt, ok := s.torrents[id]
	if !ok {
		return nil, apperrors.NewNotFound("torrent", id)
	}
	return rt, nil
}

// Remove drops the record and returns its engine id.
func (s *State) Remove(id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rt, err := s.lookup(id)
	if err != nil {
		return "", err
	}
	delete(s.torrents, id)
	s.logger.Info("torrent removed", zap.String("id", id))
	return rt.engineID, nil
}

// EngineID returns the engine identifier for a torrent.
func (s *State) EngineID(id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rt, err := s.lookup(id)
	if err != nil {
		return "", err
	}
	return rt.engineID, nil
}

func (s *State) SetRunning(id string, running bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rt, err := s.lookup(id)
	if err != nil {
		return err
	}
	if running {
		rt.setRunning(true)
		if rt.totalBytes > 0 && rt.downloadedBytes >= rt.totalBytes {
			rt.state = model.StateSeeding
		} else {
			rt.state = model.StateDownloading
		}
		rt.haltedByKillSwitch = false
		return nil
	}
	rt.stop()
	rt.override = nil
	return nil
}

func (rt *torrentRuntime) setRunning(running bool) {
	rt.running = running
	rt.record.Running = running
}

func (rt *torrentRuntime) stop() {
	rt.setRunning(false)
	rt.state = model.StateStopped
	rt.downRate = 0
	rt.upRate = 0
}

func (s *State) SetProfile(id string, profile model.TorrentProfile) (model.Torrent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rt, err := s.lookup(id)
	if err != nil {
		return model.Torrent{}, err
	}
	rt.record.Profile = profile
	return rt.record, nil
}

// SetFilePriority applies priority to every file whose sanitized path equals
// one of paths. It returns the engine id and the indexes of all files that
// are not skipped, which is the set the engine should download.
func (s *State) SetFilePriority(id string, paths [][]string, priority model.FilePriority) (string, []int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rt, err := s.lookup(id)
	if err != nil {
		return "", nil, err
	}
	for _, p := range paths {
		for i := range rt.files {
			if equalPath(rt.files[i].path, p) {
				rt.files[i].priority = priority
				if priority == model.PrioritySkip {
					rt.files[i].downloaded = false
				}
			}
		}
	}

	only := make([]int, 0, len(rt.files))
	for i, f := range rt.files {
		if f.priority != model.PrioritySkip {
			only = append(only, i)
		}
	}
	return rt.engineID, only, nil
}

func equalPath(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// OnlyFiles returns the indexes of files that are not skipped.
func (s *State) OnlyFiles(id string) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rt, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	only := make([]int, 0, len(rt.files))
	for i, f := range rt.files {
		if f.priority != model.PrioritySkip {
			only = append(only, i)
		}
	}
	return only, nil
}

// ForceChecking shows the torrent as Checking for a few seconds regardless
// of what the engine reports.
func (s *State) ForceChecking(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rt, err := s.lookup(id)
	if err != nil {
		return err
	}
	rt.override = &stateOverride{
		state: model.StateChecking,
		until: s.now().Add(CheckingOverride),
	}
	return nil
}

// Match is the result of an info-hash lookup.
type Match struct {
	ID       string
	Complete bool
	Running  bool
}

// FindByInfoHash looks a torrent up by info-hash, ignoring case.
func (s *State) FindByInfoHash(hash string) (Match, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, rt, ok := s.findByHashLocked(hash)
	if !ok {
		return Match{}, false
	}
	return Match{
		ID:       id,
		Complete: rt.totalBytes > 0 && rt.downloadedBytes >= rt.totalBytes,
		Running:  rt.running,
	}, true
}

func (s *State) findByHashLocked(hash string) (string, *torrentRuntime, bool) {
	if hash == "" {
		return "", nil, false
	}
	for id, rt := range s.torrents {
		if rt.record.InfoHashHex != "" && strings.EqualFold(rt.record.InfoHashHex, hash) {
			return id, rt, true
		}
	}
	return "", nil, false
}

// List returns every torrent ordered by creation time.
func (s *State) List() []model.Torrent {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Torrent, 0, len(s.torrents))
	for _, rt := range s.torrents {
		out = append(out, rt.record)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AddedAtMs != out[j].AddedAtMs {
			return out[i].AddedAtMs < out[j].AddedAtMs
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Totals aggregates rates and visible states across all torrents.
type Totals struct {
	DownRateBps uint64
	UpRateBps   uint64
	ByState     map[model.TorrentState]int
}

func (s *State) Totals() Totals {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	t := Totals{ByState: make(map[model.TorrentState]int)}
	for _, rt := range s.torrents {
		t.DownRateBps += rt.downRate
		t.UpRateBps += rt.upRate
		t.ByState[rt.visibleState(now)]++
	}
	return t
}

func (s *State) Get(id string) (model.Torrent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rt, err := s.lookup(id)
	if err != nil {
		return model.Torrent{}, err
	}
	return rt.record, nil
}

func (s *State) Status(id string) (model.TorrentStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rt, err := s.lookup(id)
	if err != nil {
		return model.TorrentStatus{}, err
	}
	return rt.status(s.now()), nil
}

func (rt *torrentRuntime) progress() float64 {
	if rt.totalBytes == 0 {
		return 0
	}
	p := float64(rt.downloadedBytes) / float64(rt.totalBytes)
	return min(max(p, 0), 1)
}

// visibleState applies an unexpired override without clearing it.
func (rt *torrentRuntime) visibleState(now time.Time) model.TorrentState {
	if rt.override != nil && now.Before(rt.override.until) {
		return rt.override.state
	}
	return rt.state
}

func (rt *torrentRuntime) status(now time.Time) model.TorrentStatus {
	var eta uint64
	if rt.downRate > 0 && rt.downloadedBytes < rt.totalBytes {
		eta = (rt.totalBytes - rt.downloadedBytes) / rt.downRate
	}
	return model.TorrentStatus{
		ID:              rt.record.ID,
		State:           rt.visibleState(now),
		Progress:        rt.progress(),
		DownRateBps:     rt.downRate,
		UpRateBps:       rt.upRate,
		EtaSec:          eta,
		TotalBytes:      rt.totalBytes,
		DownloadedBytes: rt.downloadedBytes,
		UploadedBytes:   rt.uploadedBytes,
		PeersSeen:       rt.peersSeen,
		Error:           rt.lastError,
	}
}

func (s *State) Content(id string) (model.TorrentContent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rt, err := s.lookup(id)
	if err != nil {
		return model.TorrentContent{}, err
	}
	files := make([]model.TorrentFileEntry, len(rt.files))
	for i, f := range rt.files {
		files[i] = model.TorrentFileEntry{
			Path:       append([]string(nil), f.path...),
			Size:       f.size,
			Priority:   f.priority,
			Downloaded: f.downloaded,
		}
	}
	return model.TorrentContent{Files: files}, nil
}
