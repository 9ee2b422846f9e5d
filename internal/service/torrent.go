package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"orctorrent/internal/core"
	"orctorrent/internal/engine"
	apperrors "orctorrent/internal/errors"
	"orctorrent/internal/event"
	"orctorrent/internal/metainfo"
	"orctorrent/internal/model"
	"orctorrent/internal/store"
	"orctorrent/internal/utils"

	"go.uber.org/zap"
)

const (
	DefaultMetadataTimeout = 2 * time.Minute

	msgNetworkBlocked = "Network blocked: VPN kill switch is engaged. Please connect to VPN to resume torrents."
)

type TorrentService struct {
	state  *core.State
	engine engine.TransferEngine
	store  *store.DB
	bus    *event.Bus
	logger *zap.Logger

	downloadDir     string
	metadataTimeout time.Duration
}

type TorrentOptions struct {
	DownloadDir     string
	MetadataTimeout time.Duration
}

func NewTorrentService(state *core.State, eng engine.TransferEngine, db *store.DB, bus *event.Bus, opts TorrentOptions, l *zap.Logger) *TorrentService {
	if opts.MetadataTimeout <= 0 {
		opts.MetadataTimeout = DefaultMetadataTimeout
	}
	return &TorrentService{
		state:           state,
		engine:          eng,
		store:           db,
		bus:             bus,
		logger:          l.With(zap.String("component", "torrents")),
		downloadDir:     opts.DownloadDir,
		metadataTimeout: opts.MetadataTimeout,
	}
}

// addSource is a validated add request reduced to what the engine and the
// session store need.
type addSource struct {
	src       engine.Source
	raw       string // magnet URI or base64 torrent, as persisted
	isMagnet  bool
	infoHash  string
	trackers  []string
	nameHint  string
	savePath  string
	paused    bool
	restoreID string
	addedAtMs int64
}

// Add ingests a magnet link or .torrent file. A torrent whose info-hash is
// already registered is not added twice: the existing id is returned and
// the torrent is started if it was stopped.
func (s *TorrentService) Add(ctx context.Context, req model.AddTorrentRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	as, err := parseSource(req)
	if err != nil {
		return "", err
	}

	if match, ok := s.state.FindByInfoHash(as.infoHash); ok {
		return s.useExisting(ctx, match.ID, match.Running, as.infoHash)
	}

	if req.SavePath != nil {
		folder, err := utils.ResolveSavePath(*req.SavePath, s.downloadDir)
		if err != nil {
			return "", apperrors.Wrap(err, apperrors.CodeInvalidInput, "invalid save_path")
		}
		as.savePath = folder
	} else {
		as.savePath = filepath.Join(s.downloadDir, as.infoHash)
	}
	as.paused = s.state.KillSwitchBlocks()

	id, err := s.ingest(ctx, as)
	var dup *core.DuplicateError
	if errors.As(err, &dup) {
		return s.useExisting(ctx, dup.ID, dup.Running, as.infoHash)
	}
	if err != nil {
		return "", err
	}

	s.bus.Publish(event.New(event.TorrentAdded, event.LifecycleEvent{ID: id}))
	return id, nil
}

// useExisting answers an add for a torrent that is already registered,
// starting it when it is stopped and the network is open.
func (s *TorrentService) useExisting(ctx context.Context, id string, running bool, infoHash string) (string, error) {
	s.logger.Info("torrent already registered", zap.String("id", id), zap.String("info_hash", infoHash))
	if !running && !s.state.KillSwitchBlocks() {
		if err := s.Start(ctx, id); err != nil {
			return "", err
		}
	}
	return id, nil
}

func parseSource(req model.AddTorrentRequest) (addSource, error) {
	var as addSource
	if req.NameHint != nil {
		as.nameHint = *req.NameHint
	}

	if req.Magnet != nil {
		m, err := metainfo.ParseMagnet(strings.TrimSpace(*req.Magnet))
		if err != nil {
			return as, err
		}
		as.src = engine.Source{Magnet: strings.TrimSpace(*req.Magnet)}
		as.raw = as.src.Magnet
		as.isMagnet = true
		as.infoHash = m.InfoHash
		as.trackers = m.Trackers
		return as, nil
	}

	raw, err := decodeTorrentB64(*req.TorrentB64)
	if err != nil {
		return as, err
	}
	hash, err := metainfo.InfoHash(raw)
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeInternalError {
			return as, apperrors.Wrap(err, apperrors.CodeDecodeFailure, "invalid torrent file")
		}
		return as, err
	}
	as.src = engine.Source{TorrentBytes: raw}
	as.raw = *req.TorrentB64
	as.infoHash = hash
	as.trackers = metainfo.Trackers(raw)
	return as, nil
}

func decodeTorrentB64(b64 string) ([]byte, error) {
	b64 = strings.TrimSpace(b64)
	if len(b64) > model.MaxTorrentBase64 {
		return nil, apperrors.New(apperrors.CodeInvalidInput, "Torrent file too large")
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInvalidInput, "torrent_b64 is not valid base64")
	}
	if len(raw) > model.MaxTorrentBytes {
		return nil, apperrors.New(apperrors.CodeInvalidInput, fmt.Sprintf("Torrent file too large (max %d MiB)", model.MaxTorrentBytes>>20))
	}
	if len(raw) == 0 {
		return nil, apperrors.New(apperrors.CodeInvalidInput, "torrent_b64 is empty")
	}
	return raw, nil
}

// ingest hands the source to the engine, registers the result and persists
// it. Anything the engine accepted is forgotten again if registration fails.
func (s *TorrentService) ingest(ctx context.Context, as addSource) (string, error) {
	res, err := s.engineAdd(ctx, as)
	if err != nil {
		return "", err
	}

	id, err := s.state.Add(core.Ingest{
		ID:           as.restoreID,
		AddedAtMs:    as.addedAtMs,
		EngineID:     res.EngineID,
		InfoHash:     as.infoHash,
		Name:         res.Name,
		OutputFolder: res.OutputFolder,
		Files:        res.Files,
		NameHint:     as.nameHint,
		Trackers:     as.trackers,
	})
	if err != nil {
		// A concurrent add of the same torrent may share the engine handle.
		var dup *core.DuplicateError
		if !errors.As(err, &dup) || dup.EngineID != res.EngineID {
			if ferr := s.engine.Action(ctx, res.EngineID, engine.Action{Kind: engine.ActionForget}); ferr != nil {
				s.logger.Warn("failed to forget rejected torrent", zap.String("engine_id", res.EngineID), zap.Error(ferr))
			}
		}
		return "", err
	}
	if as.paused {
		if err := s.state.SetRunning(id, false); err != nil {
			return "", err
		}
	}

	if as.restoreID == "" {
		tor, _ := s.state.Get(id)
		rec := store.TorrentRecord{
			ID:        id,
			InfoHash:  as.infoHash,
			NameHint:  as.nameHint,
			SavePath:  res.OutputFolder,
			Running:   !as.paused,
			AddedAtMs: tor.AddedAtMs,
			Profile:   tor.Profile,
		}
		if as.isMagnet {
			rec.Magnet = as.raw
		} else {
			rec.Torrent = as.raw
		}
		if err := s.store.SaveTorrent(rec); err != nil {
			s.logger.Error("failed to persist torrent", zap.String("id", id), zap.Error(err))
		}
	}

	s.logger.Info("torrent added",
		zap.String("id", id),
		zap.String("info_hash", as.infoHash),
		zap.String("save_path", res.OutputFolder),
		zap.Bool("paused", as.paused),
	)
	return id, nil
}

// engineAdd adds without overwriting first and retries once with overwrite
// when the engine reports that the content already exists on disk.
func (s *TorrentService) engineAdd(ctx context.Context, as addSource) (*engine.AddResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.metadataTimeout)
	defer cancel()

	opts := engine.AddOptions{OutputFolder: as.savePath, Paused: as.paused}
	res, err := s.engine.Add(ctx, as.src, opts)
	if err != nil && engine.IsFileExists(err) {
		s.logger.Info("content already on disk, resuming onto it", zap.String("save_path", as.savePath))
		opts.Overwrite = true
		res, err = s.engine.Add(ctx, as.src, opts)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeEngineFailure, "failed to add torrent")
	}
	return res, nil
}

// networkGate refuses operations that would generate network traffic while
// the kill switch holds the network closed.
func (s *TorrentService) networkGate() error {
	if s.state.KillSwitchBlocks() {
		return apperrors.New(apperrors.CodePolicyRejected, msgNetworkBlocked)
	}
	return nil
}

func (s *TorrentService) action(ctx context.Context, engineID string, kind engine.ActionKind) error {
	if err := s.engine.Action(ctx, engineID, engine.Action{Kind: kind}); err != nil {
		return apperrors.Wrap(err, apperrors.CodeEngineFailure, fmt.Sprintf("engine %s failed", kind))
	}
	return nil
}

func (s *TorrentService) Start(ctx context.Context, id string) error {
	if err := s.networkGate(); err != nil {
		return err
	}
	engineID, err := s.state.EngineID(id)
	if err != nil {
		return err
	}
	if err := s.action(ctx, engineID, engine.ActionStart); err != nil {
		return err
	}
	if err := s.state.SetRunning(id, true); err != nil {
		return err
	}
	s.persistRunning(id, true)
	s.bus.Publish(event.New(event.TorrentStarted, event.LifecycleEvent{ID: id}))
	return nil
}

func (s *TorrentService) Stop(ctx context.Context, id string) error {
	engineID, err := s.state.EngineID(id)
	if err != nil {
		return err
	}
	if err := s.action(ctx, engineID, engine.ActionPause); err != nil {
		return err
	}
	if err := s.state.SetRunning(id, false); err != nil {
		return err
	}
	s.persistRunning(id, false)
	s.bus.Publish(event.New(event.TorrentStopped, event.LifecycleEvent{ID: id}))
	return nil
}

// Remove forgets the torrent in the engine and drops it from the registry
// and the session. Downloaded data stays on disk.
func (s *TorrentService) Remove(ctx context.Context, id string) error {
	engineID, err := s.state.EngineID(id)
	if err != nil {
		return err
	}
	if err := s.action(ctx, engineID, engine.ActionForget); err != nil {
		return err
	}
	if _, err := s.state.Remove(id); err != nil {
		return err
	}
	if err := s.store.DeleteTorrent(id); err != nil {
		s.logger.Error("failed to delete torrent from session", zap.String("id", id), zap.Error(err))
	}
	s.bus.Publish(event.New(event.TorrentRemoved, event.LifecycleEvent{ID: id}))
	return nil
}

// Recheck shows the torrent as Checking and bounces it in the engine.
func (s *TorrentService) Recheck(ctx context.Context, id string) error {
	if err := s.networkGate(); err != nil {
		return err
	}
	engineID, err := s.state.EngineID(id)
	if err != nil {
		return err
	}
	if err := s.state.ForceChecking(id); err != nil {
		return err
	}
	if err := s.bounce(ctx, engineID); err != nil {
		return err
	}
	s.bus.Publish(event.New(event.TorrentRechecked, event.LifecycleEvent{ID: id}))
	return nil
}

// Announce records a manual announce and bounces the torrent so the engine
// re-announces to its trackers.
func (s *TorrentService) Announce(ctx context.Context, id string) error {
	if err := s.networkGate(); err != nil {
		return err
	}
	engineID, err := s.state.EngineID(id)
	if err != nil {
		return err
	}
	if err := s.state.MarkAnnounce(id); err != nil {
		return err
	}
	if err := s.bounce(ctx, engineID); err != nil {
		return err
	}
	s.bus.Publish(event.New(event.TorrentAnnounced, event.LifecycleEvent{ID: id}))
	return nil
}

func (s *TorrentService) bounce(ctx context.Context, engineID string) error {
	if err := s.action(ctx, engineID, engine.ActionPause); err != nil {
		return err
	}
	return s.action(ctx, engineID, engine.ActionStart)
}

func (s *TorrentService) SetProfile(id string, profile model.TorrentProfile) (model.Torrent, error) {
	if err := model.Validate(profile); err != nil {
		return model.Torrent{}, err
	}
	tor, err := s.state.SetProfile(id, profile)
	if err != nil {
		return model.Torrent{}, err
	}
	if err := s.store.UpdateTorrent(id, func(r *store.TorrentRecord) { r.Profile = profile }); err != nil {
		s.logger.Warn("failed to persist profile", zap.String("id", id), zap.Error(err))
	}
	s.bus.Publish(event.New(event.TorrentUpdated, event.LifecycleEvent{ID: id, Data: tor}))
	return tor, nil
}

// SetFilePriority updates file priorities and pushes the resulting file
// selection to the engine. Paths that match no file are ignored.
func (s *TorrentService) SetFilePriority(ctx context.Context, id string, req model.PatchFilePriorityRequest) (model.TorrentContent, error) {
	if err := req.Validate(); err != nil {
		return model.TorrentContent{}, err
	}
	engineID, only, err := s.state.SetFilePriority(id, req.Paths, req.Priority)
	if err != nil {
		return model.TorrentContent{}, err
	}
	if err := s.engine.Action(ctx, engineID, engine.Action{Kind: engine.ActionUpdateOnlyFiles, OnlyFiles: only}); err != nil {
		return model.TorrentContent{}, apperrors.Wrap(err, apperrors.CodeEngineFailure, "failed to update file selection")
	}

	content, err := s.state.Content(id)
	if err != nil {
		return model.TorrentContent{}, err
	}
	err = s.store.UpdateTorrent(id, func(r *store.TorrentRecord) {
		r.Priorities = priorityMap(content.Files)
	})
	if err != nil {
		s.logger.Warn("failed to persist file priorities", zap.String("id", id), zap.Error(err))
	}
	s.bus.Publish(event.New(event.TorrentUpdated, event.LifecycleEvent{ID: id}))
	return content, nil
}

func priorityMap(files []model.TorrentFileEntry) map[string]model.FilePriority {
	out := make(map[string]model.FilePriority)
	for _, f := range files {
		if f.Priority != model.PriorityNormal {
			out[strings.Join(f.Path, "/")] = f.Priority
		}
	}
	return out
}

func (s *TorrentService) persistRunning(id string, running bool) {
	if err := s.store.UpdateTorrent(id, func(r *store.TorrentRecord) { r.Running = running }); err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Warn("failed to persist running flag", zap.String("id", id), zap.Error(err))
	}
}

func (s *TorrentService) List() model.TorrentListResponse {
	return model.TorrentListResponse{Items: s.state.List()}
}

func (s *TorrentService) Get(id string) (model.Torrent, error) {
	return s.state.Get(id)
}

func (s *TorrentService) Status(id string) (model.TorrentStatus, error) {
	return s.state.Status(id)
}

func (s *TorrentService) Content(id string) (model.TorrentContent, error) {
	return s.state.Content(id)
}

func (s *TorrentService) Snapshot(id string) (model.TorrentRowSnapshot, error) {
	return s.state.RowSnapshot(id)
}

func (s *TorrentService) Peers(ctx context.Context, id string) (model.PeersResponse, error) {
	return s.state.Peers(ctx, id)
}

func (s *TorrentService) Trackers(id string) (model.TrackersResponse, error) {
	return s.state.Trackers(id)
}
