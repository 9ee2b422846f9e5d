package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"orctorrent/internal/core"
	"orctorrent/internal/engine"
	"orctorrent/internal/event"
	"orctorrent/internal/model"
	"orctorrent/internal/store"

	"go.uber.org/zap"
)

// Restore re-adds every torrent saved in the session store, keeping ids,
// profiles and file priorities. Records the engine rejects are logged and
// left in the store so a later start can retry them.
func (s *TorrentService) Restore(ctx context.Context) (int, error) {
	records, err := s.store.ListTorrents()
	if err != nil {
		return 0, err
	}

	restored := 0
	for _, rec := range records {
		if ctx.Err() != nil {
			return restored, ctx.Err()
		}
		if err := s.restoreOne(ctx, rec); err != nil {
			s.logger.Warn("failed to restore torrent",
				zap.String("id", rec.ID),
				zap.String("info_hash", rec.InfoHash),
				zap.Error(err),
			)
			continue
		}
		restored++
	}

	if len(records) > 0 {
		s.logger.Info("session restored", zap.Int("restored", restored), zap.Int("saved", len(records)))
	}
	return restored, nil
}

func (s *TorrentService) restoreOne(ctx context.Context, rec store.TorrentRecord) error {
	var req model.AddTorrentRequest
	if rec.Magnet != "" {
		req.Magnet = &rec.Magnet
	} else {
		req.TorrentB64 = &rec.Torrent
	}
	if rec.NameHint != "" {
		req.NameHint = &rec.NameHint
	}
	if err := req.Validate(); err != nil {
		return err
	}

	as, err := parseSource(req)
	if err != nil {
		return err
	}
	if _, ok := s.state.FindByInfoHash(as.infoHash); ok {
		return nil
	}

	as.restoreID = rec.ID
	as.addedAtMs = rec.AddedAtMs
	as.savePath = rec.SavePath
	if as.savePath == "" {
		as.savePath = filepath.Join(s.downloadDir, as.infoHash)
	}
	as.paused = !rec.Running || s.state.KillSwitchBlocks()

	id, err := s.ingest(ctx, as)
	var dup *core.DuplicateError
	if errors.As(err, &dup) {
		return nil
	}
	if err != nil {
		return err
	}

	if rec.Profile.Mode != "" && rec.Profile != model.DefaultProfile() {
		if _, err := s.state.SetProfile(id, rec.Profile); err != nil {
			s.logger.Warn("failed to restore profile", zap.String("id", id), zap.Error(err))
		}
	}
	if err := s.restorePriorities(ctx, id, rec.Priorities); err != nil {
		s.logger.Warn("failed to restore file priorities", zap.String("id", id), zap.Error(err))
	}

	s.bus.Publish(event.New(event.TorrentRestored, event.LifecycleEvent{ID: id}))
	return nil
}

func (s *TorrentService) restorePriorities(ctx context.Context, id string, saved map[string]model.FilePriority) error {
	if len(saved) == 0 {
		return nil
	}
	byPriority := make(map[model.FilePriority][][]string)
	for path, prio := range saved {
		byPriority[prio] = append(byPriority[prio], strings.Split(path, "/"))
	}

	for _, prio := range []model.FilePriority{model.PrioritySkip, model.PriorityLow, model.PriorityHigh} {
		if paths, ok := byPriority[prio]; ok {
			if _, _, err := s.state.SetFilePriority(id, paths, prio); err != nil {
				return err
			}
		}
	}

	engineID, err := s.state.EngineID(id)
	if err != nil {
		return err
	}
	only, err := s.state.OnlyFiles(id)
	if err != nil {
		return err
	}
	return s.engine.Action(ctx, engineID, engine.Action{Kind: engine.ActionUpdateOnlyFiles, OnlyFiles: only})
}
