package core

import (
	"context"
	"time"

	"orctorrent/internal/engine"
	apperrors "orctorrent/internal/errors"
	"orctorrent/internal/model"

	"go.uber.org/zap"
)

// TickReport summarizes one reconciliation pass.
type TickReport struct {
	// VPN is nil when the kill switch is disabled and detection was skipped.
	VPN            *model.VPNStatus
	KillSwitch     Enforcement
	NetworkChanged bool
	Failed         int
	// Changed lists torrents whose visible state differs from the previous pass.
	Changed []StateChange
}

type StateChange struct {
	ID   string
	From model.TorrentState
	To   model.TorrentState
}

type tickTarget struct {
	id       string
	engineID string
}

type statsResult struct {
	stats *engine.Stats
	err   error
}

// Tick reconciles the registry against the engine once. Engine calls and
// VPN detection run without the lock; all mutations are applied in one
// critical section. Per-torrent engine failures are recorded on the torrent
// and never abort the pass.
func (s *State) Tick(ctx context.Context) TickReport {
	s.mu.Lock()
	targets := make([]tickTarget, 0, len(s.torrents))
	for id, rt := range s.torrents {
		targets = append(targets, tickTarget{id: id, engineID: rt.engineID})
	}
	ks := cloneKillSwitch(s.killSwitch)
	gen := s.ksGen
	s.mu.Unlock()

	var report TickReport
	vpnConnected := false
	if ks.Enabled && s.detector != nil {
		st := s.detector.Detect(ks.VPNSource)
		report.VPN = &st
		vpnConnected = st.Connected()
	}

	results := make([]statsResult, len(targets))
	for i, tgt := range targets {
		results[i] = s.fetchStats(ctx, tgt.engineID)
	}

	s.mu.Lock()
	now := s.now()
	for _, rt := range s.torrents {
		rt.sampleHeartbeat(now)
	}

	if s.ksGen == gen {
		report.KillSwitch = s.advanceKillSwitchLocked(vpnConnected, now)
		report.NetworkChanged = s.refreshNetworkLocked(vpnConnected, now)
	} else {
		// The switch was reconfigured mid-pass and the patch already
		// enforced against its own detection; this pass's result is stale.
		report.VPN = nil
		report.KillSwitch = Enforcement{From: s.killSwitch.EnforcementState, To: s.killSwitch.EnforcementState}
	}
	engaged := s.killSwitch.EnforcementState == model.KillSwitchEngaged

	for i, tgt := range targets {
		rt, ok := s.torrents[tgt.id]
		if !ok || rt.engineID != tgt.engineID {
			continue
		}
		before := rt.visibleState(now)
		res := results[i]
		if res.err != nil {
			rt.recordFailure(res.err)
			report.Failed++
			s.logger.Debug("engine stats failed", zap.String("id", tgt.id), zap.Error(res.err))
		} else {
			rt.applyStats(res.stats, now, engaged)
		}
		if after := rt.visibleState(now); after != before {
			report.Changed = append(report.Changed, StateChange{ID: tgt.id, From: before, To: after})
		}
	}
	s.mu.Unlock()

	for _, engineID := range report.KillSwitch.Halted {
		if err := s.engine.Action(ctx, engineID, engine.Action{Kind: engine.ActionPause}); err != nil {
			s.logger.Warn("failed to pause torrent after kill switch engaged", zap.String("engine_id", engineID), zap.Error(err))
		}
	}
	return report
}

func (s *State) fetchStats(ctx context.Context, engineID string) statsResult {
	ctx, cancel := context.WithTimeout(ctx, s.statsTimeout)
	defer cancel()
	st, err := s.engine.Stats(ctx, engineID)
	if err == nil && st == nil {
		err = apperrors.New(apperrors.CodeEngineFailure, "engine returned no stats")
	}
	return statsResult{stats: st, err: err}
}

// sampleHeartbeat appends a throughput sample at most every
// HeartbeatInterval. Stopped torrents record zero.
func (rt *torrentRuntime) sampleHeartbeat(now time.Time) {
	elapsed := now.Sub(rt.heartbeatAt)
	if elapsed < HeartbeatInterval {
		return
	}
	var sample uint64
	if rt.running {
		delta := saturatingSub(rt.downloadedBytes, rt.heartbeatAnchor)
		sample = uint64(float64(delta) / elapsed.Seconds())
	}
	rt.heartbeats = append(rt.heartbeats, sample)
	if over := len(rt.heartbeats) - MaxHeartbeats; over > 0 {
		rt.heartbeats = append(rt.heartbeats[:0], rt.heartbeats[over:]...)
	}
	rt.heartbeatAt = now
	rt.heartbeatAnchor = rt.downloadedBytes
}

func (rt *torrentRuntime) recordFailure(err error) {
	rt.lastError = apperrors.Sanitize(err)
	rt.state = model.StateError
	rt.setRunning(false)
	rt.downRate = 0
	rt.upRate = 0
}

func (rt *torrentRuntime) applyStats(st *engine.Stats, now time.Time, engaged bool) {
	elapsed := max(now.Sub(rt.lastSampleAt), minRateWindow)
	if rt.sampled {
		secs := elapsed.Seconds()
		rt.downRate = uint64(float64(saturatingSub(st.ProgressBytes, rt.lastDownloaded)) / secs)
		rt.upRate = uint64(float64(saturatingSub(st.UploadedBytes, rt.lastUploaded)) / secs)
	} else {
		rt.downRate, rt.upRate = 0, 0
		rt.sampled = true
	}
	rt.lastSampleAt = now
	rt.lastDownloaded = st.ProgressBytes
	rt.lastUploaded = st.UploadedBytes

	rt.totalBytes = st.TotalBytes
	rt.downloadedBytes = st.ProgressBytes
	rt.uploadedBytes = st.UploadedBytes
	rt.lastError = ""
	if st.Error != "" {
		rt.lastError = apperrors.SanitizeMessage(st.Error)
	}

	state := mapEngineState(st.State, st.Finished)
	if rt.override != nil {
		if now.Before(rt.override.until) {
			state = rt.override.state
		} else {
			rt.override = nil
		}
	}
	if engaged && rt.haltedByKillSwitch && state.Active() {
		state = model.StateStopped
	}

	rt.state = state
	rt.setRunning(state.Active())
	if !rt.running {
		rt.downRate, rt.upRate = 0, 0
	}

	switch {
	case st.FileProgress != nil:
		for i, done := range st.FileProgress {
			if i >= len(rt.files) {
				break
			}
			f := &rt.files[i]
			f.downloaded = done >= f.size && f.priority != model.PrioritySkip
		}
	case st.Finished:
		for i := range rt.files {
			if rt.files[i].priority != model.PrioritySkip {
				rt.files[i].downloaded = true
			}
		}
	}
}

// mapEngineState maps an engine state string. Unknown strings fall back to
// Downloading or Seeding.
func mapEngineState(state string, finished bool) model.TorrentState {
	switch state {
	case engine.StatePaused:
		return model.StateStopped
	case engine.StateInitializing:
		return model.StateChecking
	case engine.StateError:
		return model.StateError
	}
	if finished {
		return model.StateSeeding
	}
	return model.StateDownloading
}
