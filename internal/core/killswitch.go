package core

import (
	"strings"
	"time"

	apperrors "orctorrent/internal/errors"
	"orctorrent/internal/model"

	"go.uber.org/zap"
)

// Enforcement reports what a kill-switch evaluation did. Halted lists the
// engine ids of torrents stopped by engagement; the caller pauses them in the
// engine after the lock is released.
type Enforcement struct {
	From    model.KillSwitchState
	To      model.KillSwitchState
	Changed bool
	Halted  []string
}

func cloneKillSwitch(ks model.KillSwitchConfig) model.KillSwitchConfig {
	out := ks
	out.VPNSource.AllowedAdapters = append([]string{}, ks.VPNSource.AllowedAdapters...)
	out.LastEnforcementMs = copyInt64(ks.LastEnforcementMs)
	return out
}

func (s *State) KillSwitch() model.KillSwitchConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneKillSwitch(s.killSwitch)
}

// KillSwitchBlocks reports whether the kill switch is enabled and the network
// gate is closed. Start, recheck and announce are refused while it holds.
func (s *State) KillSwitchBlocks() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.killSwitch.Enabled && !s.policy.Effective.NetworkAllowed
}

// PatchKillSwitch applies a partial update and evaluates the state machine
// immediately. Enabling without a connected VPN leaves the switch Disarmed
// with the network gate closed. Disabling resets to Disarmed and does not
// restart anything.
func (s *State) PatchKillSwitch(p model.PatchKillSwitchRequest, vpnConnected bool) (model.KillSwitchConfig, Enforcement, error) {
	if err := p.Validate(); err != nil {
		return model.KillSwitchConfig{}, Enforcement{}, err
	}
	if p.GracePeriodSec != nil && *p.GracePeriodSec > model.MaxGracePeriodSec {
		return model.KillSwitchConfig{}, Enforcement{}, apperrors.New(apperrors.CodeInvalidInput, "grace_period_sec must be at most 3600")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	ks := &s.killSwitch
	if p.Scope != nil {
		ks.Scope = *p.Scope
	}
	if p.GracePeriodSec != nil {
		ks.GracePeriodSec = *p.GracePeriodSec
	}
	if p.Triggers != nil {
		ks.Triggers = *p.Triggers
	}
	if p.VPNSource != nil {
		if p.VPNSource.AutoDetect != nil {
			ks.VPNSource.AutoDetect = *p.VPNSource.AutoDetect
		}
		if p.VPNSource.AllowedAdapters != nil {
			ks.VPNSource.AllowedAdapters = normalizeAdapters(p.VPNSource.AllowedAdapters)
		}
	}
	if p.Enabled != nil {
		ks.Enabled = *p.Enabled
	}
	s.ksGen++

	enf := s.advanceKillSwitchLocked(vpnConnected, now)
	s.refreshNetworkLocked(vpnConnected, now)

	s.logger.Info("kill switch updated",
		zap.Bool("enabled", ks.Enabled),
		zap.String("state", string(ks.EnforcementState)),
		zap.Bool("vpn_connected", vpnConnected),
	)
	return cloneKillSwitch(*ks), enf, nil
}

func normalizeAdapters(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, a := range in {
		a = strings.TrimSpace(a)
		key := strings.ToLower(a)
		if a == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, a)
	}
	return out
}

// advanceKillSwitchLocked runs one step of the enforcement machine. Entering
// Engaged stops torrents according to the configured triggers.
func (s *State) advanceKillSwitchLocked(vpnConnected bool, now time.Time) Enforcement {
	ks := &s.killSwitch
	from := ks.EnforcementState
	to := model.NextKillSwitchState(from, ks.Enabled, vpnConnected)
	enf := Enforcement{From: from, To: to}
	if to == from {
		return enf
	}
	if err := model.ValidateTransition(from, to); err != nil {
		s.logger.Error("kill switch transition rejected", zap.Error(err))
		enf.To = from
		return enf
	}

	ks.EnforcementState = to
	ms := now.UnixMilli()
	ks.LastEnforcementMs = &ms
	enf.Changed = true

	switch to {
	case model.KillSwitchEngaged:
		enf.Halted = s.engageLocked()
		s.logger.Warn("kill switch engaged: VPN disconnected", zap.Int("halted", len(enf.Halted)))
	case model.KillSwitchArmed:
		for _, rt := range s.torrents {
			rt.haltedByKillSwitch = false
		}
		if from == model.KillSwitchEngaged {
			s.logger.Info("kill switch released: VPN reconnected")
		} else {
			s.logger.Info("kill switch armed")
		}
	case model.KillSwitchDisarmed:
		for _, rt := range s.torrents {
			rt.haltedByKillSwitch = false
		}
		s.logger.Info("kill switch disarmed")
	}
	return enf
}

func (s *State) engageLocked() []string {
	trig := s.killSwitch.Triggers
	var halted []string
	for _, rt := range s.torrents {
		if !rt.running {
			continue
		}
		switch {
		case trig.PauseAllTorrents:
		case trig.StopSeeding && rt.state == model.StateSeeding:
		default:
			continue
		}
		rt.stop()
		rt.override = nil
		rt.haltedByKillSwitch = true
		halted = append(halted, rt.engineID)
	}
	return halted
}
