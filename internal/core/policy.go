package core

import (
	"time"

	"orctorrent/internal/model"

	"go.uber.org/zap"
)

const (
	WarningAnonUPnP    = "anon_upnp"
	WarningVPNRequired = "vpn_required"
)

func defaultPolicyState(now time.Time) model.PolicyState {
	desired := model.DefaultDesiredPolicy()
	disabled := make(map[string]model.ToggleDisabled, len(model.DesiredPolicyFields))
	for _, f := range model.DesiredPolicyFields {
		disabled[f] = model.ToggleDisabled{}
	}
	return model.PolicyState{
		Desired:       desired,
		Effective:     deriveEffective(desired, true),
		Warnings:      policyWarnings(desired, false, true),
		Disabled:      disabled,
		Version:       1,
		LastUpdatedMs: now.UnixMilli(),
	}
}

// deriveEffective copies desired unchanged and derives the three gates.
func deriveEffective(desired model.DesiredPolicy, networkAllowed bool) model.EffectivePolicy {
	return model.EffectivePolicy{
		DesiredPolicy:     cloneDesired(desired),
		NetworkAllowed:    networkAllowed,
		DiscoveryAllowed:  !desired.EnforcePrivateTorrents,
		DirectPeerAllowed: !desired.AnonymousMode,
	}
}

func policyWarnings(desired model.DesiredPolicy, killSwitchEnabled, networkAllowed bool) []model.PolicyWarning {
	warnings := []model.PolicyWarning{}
	if desired.AnonymousMode && desired.UPnPNATPMPEnabled {
		warnings = append(warnings, model.PolicyWarning{
			Code:     WarningAnonUPnP,
			Message:  "Anonymous mode is enabled while UPnP/NAT-PMP is enabled. Consider disabling port mapping.",
			Severity: model.SeverityWarn,
		})
	}
	if killSwitchEnabled && !networkAllowed {
		warnings = append(warnings, model.PolicyWarning{
			Code:     WarningVPNRequired,
			Message:  "VPN kill switch is enabled and no VPN is connected. Torrent network activity is blocked.",
			Severity: model.SeverityBlock,
		})
	}
	return warnings
}

func cloneDesired(d model.DesiredPolicy) model.DesiredPolicy {
	if d.Profile != nil {
		p := *d.Profile
		d.Profile = &p
	}
	return d
}

func clonePolicy(p model.PolicyState) model.PolicyState {
	out := p
	out.Desired = cloneDesired(p.Desired)
	out.Effective.DesiredPolicy = cloneDesired(p.Effective.DesiredPolicy)
	out.Warnings = append([]model.PolicyWarning{}, p.Warnings...)
	out.Disabled = make(map[string]model.ToggleDisabled, len(p.Disabled))
	for k, v := range p.Disabled {
		out.Disabled[k] = v
	}
	return out
}

func (s *State) Policy() model.PolicyState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clonePolicy(s.policy)
}

// NetworkAllowed reports the effective network gate.
func (s *State) NetworkAllowed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.policy.Effective.NetworkAllowed
}

// PatchPolicy replaces the desired policy, advances the kill switch with the
// given VPN observation and recomputes the effective policy. The version is
// bumped unconditionally.
func (s *State) PatchPolicy(desired model.DesiredPolicy, vpnConnected bool) (model.PolicyState, Enforcement, error) {
	if err := model.Validate(desired); err != nil {
		return model.PolicyState{}, Enforcement{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	enf := s.advanceKillSwitchLocked(vpnConnected, now)

	networkAllowed := !s.killSwitch.Enabled || vpnConnected
	s.policy.Desired = cloneDesired(desired)
	s.policy.Effective = deriveEffective(desired, networkAllowed)
	s.policy.Warnings = policyWarnings(desired, s.killSwitch.Enabled, networkAllowed)
	s.bumpPolicyLocked(now)

	s.logger.Info("policy updated",
		zap.Uint64("version", s.policy.Version),
		zap.Bool("network_allowed", networkAllowed),
		zap.Int("warnings", len(s.policy.Warnings)),
	)
	return clonePolicy(s.policy), enf, nil
}

func (s *State) bumpPolicyLocked(now time.Time) {
	s.policy.Version++
	s.policy.LastUpdatedMs = now.UnixMilli()
}

// refreshNetworkLocked re-derives network_allowed from the kill switch and
// bumps the version only when the gate flips.
func (s *State) refreshNetworkLocked(vpnConnected bool, now time.Time) bool {
	allowed := !s.killSwitch.Enabled || vpnConnected
	if s.policy.Effective.NetworkAllowed == allowed {
		return false
	}
	s.policy.Effective.NetworkAllowed = allowed
	s.policy.Warnings = policyWarnings(s.policy.Desired, s.killSwitch.Enabled, allowed)
	s.bumpPolicyLocked(now)
	s.logger.Info("network gate changed", zap.Bool("network_allowed", allowed), zap.Uint64("version", s.policy.Version))
	return true
}
