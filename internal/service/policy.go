package service

import (
	"context"

	"orctorrent/internal/core"
	"orctorrent/internal/engine"
	"orctorrent/internal/event"
	"orctorrent/internal/model"
	"orctorrent/internal/store"

	"go.uber.org/zap"
)

// PolicyService applies policy and kill-switch changes. VPN detection and
// the engine pauses for halted torrents run outside the core lock.
type PolicyService struct {
	state    *core.State
	engine   engine.TransferEngine
	detector core.VPNDetector
	store    *store.DB
	bus      *event.Bus
	logger   *zap.Logger
}

func NewPolicyService(state *core.State, eng engine.TransferEngine, detector core.VPNDetector, db *store.DB, bus *event.Bus, l *zap.Logger) *PolicyService {
	return &PolicyService{
		state:    state,
		engine:   eng,
		detector: detector,
		store:    db,
		bus:      bus,
		logger:   l.With(zap.String("component", "policy")),
	}
}

func (s *PolicyService) Policy() model.PolicyState {
	return s.state.Policy()
}

func (s *PolicyService) KillSwitch() model.KillSwitchConfig {
	return s.state.KillSwitch()
}

func (s *PolicyService) PatchPolicy(ctx context.Context, desired model.DesiredPolicy) (model.PolicyState, error) {
	vpn := s.state.DetectVPN()
	policy, enf, err := s.state.PatchPolicy(desired, vpn.Connected())
	if err != nil {
		return model.PolicyState{}, err
	}
	s.enforce(ctx, enf)

	if err := s.store.SavePolicy(policy.Desired); err != nil {
		s.logger.Error("failed to persist policy", zap.Error(err))
	}
	s.bus.Publish(event.New(event.PolicyUpdated, policy))
	return policy, nil
}

func (s *PolicyService) PatchKillSwitch(ctx context.Context, req model.PatchKillSwitchRequest) (model.KillSwitchConfig, error) {
	vpn := s.detectFor(req)
	cfg, enf, err := s.state.PatchKillSwitch(req, vpn.Connected())
	if err != nil {
		return model.KillSwitchConfig{}, err
	}
	s.enforce(ctx, enf)

	if err := s.store.SaveKillSwitch(cfg); err != nil {
		s.logger.Error("failed to persist kill switch", zap.Error(err))
	}
	s.bus.Publish(event.New(event.KillSwitchUpdated, cfg))
	return cfg, nil
}

// detectFor runs detection against the VPN source settings the patch would
// produce.
func (s *PolicyService) detectFor(req model.PatchKillSwitchRequest) model.VPNStatus {
	src := s.state.KillSwitch().VPNSource
	if req.VPNSource != nil {
		if req.VPNSource.AutoDetect != nil {
			src.AutoDetect = *req.VPNSource.AutoDetect
		}
		if req.VPNSource.AllowedAdapters != nil {
			src.AllowedAdapters = req.VPNSource.AllowedAdapters
		}
	}
	return s.detector.Detect(src)
}

// enforce pauses the torrents an engagement halted and publishes the
// transition.
func (s *PolicyService) enforce(ctx context.Context, enf core.Enforcement) {
	if !enf.Changed {
		return
	}
	PauseHalted(ctx, s.engine, enf.Halted, s.logger)

	t := event.KillSwitchUpdated
	switch {
	case enf.To == model.KillSwitchEngaged:
		t = event.KillSwitchEngaged
	case enf.From == model.KillSwitchEngaged:
		t = event.KillSwitchReleased
	}
	s.bus.Publish(event.New(t, event.KillSwitchEvent{
		From:   string(enf.From),
		To:     string(enf.To),
		Halted: enf.Halted,
	}))
}

// PauseHalted pauses the given engine ids. Failures are logged; the core
// already considers the torrents stopped.
func PauseHalted(ctx context.Context, eng engine.TransferEngine, engineIDs []string, l *zap.Logger) {
	for _, id := range engineIDs {
		if err := eng.Action(ctx, id, engine.Action{Kind: engine.ActionPause}); err != nil {
			l.Warn("failed to pause halted torrent", zap.String("engine_id", id), zap.Error(err))
		}
	}
}

func (s *PolicyService) VPNStatus() model.VPNStatus {
	return s.state.DetectVPN()
}

func (s *PolicyService) NetPosture() model.NetPosture {
	return s.state.NetPosture(s.state.DetectVPN())
}

// KillSwitchTest reports what the kill switch would do with the current VPN
// observation without changing anything.
type KillSwitchTest struct {
	VPNStatus      model.VPNStatus       `json:"vpn_status"`
	Current        model.KillSwitchState `json:"current_state"`
	WouldBe        model.KillSwitchState `json:"would_be_state"`
	NetworkAllowed bool                  `json:"network_allowed"`
}

func (s *PolicyService) TestKillSwitch() KillSwitchTest {
	vpn := s.state.DetectVPN()
	ks := s.state.KillSwitch()
	return KillSwitchTest{
		VPNStatus:      vpn,
		Current:        ks.EnforcementState,
		WouldBe:        model.NextKillSwitchState(ks.EnforcementState, ks.Enabled, vpn.Connected()),
		NetworkAllowed: !ks.Enabled || vpn.Connected(),
	}
}

// RestoreSettings re-applies the persisted kill-switch config and desired
// policy. It runs before torrents are restored so restored torrents see the
// right network gate.
func (s *PolicyService) RestoreSettings(ctx context.Context) error {
	ks, err := s.store.LoadKillSwitch()
	if err != nil {
		return err
	}
	if ks != nil {
		vpn := s.detectFor(*ks)
		if _, enf, err := s.state.PatchKillSwitch(*ks, vpn.Connected()); err != nil {
			s.logger.Warn("ignoring saved kill switch settings", zap.Error(err))
		} else {
			s.enforce(ctx, enf)
		}
	}

	desired, err := s.store.LoadPolicy()
	if err != nil {
		return err
	}
	if desired != nil {
		vpn := s.state.DetectVPN()
		if _, enf, err := s.state.PatchPolicy(*desired, vpn.Connected()); err != nil {
			s.logger.Warn("ignoring saved policy", zap.Error(err))
		} else {
			s.enforce(ctx, enf)
		}
	}
	return nil
}
