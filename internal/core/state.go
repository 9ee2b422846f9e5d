// Package core owns the daemon's authoritative in-memory model: the torrent
// registry, per-torrent analytics, the security policy and the VPN kill
// switch. Everything lives behind one mutex. Engine I/O is always performed
// with the mutex released; results are applied in a single critical section
// so readers observe either the pre- or post-update state.
package core

import (
	"context"
	"net"
	"sync"
	"time"

	"orctorrent/internal/engine"
	"orctorrent/internal/model"

	"go.uber.org/zap"
)

const (
	MaxTorrents       = 10_000
	MaxPeerSamples    = 1000
	MaxHeartbeats     = 120
	HeartbeatInterval = 200 * time.Millisecond
	HeatmapBins       = 200
	CheckingOverride  = 4 * time.Second
	AnnounceInterval  = 30 * time.Minute

	DefaultStatsTimeout = 5 * time.Second

	minRateWindow     = time.Millisecond
	minPeerRateWindow = 250 * time.Millisecond
)

// Engine is the subset of the transfer engine the core reconciles against.
type Engine interface {
	Stats(ctx context.Context, engineID string) (*engine.Stats, error)
	PeerStats(ctx context.Context, engineID string, filter engine.PeerFilter) (map[string]any, error)
	Action(ctx context.Context, engineID string, action engine.Action) error
}

type VPNDetector interface {
	Detect(src model.VPNSource) model.VPNStatus
}

type CountryResolver interface {
	Country(ip net.IP) (string, bool)
}

type Options struct {
	Engine       Engine
	Detector     VPNDetector
	GeoIP        CountryResolver
	Logger       *zap.Logger
	Now          func() time.Time
	StatsTimeout time.Duration
}

type State struct {
	mu         sync.Mutex
	torrents   map[string]*torrentRuntime
	policy     model.PolicyState
	killSwitch model.KillSwitchConfig
	// ksGen counts kill-switch config patches.
	ksGen uint64

	engine       Engine
	detector     VPNDetector
	geo          CountryResolver
	logger       *zap.Logger
	now          func() time.Time
	statsTimeout time.Duration
	startedAt    time.Time
}

func New(opts Options) *State {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.StatsTimeout <= 0 {
		opts.StatsTimeout = DefaultStatsTimeout
	}
	s := &State{
		torrents:     make(map[string]*torrentRuntime),
		killSwitch:   model.DefaultKillSwitchConfig(),
		engine:       opts.Engine,
		detector:     opts.Detector,
		geo:          opts.GeoIP,
		logger:       opts.Logger.With(zap.String("component", "core")),
		now:          opts.Now,
		statsTimeout: opts.StatsTimeout,
	}
	s.startedAt = s.now()
	s.policy = defaultPolicyState(s.startedAt)
	return s
}

// Uptime is the time since the state was created.
func (s *State) Uptime() time.Duration {
	return s.now().Sub(s.startedAt)
}

// DetectVPN runs VPN detection against the current kill-switch source
// settings. It must be called without holding the lock.
func (s *State) DetectVPN() model.VPNStatus {
	s.mu.Lock()
	src := s.killSwitch.VPNSource
	src.AllowedAdapters = append([]string(nil), src.AllowedAdapters...)
	s.mu.Unlock()
	return s.detector.Detect(src)
}

// NetPosture combines a VPN observation with the kill-switch config.
func (s *State) NetPosture(vpn model.VPNStatus) model.NetPosture {
	ks := s.KillSwitch()
	posture := model.NetPosture{
		BindInterface:    vpn.InterfaceName,
		LeakProofEnabled: ks.Enabled,
		State:            model.NetUnconfigured,
		LastChangeMs:     s.now().UnixMilli(),
		VPNStatus:        vpn,
		KillSwitch:       ks,
	}
	if ks.LastEnforcementMs != nil {
		posture.LastChangeMs = *ks.LastEnforcementMs
	}
	switch {
	case ks.Enabled && vpn.Connected():
		posture.State = model.NetProtected
	case ks.Enabled:
		posture.State = model.NetLeakRisk
	}
	return posture
}
