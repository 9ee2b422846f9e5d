package model

type TriState string

const (
	TriOff     TriState = "off"
	TriPrefer  TriState = "prefer"
	TriRequire TriState = "require"
)

type PaddingLevel string

const (
	PaddingOff  PaddingLevel = "off"
	PaddingLow  PaddingLevel = "low"
	PaddingHigh PaddingLevel = "high"
)

type PolicyProfile string

const (
	PolicyStandard  PolicyProfile = "standard"
	PolicyHardened  PolicyProfile = "hardened"
	PolicyAnonymous PolicyProfile = "anonymous"
)

// DesiredPolicy is the user's intent. It is validated but never corrected.
type DesiredPolicy struct {
	AnonymousMode            bool           `json:"anonymous_mode"`
	PeerEncryption           TriState       `json:"peer_encryption" validate:"required,oneof=off prefer require"`
	DHTHardening             bool           `json:"dht_hardening"`
	EnforcePrivateTorrents   bool           `json:"enforce_private_torrents"`
	IPBlocklist              bool           `json:"ip_blocklist"`
	KillSwitch               bool           `json:"kill_switch"`
	BindInterfaceOnly        bool           `json:"bind_interface_only"`
	OverlayPadding           PaddingLevel   `json:"overlay_padding" validate:"required,oneof=off low high"`
	SybilResistance          bool           `json:"sybil_resistance"`
	RelayPowRequired         bool           `json:"relay_pow_required"`
	RelaySubnetDiversity     bool           `json:"relay_subnet_diversity"`
	RelayReputationWeighting bool           `json:"relay_reputation_weighting"`
	IPv6Enabled              bool           `json:"ipv6_enabled"`
	UPnPNATPMPEnabled        bool           `json:"upnp_natpmp_enabled"`
	CircuitRotationEnabled   bool           `json:"circuit_rotation_enabled"`
	DenyDirectExits          bool           `json:"deny_direct_exits"`
	MinimizeFingerprinting   bool           `json:"minimize_fingerprinting"`
	Profile                  *PolicyProfile `json:"profile" validate:"omitempty,oneof=standard hardened anonymous"`
}

// DesiredPolicyFields lists the JSON names of every desired field, used to
// key the disabled-reason map.
var DesiredPolicyFields = []string{
	"anonymous_mode",
	"peer_encryption",
	"dht_hardening",
	"enforce_private_torrents",
	"ip_blocklist",
	"kill_switch",
	"bind_interface_only",
	"overlay_padding",
	"sybil_resistance",
	"relay_pow_required",
	"relay_subnet_diversity",
	"relay_reputation_weighting",
	"ipv6_enabled",
	"upnp_natpmp_enabled",
	"circuit_rotation_enabled",
	"deny_direct_exits",
	"minimize_fingerprinting",
	"profile",
}

func DefaultDesiredPolicy() DesiredPolicy {
	profile := PolicyStandard
	return DesiredPolicy{
		PeerEncryption:    TriPrefer,
		DHTHardening:      true,
		OverlayPadding:    PaddingOff,
		IPv6Enabled:       true,
		UPnPNATPMPEnabled: true,
		Profile:           &profile,
	}
}

// EffectivePolicy is DesiredPolicy plus the three derived gates.
type EffectivePolicy struct {
	DesiredPolicy
	NetworkAllowed    bool `json:"network_allowed"`
	DiscoveryAllowed  bool `json:"discovery_allowed"`
	DirectPeerAllowed bool `json:"direct_peer_allowed"`
}

type WarningSeverity string

const (
	SeverityInfo  WarningSeverity = "info"
	SeverityWarn  WarningSeverity = "warn"
	SeverityBlock WarningSeverity = "block"
)

type PolicyWarning struct {
	Code     string          `json:"code"`
	Message  string          `json:"message"`
	Severity WarningSeverity `json:"severity"`
}

type ToggleDisabled struct {
	Disabled bool   `json:"disabled"`
	Reason   string `json:"reason,omitempty"`
}

type PolicyState struct {
	Desired       DesiredPolicy             `json:"desired"`
	Effective     EffectivePolicy           `json:"effective"`
	Warnings      []PolicyWarning           `json:"warnings"`
	Disabled      map[string]ToggleDisabled `json:"disabled"`
	Version       uint64                    `json:"version"`
	LastUpdatedMs int64                     `json:"lastUpdatedMs"`
}
