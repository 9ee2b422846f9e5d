package model

type VPNPosture string

const (
	PostureConnected    VPNPosture = "connected"
	PostureDisconnected VPNPosture = "disconnected"
	PostureUnknown      VPNPosture = "unknown"
	PostureChecking     VPNPosture = "checking"
)

type ConnectionType string

const (
	ConnectionVPN    ConnectionType = "vpn"
	ConnectionTor    ConnectionType = "tor"
	ConnectionI2P    ConnectionType = "i2p"
	ConnectionNonVPN ConnectionType = "non_vpn"
)

type VPNSignals struct {
	AdapterMatch      bool  `json:"adapter_match"`
	DefaultRouteMatch bool  `json:"default_route_match"`
	DNSMatch          bool  `json:"dns_match"`
	PublicIPMatch     *bool `json:"public_ip_match"`
}

type VPNStatus struct {
	Posture               VPNPosture     `json:"posture"`
	InterfaceName         *string        `json:"interface"`
	DefaultRouteInterface *string        `json:"default_route_interface"`
	DNSServers            []string       `json:"dns_servers"`
	Signals               VPNSignals     `json:"signals"`
	LastCheckMs           int64          `json:"last_check_ms"`
	ConnectionType        ConnectionType `json:"connection_type"`
	PublicIP              *string        `json:"public_ip"`
	Detected              *bool          `json:"detected,omitempty"`
}

// Connected is true only for a connected VPN posture that the detector did
// not explicitly deny.
func (s VPNStatus) Connected() bool {
	if s.Detected != nil && !*s.Detected {
		return false
	}
	return s.Posture == PostureConnected && s.ConnectionType == ConnectionVPN
}

type NetPostureState string

const (
	NetUnconfigured NetPostureState = "unconfigured"
	NetProtected    NetPostureState = "protected"
	NetLeakRisk     NetPostureState = "leak_risk"
)

type NetPosture struct {
	BindInterface    *string          `json:"bind_interface"`
	LeakProofEnabled bool             `json:"leak_proof_enabled"`
	State            NetPostureState  `json:"state"`
	LastChangeMs     int64            `json:"last_change_ms"`
	VPNStatus        VPNStatus        `json:"vpn_status"`
	KillSwitch       KillSwitchConfig `json:"kill_switch"`
}

type Health struct {
	OK        bool   `json:"ok"`
	UptimeSec uint64 `json:"uptime_sec"`
}

type Version struct {
	Version string `json:"version"`
}
