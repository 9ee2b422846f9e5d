package model

// KillSwitchState is the enforcement state of the VPN kill switch
// @enum disarmed,armed,engaged,releasing
type KillSwitchState string

const (
	KillSwitchDisarmed  KillSwitchState = "disarmed"
	KillSwitchArmed     KillSwitchState = "armed"
	KillSwitchEngaged   KillSwitchState = "engaged"
	KillSwitchReleasing KillSwitchState = "releasing"
)

type KillSwitchScope string

const (
	ScopeTorrentOnly KillSwitchScope = "torrent_only"
	ScopeAppLevel    KillSwitchScope = "app_level"
)

type VPNSource struct {
	AutoDetect      bool     `json:"auto_detect"`
	AllowedAdapters []string `json:"allowed_adapters"`
}

type KillSwitchTriggers struct {
	PauseAllTorrents bool `json:"pause_all_torrents"`
	StopSeeding      bool `json:"stop_seeding"`
	DisableDHTPexLPD bool `json:"disable_dht_pex_lpd"`
	BlockOutbound    bool `json:"block_outbound"`
}

type KillSwitchConfig struct {
	Enabled           bool               `json:"enabled"`
	Scope             KillSwitchScope    `json:"scope"`
	VPNSource         VPNSource          `json:"vpn_source"`
	GracePeriodSec    uint64             `json:"grace_period_sec"`
	Triggers          KillSwitchTriggers `json:"triggers"`
	EnforcementState  KillSwitchState    `json:"enforcement_state"`
	LastEnforcementMs *int64             `json:"last_enforcement_ms"`
}

const MaxGracePeriodSec = 3600

func DefaultKillSwitchConfig() KillSwitchConfig {
	return KillSwitchConfig{
		Scope: ScopeTorrentOnly,
		VPNSource: VPNSource{
			AutoDetect:      true,
			AllowedAdapters: []string{},
		},
		GracePeriodSec: 10,
		Triggers: KillSwitchTriggers{
			PauseAllTorrents: true,
		},
		EnforcementState: KillSwitchDisarmed,
	}
}
