// Package vpn detects an active VPN by inspecting host network interfaces.
// Detection is heuristic: interface names are matched against known
// provider, protocol and tunnel naming patterns.
package vpn

import (
	"net"
	"regexp"
	"strings"
	"time"

	"orctorrent/internal/model"

	"go.uber.org/zap"
)

var excludePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(lo|loopback|eth|wlan|wifi|ethernet|local|bridge|docker|veth)`),
	regexp.MustCompile(`(?i)(bluetooth|pan|wwan)`),
}

// Most specific first.
var vpnPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(nordlynx|nordvpn|mullvad|proton|expressvpn|surfshark|cyberghost|tailscale|wintun)`),
	regexp.MustCompile(`(?i)(private.*internet|pia\b)`),
	regexp.MustCompile(`(?i)^(openvpn|wireguard)`),
	regexp.MustCompile(`^tun\d+`),
	regexp.MustCompile(`^tap\d+`),
	regexp.MustCompile(`^wg\d+`),
	regexp.MustCompile(`^utun\d+`),
	regexp.MustCompile(`(?i)^.*tunnel.*$`),
	regexp.MustCompile(`^ppp\d+`),
}

// Interface is the part of a host interface the detector looks at.
type Interface struct {
	Name      string
	AddrCount int
}

// Lister enumerates host interfaces.
type Lister func() ([]Interface, error)

type Detector struct {
	list   Lister
	now    func() time.Time
	logger *zap.Logger
}

func NewDetector(l *zap.Logger) *Detector {
	return NewDetectorWithLister(SystemInterfaces, l)
}

func NewDetectorWithLister(list Lister, l *zap.Logger) *Detector {
	return &Detector{
		list:   list,
		now:    time.Now,
		logger: l.With(zap.String("component", "vpn")),
	}
}

// SystemInterfaces lists the host's interfaces with their address counts.
func SystemInterfaces() ([]Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	out := make([]Interface, 0, len(ifaces))
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		out = append(out, Interface{Name: iface.Name, AddrCount: len(addrs)})
	}
	return out, nil
}

// IsVPNName reports whether an interface name looks like a VPN adapter.
func IsVPNName(name string) bool {
	lower := strings.ToLower(name)
	for _, re := range excludePatterns {
		if re.MatchString(lower) {
			return false
		}
	}
	for _, re := range vpnPatterns {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}

// Select returns the first interface that carries an address and either
// appears in allowed (case-insensitive) or, when allowed is empty, matches
// the VPN naming patterns.
func Select(ifaces []Interface, allowed []string) (string, bool) {
	for _, iface := range ifaces {
		if iface.AddrCount == 0 {
			continue
		}
		if len(allowed) > 0 {
			for _, a := range allowed {
				if strings.EqualFold(strings.TrimSpace(a), iface.Name) {
					return iface.Name, true
				}
			}
			continue
		}
		if IsVPNName(iface.Name) {
			return iface.Name, true
		}
	}
	return "", false
}

// Detect inspects the host and reports the VPN posture. A failed
// enumeration is logged and reported as disconnected.
func (d *Detector) Detect(src model.VPNSource) model.VPNStatus {
	nowMs := d.now().UnixMilli()

	ifaces, err := d.list()
	if err != nil {
		d.logger.Warn("interface enumeration failed", zap.Error(err))
		ifaces = nil
	}

	name, ok := Select(ifaces, src.AllowedAdapters)
	if !ok {
		return Disconnected(nowMs)
	}
	return Connected(name, nowMs)
}

func Connected(iface string, nowMs int64) model.VPNStatus {
	detected := true
	name := iface
	route := iface
	return model.VPNStatus{
		Posture:               model.PostureConnected,
		InterfaceName:         &name,
		DefaultRouteInterface: &route,
		DNSServers:            []string{},
		Signals: model.VPNSignals{
			AdapterMatch:      true,
			DefaultRouteMatch: true,
		},
		LastCheckMs:    nowMs,
		ConnectionType: model.ConnectionVPN,
		Detected:       &detected,
	}
}

func Disconnected(nowMs int64) model.VPNStatus {
	detected := false
	return model.VPNStatus{
		Posture:        model.PostureDisconnected,
		DNSServers:     []string{},
		LastCheckMs:    nowMs,
		ConnectionType: model.ConnectionNonVPN,
		Detected:       &detected,
	}
}
