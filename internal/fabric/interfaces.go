package fabric

import "net"

// Family is an address family the fabric can bind a socket for.
type Family uint8

const (
	FamilyV4 Family = iota
	FamilyV6
)

// InterfaceAddress is one address on one interface, in the shape the
// external getNetworkInterfaces collaborator (spec.md §6) returns.
type InterfaceAddress struct {
	Address  net.IP
	Netmask  net.IPMask
	Family   Family
	Internal bool
	ScopeID  string // IPv6 zone id, e.g. "en0"; empty for IPv4
}

// InterfaceProvider enumerates usable network interfaces and their
// addresses. getNetworkInterfaces in spec.md §6.
type InterfaceProvider func() (map[string][]InterfaceAddress, error)

// DefaultInterfaces is the built-in InterfaceProvider: every UP,
// MULTICAST, non-loopback interface, minus common VPN and container
// interfaces that should never carry mDNS traffic.
func DefaultInterfaces() (map[string][]InterfaceAddress, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	out := make(map[string][]InterfaceAddress)
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagMulticast == 0 {
			continue
		}
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if isVPN(iface.Name) || isDocker(iface.Name) {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		var entries []InterfaceAddress
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}

			family := FamilyV4
			scope := ""
			if ipnet.IP.To4() == nil {
				family = FamilyV6
				if ipnet.IP.IsLinkLocalUnicast() {
					scope = iface.Name
				}
			}

			entries = append(entries, InterfaceAddress{
				Address:  ipnet.IP,
				Netmask:  ipnet.Mask,
				Family:   family,
				Internal: ipnet.IP.IsLoopback(),
				ScopeID:  scope,
			})
		}

		if len(entries) > 0 {
			out[iface.Name] = entries
		}
	}

	return out, nil
}

// isVPN reports whether an interface name matches a common VPN naming
// pattern (macOS utun, Linux tun, PPTP/L2TP ppp, WireGuard, Tailscale).
func isVPN(name string) bool {
	for _, prefix := range []string{"utun", "tun", "ppp", "wg", "tailscale", "wireguard"} {
		if len(name) >= len(prefix) && name[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

// isDocker reports whether an interface name matches a common container
// networking pattern (Docker bridge, veth pairs, custom bridges).
func isDocker(name string) bool {
	if name == "docker0" {
		return true
	}
	for _, prefix := range []string{"veth", "br-"} {
		if len(name) >= len(prefix) && name[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}
