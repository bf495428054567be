//go:build linux

package fabric

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// setSocketOptions sets SO_REUSEADDR and SO_REUSEPORT so the node can
// coexist with Avahi/systemd-resolved already bound to 5353 (Linux 3.9+;
// older kernels fail ENOPROTOOPT on SO_REUSEPORT and are tolerated).
func setSocketOptions(fd uintptr) error {
	if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fmt.Errorf("SO_REUSEADDR: %w", err)
	}

	if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
		if err != unix.ENOPROTOOPT {
			return fmt.Errorf("SO_REUSEPORT: %w", err)
		}
	}

	return nil
}

// setIPv6Only toggles IPV6_V6ONLY for dual-stack-capable sockets bound
// to an IPv6 wildcard so the v4 and v6 bindings don't fight over the port.
func setIPv6Only(fd uintptr, only bool) error {
	v := 0
	if only {
		v = 1
	}
	if err := unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, v); err != nil {
		return fmt.Errorf("IPV6_V6ONLY: %w", err)
	}
	return nil
}

func platformControl(ipv6Only bool) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		var sockoptErr error
		err := c.Control(func(fd uintptr) {
			if sockoptErr = setSocketOptions(fd); sockoptErr != nil {
				return
			}
			if network == "udp6" {
				sockoptErr = setIPv6Only(fd, ipv6Only)
			}
		})
		if err != nil {
			return fmt.Errorf("raw conn control failed: %w", err)
		}
		return sockoptErr
	}
}
