//go:build windows

package fabric

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/windows"
)

// setSocketOptions sets SO_REUSEADDR, which on Windows grants the POSIX
// SO_REUSEPORT-like ability for multiple processes to share the port;
// Windows has no separate SO_REUSEPORT option.
func setSocketOptions(fd uintptr) error {
	if err := windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_REUSEADDR, 1); err != nil {
		return fmt.Errorf("SO_REUSEADDR: %w", err)
	}
	return nil
}

func setIPv6Only(fd uintptr, only bool) error {
	v := 0
	if only {
		v = 1
	}
	if err := windows.SetsockoptInt(windows.Handle(fd), windows.IPPROTO_IPV6, windows.IPV6_V6ONLY, v); err != nil {
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
