// Package localstore derives the authoritative record set from
// registered services and the node's interface addresses, regenerating
// it lazily on a dirty flag rather than on every mutation.
package localstore

import (
	"fmt"
	"regexp"

	"github.com/joshuafuller/beacon/internal/errors"
	"github.com/joshuafuller/beacon/internal/protocol"
)

// Service is one registered mDNS service instance.
type Service struct {
	InstanceName string
	ServiceType  string // "_http._tcp.local"
	Port         int
	TXT          map[string]string
	Hostname     string // host FQDN for the SRV target; defaults to node hostname
}

var serviceTypeRegex = regexp.MustCompile(`^_[a-z0-9-]+\._(tcp|udp)\.local$`)

// Validate checks a Service against RFC 6763 §4 naming and size limits.
func (s *Service) Validate() error {
	if s.InstanceName == "" {
		return &errors.ValidationError{Field: "InstanceName", Message: "cannot be empty"}
	}
	if len(s.InstanceName) > 63 {
		return &errors.ValidationError{Field: "InstanceName", Value: s.InstanceName, Message: "exceeds 63 octets"}
	}
	if !serviceTypeRegex.MatchString(s.ServiceType) {
		return &errors.ValidationError{Field: "ServiceType", Value: s.ServiceType, Message: "must match _service._proto.local"}
	}
	// The instance label is free-form UTF-8 (RFC 6763 §4.1.1), so only the
	// service-type labels get hostname-label validation; the FDQN as a
	// whole is held to the 255-byte wire limit.
	if err := protocol.ValidateName(s.ServiceType); err != nil {
		return err
	}
	if wireLen := 1 + len(s.InstanceName) + 1 + len(s.ServiceType) + 1; wireLen > protocol.MaxNameLength {
		return &errors.ValidationError{Field: "name", Value: s.FDQN(), Message: fmt.Sprintf("exceeds %d wire bytes (got %d)", protocol.MaxNameLength, wireLen)}
	}
	if s.Port < 1 || s.Port > 65535 {
		return &errors.ValidationError{Field: "Port", Value: fmt.Sprintf("%d", s.Port), Message: "must be in range 1-65535"}
	}
	if err := validateTXTSize(s.TXT); err != nil {
		return err
	}
	return nil
}

// validateTXTSize enforces the RFC 6763 §6.2 1300-byte SHOULD-NOT-exceed guidance.
func validateTXTSize(txt map[string]string) error {
	total := 0
	for k, v := range txt {
		total += 1 + len(k) + 1 + len(v)
	}
	if total > 1300 {
		return &errors.ValidationError{Field: "TXT", Message: fmt.Sprintf("exceeds 1300 bytes (got %d)", total)}
	}
	return nil
}

// FDQN returns the fully-qualified instance name: "<instance>.<type>".
func (s *Service) FDQN() string {
	return s.InstanceName + "." + s.ServiceType
}

// MetaPTRName is the well-known DNS-SD service-enumeration name.
const MetaPTRName = "_services._dns-sd._udp.local"
