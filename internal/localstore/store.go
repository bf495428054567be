package localstore

import (
	"net"
	"sync"

	"github.com/joshuafuller/beacon/internal/protocol"
	"github.com/joshuafuller/beacon/internal/wire"
)

// Store derives the authoritative record set from registered services
// and the node's own addresses. It regenerates lazily: any mutation
// (Register, Unregister, SetAddresses) only sets a dirty flag; the
// actual record set is rebuilt on the next call to Records.
type Store struct {
	mu        sync.Mutex
	registry  *Registry
	hostname  string
	addresses []net.IP
	dirty     bool
	cached    []wire.Record
}

// New returns a Store for the given hostname (its own FQDN, e.g.
// "myhost.local"), backed by registry.
func New(hostname string, registry *Registry) *Store {
	return &Store{
		registry: registry,
		hostname: hostname,
		dirty:    true,
	}
}

// Registry returns the backing service registry.
func (s *Store) Registry() *Registry { return s.registry }

// SetAddresses replaces the node's local addresses and marks the store dirty.
func (s *Store) SetAddresses(addrs []net.IP) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addresses = addrs
	s.dirty = true
}

// MarkDirty forces the next Records call to regenerate, for use after a
// Registry mutation made outside SetAddresses/Register/Unregister.
func (s *Store) MarkDirty() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = true
}

// Register validates and adds a service, then marks the store dirty.
func (s *Store) Register(svc *Service) error {
	if err := svc.Validate(); err != nil {
		return err
	}
	if svc.Hostname == "" {
		svc.Hostname = s.hostname
	}
	s.registry.Register(svc)
	s.MarkDirty()
	return nil
}

// Unregister removes a service by FDQN and marks the store dirty.
func (s *Store) Unregister(fdqn string) bool {
	removed := s.registry.Remove(fdqn)
	if removed {
		s.MarkDirty()
	}
	return removed
}

// Records returns the current authoritative record set, regenerating it
// first if the store is dirty.
func (s *Store) Records() []wire.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dirty {
		s.cached = s.build()
		s.dirty = false
	}
	out := make([]wire.Record, len(s.cached))
	copy(out, s.cached)
	return out
}

func (s *Store) build() []wire.Record {
	var out []wire.Record

	for _, svc := range s.registry.List() {
		fdqn := svc.FDQN()

		out = append(out, wire.Record{
			Type:   protocol.RecordTypePTR,
			Header: wire.RecordHeader{Name: MetaPTRName, Class: protocol.ClassIN, TTL: protocol.TTLOtherRecord, Flush: false},
			PTR:    svc.ServiceType,
		})

		out = append(out, wire.Record{
			Type:   protocol.RecordTypePTR,
			Header: wire.RecordHeader{Name: svc.ServiceType, Class: protocol.ClassIN, TTL: protocol.TTLOtherRecord, Flush: false},
			PTR:    fdqn,
		})

		hostname := svc.Hostname
		if hostname == "" {
			hostname = s.hostname
		}

		out = append(out, wire.Record{
			Type:   protocol.RecordTypeSRV,
			Header: wire.RecordHeader{Name: fdqn, Class: protocol.ClassIN, TTL: protocol.TTLOtherRecord, Flush: true},
			SRV:    wire.SRVData{Priority: 0, Weight: 0, Port: uint16(svc.Port), Target: hostname},
		})

		out = append(out, wire.Record{
			Type:   protocol.RecordTypeTXT,
			Header: wire.RecordHeader{Name: fdqn, Class: protocol.ClassIN, TTL: protocol.TTLOtherRecord, Flush: true},
			TXT:    buildTXTPairs(svc.TXT),
		})
	}

	for _, addr := range s.addresses {
		if v4 := addr.To4(); v4 != nil {
			out = append(out, wire.Record{
				Type:   protocol.RecordTypeA,
				Header: wire.RecordHeader{Name: s.hostname, Class: protocol.ClassIN, TTL: protocol.TTLHostRecord, Flush: true},
				A:      v4,
			})
		} else if v6 := addr.To16(); v6 != nil {
			out = append(out, wire.Record{
				Type:   protocol.RecordTypeAAAA,
				Header: wire.RecordHeader{Name: s.hostname, Class: protocol.ClassIN, TTL: protocol.TTLHostRecord, Flush: true},
				AAAA:   v6,
			})
		}
	}

	return out
}

func buildTXTPairs(m map[string]string) []wire.TXTPair {
	if len(m) == 0 {
		return nil
	}
	out := make([]wire.TXTPair, 0, len(m))
	for k, v := range m {
		out = append(out, wire.TXTPair{Key: k, Value: v, HasValue: true})
	}
	return out
}
