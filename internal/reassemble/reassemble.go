// Package reassemble reconstructs discovered services from the record
// cache, turning SRV+TXT+A/AAAA triples into SERVICE_APPEARED and
// SERVICE_REMOVED events as they are observed and expire.
package reassemble

import (
	"net"
	"strings"
	"sync"

	"github.com/joshuafuller/beacon/internal/cache"
	"github.com/joshuafuller/beacon/internal/protocol"
	"github.com/joshuafuller/beacon/internal/wire"
)

// EventKind distinguishes a newly-complete service from one that has expired.
type EventKind uint8

const (
	ServiceAppeared EventKind = iota
	ServiceRemoved
)

// Service is a fully assembled, currently-live service instance.
type Service struct {
	Name      string
	Type      string
	Protocol  string
	Hostname  string
	Port      uint16
	Addresses []net.IP
	TXT       map[string]string
}

// Event is one service lifecycle transition dispatched by the reassembler.
type Event struct {
	Kind    EventKind
	FDQN    string
	Service Service
}

// Reassembler tracks dispatched services and, given inbound records or
// cache-expiry notifications, determines which ones appear or disappear.
type Reassembler struct {
	cache *cache.Cache

	mu         sync.Mutex
	dispatched map[string]Service

	events chan Event
}

// New returns a Reassembler. Callers must wire its OnExpired method as
// the backing cache's expiry callback (the cache and reassembler are
// constructed together since cache.New takes its callback up front).
func New(c *cache.Cache) *Reassembler {
	return &Reassembler{
		cache:      c,
		dispatched: make(map[string]Service),
		events:     make(chan Event, 64),
	}
}

// Events returns the channel SERVICE_APPEARED/SERVICE_REMOVED are sent on.
func (r *Reassembler) Events() <-chan Event {
	return r.events
}

// HandleResponse implements spec §4.7 steps 1-5: flush-delete, insert,
// compute dirtied FDQNs, attempt reassembly for each, and return any
// questions still needed to complete a partially-assembled service.
func (r *Reassembler) HandleResponse(msg *wire.Message) []wire.Question {
	var cachable []wire.Record
	all := append(append([]wire.Record{}, msg.Answers...), msg.Additionals...)
	all = append(all, msg.Authorities...)
	for _, rec := range all {
		if rec.Type != protocol.RecordTypeOPT {
			cachable = append(cachable, rec)
		}
	}

	for _, rec := range cachable {
		if rec.Header.Flush {
			_ = r.cache.Delete(cache.Question{
				Name:  rec.Header.Name,
				Type:  rec.Type,
				Class: rec.Header.Class & protocol.DNSClass(protocol.ClassMask),
			})
		}
	}

	_ = r.cache.Set(cachable)

	dirty := make(map[string]bool)
	for _, rec := range cachable {
		for _, fdqn := range r.dirtiedBy(rec) {
			dirty[fdqn] = true
		}
	}

	var remaining []wire.Question
	for fdqn := range dirty {
		svc, missing := r.tryAssemble(fdqn)
		if svc != nil {
			r.mu.Lock()
			r.dispatched[fdqn] = *svc
			r.mu.Unlock()
			r.events <- Event{Kind: ServiceAppeared, FDQN: fdqn, Service: *svc}
		} else {
			remaining = append(remaining, missing...)
		}
	}

	return remaining
}

// OnExpired handles a single cache entry expiring: it re-runs the
// dirtied-FDQN logic for that record alone and dispatches
// SERVICE_REMOVED for any FDQN that had a previously-dispatched service.
func (r *Reassembler) OnExpired(e cache.Entry) {
	for _, fdqn := range r.dirtiedBy(e.Record) {
		r.mu.Lock()
		svc, ok := r.dispatched[fdqn]
		if ok {
			delete(r.dispatched, fdqn)
		}
		r.mu.Unlock()

		if ok {
			r.events <- Event{Kind: ServiceRemoved, FDQN: fdqn, Service: svc}
		}
	}
}

// dirtiedBy returns the FDQNs a single record implicates as changed.
func (r *Reassembler) dirtiedBy(rec wire.Record) []string {
	switch rec.Type {
	case protocol.RecordTypeSRV, protocol.RecordTypeTXT:
		return []string{rec.Header.Name}
	case protocol.RecordTypePTR:
		if strings.EqualFold(strings.TrimSuffix(rec.Header.Name, "."), protocol.MetaServiceName) {
			return nil
		}
		return []string{rec.PTR}
	case protocol.RecordTypeA, protocol.RecordTypeAAAA:
		var out []string
		for _, e := range r.cache.RelatedByHostname(rec.Header.Name) {
			if e.Record.Type == protocol.RecordTypeSRV {
				out = append(out, e.Record.Header.Name)
			}
		}
		return out
	default:
		return nil
	}
}

// tryAssemble attempts to build a complete Service for fdqn from the
// cache's current TXT, SRV, and host-address entries. It returns the
// assembled service, or nil plus the questions still needed to complete it.
func (r *Reassembler) tryAssemble(fdqn string) (*Service, []wire.Question) {
	var remaining []wire.Question

	txtEntries := r.cache.WhereGet([]cache.Question{{Name: fdqn, Type: protocol.RecordTypeTXT, Class: protocol.ClassANY}})
	srvEntries := r.cache.WhereGet([]cache.Question{{Name: fdqn, Type: protocol.RecordTypeSRV, Class: protocol.ClassANY}})

	if len(txtEntries) == 0 {
		remaining = append(remaining, wire.Question{Name: fdqn, QType: protocol.RecordTypeTXT, QClass: protocol.ClassIN})
	}
	if len(srvEntries) == 0 {
		remaining = append(remaining, wire.Question{Name: fdqn, QType: protocol.RecordTypeSRV, QClass: protocol.ClassIN})
	}
	if len(txtEntries) == 0 || len(srvEntries) == 0 {
		return nil, remaining
	}

	srv := srvEntries[0].Record.SRV

	addrEntries := r.cache.WhereGet([]cache.Question{{Name: srv.Target, Type: protocol.RecordTypeANY, Class: protocol.ClassANY}})
	var addrs []net.IP
	for _, e := range addrEntries {
		switch e.Record.Type {
		case protocol.RecordTypeA:
			addrs = append(addrs, net.IP(e.Record.A))
		case protocol.RecordTypeAAAA:
			addrs = append(addrs, net.IP(e.Record.AAAA))
		}
	}
	if len(addrs) == 0 {
		remaining = append(remaining, wire.Question{Name: srv.Target, QType: protocol.RecordTypeA, QClass: protocol.ClassIN})
		return nil, remaining
	}

	instance, svcType, proto, ok := parseFDQN(fdqn)
	if !ok {
		return nil, remaining
	}

	txt := make(map[string]string, len(txtEntries[0].Record.TXT))
	for _, p := range txtEntries[0].Record.TXT {
		if _, exists := txt[p.Key]; exists {
			continue // first-wins on duplicate TXT keys
		}
		txt[p.Key] = p.Value
	}

	return &Service{
		Name:      instance,
		Type:      svcType,
		Protocol:  proto,
		Hostname:  srv.Target,
		Port:      srv.Port,
		Addresses: addrs,
		TXT:       txt,
	}, nil
}

// parseFDQN splits "<instance>.<type>.<protocol>.local" into its parts,
// stripping the leading underscore from type and protocol labels.
func parseFDQN(fdqn string) (instance, svcType, proto string, ok bool) {
	parts := strings.Split(fdqn, ".")
	if len(parts) < 4 {
		return "", "", "", false
	}
	n := len(parts)
	proto = strings.TrimPrefix(parts[n-2], "_")
	svcType = strings.TrimPrefix(parts[n-3], "_")
	instance = strings.Join(parts[:n-3], ".")
	return instance, svcType, proto, true
}
