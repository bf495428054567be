package localstore

import (
	"net"
	"testing"

	"github.com/joshuafuller/beacon/internal/protocol"
)

func TestRecordsIncludesMetaAndServicePTRAndSRVTXT(t *testing.T) {
	reg := NewRegistry()
	store := New("myhost.local", reg)

	if err := store.Register(&Service{
		InstanceName: "My Printer",
		ServiceType:  "_http._tcp.local",
		Port:         8080,
		TXT:          map[string]string{"path": "/"},
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	recs := store.Records()

	var sawMetaPTR, sawServicePTR, sawSRV, sawTXT bool
	fdqn := "My Printer._http._tcp.local"
	for _, r := range recs {
		switch {
		case r.Type == protocol.RecordTypePTR && r.Header.Name == MetaPTRName && r.PTR == "_http._tcp.local":
			sawMetaPTR = true
		case r.Type == protocol.RecordTypePTR && r.Header.Name == "_http._tcp.local" && r.PTR == fdqn:
			sawServicePTR = true
			if r.Header.Flush {
				t.Error("PTR records must not carry the cache-flush bit")
			}
		case r.Type == protocol.RecordTypeSRV && r.Header.Name == fdqn:
			sawSRV = true
			if r.SRV.Port != 8080 || r.SRV.Target != "myhost.local" {
				t.Errorf("unexpected SRV data: %+v", r.SRV)
			}
			if !r.Header.Flush {
				t.Error("SRV must carry the cache-flush bit")
			}
		case r.Type == protocol.RecordTypeTXT && r.Header.Name == fdqn:
			sawTXT = true
		}
	}

	if !sawMetaPTR || !sawServicePTR || !sawSRV || !sawTXT {
		t.Fatalf("missing expected records: meta=%v service=%v srv=%v txt=%v", sawMetaPTR, sawServicePTR, sawSRV, sawTXT)
	}
}

func TestRecordsIncludesHostAddresses(t *testing.T) {
	reg := NewRegistry()
	store := New("myhost.local", reg)
	store.SetAddresses([]net.IP{net.ParseIP("10.0.0.5"), net.ParseIP("fe80::1")})

	var sawA, sawAAAA bool
	for _, r := range store.Records() {
		if r.Type == protocol.RecordTypeA && r.Header.Name == "myhost.local" {
			sawA = true
			if !r.Header.Flush || r.Header.TTL != protocol.TTLHostRecord {
				t.Errorf("unexpected A record header: %+v", r.Header)
			}
		}
		if r.Type == protocol.RecordTypeAAAA && r.Header.Name == "myhost.local" {
			sawAAAA = true
		}
	}
	if !sawA || !sawAAAA {
		t.Fatalf("expected both A and AAAA records, got A=%v AAAA=%v", sawA, sawAAAA)
	}
}

func TestUnregisterMarksDirtyAndRemovesRecords(t *testing.T) {
	reg := NewRegistry()
	store := New("myhost.local", reg)
	_ = store.Register(&Service{InstanceName: "Svc", ServiceType: "_http._tcp.local", Port: 80})

	fdqn := "Svc._http._tcp.local"
	if !store.Unregister(fdqn) {
		t.Fatal("expected Unregister to report removal")
	}

	for _, r := range store.Records() {
		if r.Header.Name == fdqn {
			t.Fatalf("expected no records for unregistered service, found %+v", r)
		}
	}
}

func TestValidateRejectsBadServiceType(t *testing.T) {
	s := &Service{InstanceName: "x", ServiceType: "not-valid", Port: 1}
	if err := s.Validate(); err == nil {
		t.Fatal("expected validation error for malformed service type")
	}
}
