package reassemble

import (
	"testing"
	"time"

	"github.com/joshuafuller/beacon/internal/cache"
	"github.com/joshuafuller/beacon/internal/protocol"
	"github.com/joshuafuller/beacon/internal/wire"
)

func newTestPair() (*Reassembler, *cache.Cache) {
	var r *Reassembler
	c := cache.New(100, func(e cache.Entry) { r.OnExpired(e) })
	r = New(c)
	return r, c
}

func TestHandleResponseAssemblesCompleteService(t *testing.T) {
	r, _ := newTestPair()

	fdqn := "My Printer._http._tcp.local"
	resp := &wire.Message{
		Answers: []wire.Record{
			{Type: protocol.RecordTypeSRV, Header: wire.RecordHeader{Name: fdqn, Class: protocol.ClassIN, Flush: true}, SRV: wire.SRVData{Port: 8080, Target: "host.local"}},
			{Type: protocol.RecordTypeTXT, Header: wire.RecordHeader{Name: fdqn, Class: protocol.ClassIN, Flush: true}, TXT: []wire.TXTPair{{Key: "path", Value: "/", HasValue: true}}},
			{Type: protocol.RecordTypeA, Header: wire.RecordHeader{Name: "host.local", Class: protocol.ClassIN, Flush: true}, A: []byte{10, 0, 0, 1}},
		},
	}

	remaining := r.HandleResponse(resp)
	if len(remaining) != 0 {
		t.Fatalf("expected no remaining questions, got %+v", remaining)
	}

	select {
	case ev := <-r.Events():
		if ev.Kind != ServiceAppeared || ev.FDQN != fdqn {
			t.Fatalf("unexpected event: %+v", ev)
		}
		if ev.Service.Hostname != "host.local" || ev.Service.Port != 8080 {
			t.Fatalf("unexpected assembled service: %+v", ev.Service)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a SERVICE_APPEARED event")
	}
}

func TestHandleResponsePartialServiceAsksFollowupQuestions(t *testing.T) {
	r, _ := newTestPair()

	fdqn := "My Printer._http._tcp.local"
	resp := &wire.Message{
		Answers: []wire.Record{
			{Type: protocol.RecordTypeSRV, Header: wire.RecordHeader{Name: fdqn, Class: protocol.ClassIN, Flush: true}, SRV: wire.SRVData{Port: 8080, Target: "host.local"}},
		},
	}

	remaining := r.HandleResponse(resp)
	if len(remaining) == 0 {
		t.Fatal("expected follow-up questions for missing TXT/address")
	}
}

func TestExpiryDispatchesServiceRemoved(t *testing.T) {
	r, c := newTestPair()

	fdqn := "My Printer._http._tcp.local"
	resp := &wire.Message{
		Answers: []wire.Record{
			{Type: protocol.RecordTypeSRV, Header: wire.RecordHeader{Name: fdqn, Class: protocol.ClassIN, Flush: true, TTL: 1}, SRV: wire.SRVData{Port: 8080, Target: "host.local"}},
			{Type: protocol.RecordTypeTXT, Header: wire.RecordHeader{Name: fdqn, Class: protocol.ClassIN, Flush: true, TTL: 1}, TXT: []wire.TXTPair{{Key: "path", Value: "/", HasValue: true}}},
			{Type: protocol.RecordTypeA, Header: wire.RecordHeader{Name: "host.local", Class: protocol.ClassIN, Flush: true, TTL: 1}, A: []byte{10, 0, 0, 1}},
		},
	}
	r.HandleResponse(resp)
	<-r.Events() // drain SERVICE_APPEARED

	_ = c.Delete(cache.Question{Name: fdqn, Type: protocol.RecordTypeSRV, Class: protocol.ClassIN})
	r.OnExpired(cache.Entry{Record: resp.Answers[0]})

	select {
	case ev := <-r.Events():
		if ev.Kind != ServiceRemoved || ev.FDQN != fdqn {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a SERVICE_REMOVED event")
	}
}
