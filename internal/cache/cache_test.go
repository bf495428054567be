package cache

import (
	"testing"
	"time"

	"github.com/joshuafuller/beacon/internal/protocol"
	"github.com/joshuafuller/beacon/internal/wire"
)

func aRecord(name string, ip [4]byte, ttl uint32) wire.Record {
	return wire.Record{
		Header: wire.RecordHeader{Name: name, Class: protocol.ClassIN, TTL: ttl, Flush: true},
		Type:   protocol.RecordTypeA,
		A:      ip[:],
	}
}

func srvRecord(name, target string, port uint16, ttl uint32) wire.Record {
	return wire.Record{
		Header: wire.RecordHeader{Name: name, Class: protocol.ClassIN, TTL: ttl, Flush: true},
		Type:   protocol.RecordTypeSRV,
		SRV:    wire.SRVData{Target: target, Port: port},
	}
}

func TestSetUniqueness(t *testing.T) {
	c := New(0, nil)
	r := aRecord("host.local", [4]byte{10, 0, 0, 1}, 120)

	if err := c.Set([]wire.Record{r}); err != nil {
		t.Fatal(err)
	}
	if err := c.Set([]wire.Record{r}); err != nil {
		t.Fatal(err)
	}

	n, err := c.Count()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("count = %d, want 1", n)
	}
}

func TestOverflowEvictsOldest(t *testing.T) {
	c := New(2, nil)

	first := aRecord("a.local", [4]byte{1, 1, 1, 1}, 120)
	second := aRecord("b.local", [4]byte{2, 2, 2, 2}, 120)
	third := aRecord("c.local", [4]byte{3, 3, 3, 3}, 120)

	for _, r := range []wire.Record{first, second, third} {
		if err := c.Set([]wire.Record{r}); err != nil {
			t.Fatal(err)
		}
	}

	n, _ := c.Count()
	if n != 2 {
		t.Fatalf("count = %d, want 2", n)
	}

	if c.Has(Question{Name: "a.local", Type: protocol.RecordTypeA, Class: protocol.ClassIN}) {
		t.Fatal("expected oldest entry to have been evicted")
	}
	if !c.Has(Question{Name: "c.local", Type: protocol.RecordTypeA, Class: protocol.ClassIN}) {
		t.Fatal("expected newest entry to remain")
	}
}

func TestAnyQueriesReturnEverySharingName(t *testing.T) {
	c := New(0, nil)
	name := "multi.local"

	if err := c.Set([]wire.Record{
		aRecord(name, [4]byte{1, 2, 3, 4}, 120),
		srvRecord(name, "target.local", 8080, 120),
	}); err != nil {
		t.Fatal(err)
	}

	got := c.WhereGet([]Question{{Name: name, Type: protocol.RecordTypeANY, Class: protocol.ClassANY}})
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
}

func TestExpiry(t *testing.T) {
	c := New(0, nil)
	r := aRecord("short.local", [4]byte{9, 9, 9, 9}, 1)

	if err := c.Set([]wire.Record{r}); err != nil {
		t.Fatal(err)
	}

	time.Sleep(1100 * time.Millisecond)

	got := c.WhereGet([]Question{{Name: "short.local", Type: protocol.RecordTypeA, Class: protocol.ClassIN}})
	if len(got) != 0 {
		t.Fatalf("expected entry to have expired, got %d", len(got))
	}
}

func TestExpiryFiresCallback(t *testing.T) {
	fired := make(chan Entry, 1)
	c := New(0, func(e Entry) { fired <- e })

	r := aRecord("cb.local", [4]byte{1, 1, 1, 1}, 1)
	if err := c.Set([]wire.Record{r}); err != nil {
		t.Fatal(err)
	}

	select {
	case e := <-fired:
		if e.Record.Header.Name != "cb.local" {
			t.Fatalf("unexpected entry: %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expired callback did not fire")
	}
}

func TestRelatedByHostname(t *testing.T) {
	c := New(0, nil)

	srv := srvRecord("x.local", "host.local", 1234, 120)
	a := aRecord("host.local", [4]byte{10, 0, 0, 1}, 120)

	if err := c.Set([]wire.Record{srv, a}); err != nil {
		t.Fatal(err)
	}

	related := c.RelatedByHostname("host.local")
	if len(related) != 2 {
		t.Fatalf("got %d related entries, want 2", len(related))
	}

	// Remove the SRV by deleting its (name,type,class) scope, as a
	// flush-bit arrival does before its records are inserted.
	if err := c.Delete(Question{Name: "x.local", Type: protocol.RecordTypeSRV, Class: protocol.ClassIN}); err != nil {
		t.Fatal(err)
	}

	related = c.RelatedByHostname("host.local")
	if len(related) != 1 || related[0].Record.Type != protocol.RecordTypeA {
		t.Fatalf("expected only the A record to remain, got %+v", related)
	}
}

func TestDestroyedCacheRejectsOperations(t *testing.T) {
	c := New(0, nil)
	c.Destroy()

	if err := c.Set([]wire.Record{aRecord("x.local", [4]byte{1, 1, 1, 1}, 120)}); err == nil {
		t.Fatal("expected CACHE_DESTROYED error")
	}
}
