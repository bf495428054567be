package wire

import (
	"reflect"
	"testing"

	"github.com/joshuafuller/beacon/internal/protocol"
)

func TestFlagsRoundTrip(t *testing.T) {
	cases := []Flags{
		QueryFlags(),
		ResponseFlags(),
		{Type: TypeResponse, AuthoritativeAns: true, Truncation: true, RecursionDesired: true, RecursionAvailable: true, AuthenticData: true, CheckingDisabled: true, RCode: 0},
		{Type: TypeQuery, Opcode: 0},
	}

	for _, f := range cases {
		got := decodeFlags(f.encode())
		if got != f {
			t.Fatalf("flags round-trip mismatch: got %+v, want %+v", got, f)
		}
	}
}

func TestNameRoundTripUncompressed(t *testing.T) {
	names := []string{"host.local", "_http._tcp.local", "a.b.c.d.local", ""}

	for _, n := range names {
		enc, err := encodeName(n)
		if err != nil {
			t.Fatalf("encodeName(%q): %v", n, err)
		}
		got, consumed, err := parseName(enc, 0)
		if err != nil {
			t.Fatalf("parseName(%q): %v", n, err)
		}
		if consumed != len(enc) {
			t.Fatalf("consumed %d, want %d", consumed, len(enc))
		}
		want := n
		if got != want {
			t.Fatalf("round trip mismatch: got %q, want %q", got, want)
		}
	}
}

func TestNameCompressionOnGenerate(t *testing.T) {
	msg := &Message{
		Flags: ResponseFlags(),
		Answers: []Record{
			{Header: wireHeader("one.service._tcp.local"), Type: protocol.RecordTypePTR, PTR: "one.service._tcp.local"},
			{Header: wireHeader("two.service._tcp.local"), Type: protocol.RecordTypePTR, PTR: "two.service._tcp.local"},
		},
	}

	buf, err := Generate(msg)
	if err != nil {
		t.Fatal(err)
	}

	// The second record's owner name shares the "service._tcp.local"
	// suffix with the first; compression should make the packet shorter
	// than the header plus both records written out in full (an encoded
	// name is its dotted length plus 2 bytes).
	nameLen := len("one.service._tcp.local") + 2
	uncompressedLen := headerLength + 2*(nameLen+10+nameLen)
	if len(buf) >= uncompressedLen {
		t.Fatalf("expected compression to shrink packet: got %d bytes", len(buf))
	}

	parsed, err := ParseMessage(buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(parsed.Answers) != 2 {
		t.Fatalf("got %d answers, want 2", len(parsed.Answers))
	}
	if parsed.Answers[0].Header.Name != "one.service._tcp.local" {
		t.Fatalf("answer[0] name = %q", parsed.Answers[0].Header.Name)
	}
	if parsed.Answers[1].Header.Name != "two.service._tcp.local" {
		t.Fatalf("answer[1] name = %q", parsed.Answers[1].Header.Name)
	}
}

func wireHeader(name string) RecordHeader {
	return RecordHeader{Name: name, Class: protocol.ClassIN, TTL: 120, Flush: false}
}

func TestPointerCycleDetected(t *testing.T) {
	// Two pointers referencing each other: offset 12 points to 14, offset
	// 14 points to 12 (after the header-sized prefix emulated here by
	// just using raw buffer offsets).
	buf := make([]byte, 16)
	buf[12] = 0xC0
	buf[13] = 14
	buf[14] = 0xC0
	buf[15] = 12

	_, _, err := parseName(buf, 12)
	if err == nil {
		t.Fatal("expected POINTER_CYCLE error")
	}
}

func TestMessageRoundTrip(t *testing.T) {
	msg := &Message{
		ID:    0,
		Flags: ResponseFlags(),
		Answers: []Record{
			{Header: wireHeader("host.local"), Type: protocol.RecordTypeA, A: []byte{10, 0, 0, 5}},
			{Header: wireHeader("host.local"), Type: protocol.RecordTypeAAAA, AAAA: []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}},
			{Header: wireHeader("_http._tcp.local"), Type: protocol.RecordTypePTR, PTR: "inst._http._tcp.local"},
			{Header: wireHeader("alias.local"), Type: protocol.RecordTypeCNAME, CNAME: "host.local"},
			{Header: wireHeader("inst._http._tcp.local"), Type: protocol.RecordTypeSRV, SRV: SRVData{Priority: 0, Weight: 0, Port: 8080, Target: "host.local"}},
			{Header: wireHeader("inst._http._tcp.local"), Type: protocol.RecordTypeTXT, TXT: []TXTPair{{Key: "path", Value: "/", HasValue: true}, {Key: "flag"}}},
		},
	}

	buf, err := Generate(msg)
	if err != nil {
		t.Fatal(err)
	}

	got, err := ParseMessage(buf)
	if err != nil {
		t.Fatal(err)
	}

	if len(got.Answers) != len(msg.Answers) {
		t.Fatalf("got %d answers, want %d", len(got.Answers), len(msg.Answers))
	}
	for i, want := range msg.Answers {
		gotRR := got.Answers[i]
		if gotRR.Header.Name != want.Header.Name || gotRR.Type != want.Type {
			t.Fatalf("answer[%d] mismatch: got %+v, want %+v", i, gotRR, want)
		}
		switch want.Type {
		case protocol.RecordTypeA:
			if !reflect.DeepEqual(gotRR.A, want.A) {
				t.Fatalf("A mismatch: %v vs %v", gotRR.A, want.A)
			}
		case protocol.RecordTypeSRV:
			if gotRR.SRV != want.SRV {
				t.Fatalf("SRV mismatch: %+v vs %+v", gotRR.SRV, want.SRV)
			}
		case protocol.RecordTypeTXT:
			if !reflect.DeepEqual(gotRR.TXT, want.TXT) {
				t.Fatalf("TXT mismatch: %+v vs %+v", gotRR.TXT, want.TXT)
			}
		}
	}
}

func TestTXTEmptyMappingEncodesAsSingleZeroString(t *testing.T) {
	rr := Record{Header: wireHeader("inst._http._tcp.local"), Type: protocol.RecordTypeTXT}
	buf, err := generateRDATA(rr)
	if err != nil {
		t.Fatal(err)
	}
	if len(buf) != 1 || buf[0] != 0 {
		t.Fatalf("expected single zero byte, got %v", buf)
	}
}

func TestBuildQueryAndResponse(t *testing.T) {
	q, err := BuildQuery("_http._tcp.local", protocol.RecordTypePTR)
	if err != nil {
		t.Fatal(err)
	}
	parsedQ, err := ParseMessage(q)
	if err != nil {
		t.Fatal(err)
	}
	if parsedQ.Flags.Type != TypeQuery {
		t.Fatalf("expected query flags, got %+v", parsedQ.Flags)
	}
	if len(parsedQ.Questions) != 1 || parsedQ.Questions[0].Name != "_http._tcp.local" {
		t.Fatalf("unexpected questions: %+v", parsedQ.Questions)
	}

	resp, err := BuildResponse([]Record{
		{Header: wireHeader("host.local"), Type: protocol.RecordTypeA, A: []byte{1, 2, 3, 4}},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	parsedR, err := ParseMessage(resp)
	if err != nil {
		t.Fatal(err)
	}
	if parsedR.Flags.Type != TypeResponse || !parsedR.Flags.AuthoritativeAns {
		t.Fatalf("expected authoritative response flags, got %+v", parsedR.Flags)
	}
	if len(parsedR.Answers) != 1 {
		t.Fatalf("got %d answers, want 1", len(parsedR.Answers))
	}
}
