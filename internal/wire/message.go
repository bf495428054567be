// Package wire implements bit-exact encoding and decoding of mDNS/DNS
// packets: the 12-byte header, questions, and resource records, with
// name compression on both the parse and generate paths.
package wire

import "github.com/joshuafuller/beacon/internal/protocol"

// Message is a full DNS/mDNS packet.
type Message struct {
	Flags       Flags
	Questions   []Question
	Answers     []Record
	Authorities []Record
	Additionals []Record
	ID          uint16
}

// Question is a single entry in the question section.
type Question struct {
	Name     string
	QType    protocol.RecordType
	QClass   protocol.DNSClass
	Unicast  bool // QU bit: unicast reply requested
}

// RecordHeader is the portion common to every resource record variant.
type RecordHeader struct {
	Name  string
	Class protocol.DNSClass
	TTL   uint32
	Flush bool
}

// Record is a tagged union over the RDATA formats this node understands.
// Exactly one of the typed fields is populated, selected by Type.
type Record struct {
	Header RecordHeader
	Type   protocol.RecordType

	A     []byte // 4 bytes
	AAAA  []byte // 16 bytes
	CNAME string
	PTR   string
	TXT   []TXTPair
	SRV   SRVData
	OPT   OPTData
	NSEC  NSECData

	// Raw holds the original rdata bytes for record types this node
	// does not decode into a typed variant above (forwarded as-is).
	Raw []byte
}

// Name returns the record's owner name, a convenience over Header.Name.
func (r Record) Name() string { return r.Header.Name }

// TXTPair is one DNS-SD attribute string, already split on its first '='.
// Key-only strings (no '=') decode with Value == "" and HasValue == false.
type TXTPair struct {
	Key      string
	Value    string
	HasValue bool
}

// SRVData is the RDATA of an SRV record (RFC 2782).
type SRVData struct {
	Target   string
	Priority uint16
	Weight   uint16
	Port     uint16
}

// OPTData is the RDATA of an EDNS0 OPT pseudo-record (RFC 6891). class
// carries the requestor's UDP payload size and ttl carries
// extended-rcode/version/flags, per spec.md §4.1; those live in
// RecordHeader.Class and RecordHeader.TTL rather than here.
type OPTData struct {
	Options []byte
}

// NSECData is the RDATA of an NSEC record (RFC 4034), parsed only; this
// node never generates NSEC records.
type NSECData struct {
	NextName    string
	TypeBitmaps []byte
}
