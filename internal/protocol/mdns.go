// Package protocol defines mDNS protocol constants and validation logic
// per RFC 6762 (Multicast DNS).
package protocol

import (
	"net"
	"time"
)

// mDNS Protocol Constants per RFC 6762
const (
	// Port is the mDNS port number (5353) per RFC 6762 §5.
	Port = 5353

	// MulticastAddrIPv4 is the mDNS IPv4 multicast address (224.0.0.251) per RFC 6762 §5.
	MulticastAddrIPv4 = "224.0.0.251"

	// MulticastAddrIPv6 is the mDNS IPv6 multicast address (ff02::fb) per RFC 6762 §5.
	MulticastAddrIPv6 = "ff02::fb"
)

// MulticastGroupIPv4 returns the mDNS IPv4 multicast group address.
func MulticastGroupIPv4() *net.UDPAddr {
	return &net.UDPAddr{
		IP:   net.ParseIP(MulticastAddrIPv4), // nosemgrep: beacon-hardcoded-multicast-address
		Port: Port,
	}
}

// RecordType represents a DNS record type per RFC 1035 §3.2.2.
type RecordType uint16

// Record types this node can decode and, except where noted, generate.
const (
	// RecordTypeA represents an A (IPv4 address) record per RFC 1035 §3.4.1.
	RecordTypeA RecordType = 1

	// RecordTypePTR represents a PTR (pointer/domain name) record per RFC 1035 §3.3.12.
	//
	// Used for service instance enumeration in DNS-SD.
	RecordTypePTR RecordType = 12

	// RecordTypeTXT represents a TXT (text strings) record per RFC 1035 §3.3.14.
	//
	// Used for service metadata in DNS-SD.
	RecordTypeTXT RecordType = 16

	// RecordTypeSRV represents an SRV (service location) record per RFC 2782.
	//
	// Used for service host/port information in DNS-SD.
	RecordTypeSRV RecordType = 33

	// RecordTypeANY represents a query for all record types per RFC 1035 §3.2.3.
	RecordTypeANY RecordType = 255

	// RecordTypeCNAME represents a canonical name record per RFC 1035 §3.3.1.
	RecordTypeCNAME RecordType = 5

	// RecordTypeAAAA represents an IPv6 address record per RFC 3596.
	RecordTypeAAAA RecordType = 28

	// RecordTypeOPT represents an EDNS0 pseudo-record per RFC 6891.
	RecordTypeOPT RecordType = 41

	// RecordTypeNSEC represents a DNSSEC next-secure record per RFC 4034.
	// Parsing only: the node never generates NSEC records (DNSSEC is a
	// non-goal).
	RecordTypeNSEC RecordType = 47
)

// String returns the human-readable name for a RecordType.
func (rt RecordType) String() string {
	switch rt {
	case RecordTypeA:
		return "A"
	case RecordTypePTR:
		return "PTR"
	case RecordTypeTXT:
		return "TXT"
	case RecordTypeSRV:
		return "SRV"
	case RecordTypeANY:
		return "ANY"
	case RecordTypeCNAME:
		return "CNAME"
	case RecordTypeAAAA:
		return "AAAA"
	case RecordTypeOPT:
		return "OPT"
	case RecordTypeNSEC:
		return "NSEC"
	default:
		return "UNKNOWN"
	}
}

// IsSupported reports whether rt is one this node's wire codec
// understands: every RecordType constant above, plus the ANY
// wildcard.
func (rt RecordType) IsSupported() bool {
	switch rt {
	case RecordTypeA, RecordTypePTR, RecordTypeTXT, RecordTypeSRV, RecordTypeANY,
		RecordTypeCNAME, RecordTypeAAAA, RecordTypeOPT, RecordTypeNSEC:
		return true
	default:
		return false
	}
}

// DNSClass represents a DNS class per RFC 1035 §3.2.4.
type DNSClass uint16

const (
	// ClassIN is the Internet (IN) class per RFC 1035 §3.2.4.
	ClassIN DNSClass = 1

	// ClassANY matches any class in a question (RFC 1035 §3.2.5).
	ClassANY DNSClass = 255

	// ClassMask strips the cache-flush/QU top bit from a wire class field.
	ClassMask uint16 = 0x7FFF

	// CacheFlushBit is the top bit of a resource record's class field
	// (RFC 6762 §10.2): set to indicate this is the entire, authoritative
	// set of records replacing any previously received for this name/type/class.
	CacheFlushBit uint16 = 1 << 15

	// QUBit is the top bit of a question's class field (RFC 6762 §5.4):
	// set to request a unicast reply.
	QUBit uint16 = 1 << 15
)

// DNS Header Flags per RFC 1035 §4.1.1 and RFC 6762 §18
const (
	// FlagQR is the Query/Response bit (bit 15).
	//
	// RFC 6762 §18.2: query messages carry QR=0, response messages QR=1.
	FlagQR uint16 = 1 << 15 // 0x8000

	// FlagAA is the Authoritative Answer bit (bit 10).
	//
	// RFC 6762 §18.4: query messages MUST carry AA=0 on transmission.
	FlagAA uint16 = 1 << 10 // 0x0400

	// FlagTC is the Truncated bit (bit 9).
	//
	// RFC 6762 §18.5: set on a query to indicate more Known-Answer
	// records are following; this node does not implement Known-Answer
	// suppression, so it always transmits TC=0.
	FlagTC uint16 = 1 << 9 // 0x0200

	// FlagRD is the Recursion Desired bit (bit 8).
	//
	// RFC 6762 §18.6 only recommends RD=0; this node enforces it.
	FlagRD uint16 = 1 << 8 // 0x0100

	// FlagRA is the Recursion Available bit (bit 7).
	FlagRA uint16 = 1 << 7 // 0x0080

	// FlagZ is the reserved zero bit (bit 6).
	FlagZ uint16 = 1 << 6 // 0x0040

	// FlagAD is the Authentic Data bit (bit 5, RFC 4035 §3.1.6).
	FlagAD uint16 = 1 << 5 // 0x0020

	// FlagCD is the Checking Disabled bit (bit 4, RFC 4035 §3.1.7).
	FlagCD uint16 = 1 << 4 // 0x0010

	// OpcodeMask isolates the 4-bit OPCODE field (bits 11-14).
	OpcodeMask uint16 = 0x7800

	// RCodeMask isolates the 4-bit RCODE field (bits 0-3).
	RCodeMask uint16 = 0x000F
)

// OPCODE values per RFC 1035 §4.1.1
const (
	// OpcodeQuery is the standard query OPCODE (0); RFC 6762 §18.3
	// requires OPCODE=0 on every mDNS message, query or response.
	OpcodeQuery uint16 = 0
)

// RCODE values per RFC 1035 §4.1.1
const (
	// RCodeNoError is the no error RCODE (0); RFC 6762 §18.11 requires
	// a receiver to silently ignore any message with a non-zero RCODE.
	RCodeNoError uint16 = 0
)

// DNS Name Constraints per RFC 1035 §3.1
const (
	// MaxLabelLength is the maximum length of a DNS label (63 bytes).
	MaxLabelLength = 63

	// MaxNameLength is the maximum wire-format length of a DNS name (255 bytes).
	MaxNameLength = 255

	// MaxCompressionPointers bounds the number of compression-pointer
	// jumps followed while decompressing a name, guarding against a
	// malformed packet with a circular pointer chain (RFC 1035 §4.1.4).
	MaxCompressionPointers = 256
)

// Compression pointer mask per RFC 1035 §4.1.4
const (
	// CompressionMask identifies a compression pointer: the high two
	// bits of the length-prefix byte are both set (0xC0), with the
	// remaining 14 bits (across both bytes) giving the offset.
	CompressionMask byte = 0xC0
)

// Timing constants per RFC 6762 §8
const (
	// AnnounceInterval is the gap between the two unsolicited announcements
	// sent on registration (RFC 6762 §8.3).
	AnnounceInterval = 1 * time.Second
)

// TTL values per RFC 6762 §10, keyed by whether the record's own name is a
// hostname (A/AAAA) or not (PTR/SRV/TXT).
const (
	// TTLHostRecord is the TTL for records whose name is a hostname
	// (A, AAAA): 120 seconds.
	TTLHostRecord uint32 = 120

	// TTLOtherRecord is the TTL for all other records (PTR, SRV, TXT):
	// 4500 seconds (75 minutes).
	TTLOtherRecord uint32 = 4500

	// GoodbyeTTL is the TTL carried on a goodbye record.
	GoodbyeTTL uint32 = 0

	// MinEffectiveTTLSeconds is the 1-second floor applied when scheduling
	// expiration, even for ttl=0 goodbyes (RFC 6762 §10.1).
	MinEffectiveTTLSeconds = 1
)

// Engine-wide defaults.
const (
	// DefaultCacheMax is the default maximum number of cache entries.
	DefaultCacheMax = 5000

	// DefaultQueryMinDelay is the first retransmission delay for a
	// scheduled query.
	DefaultQueryMinDelay = 1 * time.Second

	// DefaultQueryMaxDelay is the retransmission delay ceiling for a
	// scheduled query.
	DefaultQueryMaxDelay = 3600 * time.Second

	// MaxUDPPayload bounds a single mDNS datagram buffer.
	MaxUDPPayload = 9000

	// MetaServiceName is the DNS-SD service-enumeration meta-query name
	// (RFC 6763 §9), normalized with no trailing dot.
	MetaServiceName = "_services._dns-sd._udp.local"
)
