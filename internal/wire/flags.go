package wire

import "github.com/joshuafuller/beacon/internal/protocol"

// MessageType distinguishes a DNS query from a response (the QR bit).
type MessageType uint8

const (
	TypeQuery    MessageType = 0
	TypeResponse MessageType = 1
)

// Flags mirrors the 16-bit DNS header flags field, decomposed per
// RFC 1035 §4.1.1 bit layout: QR(1) OPCODE(4) AA(1) TC(1) RD(1) RA(1)
// Z(1) AD(1) CD(1) RCODE(4).
type Flags struct {
	Type               MessageType
	Opcode             uint8
	RCode              uint8
	AuthoritativeAns   bool
	Truncation         bool
	RecursionDesired   bool
	RecursionAvailable bool
	Zero               bool
	AuthenticData      bool
	CheckingDisabled   bool
}

// ResponseFlags builds the flag set an mDNS response always carries:
// QR=1, OPCODE=0, AA=1, all other bits zero.
func ResponseFlags() Flags {
	return Flags{Type: TypeResponse, AuthoritativeAns: true}
}

// QueryFlags builds the flag set an mDNS query always carries: all bits
// zero, including QR=0.
func QueryFlags() Flags {
	return Flags{Type: TypeQuery}
}

// Raw returns the 16-bit wire encoding of f, for callers that need to
// run protocol-level validation (e.g. RFC 6762 §18's QR/OPCODE/RCODE
// checks) against the same bits the header carries on the wire.
func (f Flags) Raw() uint16 {
	return f.encode()
}

func (f Flags) encode() uint16 {
	var v uint16

	if f.Type == TypeResponse {
		v |= protocol.FlagQR
	}
	v |= (uint16(f.Opcode) << 11) & protocol.OpcodeMask
	if f.AuthoritativeAns {
		v |= protocol.FlagAA
	}
	if f.Truncation {
		v |= protocol.FlagTC
	}
	if f.RecursionDesired {
		v |= protocol.FlagRD
	}
	if f.RecursionAvailable {
		v |= protocol.FlagRA
	}
	if f.Zero {
		v |= protocol.FlagZ
	}
	if f.AuthenticData {
		v |= protocol.FlagAD
	}
	if f.CheckingDisabled {
		v |= protocol.FlagCD
	}
	v |= uint16(f.RCode) & protocol.RCodeMask

	return v
}

func decodeFlags(v uint16) Flags {
	f := Flags{
		Opcode: uint8((v & protocol.OpcodeMask) >> 11),
		RCode:  uint8(v & protocol.RCodeMask),
	}

	if v&protocol.FlagQR != 0 {
		f.Type = TypeResponse
	} else {
		f.Type = TypeQuery
	}
	f.AuthoritativeAns = v&protocol.FlagAA != 0
	f.Truncation = v&protocol.FlagTC != 0
	f.RecursionDesired = v&protocol.FlagRD != 0
	f.RecursionAvailable = v&protocol.FlagRA != 0
	f.Zero = v&protocol.FlagZ != 0
	f.AuthenticData = v&protocol.FlagAD != 0
	f.CheckingDisabled = v&protocol.FlagCD != 0

	return f
}
