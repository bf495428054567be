// Package protocol implements mDNS protocol validation and constants.
package protocol

import (
	"fmt"
	"strings"

	"github.com/joshuafuller/beacon/internal/errors"
)

// ValidateName checks a DNS name against RFC 1035 §3.1: total length
// at most 255 wire bytes, each label at most 63 bytes, non-empty
// labels, no leading/trailing hyphen, and characters restricted to
// [a-zA-Z0-9-_] (the underscore is an mDNS/DNS-SD extension for
// service-type labels like "_http").
func ValidateName(name string) error {
	if name == "" {
		return &errors.ValidationError{
			Field:   "name",
			Value:   name,
			Message: "name cannot be empty",
		}
	}

	name = strings.TrimSuffix(name, ".")
	labels := strings.Split(name, ".")

	// Wire format: each label costs 1 length-prefix byte plus its
	// content, with a 1-byte root terminator.
	wireLength := 1
	for _, label := range labels {
		wireLength += 1 + len(label)
	}

	if wireLength > MaxNameLength {
		return &errors.ValidationError{
			Field:   "name",
			Value:   name,
			Message: fmt.Sprintf("name exceeds maximum length %d bytes (wire format: %d bytes)", MaxNameLength, wireLength),
		}
	}
	for i, label := range labels {
		if err := validateLabel(label, i); err != nil {
			return &errors.ValidationError{
				Field:   "name",
				Value:   name,
				Message: err.Error(),
			}
		}
	}

	return nil
}

func validateLabel(label string, position int) error {
	if label == "" {
		return fmt.Errorf("empty label at position %d (consecutive dots)", position)
	}
	if len(label) > MaxLabelLength {
		return fmt.Errorf("label %q exceeds maximum length %d bytes", label, MaxLabelLength)
	}
	if strings.HasPrefix(label, "-") {
		return fmt.Errorf("label %q starts with a hyphen", label)
	}
	if strings.HasSuffix(label, "-") {
		return fmt.Errorf("label %q ends with a hyphen", label)
	}
	for i, ch := range label {
		if !isValidDNSChar(ch) {
			return fmt.Errorf("invalid character %q in label %q (position %d)", ch, label, i)
		}
	}
	return nil
}

// isValidDNSChar reports whether ch is legal in a DNS label: letters,
// digits, hyphen, and the mDNS/DNS-SD underscore extension.
func isValidDNSChar(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') ||
		(ch >= 'A' && ch <= 'Z') ||
		(ch >= '0' && ch <= '9') ||
		ch == '-' ||
		ch == '_'
}

// ValidateRecordType rejects a QTYPE this node has no decoder for.
// RecordType.IsSupported reflects every type wire.Record can carry
// (A, AAAA, CNAME, PTR, TXT, SRV, OPT, NSEC) plus the ANY wildcard.
func ValidateRecordType(recordType uint16) error {
	if !RecordType(recordType).IsSupported() {
		return &errors.ValidationError{
			Field:   "recordType",
			Value:   recordType,
			Message: fmt.Sprintf("unsupported record type %d", recordType),
		}
	}
	return nil
}

// ValidateResponse checks a decoded header's flags against RFC 6762
// §18's requirements for an inbound response: QR=1 (§18.2), OPCODE=0
// (§18.3), and RCODE=0. Any violation, a non-zero RCODE included, yields
// a ValidationError; the caller drops such a message (§18.11).
func ValidateResponse(flags uint16) error {
	qr := (flags & FlagQR) >> 15
	if qr != 1 {
		return &errors.ValidationError{
			Field:   "flags",
			Value:   flags,
			Message: fmt.Sprintf("QR bit is %d, expected 1 (flags: 0x%04X)", qr, flags),
		}
	}

	opcode := (flags >> 11) & 0x0F
	if opcode != OpcodeQuery {
		return &errors.ValidationError{
			Field:   "flags",
			Value:   flags,
			Message: fmt.Sprintf("OPCODE is %d, expected %d (flags: 0x%04X)", opcode, OpcodeQuery, flags),
		}
	}

	rcode := flags & 0x000F
	if rcode != RCodeNoError {
		return &errors.ValidationError{
			Field:   "flags",
			Value:   flags,
			Message: fmt.Sprintf("RCODE is %d, expected %d (flags: 0x%04X)", rcode, RCodeNoError, flags),
		}
	}

	return nil
}
