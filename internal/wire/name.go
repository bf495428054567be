package wire

import (
	"strings"

	"github.com/joshuafuller/beacon/internal/errors"
	"github.com/joshuafuller/beacon/internal/protocol"
)

// parseName decodes a length-prefixed, possibly-compressed domain name
// starting at offset within msg. It returns the expanded dotted name and
// the offset of the first byte after the name as it appears in the
// packet (pointer jumps do not advance this value past the two bytes of
// the pointer itself).
//
// RFC 1035 §4.1.4: a compression pointer is two bytes whose top two bits
// are set; the low 14 bits are an absolute offset from the start of the
// message. A pointer must reference strictly earlier material so that
// chains of pointers terminate; MaxCompressionPointers bounds the number
// of jumps as a second, independent defense.
func parseName(msg []byte, offset int) (string, int, error) {
	var labels []string
	pos := offset
	consumedEnd := -1 // offset just past the name as seen by the caller
	jumps := 0
	lastPointerTarget := offset

	for {
		if pos >= len(msg) {
			return "", 0, &errors.WireFormatError{
				Operation: "parseName",
				Offset:    pos,
				Message:   string(errors.ParseTruncated),
			}
		}

		lengthByte := msg[pos]

		if lengthByte == 0 {
			pos++
			if consumedEnd == -1 {
				consumedEnd = pos
			}
			break
		}

		if lengthByte&protocol.CompressionMask == protocol.CompressionMask {
			if pos+1 >= len(msg) {
				return "", 0, &errors.WireFormatError{
					Operation: "parseName",
					Offset:    pos,
					Message:   string(errors.ParseTruncated),
				}
			}

			pointerOffset := int(lengthByte&^protocol.CompressionMask)<<8 | int(msg[pos+1])

			if consumedEnd == -1 {
				consumedEnd = pos + 2
			}

			jumps++
			if jumps > protocol.MaxCompressionPointers {
				return "", 0, &errors.WireFormatError{
					Operation: "parseName",
					Offset:    pos,
					Message:   string(errors.ParsePointerCycle),
				}
			}

			if pointerOffset >= lastPointerTarget {
				return "", 0, &errors.WireFormatError{
					Operation: "parseName",
					Offset:    pos,
					Message:   string(errors.ParsePointerCycle),
				}
			}

			lastPointerTarget = pointerOffset
			pos = pointerOffset
			continue
		}

		if lengthByte&protocol.CompressionMask != 0 {
			// Reserved top-two-bit combinations (01, 10) are invalid.
			return "", 0, &errors.WireFormatError{
				Operation: "parseName",
				Offset:    pos,
				Message:   string(errors.ParseBadPointer),
			}
		}

		labelLen := int(lengthByte)
		if labelLen > protocol.MaxLabelLength {
			return "", 0, &errors.WireFormatError{
				Operation: "parseName",
				Offset:    pos,
				Message:   string(errors.ParseLabelTooLong),
			}
		}

		pos++
		if pos+labelLen > len(msg) {
			return "", 0, &errors.WireFormatError{
				Operation: "parseName",
				Offset:    pos,
				Message:   string(errors.ParseTruncated),
			}
		}

		labels = append(labels, string(msg[pos:pos+labelLen]))
		pos += labelLen
	}

	name := strings.Join(labels, ".")

	wireLen := 1
	for _, l := range labels {
		wireLen += 1 + len(l)
	}
	if wireLen > protocol.MaxNameLength {
		return "", 0, &errors.WireFormatError{
			Operation: "parseName",
			Offset:    offset,
			Message:   string(errors.ParseLabelTooLong),
		}
	}

	return name, consumedEnd, nil
}

// encodeName renders name as uncompressed length-prefixed labels
// terminated by a zero byte.
func encodeName(name string) ([]byte, error) {
	name = strings.TrimSuffix(name, ".")

	if name == "" {
		return []byte{0}, nil
	}

	labels := strings.Split(name, ".")

	total := 1
	for _, l := range labels {
		if len(l) == 0 {
			return nil, &errors.ValidationError{Field: "name", Value: name, Message: "empty label (consecutive dots)"}
		}
		if len(l) > protocol.MaxLabelLength {
			return nil, &errors.ValidationError{Field: "name", Value: name, Message: string(errors.GenLabelTooLong)}
		}
		total += 1 + len(l)
	}
	if total > protocol.MaxNameLength {
		return nil, &errors.ValidationError{Field: "name", Value: name, Message: string(errors.GenLabelTooLong)}
	}

	out := make([]byte, 0, total)
	for _, l := range labels {
		out = append(out, byte(len(l)))
		out = append(out, l...)
	}
	out = append(out, 0)

	return out, nil
}

// nameTable threads compression state through a single packet's
// generation: it maps a previously-written dotted name to the absolute
// offset its encoding started at, so later occurrences of the same name
// (or a dotted suffix of it) can be written as a two-byte pointer instead
// of being spelled out again.
type nameTable struct {
	offsets map[string]int
}

func newNameTable() *nameTable {
	return &nameTable{offsets: make(map[string]int)}
}

// appendName writes name (compressed where possible) to buf starting at
// absolute offset len(buf), since buf holds the packet from its first
// header byte, recording new suffixes for future reuse.
func (t *nameTable) appendName(buf []byte, name string) ([]byte, error) {
	name = strings.TrimSuffix(name, ".")

	if name == "" {
		return append(buf, 0), nil
	}

	labels := strings.Split(name, ".")
	for _, l := range labels {
		if len(l) == 0 {
			return nil, &errors.ValidationError{Field: "name", Value: name, Message: "empty label (consecutive dots)"}
		}
		if len(l) > protocol.MaxLabelLength {
			return nil, &errors.ValidationError{Field: "name", Value: name, Message: string(errors.GenLabelTooLong)}
		}
	}

	for i := 0; i < len(labels); i++ {
		suffix := strings.Join(labels[i:], ".")
		target, ok := t.offsets[suffix]
		if !ok || target > 0x3FFF {
			continue
		}

		for k := 0; k < i; k++ {
			if pos := len(buf); pos <= 0x3FFF {
				t.offsets[strings.Join(labels[k:], ".")] = pos
			}
			buf = append(buf, byte(len(labels[k])))
			buf = append(buf, labels[k]...)
		}
		ptr := uint16(protocol.CompressionMask)<<8 | uint16(target)
		buf = append(buf, byte(ptr>>8), byte(ptr))
		return buf, nil
	}

	for k := 0; k < len(labels); k++ {
		if pos := len(buf); pos <= 0x3FFF {
			t.offsets[strings.Join(labels[k:], ".")] = pos
		}
		buf = append(buf, byte(len(labels[k])))
		buf = append(buf, labels[k]...)
	}
	buf = append(buf, 0)

	return buf, nil
}
