package wire

import (
	"encoding/binary"

	"github.com/joshuafuller/beacon/internal/errors"
	"github.com/joshuafuller/beacon/internal/protocol"
)

const headerLength = 12

// ParseMessage decodes a complete DNS/mDNS packet.
func ParseMessage(buf []byte) (*Message, error) {
	if len(buf) < headerLength {
		return nil, &errors.WireFormatError{
			Operation: "ParseMessage",
			Offset:    0,
			Message:   string(errors.ParseTruncated),
		}
	}

	id := binary.BigEndian.Uint16(buf[0:2])
	flags := decodeFlags(binary.BigEndian.Uint16(buf[2:4]))
	qdcount := binary.BigEndian.Uint16(buf[4:6])
	ancount := binary.BigEndian.Uint16(buf[6:8])
	nscount := binary.BigEndian.Uint16(buf[8:10])
	arcount := binary.BigEndian.Uint16(buf[10:12])

	pos := headerLength
	msg := &Message{ID: id, Flags: flags}

	for i := uint16(0); i < qdcount; i++ {
		q, next, err := parseQuestion(buf, pos)
		if err != nil {
			return nil, err
		}
		msg.Questions = append(msg.Questions, q)
		pos = next
	}

	var err error
	if msg.Answers, pos, err = parseRecords(buf, pos, int(ancount)); err != nil {
		return nil, err
	}
	if msg.Authorities, pos, err = parseRecords(buf, pos, int(nscount)); err != nil {
		return nil, err
	}
	if msg.Additionals, pos, err = parseRecords(buf, pos, int(arcount)); err != nil {
		return nil, err
	}

	return msg, nil
}

func parseQuestion(buf []byte, pos int) (Question, int, error) {
	name, next, err := parseName(buf, pos)
	if err != nil {
		return Question{}, 0, err
	}

	if next+4 > len(buf) {
		return Question{}, 0, &errors.WireFormatError{
			Operation: "parseQuestion",
			Offset:    next,
			Message:   string(errors.ParseTruncated),
		}
	}

	qtype := binary.BigEndian.Uint16(buf[next : next+2])
	rawClass := binary.BigEndian.Uint16(buf[next+2 : next+4])

	q := Question{
		Name:    name,
		QType:   protocol.RecordType(qtype),
		QClass:  protocol.DNSClass(rawClass & protocol.ClassMask),
		Unicast: rawClass&protocol.QUBit != 0,
	}

	return q, next + 4, nil
}

func parseRecords(buf []byte, pos int, count int) ([]Record, int, error) {
	var out []Record
	for i := 0; i < count; i++ {
		rr, next, err := parseRecord(buf, pos)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rr)
		pos = next
	}
	return out, pos, nil
}

func parseRecord(buf []byte, pos int) (Record, int, error) {
	name, next, err := parseName(buf, pos)
	if err != nil {
		return Record{}, 0, err
	}

	if next+10 > len(buf) {
		return Record{}, 0, &errors.WireFormatError{
			Operation: "parseRecord",
			Offset:    next,
			Message:   string(errors.ParseTruncated),
		}
	}

	rtype := protocol.RecordType(binary.BigEndian.Uint16(buf[next : next+2]))
	rawClass := binary.BigEndian.Uint16(buf[next+2 : next+4])
	ttl := binary.BigEndian.Uint32(buf[next+4 : next+8])
	rdlength := int(binary.BigEndian.Uint16(buf[next+8 : next+10]))

	rdataStart := next + 10
	if rdataStart+rdlength > len(buf) {
		return Record{}, 0, &errors.WireFormatError{
			Operation: "parseRecord",
			Offset:    rdataStart,
			Message:   string(errors.ParseTruncated),
		}
	}
	rdata := buf[rdataStart : rdataStart+rdlength]
	end := rdataStart + rdlength

	hdr := RecordHeader{Name: name, TTL: ttl}
	if rtype == protocol.RecordTypeOPT {
		hdr.Class = protocol.DNSClass(rawClass)
	} else {
		hdr.Class = protocol.DNSClass(rawClass & protocol.ClassMask)
		hdr.Flush = rawClass&protocol.CacheFlushBit != 0
	}

	rec, err := parseRDATA(buf, rdataStart, rdata, rtype)
	if err != nil {
		return Record{}, 0, err
	}
	rec.Header = hdr
	rec.Type = rtype

	return rec, end, nil
}

// parseRDATA decodes the type-specific portion of a resource record.
// absOffset is rdata's absolute position in buf, needed because
// compressed names inside RDATA (PTR/CNAME/SRV target) are pointers
// relative to the whole packet, not to rdata itself.
func parseRDATA(buf []byte, absOffset int, rdata []byte, rtype protocol.RecordType) (Record, error) {
	switch rtype {
	case protocol.RecordTypeA:
		if len(rdata) != 4 {
			return Record{}, badRDATA("A", absOffset)
		}
		return Record{A: append([]byte(nil), rdata...)}, nil

	case protocol.RecordTypeAAAA:
		if len(rdata) != 16 {
			return Record{}, badRDATA("AAAA", absOffset)
		}
		return Record{AAAA: append([]byte(nil), rdata...)}, nil

	case protocol.RecordTypeCNAME:
		name, _, err := parseName(buf, absOffset)
		if err != nil {
			return Record{}, err
		}
		return Record{CNAME: name}, nil

	case protocol.RecordTypePTR:
		name, _, err := parseName(buf, absOffset)
		if err != nil {
			return Record{}, err
		}
		return Record{PTR: name}, nil

	case protocol.RecordTypeTXT:
		pairs, err := parseTXT(rdata)
		if err != nil {
			return Record{}, err
		}
		return Record{TXT: pairs}, nil

	case protocol.RecordTypeSRV:
		if len(rdata) < 6 {
			return Record{}, badRDATA("SRV", absOffset)
		}
		priority := uint16(rdata[0])<<8 | uint16(rdata[1])
		weight := uint16(rdata[2])<<8 | uint16(rdata[3])
		port := uint16(rdata[4])<<8 | uint16(rdata[5])
		target, _, err := parseName(buf, absOffset+6)
		if err != nil {
			return Record{}, err
		}
		return Record{SRV: SRVData{Priority: priority, Weight: weight, Port: port, Target: target}}, nil

	case protocol.RecordTypeOPT:
		return Record{OPT: OPTData{Options: append([]byte(nil), rdata...)}}, nil

	case protocol.RecordTypeNSEC:
		nextName, nameEnd, err := parseName(buf, absOffset)
		if err != nil {
			return Record{}, err
		}
		bitmapStart := nameEnd - absOffset
		if bitmapStart < 0 || bitmapStart > len(rdata) {
			return Record{}, badRDATA("NSEC", absOffset)
		}
		return Record{NSEC: NSECData{NextName: nextName, TypeBitmaps: append([]byte(nil), rdata[bitmapStart:]...)}}, nil

	default:
		return Record{Raw: append([]byte(nil), rdata...)}, nil
	}
}

// parseTXT splits TXT rdata into its constituent <len><bytes> strings,
// each further split on the first '='. First-wins applies to callers
// building a map from these pairs (see reassemble.tryAssemble).
func parseTXT(rdata []byte) ([]TXTPair, error) {
	if len(rdata) == 0 {
		return nil, nil
	}

	var pairs []TXTPair
	pos := 0
	for pos < len(rdata) {
		l := int(rdata[pos])
		pos++
		if pos+l > len(rdata) {
			return nil, &errors.WireFormatError{Operation: "parseTXT", Offset: pos, Message: string(errors.ParseBadRDATA)}
		}
		s := rdata[pos : pos+l]
		pos += l

		if l == 0 {
			continue
		}

		if idx := indexByte(s, '='); idx >= 0 {
			pairs = append(pairs, TXTPair{Key: string(s[:idx]), Value: string(s[idx+1:]), HasValue: true})
		} else {
			pairs = append(pairs, TXTPair{Key: string(s)})
		}
	}

	return pairs, nil
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

func badRDATA(kind string, offset int) error {
	return &errors.WireFormatError{Operation: "parseRDATA(" + kind + ")", Offset: offset, Message: string(errors.ParseBadRDATA)}
}
