package wire

import (
	"encoding/binary"

	"github.com/joshuafuller/beacon/internal/errors"
	"github.com/joshuafuller/beacon/internal/protocol"
)

// Generate serializes a Message to its wire representation, compressing
// question and record owner names against each other as it goes.
func Generate(msg *Message) ([]byte, error) {
	buf := make([]byte, headerLength)
	binary.BigEndian.PutUint16(buf[0:2], msg.ID)
	binary.BigEndian.PutUint16(buf[2:4], msg.Flags.encode())
	binary.BigEndian.PutUint16(buf[4:6], uint16(len(msg.Questions)))
	binary.BigEndian.PutUint16(buf[6:8], uint16(len(msg.Answers)))
	binary.BigEndian.PutUint16(buf[8:10], uint16(len(msg.Authorities)))
	binary.BigEndian.PutUint16(buf[10:12], uint16(len(msg.Additionals)))

	names := newNameTable()
	var err error

	for _, q := range msg.Questions {
		if buf, err = appendQuestion(buf, names, q); err != nil {
			return nil, err
		}
	}
	for _, rr := range msg.Answers {
		if buf, err = appendRecord(buf, names, rr); err != nil {
			return nil, err
		}
	}
	for _, rr := range msg.Authorities {
		if buf, err = appendRecord(buf, names, rr); err != nil {
			return nil, err
		}
	}
	for _, rr := range msg.Additionals {
		if buf, err = appendRecord(buf, names, rr); err != nil {
			return nil, err
		}
	}

	return buf, nil
}

func appendQuestion(buf []byte, names *nameTable, q Question) ([]byte, error) {
	buf, err := names.appendName(buf, q.Name)
	if err != nil {
		return nil, err
	}

	rawClass := uint16(q.QClass)
	if q.Unicast {
		rawClass |= protocol.QUBit
	}

	buf = append(buf, byte(q.QType>>8), byte(q.QType))
	buf = append(buf, byte(rawClass>>8), byte(rawClass))

	return buf, nil
}

func appendRecord(buf []byte, names *nameTable, rr Record) ([]byte, error) {
	buf, err := names.appendName(buf, rr.Header.Name)
	if err != nil {
		return nil, err
	}

	rdata, err := generateRDATA(rr)
	if err != nil {
		return nil, err
	}

	rawClass := uint16(rr.Header.Class)
	if rr.Type != protocol.RecordTypeOPT && rr.Header.Flush {
		rawClass |= protocol.CacheFlushBit
	}

	buf = append(buf, byte(rr.Type>>8), byte(rr.Type))
	buf = append(buf, byte(rawClass>>8), byte(rawClass))

	ttlBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(ttlBuf, rr.Header.TTL)
	buf = append(buf, ttlBuf...)

	if len(rdata) > 0xFFFF {
		return nil, &errors.ValidationError{Field: "rdata", Message: "resource record data exceeds 65535 bytes"}
	}
	buf = append(buf, byte(len(rdata)>>8), byte(len(rdata)))
	buf = append(buf, rdata...)

	return buf, nil
}

func generateRDATA(rr Record) ([]byte, error) {
	switch rr.Type {
	case protocol.RecordTypeA:
		if len(rr.A) != 4 {
			return nil, &errors.ValidationError{Field: "A", Message: "A record data must be 4 bytes"}
		}
		return rr.A, nil

	case protocol.RecordTypeAAAA:
		if len(rr.AAAA) != 16 {
			return nil, &errors.ValidationError{Field: "AAAA", Message: "AAAA record data must be 16 bytes"}
		}
		return rr.AAAA, nil

	case protocol.RecordTypeCNAME:
		return encodeName(rr.CNAME)

	case protocol.RecordTypePTR:
		return encodeName(rr.PTR)

	case protocol.RecordTypeTXT:
		return generateTXT(rr.TXT), nil

	case protocol.RecordTypeSRV:
		target, err := encodeName(rr.SRV.Target)
		if err != nil {
			return nil, err
		}
		out := make([]byte, 6, 6+len(target))
		binary.BigEndian.PutUint16(out[0:2], rr.SRV.Priority)
		binary.BigEndian.PutUint16(out[2:4], rr.SRV.Weight)
		binary.BigEndian.PutUint16(out[4:6], rr.SRV.Port)
		out = append(out, target...)
		return out, nil

	case protocol.RecordTypeOPT:
		return rr.OPT.Options, nil

	default:
		return rr.Raw, nil
	}
}

// generateTXT renders attribute pairs as <len><bytes> strings. An empty
// pair list encodes as a single zero-length string (RFC 6763 §6.1).
func generateTXT(pairs []TXTPair) []byte {
	if len(pairs) == 0 {
		return []byte{0}
	}

	var out []byte
	for _, p := range pairs {
		s := p.Key
		if p.HasValue {
			s = p.Key + "=" + p.Value
		}
		if len(s) > 0xFF {
			s = s[:0xFF]
		}
		out = append(out, byte(len(s)))
		out = append(out, s...)
	}
	return out
}

// BuildQuery constructs a one-question QUERY packet with id=0.
func BuildQuery(name string, qtype protocol.RecordType) ([]byte, error) {
	msg := &Message{
		Flags:     QueryFlags(),
		Questions: []Question{{Name: name, QType: qtype, QClass: protocol.ClassIN}},
	}
	return Generate(msg)
}

// BuildResponse constructs a RESPONSE packet (id=0, AA=1) carrying the
// given answers and additionals.
func BuildResponse(answers, additionals []Record) ([]byte, error) {
	msg := &Message{
		Flags:       ResponseFlags(),
		Answers:     answers,
		Additionals: additionals,
	}
	return Generate(msg)
}
