// Package responder answers inbound mDNS queries against a node's
// authoritative record set per RFC 6762 §6 and RFC 6763 §12.
package responder

import (
	"strings"

	"github.com/joshuafuller/beacon/internal/protocol"
	"github.com/joshuafuller/beacon/internal/wire"
)

// maxPacketSize is the RFC 6762 §17 recommended maximum message size.
const maxPacketSize = 9000

// additionalKey identifies a record for the dedup pass in step 5.
type additionalKey struct {
	name  string
	typ   protocol.RecordType
	class protocol.DNSClass
}

// Respond implements the answer/additionals algorithm: for each question
// in query, match it against records; compute the additionals RFC 6763
// recommends to save a round trip; and return an authoritative RESPONSE
// message, or nil if nothing in records answers any question.
func Respond(query *wire.Message, records []wire.Record) *wire.Message {
	var answers []wire.Record
	answerKeys := make(map[additionalKey]bool)

	addAnswer := func(r wire.Record) {
		k := additionalKey{name: strings.ToLower(r.Header.Name), typ: r.Type, class: r.Header.Class & protocol.DNSClass(protocol.ClassMask)}
		if answerKeys[k] {
			return
		}
		answerKeys[k] = true
		answers = append(answers, r)
	}

	for _, q := range query.Questions {
		if err := protocol.ValidateRecordType(uint16(q.QType)); err != nil {
			continue
		}
		for _, r := range records {
			if !nameMatches(q.Name, r.Header.Name) {
				continue
			}
			if !typeMatches(q.QType, r.Type) {
				continue
			}
			if !classMatches(q.QClass, r.Header.Class) {
				continue
			}
			addAnswer(r)
		}
	}

	if len(answers) == 0 {
		return nil
	}

	byName := indexByName(records)

	var additionals []wire.Record
	addlKeys := make(map[additionalKey]bool)

	addAdditional := func(r wire.Record) {
		k := additionalKey{name: strings.ToLower(r.Header.Name), typ: r.Type, class: r.Header.Class & protocol.DNSClass(protocol.ClassMask)}
		if answerKeys[k] || addlKeys[k] {
			return
		}
		addlKeys[k] = true
		additionals = append(additionals, r)
	}

	for _, q := range query.Questions {
		if q.QType != protocol.RecordTypeA && q.QType != protocol.RecordTypeAAAA {
			continue
		}
		complement := protocol.RecordTypeAAAA
		if q.QType == protocol.RecordTypeAAAA {
			complement = protocol.RecordTypeA
		}
		for _, r := range byName[strings.ToLower(q.Name)] {
			if r.Type == complement {
				addAdditional(r)
			}
		}
	}

	for _, a := range answers {
		switch a.Type {
		case protocol.RecordTypePTR:
			for _, r := range byName[strings.ToLower(a.PTR)] {
				if r.Type == protocol.RecordTypeSRV {
					addAdditional(r)
					for _, host := range byName[strings.ToLower(r.SRV.Target)] {
						if host.Type == protocol.RecordTypeA || host.Type == protocol.RecordTypeAAAA {
							addAdditional(host)
						}
					}
				}
				if r.Type == protocol.RecordTypeTXT {
					addAdditional(r)
				}
			}
		case protocol.RecordTypeSRV:
			for _, host := range byName[strings.ToLower(a.SRV.Target)] {
				if host.Type == protocol.RecordTypeA || host.Type == protocol.RecordTypeAAAA {
					addAdditional(host)
				}
			}
		}
	}

	resp := &wire.Message{
		ID:          0,
		Flags:       wire.ResponseFlags(),
		Answers:     answers,
		Additionals: additionals,
	}
	return truncate(resp)
}

func nameMatches(question, candidate string) bool {
	return strings.EqualFold(question, candidate)
}

func typeMatches(qtype, rtype protocol.RecordType) bool {
	return qtype == protocol.RecordTypeANY || qtype == rtype
}

func classMatches(qclass, rclass protocol.DNSClass) bool {
	masked := rclass & protocol.DNSClass(protocol.ClassMask)
	return qclass == protocol.ClassANY || qclass == masked
}

func indexByName(records []wire.Record) map[string][]wire.Record {
	idx := make(map[string][]wire.Record, len(records))
	for _, r := range records {
		key := strings.ToLower(r.Header.Name)
		idx[key] = append(idx[key], r)
	}
	return idx
}

// truncate drops additionals (never answers) until the response fits
// within maxPacketSize, estimating each record's wire size
// conservatively since name compression is generation-dependent.
func truncate(resp *wire.Message) *wire.Message {
	size := 12
	for _, a := range resp.Answers {
		size += estimateSize(a)
	}

	kept := resp.Additionals[:0:0]
	for _, a := range resp.Additionals {
		s := estimateSize(a)
		if size+s > maxPacketSize {
			continue
		}
		size += s
		kept = append(kept, a)
	}
	resp.Additionals = kept
	return resp
}

func estimateSize(r wire.Record) int {
	rdataLen := 0
	switch r.Type {
	case protocol.RecordTypeA:
		rdataLen = len(r.A)
	case protocol.RecordTypeAAAA:
		rdataLen = len(r.AAAA)
	case protocol.RecordTypeSRV:
		rdataLen = 6 + len(r.SRV.Target) + 2
	case protocol.RecordTypeTXT:
		for _, p := range r.TXT {
			rdataLen += 1 + len(p.Key) + len(p.Value)
			if p.HasValue {
				rdataLen++
			}
		}
	case protocol.RecordTypePTR:
		rdataLen = len(r.PTR) + 2
	}
	return len(r.Header.Name) + 2 + 10 + rdataLen
}
