// Package cache implements the indexed store of network-observed
// records: TTL-driven expiration, uniqueness by (name,type,class,data),
// and the secondary indexes the query-match and hostname-join paths need.
package cache

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/joshuafuller/beacon/internal/errors"
	"github.com/joshuafuller/beacon/internal/protocol"
	"github.com/joshuafuller/beacon/internal/wire"
)

// Entry is a single cached record plus the bookkeeping needed to expire
// and cross-reference it.
type Entry struct {
	Record          wire.Record
	Timestamp       int64 // unix milliseconds
	EffectiveTTL    uint32
	RelatedHostname string // optional: SRV target, or PTR target (non-meta)

	key       string
	insertSeq uint64
}

// ExpiresAtMillis is the absolute time this entry is due to expire.
func (e *Entry) ExpiresAtMillis() int64 {
	return e.Timestamp + int64(e.EffectiveTTL)*1000
}

// Question is a cache lookup key: any of Type/Class may be ANY.
type Question struct {
	Name  string
	Type  protocol.RecordType
	Class protocol.DNSClass
}

// Cache is the mutex-protected, TTL-indexed observed-record store
// described in the record-cache component design (CACHE-1..CACHE-6
// below annotate its invariants in this package's own numbering, since
// they are local to this cache, not shared with any upstream tracker).
type Cache struct {
	mu sync.Mutex

	max       int
	onExpired func(Entry)

	byKey       map[string]*Entry
	byExact     map[string][]*Entry // name|type|class
	byNameClass map[string][]*Entry // name|class (QTYPE=ANY)
	byNameType  map[string][]*Entry // name|type (QCLASS=ANY)
	byName      map[string][]*Entry // name (both ANY)
	byRelated   map[string][]*Entry // relatedHostname

	order       []*Entry // insertion order, FIFO eviction source (CACHE-4)
	expiryOrder []*Entry // near-sorted ascending by ExpiresAtMillis (CACHE-2)

	timer     *time.Timer
	nowFn     func() int64
	seq       uint64
	destroyed bool
}

// New creates an empty cache with the given capacity. onExpired, if
// non-nil, is invoked (off the timer goroutine is not guaranteed; callers
// needing loop-thread delivery should hand this to a channel) once per
// entry as it is removed by TTL expiry.
func New(max int, onExpired func(Entry)) *Cache {
	if max <= 0 {
		max = protocol.DefaultCacheMax
	}
	return &Cache{
		max:         max,
		onExpired:   onExpired,
		byKey:       make(map[string]*Entry),
		byExact:     make(map[string][]*Entry),
		byNameClass: make(map[string][]*Entry),
		byNameType:  make(map[string][]*Entry),
		byName:      make(map[string][]*Entry),
		byRelated:   make(map[string][]*Entry),
		nowFn:       func() int64 { return time.Now().UnixMilli() },
	}
}

// Set inserts or refreshes records. A primary-key match updates TTL and
// timestamp in place (CACHE-1 uniqueness); otherwise the record is
// inserted, evicting the oldest entry first if this would exceed max
// (CACHE-4). Reschedules the expiration timer once for the whole batch.
func (c *Cache) Set(records []wire.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.destroyed {
		return errors.CacheDestroyed("Set")
	}

	for _, rr := range records {
		c.setOne(rr)
	}
	c.reschedule()

	return nil
}

func (c *Cache) setOne(rr wire.Record) {
	key := canonicalKey(rr)
	ttl := effectiveTTL(rr.Header.TTL)
	now := c.nowFn()

	if existing, ok := c.byKey[key]; ok {
		existing.Timestamp = now
		existing.EffectiveTTL = ttl
		existing.Record.Header.TTL = rr.Header.TTL
		return
	}

	if len(c.byKey) >= c.max {
		c.evictOldest()
	}

	c.seq++
	e := &Entry{
		Record:          rr,
		Timestamp:       now,
		EffectiveTTL:    ttl,
		RelatedHostname: relatedHostname(rr),
		key:             key,
		insertSeq:       c.seq,
	}

	c.byKey[key] = e
	c.order = append(c.order, e)
	c.expiryOrder = append(c.expiryOrder, e)
	c.index(e)
}

func (c *Cache) index(e *Entry) {
	name := strings.ToLower(e.Record.Header.Name)
	t := e.Record.Type
	cl := e.Record.Header.Class

	c.byExact[exactKey(name, t, cl)] = append(c.byExact[exactKey(name, t, cl)], e)
	c.byNameClass[nameClassKey(name, cl)] = append(c.byNameClass[nameClassKey(name, cl)], e)
	c.byNameType[nameTypeKey(name, t)] = append(c.byNameType[nameTypeKey(name, t)], e)
	c.byName[name] = append(c.byName[name], e)

	if e.RelatedHostname != "" {
		rh := strings.ToLower(e.RelatedHostname)
		c.byRelated[rh] = append(c.byRelated[rh], e)
	}
}

func (c *Cache) unindex(e *Entry) {
	name := strings.ToLower(e.Record.Header.Name)
	t := e.Record.Type
	cl := e.Record.Header.Class

	c.byExact[exactKey(name, t, cl)] = removeEntry(c.byExact[exactKey(name, t, cl)], e)
	c.byNameClass[nameClassKey(name, cl)] = removeEntry(c.byNameClass[nameClassKey(name, cl)], e)
	c.byNameType[nameTypeKey(name, t)] = removeEntry(c.byNameType[nameTypeKey(name, t)], e)
	c.byName[name] = removeEntry(c.byName[name], e)

	if e.RelatedHostname != "" {
		rh := strings.ToLower(e.RelatedHostname)
		c.byRelated[rh] = removeEntry(c.byRelated[rh], e)
	}
}

func (c *Cache) evictOldest() {
	for len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		if _, ok := c.byKey[oldest.key]; ok {
			c.removeEntry(oldest)
			return
		}
	}
}

func (c *Cache) removeEntry(e *Entry) {
	delete(c.byKey, e.key)
	c.unindex(e)
	for i, x := range c.expiryOrder {
		if x == e {
			c.expiryOrder = append(c.expiryOrder[:i], c.expiryOrder[i+1:]...)
			break
		}
	}
}

// Delete removes every entry matching q: ANY Type or Class broadens the
// match to the corresponding secondary index.
func (c *Cache) Delete(q Question) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.destroyed {
		return errors.CacheDestroyed("Delete")
	}

	for _, e := range c.lookup(q) {
		c.removeEntry(e)
	}
	c.reschedule()

	return nil
}

// WhereGet returns every cached entry matching any of the given
// questions (CACHE-subset invariant: always a subset of current entries).
func (c *Cache) WhereGet(questions []Question) []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Entry
	seen := make(map[string]bool)
	for _, q := range questions {
		for _, e := range c.lookup(q) {
			if !seen[e.key] {
				seen[e.key] = true
				out = append(out, *e)
			}
		}
	}
	return out
}

// Has reports whether any entry matches q.
func (c *Cache) Has(q Question) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lookup(q)) > 0
}

// RelatedByHostname returns entries whose own name is hostname, union
// with entries whose relatedHostname (SRV target, or PTR target) is
// hostname — the reverse join the service reassembler uses to find A/AAAA
// for a SRV target, and SRV owners for an A/AAAA.
func (c *Cache) RelatedByHostname(hostname string) []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	hostname = strings.ToLower(hostname)
	seen := make(map[string]bool)
	var out []Entry
	for _, e := range c.byName[hostname] {
		if !seen[e.key] {
			seen[e.key] = true
			out = append(out, *e)
		}
	}
	for _, e := range c.byRelated[hostname] {
		if !seen[e.key] {
			seen[e.key] = true
			out = append(out, *e)
		}
	}
	return out
}

// Count returns the number of live entries.
func (c *Cache) Count() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return 0, errors.CacheDestroyed("Count")
	}
	return len(c.byKey), nil
}

// Destroy cancels the expiration timer and permanently disables the
// cache (CACHE-4: further operations fail with CACHE_DESTROYED).
func (c *Cache) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil {
		c.timer.Stop()
	}
	c.destroyed = true
}

func (c *Cache) lookup(q Question) []*Entry {
	name := strings.ToLower(q.Name)
	typeAny := q.Type == protocol.RecordTypeANY
	classAny := q.Class == protocol.ClassANY

	switch {
	case typeAny && classAny:
		return c.byName[name]
	case typeAny:
		return c.byNameClass[nameClassKey(name, q.Class)]
	case classAny:
		return c.byNameType[nameTypeKey(name, q.Type)]
	default:
		return c.byExact[exactKey(name, q.Type, q.Class)]
	}
}

// reschedule re-sorts the near-sorted expiry order and arms a single
// timer to the earliest outstanding entry (spec.md §9: "exponential
// backoff as a scheduled timer" applies the same recurring-task shape to
// plain TTL expiry here).
func (c *Cache) reschedule() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if len(c.expiryOrder) == 0 {
		return
	}

	sort.SliceStable(c.expiryOrder, func(i, j int) bool {
		return c.expiryOrder[i].ExpiresAtMillis() < c.expiryOrder[j].ExpiresAtMillis()
	})

	earliest := c.expiryOrder[0]
	delay := time.Duration(earliest.ExpiresAtMillis()-c.nowFn()) * time.Millisecond
	if delay < 0 {
		delay = 0
	}

	c.timer = time.AfterFunc(delay, c.fireExpiry)
}

func (c *Cache) fireExpiry() {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}

	now := c.nowFn()
	var fired []Entry
	for len(c.expiryOrder) > 0 && c.expiryOrder[0].ExpiresAtMillis() <= now {
		e := c.expiryOrder[0]
		c.removeEntry(e)
		fired = append(fired, *e)
	}
	c.reschedule()
	cb := c.onExpired
	c.mu.Unlock()

	if cb != nil {
		for _, e := range fired {
			cb(e)
		}
	}
}

func effectiveTTL(ttl uint32) uint32 {
	if ttl < protocol.MinEffectiveTTLSeconds {
		return protocol.MinEffectiveTTLSeconds
	}
	return ttl
}

func relatedHostname(rr wire.Record) string {
	switch rr.Type {
	case protocol.RecordTypeSRV:
		return rr.SRV.Target
	case protocol.RecordTypePTR:
		if strings.EqualFold(strings.TrimSuffix(rr.Header.Name, "."), protocol.MetaServiceName) {
			return ""
		}
		return rr.PTR
	default:
		return ""
	}
}

func exactKey(name string, t protocol.RecordType, cl protocol.DNSClass) string {
	return fmt.Sprintf("%s|%d|%d", name, t, cl)
}

func nameClassKey(name string, cl protocol.DNSClass) string {
	return fmt.Sprintf("%s|%d", name, cl)
}

func nameTypeKey(name string, t protocol.RecordType) string {
	return fmt.Sprintf("%s|%d", name, t)
}

func removeEntry(list []*Entry, target *Entry) []*Entry {
	for i, e := range list {
		if e == target {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// canonicalKey builds the (name,type,class,canonical(data)) uniqueness
// key (CACHE-1).
func canonicalKey(rr wire.Record) string {
	name := strings.ToLower(strings.TrimSuffix(rr.Header.Name, "."))
	var data string

	switch rr.Type {
	case protocol.RecordTypeA:
		data = fmt.Sprintf("%x", rr.A)
	case protocol.RecordTypeAAAA:
		data = fmt.Sprintf("%x", rr.AAAA)
	case protocol.RecordTypeCNAME:
		data = strings.ToLower(rr.CNAME)
	case protocol.RecordTypePTR:
		data = strings.ToLower(rr.PTR)
	case protocol.RecordTypeSRV:
		data = fmt.Sprintf("%d|%d|%d|%s", rr.SRV.Priority, rr.SRV.Weight, rr.SRV.Port, strings.ToLower(rr.SRV.Target))
	case protocol.RecordTypeTXT:
		parts := make([]string, 0, len(rr.TXT))
		for _, p := range rr.TXT {
			parts = append(parts, p.Key+"="+p.Value)
		}
		data = strings.Join(parts, "\x00")
	case protocol.RecordTypeOPT:
		data = fmt.Sprintf("%x", rr.OPT.Options)
	case protocol.RecordTypeNSEC:
		data = strings.ToLower(rr.NSEC.NextName) + "|" + fmt.Sprintf("%x", rr.NSEC.TypeBitmaps)
	default:
		data = fmt.Sprintf("%x", rr.Raw)
	}

	return fmt.Sprintf("%s|%d|%d|%s", name, rr.Type, rr.Header.Class, data)
}
