package blacklist

import (
	"cmp"
	"encoding/binary"
	"fmt"
	"net"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/yl2chen/cidranger"
)

// DefaultCapacity matches the max_entries of the kernel blacklist map.
const DefaultCapacity = 16

// Store is the control-plane view of a blacklist. Table implements it in
// memory; bpf.KernelTable implements it on top of the kernel LPM trie.
type Store interface {
	Insert(key Key, rule uint32) error
	Remove(key Key) error
	Lookup(key Key) (uint32, bool)
	Entries() ([]Entry, error)
}

// Table is a fixed capacity longest-prefix-match table.
//
// Readers never lock: every write builds a new immutable snapshot and
// publishes it with a single atomic store, so a concurrent Lookup sees
// either the whole old table or the whole new one.
type Table struct {
	mu       sync.Mutex // serialises writers
	capacity int
	current  atomic.Pointer[snapshot]
}

type snapshot struct {
	ranger  cidranger.Ranger
	entries map[Key]uint32
	// byLen[l] holds the masked addresses of the /l entries; the hot path
	// probes it instead of walking the trie.
	byLen [MaxPrefixLen + 1]map[[4]byte]uint32
}

type ruleEntry struct {
	network net.IPNet
	key     Key
	rule    uint32
}

func (e *ruleEntry) Network() net.IPNet {
	return e.network
}

// NewTable returns an empty table holding at most capacity entries.
// A non-positive capacity selects DefaultCapacity.
func NewTable(capacity int) *Table {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	t := &Table{capacity: capacity}
	t.current.Store(&snapshot{
		ranger:  cidranger.NewPCTrieRanger(),
		entries: map[Key]uint32{},
	})

	return t
}

// Insert adds key with the given rule id.
func (t *Table) Insert(key Key, rule uint32) error {
	k, err := key.Canonical()
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	cur := t.current.Load()

	if _, ok := cur.entries[k]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, k)
	}

	if len(cur.entries) >= t.capacity {
		return fmt.Errorf("%w: %d entries", ErrCapacityExceeded, t.capacity)
	}

	entries := make(map[Key]uint32, len(cur.entries)+1)
	for ek, rule := range cur.entries {
		entries[ek] = rule
	}
	entries[k] = rule

	next, err := buildSnapshot(entries)
	if err != nil {
		return fmt.Errorf("failed to insert %s: %w", k, err)
	}

	t.current.Store(next)

	return nil
}

// Remove deletes key.
func (t *Table) Remove(key Key) error {
	k, err := key.Canonical()
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	cur := t.current.Load()

	if _, ok := cur.entries[k]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, k)
	}

	entries := make(map[Key]uint32, len(cur.entries))
	for ek, rule := range cur.entries {
		if ek != k {
			entries[ek] = rule
		}
	}

	next, err := buildSnapshot(entries)
	if err != nil {
		return fmt.Errorf("failed to remove %s: %w", k, err)
	}

	t.current.Store(next)

	return nil
}

// Lookup returns the rule of the longest stored prefix covering key.Addr
// whose length does not exceed key.PrefixLen. It neither locks nor allocates.
func (t *Table) Lookup(key Key) (uint32, bool) {
	if t == nil || key.PrefixLen > MaxPrefixLen {
		return 0, false
	}

	s := t.current.Load()
	if len(s.entries) == 0 {
		return 0, false
	}

	addr := binary.BigEndian.Uint32(key.Addr[:])

	for l := int(key.PrefixLen); l >= 0; l-- {
		m := s.byLen[l]
		if len(m) == 0 {
			continue
		}

		if rule, ok := m[maskAddr(addr, l)]; ok {
			return rule, true
		}
	}

	return 0, false
}

// Covering lists every entry whose prefix contains addr, shortest first.
func (t *Table) Covering(addr [4]byte) ([]Entry, error) {
	s := t.current.Load()

	containing, err := s.ranger.ContainingNetworks(net.IP(addr[:]))
	if err != nil {
		return nil, fmt.Errorf("failed to search blacklist: %w", err)
	}

	entries := make([]Entry, 0, len(containing))
	for _, c := range containing {
		if e, ok := c.(*ruleEntry); ok {
			entries = append(entries, Entry{Key: e.key, Rule: e.rule})
		}
	}

	SortEntries(entries)

	return entries, nil
}

func maskAddr(addr uint32, bits int) [4]byte {
	var out [4]byte

	if bits > 0 {
		binary.BigEndian.PutUint32(out[:], addr&^(^uint32(0)>>bits))
	}

	return out
}

// Entries lists the table ordered by prefix length, then address.
func (t *Table) Entries() ([]Entry, error) {
	s := t.current.Load()

	entries := make([]Entry, 0, len(s.entries))
	for k, rule := range s.entries {
		entries = append(entries, Entry{Key: k, Rule: rule})
	}

	SortEntries(entries)

	return entries, nil
}

// Len returns the number of entries.
func (t *Table) Len() int {
	return len(t.current.Load().entries)
}

// Cap returns the fixed capacity.
func (t *Table) Cap() int {
	return t.capacity
}

// SortEntries orders entries by prefix length, then address.
func SortEntries(entries []Entry) {
	slices.SortFunc(entries, func(a, b Entry) int {
		if c := cmp.Compare(a.Key.PrefixLen, b.Key.PrefixLen); c != 0 {
			return c
		}

		return a.Key.Prefix().Addr().Compare(b.Key.Prefix().Addr())
	})
}

func buildSnapshot(entries map[Key]uint32) (*snapshot, error) {
	s := &snapshot{
		ranger:  cidranger.NewPCTrieRanger(),
		entries: entries,
	}

	for k, rule := range entries {
		if err := s.ranger.Insert(&ruleEntry{network: k.IPNet(), key: k, rule: rule}); err != nil {
			return nil, fmt.Errorf("failed to index %s: %w", k, err)
		}

		if s.byLen[k.PrefixLen] == nil {
			s.byLen[k.PrefixLen] = make(map[[4]byte]uint32)
		}

		s.byLen[k.PrefixLen][k.Addr] = rule
	}

	return s, nil
}

// Load inserts entries into s, stopping at the first failure.
func Load(s Store, entries []Entry) error {
	for _, e := range entries {
		if err := s.Insert(e.Key, e.Rule); err != nil {
			return fmt.Errorf("failed to load %s (rule %d): %w", e.Key, e.Rule, err)
		}
	}

	return nil
}
