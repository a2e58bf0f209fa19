package bpf

import (
	"errors"
	"fmt"

	"github.com/cilium/ebpf"
	"github.com/tcassar-diss/iptable/blacklist"
	"golang.org/x/sys/unix"
)

// lpmKey mirrors struct { __u32 prefixlen; __u32 saddr; } in the program.
// The address stays a byte array so it is copied in network order.
type lpmKey struct {
	Prefixlen uint32
	Addr      [4]byte
}

const (
	lpmKeySize = 8
	ruleSize   = 4
)

func toLPMKey(k blacklist.Key) lpmKey {
	return lpmKey{Prefixlen: k.PrefixLen, Addr: k.Addr}
}

// KernelTable is a blacklist.Store backed by a BPF_MAP_TYPE_LPM_TRIE map.
//
// The kernel serialises updates and lets the XDP program read concurrently,
// so KernelTable needs no locking of its own.
type KernelTable struct {
	m        *ebpf.Map
	capacity int
}

var _ blacklist.Store = (*KernelTable)(nil)

// NewKernelTable creates the blacklist map with room for capacity entries.
// A non-positive capacity selects blacklist.DefaultCapacity.
func NewKernelTable(capacity int) (*KernelTable, error) {
	if capacity <= 0 {
		capacity = blacklist.DefaultCapacity
	}

	m, err := ebpf.NewMap(&ebpf.MapSpec{
		Name:       "blacklist",
		Type:       ebpf.LPMTrie,
		KeySize:    lpmKeySize,
		ValueSize:  ruleSize,
		MaxEntries: uint32(capacity),
		Flags:      unix.BPF_F_NO_PREALLOC, // required for LPM tries
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create blacklist map: %w", err)
	}

	return &KernelTable{m: m, capacity: capacity}, nil
}

// Insert adds key to the kernel map.
func (t *KernelTable) Insert(key blacklist.Key, rule uint32) error {
	k, err := key.Canonical()
	if err != nil {
		return err
	}

	lk := toLPMKey(k)

	err = t.m.Update(&lk, &rule, ebpf.UpdateNoExist)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ebpf.ErrKeyExist):
		return fmt.Errorf("%w: %s", blacklist.ErrDuplicateKey, k)
	case errors.Is(err, unix.ENOSPC), errors.Is(err, unix.E2BIG):
		// older kernels test for a full trie before looking for the key
		if t.contains(lk) {
			return fmt.Errorf("%w: %s", blacklist.ErrDuplicateKey, k)
		}

		return fmt.Errorf("%w: %d entries", blacklist.ErrCapacityExceeded, t.capacity)
	default:
		return fmt.Errorf("failed to write %s to kernel space: %w", k, err)
	}
}

// contains reports whether lk is stored exactly. Lookup would report any
// covering prefix, so the map is walked instead.
func (t *KernelTable) contains(lk lpmKey) bool {
	var (
		k    lpmKey
		rule uint32
	)

	it := t.m.Iterate()
	for it.Next(&k, &rule) {
		if k == lk {
			return true
		}
	}

	return false
}

// Remove deletes key from the kernel map.
func (t *KernelTable) Remove(key blacklist.Key) error {
	k, err := key.Canonical()
	if err != nil {
		return err
	}

	lk := toLPMKey(k)

	if err := t.m.Delete(&lk); err != nil {
		if errors.Is(err, ebpf.ErrKeyNotExist) {
			return fmt.Errorf("%w: %s", blacklist.ErrNotFound, k)
		}

		return fmt.Errorf("failed to delete %s from kernel space: %w", k, err)
	}

	return nil
}

// Lookup performs a longest prefix match in the kernel map. Errors other
// than a miss are reported as a miss.
func (t *KernelTable) Lookup(key blacklist.Key) (uint32, bool) {
	var rule uint32

	lk := toLPMKey(key)

	if err := t.m.Lookup(&lk, &rule); err != nil {
		return 0, false
	}

	return rule, true
}

// Entries walks the kernel map.
func (t *KernelTable) Entries() ([]blacklist.Entry, error) {
	var (
		k       lpmKey
		rule    uint32
		entries []blacklist.Entry
	)

	it := t.m.Iterate()
	for it.Next(&k, &rule) {
		entries = append(entries, blacklist.Entry{
			Key:  blacklist.Key{PrefixLen: k.Prefixlen, Addr: k.Addr},
			Rule: rule,
		})
	}

	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("failed to read from blacklist map: %w", err)
	}

	blacklist.SortEntries(entries)

	return entries, nil
}

// Cap returns the map's max_entries.
func (t *KernelTable) Cap() int {
	return t.capacity
}

// Map exposes the underlying map, e.g. for pinning.
func (t *KernelTable) Map() *ebpf.Map {
	return t.m
}

func (t *KernelTable) Close() error {
	return t.m.Close()
}
