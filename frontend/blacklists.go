package frontend

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/tcassar-diss/iptable/blacklist"
)

// blacklistTOML is the on-disk blacklist:
//
//	[rules]
//	"10.0.0.5" = 1
//	"192.168.0.0/16" = 2
type blacklistTOML struct {
	Rules map[string]uint32 `toml:"rules"`
}

// ParseTOMLBlacklist reads a blacklist file.
func ParseTOMLBlacklist(filepath string) ([]blacklist.Entry, error) {
	file, err := os.Open(filepath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return DecodeTOMLBlacklist(file)
}

// DecodeTOMLBlacklist parses a blacklist. Keys are canonicalised, so two
// spellings of the same prefix are rejected as duplicates.
func DecodeTOMLBlacklist(r io.Reader) ([]blacklist.Entry, error) {
	var parsed blacklistTOML

	if _, err := toml.NewDecoder(r).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode blacklist: %w", err)
	}

	seen := make(map[blacklist.Key]string, len(parsed.Rules))
	entries := make([]blacklist.Entry, 0, len(parsed.Rules))

	for cidr, rule := range parsed.Rules {
		k, err := blacklist.ParseKey(cidr)
		if err != nil {
			return nil, fmt.Errorf("bad blacklist entry %q: %w", cidr, err)
		}

		if prev, ok := seen[k]; ok {
			return nil, fmt.Errorf("%w: %q and %q", blacklist.ErrDuplicateKey, prev, cidr)
		}

		seen[k] = cidr
		entries = append(entries, blacklist.Entry{Key: k, Rule: rule})
	}

	blacklist.SortEntries(entries)

	return entries, nil
}

// MarshalTOMLBlacklist writes entries in the format DecodeTOMLBlacklist reads.
func MarshalTOMLBlacklist(file io.Writer, entries []blacklist.Entry) error {
	tomlData := blacklistTOML{Rules: make(map[string]uint32, len(entries))}

	for _, e := range entries {
		tomlData.Rules[e.Key.String()] = e.Rule
	}

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(tomlData); err != nil {
		return err
	}

	return nil
}

// ParseTextBlacklist reads one address or CIDR per line. Blank lines and
// lines starting with '#' are skipped. Entries are numbered from firstRule
// in file order.
func ParseTextBlacklist(r io.Reader, firstRule uint32) ([]blacklist.Entry, error) {
	var (
		entries []blacklist.Entry
		lineNr  int
	)

	seen := make(map[blacklist.Key]struct{})
	rule := firstRule
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		lineNr++

		l := bytes.TrimSpace(scanner.Bytes())
		if len(l) == 0 || l[0] == '#' {
			continue
		}

		k, err := blacklist.ParseKey(string(l))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNr, err)
		}

		if _, ok := seen[k]; ok {
			continue
		}

		seen[k] = struct{}{}
		entries = append(entries, blacklist.Entry{Key: k, Rule: rule})
		rule++
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read blacklist: %w", err)
	}

	return entries, nil
}
