package blacklist

import "errors"

var (
	ErrCapacityExceeded = errors.New("blacklist is full")
	ErrDuplicateKey     = errors.New("prefix already blacklisted")
	ErrNotFound         = errors.New("prefix not blacklisted")
	ErrInvalidPrefixLen = errors.New("prefix length out of range")
	ErrInvalidPrefix    = errors.New("invalid IPv4 prefix")
)
