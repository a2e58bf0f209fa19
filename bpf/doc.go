// Package bpf provides an interface for interacting with the kernelspace components
// of iptable.
//
// NewKernelTable creates the LPM trie map holding the blacklist, and
// LoadProgram builds the XDP classifier around it. The program is assembled
// in Go, so no compiled object needs to ship with the binary.
//
// This package is intended as an interface to kernelspace, without containing specific
// business logic. Attaching and lifecycle live in package bpf/filter.
package bpf
