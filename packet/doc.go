// Package packet holds the per-frame decision logic of iptable.
//
// Classify inspects one Ethernet frame, checks that the Ethernet and fixed
// IPv4 headers fit in the buffer, and looks the IPv4 source address up in a
// blacklist. Frames that are not IPv4 always pass. Frames too short to hold
// the headers they announce are aborted.
//
// The kernel program built by package bpf makes the same decision; this
// package is the userspace rendition used for replaying captures and for
// testing blacklists before they are attached.
package packet
