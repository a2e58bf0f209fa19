package packet

import (
	"encoding/binary"

	"github.com/tcassar-diss/iptable/blacklist"
)

const (
	EthHeaderLen  = 14
	IPv4HeaderLen = 20

	EtherTypeIPv4 = 0x0800
	EtherTypeARP  = 0x0806

	ethProtoOffset  = 12
	ipv4SrcOffset   = 12
	xdpAbortedValue = 0
	xdpDropValue    = 1
	xdpPassValue    = 2
)

// Verdict is the outcome of classifying one frame.
type Verdict uint8

const (
	Pass Verdict = iota
	Drop
	Abort // structurally invalid frame
)

func (v Verdict) String() string {
	switch v {
	case Pass:
		return "pass"
	case Drop:
		return "drop"
	case Abort:
		return "abort"
	default:
		return "unknown"
	}
}

// XDPAction maps v onto the XDP return code the kernel expects.
func (v Verdict) XDPAction() uint32 {
	switch v {
	case Drop:
		return xdpDropValue
	case Abort:
		return xdpAbortedValue
	default:
		return xdpPassValue
	}
}

// VerdictFromXDP is the inverse of Verdict.XDPAction. Unknown codes pass.
func VerdictFromXDP(action uint32) Verdict {
	switch action {
	case xdpAbortedValue:
		return Abort
	case xdpDropValue:
		return Drop
	default:
		return Pass
	}
}

// Lookuper is the read side of a blacklist.
type Lookuper interface {
	Lookup(key blacklist.Key) (uint32, bool)
}

// Classifier decides Pass/Drop/Abort for frames against a blacklist.
// It is safe for concurrent use if its Lookuper is.
type Classifier struct {
	table Lookuper
}

func NewClassifier(table Lookuper) *Classifier {
	return &Classifier{table: table}
}

// Classify returns the verdict for frame. frame is only read, and only
// within its bounds.
func (c *Classifier) Classify(frame []byte) Verdict {
	v, _ := c.Rule(frame)
	return v
}

// Rule is Classify that also reports the id of the matching rule on Drop.
func (c *Classifier) Rule(frame []byte) (Verdict, uint32) {
	if len(frame) < EthHeaderLen {
		return Abort, 0
	}

	if binary.BigEndian.Uint16(frame[ethProtoOffset:ethProtoOffset+2]) != EtherTypeIPv4 {
		return Pass, 0
	}

	ip := frame[EthHeaderLen:]
	if len(ip) < IPv4HeaderLen {
		return Abort, 0
	}

	var src [4]byte
	copy(src[:], ip[ipv4SrcOffset:ipv4SrcOffset+4])

	if c == nil || c.table == nil {
		return Pass, 0
	}

	if rule, ok := c.table.Lookup(blacklist.HostKey(src)); ok {
		return Drop, rule
	}

	return Pass, 0
}
