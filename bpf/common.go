package bpf

import (
	"errors"
	"fmt"

	"github.com/cilium/ebpf/link"
)

var ErrInvalidAttachMode = errors.New("invalid attach mode")

// XDP return codes.
const (
	XDPAborted uint32 = 0
	XDPDrop    uint32 = 1
	XDPPass    uint32 = 2
)

// AttachMode selects how the XDP program is attached to an interface.
type AttachMode string

const (
	// Generic runs the program in the kernel networking stack. Works everywhere.
	Generic AttachMode = "generic"
	// Driver runs the program in the NIC driver. Needs driver support.
	Driver AttachMode = "driver"
	// Offload runs the program on the NIC itself.
	Offload AttachMode = "offload"
)

// ParseAttachMode parses s; the empty string selects Generic.
func ParseAttachMode(s string) (AttachMode, error) {
	switch AttachMode(s) {
	case "", Generic:
		return Generic, nil
	case Driver:
		return Driver, nil
	case Offload:
		return Offload, nil
	default:
		return "", fmt.Errorf("%w: %q (expected generic, driver or offload)", ErrInvalidAttachMode, s)
	}
}

// Flags returns the link flags for m.
func (m AttachMode) Flags() (link.XDPAttachFlags, error) {
	switch m {
	case Generic:
		return link.XDPGenericMode, nil
	case Driver:
		return link.XDPDriverMode, nil
	case Offload:
		return link.XDPOffloadMode, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidAttachMode, string(m))
	}
}
