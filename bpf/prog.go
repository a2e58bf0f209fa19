package bpf

import (
	"encoding/binary"
	"fmt"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/asm"
)

const (
	ethHeaderLen  = 14
	ipv4HeaderLen = 20
	ethProtoOff   = 12
	ipv4SaddrOff  = ethHeaderLen + 12

	// offsets into struct xdp_md
	xdpMDData    = 0
	xdpMDDataEnd = 4

	// struct { __u32 prefixlen; __u32 saddr; } key on the stack
	keyStackOff     = -8
	keyAddrStackOff = -4
)

// ethPIPv4 is ETH_P_IP as it reads when the wire bytes are loaded as a
// host-order half word.
var ethPIPv4 = int32(binary.NativeEndian.Uint16([]byte{0x08, 0x00}))

// Instructions returns the XDP classifier. It drops IPv4 frames whose source
// address matches the LPM trie behind mapFD, aborts frames too short for
// the headers they announce, and passes everything else.
func Instructions(mapFD int) asm.Instructions {
	return asm.Instructions{
		// r2 = data, r3 = data_end
		asm.LoadMem(asm.R2, asm.R1, xdpMDData, asm.Word),
		asm.LoadMem(asm.R3, asm.R1, xdpMDDataEnd, asm.Word),

		// ethernet header bounds
		asm.Mov.Reg(asm.R4, asm.R2),
		asm.Add.Imm(asm.R4, ethHeaderLen),
		asm.JGT.Reg(asm.R4, asm.R3, "abort"),

		// non IPv4 traffic passes
		asm.LoadMem(asm.R5, asm.R2, ethProtoOff, asm.Half),
		asm.JNE.Imm(asm.R5, ethPIPv4, "pass"),

		// IPv4 header bounds
		asm.Mov.Reg(asm.R4, asm.R2),
		asm.Add.Imm(asm.R4, ethHeaderLen+ipv4HeaderLen),
		asm.JGT.Reg(asm.R4, asm.R3, "abort"),

		// key = { .prefixlen = 32, .saddr = ip->saddr }
		asm.LoadMem(asm.R5, asm.R2, ipv4SaddrOff, asm.Word),
		asm.StoreImm(asm.RFP, keyStackOff, 32, asm.Word),
		asm.StoreMem(asm.RFP, keyAddrStackOff, asm.R5, asm.Word),

		asm.LoadMapPtr(asm.R1, mapFD),
		asm.Mov.Reg(asm.R2, asm.RFP),
		asm.Add.Imm(asm.R2, keyStackOff),
		asm.FnMapLookupElem.Call(),
		asm.JEq.Imm(asm.R0, 0, "pass"),

		asm.Mov.Imm(asm.R0, int32(XDPDrop)),
		asm.Return(),

		asm.Mov.Imm(asm.R0, int32(XDPPass)).WithSymbol("pass"),
		asm.Return(),

		asm.Mov.Imm(asm.R0, int32(XDPAborted)).WithSymbol("abort"),
		asm.Return(),
	}
}

// LoadProgram loads the classifier into the kernel, bound to table.
func LoadProgram(table *KernelTable) (*ebpf.Program, error) {
	prog, err := ebpf.NewProgram(&ebpf.ProgramSpec{
		Name:         "iptable",
		Type:         ebpf.XDP,
		License:      "GPL",
		Instructions: Instructions(table.m.FD()),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load iptable program: %w", err)
	}

	return prog, nil
}
