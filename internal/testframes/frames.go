// Package testframes builds Ethernet frames for tests.
package testframes

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

var (
	SrcMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	DstMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
)

func serialize(t testing.TB, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}

	if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
		t.Fatalf("failed to serialize frame: %v", err)
	}

	return buf.Bytes()
}

// UDPv4 returns an Ethernet/IPv4/UDP frame from src to dst.
func UDPv4(t testing.TB, src, dst string) []byte {
	t.Helper()

	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.ParseIP(src).To4(),
		DstIP:    net.ParseIP(dst).To4(),
	}

	udp := &layers.UDP{SrcPort: 40000, DstPort: 53}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatalf("failed to set checksum layer: %v", err)
	}

	return serialize(t,
		&layers.Ethernet{SrcMAC: SrcMAC, DstMAC: DstMAC, EthernetType: layers.EthernetTypeIPv4},
		ip,
		udp,
		gopacket.Payload([]byte("iptable")),
	)
}

// ARP returns an ARP request frame asking for target on behalf of sender.
func ARP(t testing.TB, sender, target string) []byte {
	t.Helper()

	return serialize(t,
		&layers.Ethernet{
			SrcMAC:       SrcMAC,
			DstMAC:       layers.EthernetBroadcast,
			EthernetType: layers.EthernetTypeARP,
		},
		&layers.ARP{
			AddrType:          layers.LinkTypeEthernet,
			Protocol:          layers.EthernetTypeIPv4,
			HwAddressSize:     6,
			ProtAddressSize:   4,
			Operation:         layers.ARPRequest,
			SourceHwAddress:   SrcMAC,
			SourceProtAddress: net.ParseIP(sender).To4(),
			DstHwAddress:      make([]byte, 6),
			DstProtAddress:    net.ParseIP(target).To4(),
		},
	)
}

// IPv6 returns an Ethernet/IPv6/UDP frame.
func IPv6(t testing.TB) []byte {
	t.Helper()

	ip := &layers.IPv6{
		Version:    6,
		HopLimit:   64,
		NextHeader: layers.IPProtocolUDP,
		SrcIP:      net.ParseIP("2001:db8::1"),
		DstIP:      net.ParseIP("2001:db8::2"),
	}

	udp := &layers.UDP{SrcPort: 40000, DstPort: 53}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatalf("failed to set checksum layer: %v", err)
	}

	return serialize(t,
		&layers.Ethernet{SrcMAC: SrcMAC, DstMAC: DstMAC, EthernetType: layers.EthernetTypeIPv6},
		ip,
		udp,
	)
}

// TruncatedIPv4 returns an Ethernet header announcing IPv4 followed by only
// ipBytes bytes of IPv4 header.
func TruncatedIPv4(t testing.TB, src string, ipBytes int) []byte {
	t.Helper()

	frame := UDPv4(t, src, "192.0.2.1")

	return frame[:14+ipBytes]
}
