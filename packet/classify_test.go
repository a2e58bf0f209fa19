package packet_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tcassar-diss/iptable/blacklist"
	"github.com/tcassar-diss/iptable/internal/testframes"
	"github.com/tcassar-diss/iptable/packet"
)

func newClassifier(t *testing.T, entries map[string]uint32) *packet.Classifier {
	t.Helper()

	table := blacklist.NewTable(blacklist.DefaultCapacity)

	for cidr, rule := range entries {
		k, err := blacklist.ParseKey(cidr)
		require.NoError(t, err)
		require.NoError(t, table.Insert(k, rule))
	}

	return packet.NewClassifier(table)
}

func TestClassify_Scenario(t *testing.T) {
	c := newClassifier(t, map[string]uint32{"10.0.0.5/32": 1})

	blocked := testframes.UDPv4(t, "10.0.0.5", "192.0.2.1")

	tests := []struct {
		name     string
		frame    []byte
		expected packet.Verdict
	}{
		{name: "blacklisted source", frame: blocked, expected: packet.Drop},
		{name: "neighbouring source", frame: testframes.UDPv4(t, "10.0.0.6", "192.0.2.1"), expected: packet.Pass},
		{name: "truncated to 10 bytes", frame: blocked[:10], expected: packet.Abort},
		{name: "arp from blacklisted host", frame: testframes.ARP(t, "10.0.0.5", "10.0.0.1"), expected: packet.Pass},
		{name: "blacklisted address as destination", frame: testframes.UDPv4(t, "192.0.2.1", "10.0.0.5"), expected: packet.Pass},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, c.Classify(tt.frame))
		})
	}
}

func TestClassify_ShortFramesAbort(t *testing.T) {
	c := newClassifier(t, nil)
	frame := testframes.UDPv4(t, "10.0.0.5", "192.0.2.1")

	for n := 0; n < packet.EthHeaderLen; n++ {
		require.Equal(t, packet.Abort, c.Classify(frame[:n]), "len %d", n)
	}

	require.Equal(t, packet.Abort, c.Classify(nil))
}

func TestClassify_TruncatedIPv4Aborts(t *testing.T) {
	c := newClassifier(t, map[string]uint32{"10.0.0.5": 1})

	for n := 0; n < packet.IPv4HeaderLen; n++ {
		frame := testframes.TruncatedIPv4(t, "10.0.0.5", n)
		require.Equal(t, packet.Abort, c.Classify(frame), "ip bytes %d", n)
	}

	// exactly a bare header is enough
	frame := testframes.TruncatedIPv4(t, "10.0.0.5", packet.IPv4HeaderLen)
	require.Equal(t, packet.Drop, c.Classify(frame))
}

func TestClassify_NonIPv4Passes(t *testing.T) {
	c := newClassifier(t, map[string]uint32{"0.0.0.0/0": 9})

	require.Equal(t, packet.Pass, c.Classify(testframes.IPv6(t)))
	require.Equal(t, packet.Pass, c.Classify(testframes.ARP(t, "10.0.0.5", "10.0.0.1")))

	// an Ethernet header alone with a foreign ethertype needs nothing after it
	hdr := make([]byte, packet.EthHeaderLen)
	hdr[12], hdr[13] = 0x88, 0xcc
	require.Equal(t, packet.Pass, c.Classify(hdr))
}

func TestClassify_PrefixEntries(t *testing.T) {
	c := newClassifier(t, map[string]uint32{
		"10.0.0.0/8":  8,
		"10.1.1.0/24": 24,
	})

	v, rule := c.Rule(testframes.UDPv4(t, "10.1.1.1", "192.0.2.1"))
	require.Equal(t, packet.Drop, v)
	require.Equal(t, uint32(24), rule)

	v, rule = c.Rule(testframes.UDPv4(t, "10.9.9.9", "192.0.2.1"))
	require.Equal(t, packet.Drop, v)
	require.Equal(t, uint32(8), rule)

	v, rule = c.Rule(testframes.UDPv4(t, "11.0.0.1", "192.0.2.1"))
	require.Equal(t, packet.Pass, v)
	require.Zero(t, rule)
}

func TestClassify_Idempotent(t *testing.T) {
	c := newClassifier(t, map[string]uint32{"10.0.0.5": 1})
	frames := [][]byte{
		testframes.UDPv4(t, "10.0.0.5", "192.0.2.1"),
		testframes.UDPv4(t, "10.0.0.6", "192.0.2.1"),
		testframes.ARP(t, "10.0.0.5", "10.0.0.1"),
		{0x00, 0x01},
	}

	for _, f := range frames {
		snapshot := append([]byte(nil), f...)
		first := c.Classify(f)

		for i := 0; i < 10; i++ {
			require.Equal(t, first, c.Classify(f))
		}

		require.Equal(t, snapshot, f, "frame must not be modified")
	}
}

func TestClassify_NilTablePasses(t *testing.T) {
	c := packet.NewClassifier(nil)

	require.Equal(t, packet.Pass, c.Classify(testframes.UDPv4(t, "10.0.0.5", "192.0.2.1")))
	require.Equal(t, packet.Abort, c.Classify([]byte{0x01}))
}

func TestClassify_TypedNilTablePasses(t *testing.T) {
	var table *blacklist.Table

	c := packet.NewClassifier(table)

	require.NotPanics(t, func() {
		require.Equal(t, packet.Pass, c.Classify(testframes.UDPv4(t, "10.0.0.5", "192.0.2.1")))
	})
}

func TestClassify_DoesNotAllocate(t *testing.T) {
	c := newClassifier(t, map[string]uint32{"10.0.0.0/8": 8, "10.1.2.3": 32})

	frames := map[string][]byte{
		"host hit":   testframes.UDPv4(t, "10.1.2.3", "192.0.2.1"),
		"prefix hit": testframes.UDPv4(t, "10.200.0.1", "192.0.2.1"),
		"miss":       testframes.UDPv4(t, "11.0.0.1", "192.0.2.1"),
		"arp":        testframes.ARP(t, "10.0.0.5", "10.0.0.1"),
		"short":      {0x00, 0x01},
	}

	for name, frame := range frames {
		t.Run(name, func(t *testing.T) {
			allocs := testing.AllocsPerRun(1000, func() {
				c.Classify(frame)
			})
			require.Zero(t, allocs)
		})
	}
}

func TestVerdict_XDPAction(t *testing.T) {
	for _, v := range []packet.Verdict{packet.Pass, packet.Drop, packet.Abort} {
		require.Equal(t, v, packet.VerdictFromXDP(v.XDPAction()), v.String())
	}

	require.Equal(t, uint32(0), packet.Abort.XDPAction())
	require.Equal(t, uint32(1), packet.Drop.XDPAction())
	require.Equal(t, uint32(2), packet.Pass.XDPAction())
}

func BenchmarkClassify(b *testing.B) {
	table := blacklist.NewTable(blacklist.DefaultCapacity)
	k, _ := blacklist.ParseKey("10.0.0.5")
	_ = table.Insert(k, 1)

	c := packet.NewClassifier(table)
	frame := testframes.UDPv4(b, "10.0.0.6", "192.0.2.1")

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		c.Classify(frame)
	}
}
