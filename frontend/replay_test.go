package frontend

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/require"
	"github.com/tcassar-diss/iptable/blacklist"
	"github.com/tcassar-diss/iptable/internal/testframes"
	"github.com/tcassar-diss/iptable/packet"
)

func writePcap(t *testing.T, linkType layers.LinkType, frames ...[]byte) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer

	w := pcapgo.NewWriter(&buf)
	require.NoError(t, w.WriteFileHeader(65536, linkType))

	ts := time.Unix(1700000000, 0)

	for _, f := range frames {
		ci := gopacket.CaptureInfo{Timestamp: ts, CaptureLength: len(f), Length: len(f)}
		require.NoError(t, w.WritePacket(ci, f))
	}

	return &buf
}

func TestReplay(t *testing.T) {
	table := blacklist.NewTable(0)
	require.NoError(t, table.Insert(key(t, "10.0.0.5"), 1))
	require.NoError(t, table.Insert(key(t, "198.51.100.0/24"), 2))

	blocked := testframes.UDPv4(t, "10.0.0.5", "192.0.2.1")

	capture := writePcap(t, layers.LinkTypeEthernet,
		blocked,
		testframes.UDPv4(t, "10.0.0.6", "192.0.2.1"),
		blocked[:10],
		testframes.ARP(t, "10.0.0.5", "10.0.0.1"),
		testframes.UDPv4(t, "198.51.100.9", "192.0.2.1"),
	)

	var got []ReplayResult

	err := Replay(capture, packet.NewClassifier(table), func(r ReplayResult) error {
		got = append(got, r)
		return nil
	})
	require.NoError(t, err)

	verdicts := make([]packet.Verdict, 0, len(got))
	for _, r := range got {
		verdicts = append(verdicts, r.Verdict)
	}

	require.Equal(t, []packet.Verdict{packet.Drop, packet.Pass, packet.Abort, packet.Pass, packet.Drop}, verdicts)
	require.Equal(t, uint32(2), got[4].Rule)
	require.Equal(t, 10, got[2].Length)
	require.Equal(t, 5, got[4].Index)
}

func TestWriteReplay(t *testing.T) {
	table := blacklist.NewTable(0)
	require.NoError(t, table.Insert(key(t, "10.0.0.5"), 7))

	capture := writePcap(t, layers.LinkTypeEthernet,
		testframes.UDPv4(t, "10.0.0.5", "192.0.2.1"),
		testframes.UDPv4(t, "10.0.0.6", "192.0.2.1"),
	)

	var out bytes.Buffer

	require.NoError(t, WriteReplay(capture, packet.NewClassifier(table), &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	require.True(t, strings.HasPrefix(lines[0], "1\tdrop\t"))
	require.True(t, strings.HasSuffix(lines[0], "rule=7"))
	require.True(t, strings.HasPrefix(lines[1], "2\tpass\t"))
}

func TestReplay_RejectsNonEthernet(t *testing.T) {
	capture := writePcap(t, layers.LinkTypeRaw)

	err := Replay(capture, packet.NewClassifier(nil), func(ReplayResult) error { return nil })
	require.ErrorIs(t, err, ErrUnsupportedLinkType)
}
