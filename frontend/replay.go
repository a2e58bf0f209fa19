package frontend

import (
	"errors"
	"fmt"
	"io"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/tcassar-diss/iptable/packet"
)

var ErrUnsupportedLinkType = errors.New("capture is not ethernet")

// ReplayResult is the verdict for one captured frame.
type ReplayResult struct {
	Index   int // 1-based, as in wireshark
	Length  int
	Verdict packet.Verdict
	Rule    uint32 // only meaningful for Drop
}

func (r ReplayResult) String() string {
	if r.Verdict == packet.Drop {
		return fmt.Sprintf("%d\t%s\tlen=%d\trule=%d", r.Index, r.Verdict, r.Length, r.Rule)
	}

	return fmt.Sprintf("%d\t%s\tlen=%d", r.Index, r.Verdict, r.Length)
}

// FrameClassifier is satisfied by *packet.Classifier and by adapters around
// the kernel program.
type FrameClassifier interface {
	Rule(frame []byte) (packet.Verdict, uint32)
}

// Replay classifies every frame of a pcap stream and hands each result to fn.
func Replay(r io.Reader, classifier FrameClassifier, fn func(ReplayResult) error) error {
	rd, err := pcapgo.NewReader(r)
	if err != nil {
		return fmt.Errorf("failed to open capture: %w", err)
	}

	if lt := rd.LinkType(); lt != layers.LinkTypeEthernet {
		return fmt.Errorf("%w: %s", ErrUnsupportedLinkType, lt)
	}

	for i := 1; ; i++ {
		data, _, err := rd.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return nil
		} else if err != nil {
			return fmt.Errorf("failed to read frame %d: %w", i, err)
		}

		v, rule := classifier.Rule(data)

		if err := fn(ReplayResult{Index: i, Length: len(data), Verdict: v, Rule: rule}); err != nil {
			return err
		}
	}
}

// WriteReplay writes one line per frame to w.
func WriteReplay(r io.Reader, classifier FrameClassifier, w io.Writer) error {
	return Replay(r, classifier, func(res ReplayResult) error {
		_, err := fmt.Fprintln(w, res.String())
		return err
	})
}
