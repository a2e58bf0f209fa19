package cmd

import (
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/tcassar-diss/iptable/blacklist"
	"github.com/tcassar-diss/iptable/bpf/filter"
	"github.com/tcassar-diss/iptable/frontend"
	"github.com/tcassar-diss/iptable/packet"
	"go.uber.org/zap"
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Classify every frame of a pcap capture against a blacklist.",
	Long: `
Check replays a capture through the classifier without attaching anything and
prints one verdict per frame.
USAGE
	iptable check [--kernel] [BLACKLIST.toml] [CAPTURE.pcap]
where
	[BLACKLIST.toml] is a blacklist file ([rules] "cidr" = rule-id).
	[CAPTURE.pcap] is an Ethernet pcap capture.
	--kernel runs frames through the loaded XDP program (needs CAP_BPF) instead of
	the userspace classifier.
`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		l, err := zap.NewProduction()
		if err != nil {
			log.Fatalf("failed to get zap production logger: %v", err)
		}

		logger := l.Sugar()
		defer logger.Sync()

		entries, err := frontend.ParseTOMLBlacklist(args[0])
		if err != nil {
			logger.Fatalw("failed to parse blacklist", "path", args[0], "err", err)
		}

		capture, err := os.Open(args[1])
		if err != nil {
			logger.Fatalw("failed to open capture", "path", args[1], "err", err)
		}
		defer capture.Close()

		kernel, err := cmd.Flags().GetBool("kernel")
		if err != nil {
			logger.Fatalw("failed to get kernel flag", "err", err)
		}

		var classifier frontend.FrameClassifier

		if kernel {
			f, err := filter.NewFilter(logger, &filter.FilterCfg{Capacity: len(entries)})
			if err != nil {
				logger.Fatalw("failed to load filter", "err", err)
			}
			defer f.Close()

			if err := blacklist.Load(f.Table(), entries); err != nil {
				logger.Fatalw("failed to register blacklist", "err", err)
			}

			classifier = &kernelClassifier{logger: logger, filter: f}
		} else {
			table := blacklist.NewTable(len(entries))
			if err := blacklist.Load(table, entries); err != nil {
				logger.Fatalw("failed to register blacklist", "err", err)
			}

			classifier = packet.NewClassifier(table)
		}

		if err := frontend.WriteReplay(capture, classifier, os.Stdout); err != nil {
			logger.Fatalw("failed to replay capture", "err", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().Bool("kernel", false, "classify with the kernel program instead of in userspace")
}

// kernelClassifier adapts a loaded (not attached) filter to frontend.FrameClassifier.
type kernelClassifier struct {
	logger *zap.SugaredLogger
	filter *filter.Filter
}

func (k *kernelClassifier) Rule(frame []byte) (packet.Verdict, uint32) {
	// the kernel refuses to test-run frames shorter than an Ethernet header,
	// which the classifier would abort anyway
	if len(frame) < packet.EthHeaderLen {
		return packet.Abort, 0
	}

	v, err := k.filter.Classify(frame)
	if err != nil {
		k.logger.Warnw("kernel classification failed", "len", len(frame), "err", err)
		return packet.Abort, 0
	}

	if v != packet.Drop {
		return v, 0
	}

	var src [4]byte
	copy(src[:], frame[packet.EthHeaderLen+12:])

	rule, _ := k.filter.Table().Lookup(blacklist.HostKey(src))

	return v, rule
}

var _ frontend.FrameClassifier = (*kernelClassifier)(nil)
