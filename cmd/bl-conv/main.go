package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/tcassar-diss/iptable/blacklist"
	"github.com/tcassar-diss/iptable/frontend"
	"github.com/urfave/cli/v2"
)

type convCfg struct {
	firstRule uint
	capacity  int
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	cfg := &convCfg{}

	return &cli.App{
		Flags: []cli.Flag{
			&cli.UintFlag{
				Name:        "first-rule",
				Usage:       "rule id given to the first entry; later entries count up from it",
				Value:       0,
				Destination: &cfg.firstRule,
			}, &cli.IntFlag{
				Name:        "capacity",
				Usage:       "refuse lists that would not fit a table of this size (0 disables the check)",
				Value:       blacklist.DefaultCapacity,
				Destination: &cfg.capacity,
			},
		},
		Name:      "bl-conv",
		ArgsUsage: "<blacklist.txt|-> <blacklist.toml>",
		Usage:     "convert a plain address list into an iptable blacklist file",
		Action: func(cCtx *cli.Context) error {
			if nArgs := cCtx.Args().Len(); nArgs != 2 {
				_ = cli.ShowAppHelp(cCtx)

				return cli.Exit(
					fmt.Sprintf("\nERROR: Wrong number of arguments! Expected 2, got %d", nArgs),
					1,
				)
			}

			var in io.Reader = os.Stdin

			if src := cCtx.Args().Get(0); src != "-" {
				f, err := os.Open(src)
				if err != nil {
					return cli.Exit(fmt.Sprintf("failed to open address list: %v", err), 1)
				}
				defer f.Close()

				in = f
			}

			return convert(in, cCtx.Args().Get(1), cfg)
		},
	}
}

// convert writes the TOML form of the address list in to dst.
func convert(in io.Reader, dst string, cfg *convCfg) error {
	entries, err := frontend.ParseTextBlacklist(in, uint32(cfg.firstRule))
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to parse address list: %v", err), 2)
	}

	if cfg.capacity > 0 && len(entries) > cfg.capacity {
		return cli.Exit(
			fmt.Sprintf("%v: %d entries, capacity %d", blacklist.ErrCapacityExceeded, len(entries), cfg.capacity),
			2,
		)
	}

	out, err := os.Create(dst)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to create blacklist file: %v", err), 1)
	}

	if err := frontend.MarshalTOMLBlacklist(out, entries); err != nil {
		_ = out.Close()
		return cli.Exit(fmt.Sprintf("failed to write blacklist: %v", err), 2)
	}

	if err := out.Close(); err != nil {
		return cli.Exit(fmt.Sprintf("failed to write blacklist: %v", err), 2)
	}

	return nil
}
