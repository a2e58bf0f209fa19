package frontend

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/tcassar-diss/iptable/blacklist"
	"github.com/tcassar-diss/iptable/bpf"
	"github.com/tcassar-diss/iptable/bpf/filter"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RunCfg describes one daemon run.
type RunCfg struct {
	Config *Config
	// Commands are read from Control and answered on Replies. A nil Control
	// disables the line interface.
	Control io.Reader
	Replies io.Writer
}

// Run loads the classifier, fills the blacklist, attaches to the configured
// interface and serves control commands until SIGINT/SIGTERM or ctx ends.
func Run(ctx context.Context, logger *zap.SugaredLogger, cfg *RunCfg) error {
	logger.Infoln("=== Launching iptable ===")
	defer logger.Sync()

	if err := cfg.Config.Validate(); err != nil {
		return err
	}

	mode, err := bpf.ParseAttachMode(cfg.Config.Mode)
	if err != nil {
		return err
	}

	f, err := filter.NewFilter(logger, &filter.FilterCfg{
		Interface: cfg.Config.Interface,
		Mode:      mode,
		Capacity:  cfg.Config.Capacity,
	})
	if err != nil {
		return fmt.Errorf("failed to initialise filter: %w", err)
	}
	defer f.Close()

	if err := loadBlacklist(logger, f.Table(), cfg.Config.BlacklistPath); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		return f.Start(ctx)
	})

	if cfg.Control != nil {
		replies := cfg.Replies
		if replies == nil {
			replies = io.Discard
		}

		ctl := NewController(logger, f.Table())

		eg.Go(func() error {
			return ctl.Serve(ctx, cfg.Control, replies)
		})
	}

	if err := eg.Wait(); err != nil {
		return fmt.Errorf("error encountered while filtering: %w", err)
	}

	logger.Infow("detached, exiting")

	return nil
}

func loadBlacklist(logger *zap.SugaredLogger, store blacklist.Store, path string) error {
	if path == "" {
		return nil
	}

	entries, err := ParseTOMLBlacklist(path)
	if err != nil {
		return fmt.Errorf("failed to parse blacklist: %w", err)
	}

	if err := blacklist.Load(store, entries); err != nil {
		return fmt.Errorf("failed to register blacklist: %w", err)
	}

	logger.Infow("registered blacklist", "path", path, "entries", len(entries))

	return nil
}
