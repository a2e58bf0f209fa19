package filter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/rlimit"
	"github.com/tcassar-diss/iptable/blacklist"
	"github.com/tcassar-diss/iptable/bpf"
	"github.com/tcassar-diss/iptable/packet"
	"go.uber.org/zap"
)

var (
	ErrNoInterface     = errors.New("no interface configured")
	ErrAlreadyAttached = errors.New("filter already attached")
)

// FilterCfg configures where and how the classifier is attached.
type FilterCfg struct {
	Interface string
	Mode      bpf.AttachMode
	Capacity  int // blacklist max_entries
}

// DefaultFilterCfg attaches to lo in generic mode with the default capacity.
func DefaultFilterCfg() *FilterCfg {
	return &FilterCfg{
		Interface: "lo",
		Mode:      bpf.Generic,
		Capacity:  blacklist.DefaultCapacity,
	}
}

// Filter is a golang interface to the XDP classifier.
//
// Using Filter takes three steps: first, calling NewFilter creates the
// blacklist map and loads the program. Filter.Start() attaches it to the
// configured interface and blocks until its context is cancelled, detaching
// on the way out. Blacklist entries are managed through Filter.Table() and
// take effect immediately, attached or not.
type Filter struct {
	logger *zap.SugaredLogger
	cfg    *FilterCfg

	mu    sync.Mutex
	table *bpf.KernelTable
	prog  *ebpf.Program
	xdp   link.Link
}

// NewFilter initialises a new filter.
func NewFilter(logger *zap.SugaredLogger, cfg *FilterCfg) (*Filter, error) {
	if cfg == nil {
		cfg = DefaultFilterCfg()
	}

	if cfg.Mode == "" {
		cfg.Mode = bpf.Generic
	}

	f := &Filter{
		logger: logger,
		cfg:    cfg,
	}

	if err := f.init(); err != nil {
		return nil, fmt.Errorf("failed to initialise filter: %w", err)
	}

	return f, nil
}

func (f *Filter) init() error {
	// kernels before 5.11 charge BPF memory to RLIMIT_MEMLOCK
	if err := rlimit.RemoveMemlock(); err != nil {
		return fmt.Errorf("failed to remove memlock rlimit: %w", err)
	}

	table, err := bpf.NewKernelTable(f.cfg.Capacity)
	if err != nil {
		return fmt.Errorf("failed to create blacklist: %w", err)
	}

	prog, err := bpf.LoadProgram(table)
	if err != nil {
		table.Close()
		return fmt.Errorf("failed to load program: %w", err)
	}

	f.table = table
	f.prog = prog

	f.logger.Infow("loaded xdp classifier", "capacity", table.Cap())

	return nil
}

// Table returns the kernel blacklist the program reads from.
func (f *Filter) Table() *bpf.KernelTable {
	return f.table
}

// Attach attaches the program to the configured interface.
func (f *Filter) Attach() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.xdp != nil {
		return ErrAlreadyAttached
	}

	if f.cfg.Interface == "" {
		return ErrNoInterface
	}

	iface, err := net.InterfaceByName(f.cfg.Interface)
	if err != nil {
		return fmt.Errorf("failed to find interface %q: %w", f.cfg.Interface, err)
	}

	flags, err := f.cfg.Mode.Flags()
	if err != nil {
		return err
	}

	xdp, err := link.AttachXDP(link.XDPOptions{
		Program:   f.prog,
		Interface: iface.Index,
		Flags:     flags,
	})
	if err != nil {
		return fmt.Errorf("failed to attach XDP to %s: %w", f.cfg.Interface, err)
	}

	f.xdp = xdp

	f.logger.Infow("attached xdp classifier", "interface", f.cfg.Interface, "mode", f.cfg.Mode)

	return nil
}

// Detach removes the program from the interface. Detaching a detached
// filter is a no-op.
func (f *Filter) Detach() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.xdp == nil {
		return nil
	}

	err := f.xdp.Close()
	f.xdp = nil

	if err != nil {
		return fmt.Errorf("failed to detach from %s: %w", f.cfg.Interface, err)
	}

	f.logger.Infow("detached", "interface", f.cfg.Interface)

	return nil
}

// Start attaches the classifier and blocks until ctx is cancelled. Start is blocking!
func (f *Filter) Start(ctx context.Context) error {
	if err := f.Attach(); err != nil {
		return err
	}

	<-ctx.Done()

	return f.Detach()
}

// Classify runs frame through the loaded program without attaching it.
func (f *Filter) Classify(frame []byte) (packet.Verdict, error) {
	ret, err := f.prog.Run(&ebpf.RunOptions{Data: frame})
	if err != nil {
		return packet.Abort, fmt.Errorf("failed to test-run program: %w", err)
	}

	return packet.VerdictFromXDP(ret), nil
}

// Close detaches the program and releases all kernel resources.
func (f *Filter) Close() error {
	var errs []error

	if err := f.Detach(); err != nil {
		errs = append(errs, err)
	}

	if err := f.prog.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close program: %w", err))
	}

	if err := f.table.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close blacklist map: %w", err))
	}

	return errors.Join(errs...)
}
