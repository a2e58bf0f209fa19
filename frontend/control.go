package frontend

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/tcassar-diss/iptable/blacklist"
	"go.uber.org/zap"
)

var (
	ErrInvalidConfig  = errors.New("invalid config")
	ErrUnknownCommand = errors.New("unknown command")
	ErrBadArguments   = errors.New("bad arguments")
)

const controlUsage = "commands: add <addr|cidr> [rule], del <addr|cidr>, check <addr>, list"

// Controller applies line commands to a blacklist:
//
//	add 10.0.0.5          blacklist a host (rule 0)
//	add 10.0.0.0/8 3      blacklist a prefix as rule 3
//	del 10.0.0.5          remove an entry
//	check 10.1.2.3        report the rule a source address would hit
//	list                  print every entry
type Controller struct {
	logger *zap.SugaredLogger
	store  blacklist.Store
}

func NewController(logger *zap.SugaredLogger, store blacklist.Store) *Controller {
	return &Controller{logger: logger, store: store}
}

// Execute runs a single command and returns its reply.
func (c *Controller) Execute(line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}

	switch cmd, args := strings.ToLower(fields[0]), fields[1:]; cmd {
	case "add":
		return c.add(args)
	case "del", "delete", "remove":
		return c.remove(args)
	case "check":
		return c.check(args)
	case "list":
		return c.list()
	case "help":
		return controlUsage, nil
	default:
		return "", fmt.Errorf("%w: %q (%s)", ErrUnknownCommand, cmd, controlUsage)
	}
}

func (c *Controller) add(args []string) (string, error) {
	if len(args) < 1 || len(args) > 2 {
		return "", fmt.Errorf("%w: add <addr|cidr> [rule]", ErrBadArguments)
	}

	k, err := blacklist.ParseKey(args[0])
	if err != nil {
		return "", err
	}

	var rule uint32

	if len(args) == 2 {
		r, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return "", fmt.Errorf("%w: rule %q: %v", ErrBadArguments, args[1], err)
		}

		rule = uint32(r)
	}

	if err := c.store.Insert(k, rule); err != nil {
		return "", fmt.Errorf("failed to add %s: %w", k, err)
	}

	c.logger.Infow("adding prefix to blacklist", "prefix", k.String(), "rule", rule)

	return fmt.Sprintf("added %s (rule %d)", k, rule), nil
}

func (c *Controller) remove(args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("%w: del <addr|cidr>", ErrBadArguments)
	}

	k, err := blacklist.ParseKey(args[0])
	if err != nil {
		return "", err
	}

	if err := c.store.Remove(k); err != nil {
		return "", fmt.Errorf("failed to remove %s: %w", k, err)
	}

	c.logger.Infow("removed prefix from blacklist", "prefix", k.String())

	return fmt.Sprintf("removed %s", k), nil
}

func (c *Controller) check(args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("%w: check <addr>", ErrBadArguments)
	}

	k, err := blacklist.ParseKey(args[0])
	if err != nil {
		return "", err
	}

	if k.PrefixLen != blacklist.MaxPrefixLen {
		return "", fmt.Errorf("%w: check takes an address, not a prefix", ErrBadArguments)
	}

	rule, ok := c.store.Lookup(k)
	if !ok {
		return fmt.Sprintf("%s pass", k.Prefix().Addr()), nil
	}

	reply := fmt.Sprintf("%s drop (rule %d)", k.Prefix().Addr(), rule)

	cov, ok := c.store.(coverer)
	if !ok {
		return reply, nil
	}

	entries, err := cov.Covering(k.Addr)
	if err != nil || len(entries) < 2 {
		return reply, nil
	}

	shadowed := make([]string, 0, len(entries)-1)
	for _, e := range entries[:len(entries)-1] {
		shadowed = append(shadowed, fmt.Sprintf("%s rule %d", e.Key, e.Rule))
	}

	return fmt.Sprintf("%s, shadows %s", reply, strings.Join(shadowed, ", ")), nil
}

// coverer is implemented by stores that can list every prefix containing
// an address, not only the longest.
type coverer interface {
	Covering(addr [4]byte) ([]blacklist.Entry, error)
}

func (c *Controller) list() (string, error) {
	entries, err := c.store.Entries()
	if err != nil {
		return "", fmt.Errorf("failed to list blacklist: %w", err)
	}

	if len(entries) == 0 {
		return "blacklist is empty", nil
	}

	var sb strings.Builder

	for i, e := range entries {
		if i > 0 {
			sb.WriteByte('\n')
		}

		fmt.Fprintf(&sb, "%s rule %d", e.Key, e.Rule)
	}

	return sb.String(), nil
}

// Serve reads commands from r until EOF or ctx is cancelled, writing one
// reply per command to w. Failed commands are reported and skipped.
func (c *Controller) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	lines := make(chan string)
	errChan := make(chan error, 1)

	// the scanner blocks in Read, so it gets its own goroutine and ctx is
	// watched here instead
	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				errChan <- nil
				return
			}
		}

		errChan <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				if err := <-errChan; err != nil {
					return fmt.Errorf("failed to read commands: %w", err)
				}

				c.logger.Infow("control input closed")

				return nil
			}

			reply, err := c.Execute(line)
			if err != nil {
				c.logger.Warnw("control command failed", "cmd", line, "err", err)
				reply = "error: " + err.Error()
			}

			if reply == "" {
				continue
			}

			if _, err := fmt.Fprintln(w, reply); err != nil {
				return fmt.Errorf("failed to write reply: %w", err)
			}
		}
	}
}
