package feed

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"

	"go.uber.org/zap"
)

// Source produces observations until its channel is closed.
type Source interface {
	Observations(ctx context.Context) (<-chan Observation, error)
}

// CommandSource runs a bridge process (for example a monitor gateway
// adapter) and reads JSON-line observations from its stdout.
type CommandSource struct {
	name string
	args []string
	log  *zap.Logger

	mu  sync.Mutex
	cmd *exec.Cmd
}

// NewCommandSource creates a CommandSource for name with args.
func NewCommandSource(name string, args []string, log *zap.Logger) *CommandSource {
	if log == nil {
		log = zap.NewNop()
	}
	return &CommandSource{name: name, args: args, log: log}
}

// Observations starts the process. The channel closes when the process exits
// or ctx is cancelled.
func (c *CommandSource) Observations(ctx context.Context) (<-chan Observation, error) {
	if c.name == "" {
		return nil, errors.New("feed command is empty")
	}

	cmd := exec.CommandContext(ctx, c.name, c.args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", c.name, err)
	}

	c.mu.Lock()
	c.cmd = cmd
	c.mu.Unlock()

	in := NewReader(stdout, c.log).Observations(ctx)
	out := make(chan Observation, 64)

	go func() {
		defer close(out)

		forward(ctx, in, out)

		// A grandchild may still hold stdout open after cancellation, so
		// unblock the reader here. Wait closes stdout too, which is only
		// safe once the reader has finished.
		if ctx.Err() != nil {
			_ = stdout.Close()
		}
		for range in {
		}
		if err := cmd.Wait(); err != nil && ctx.Err() == nil {
			c.log.Warn("feed command exited", zap.String("command", c.name), zap.Error(err))
		}
	}()

	return out, nil
}

func forward(ctx context.Context, in <-chan Observation, out chan<- Observation) {
	for {
		select {
		case obs, ok := <-in:
			if !ok {
				return
			}
			select {
			case out <- obs:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// PID returns the running process ID, or 0 before start.
func (c *CommandSource) PID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cmd == nil || c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}
