package core

import (
	"context"
	"errors"
	"fmt"
)

// CommandKind selects a pipeline operation.
type CommandKind string

const (
	CmdRunFetch       CommandKind = "run_fetch"
	CmdRunEnrich      CommandKind = "run_enrich"
	CmdRunIntegrator  CommandKind = "run_integrator"
	CmdRunConsolidate CommandKind = "run_consolidate"
	CmdReloadSources  CommandKind = "reload_sources"
	CmdShutdown       CommandKind = "shutdown"
)

// ErrBusFull reports a command dropped because the supervisor is
// behind.
var ErrBusFull = errors.New("control bus full")

// Command is an operator request submitted through the API. Reply is
// optional; when set it receives the dispatch result exactly once.
type Command struct {
	Kind       CommandKind
	Integrator string   // run_integrator
	Sources    []string // run_fetch, empty means all enabled
	Reply      chan error
}

// Bus carries operator commands from the API to the supervisor.
type Bus struct {
	ch chan Command
}

func NewBus() *Bus {
	return &Bus{ch: make(chan Command, 8)}
}

// Submit queues a command without blocking.
func (b *Bus) Submit(cmd Command) error {
	select {
	case b.ch <- cmd:
		return nil
	default:
		return ErrBusFull
	}
}

// Commands exposes the receive side for the supervisor.
func (b *Bus) Commands() <-chan Command {
	return b.ch
}

// Dispatch executes a single control command. Shutdown is the
// supervisor's to handle and is rejected here.
func (p *Pipeline) Dispatch(ctx context.Context, cmd Command) error {
	switch cmd.Kind {
	case CmdRunFetch:
		_, err := p.RunFetch(ctx, cmd.Sources)
		return err
	case CmdRunEnrich:
		_, err := p.RunEnrich(ctx)
		return err
	case CmdRunIntegrator:
		_, err := p.RunIntegrator(ctx, cmd.Integrator)
		return err
	case CmdRunConsolidate:
		_, err := p.RunConsolidate(ctx)
		return err
	case CmdReloadSources:
		return p.ReloadSources(ctx)
	default:
		return fmt.Errorf("unknown control command %q", cmd.Kind)
	}
}

// Serve consumes bus commands until ctx ends. Shutdown invokes the
// stop callback; everything else dispatches on its own goroutine so a
// long run never blocks the bus.
func (p *Pipeline) Serve(ctx context.Context, bus *Bus, stop func()) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-bus.Commands():
			if cmd.Kind == CmdShutdown {
				reply(cmd, nil)
				if stop != nil {
					stop()
				}
				continue
			}
			go func(cmd Command) {
				reply(cmd, p.Dispatch(ctx, cmd))
			}(cmd)
		}
	}
}

// reply delivers the dispatch result without ever blocking on an
// abandoned channel.
func reply(cmd Command, err error) {
	if cmd.Reply == nil {
		return
	}
	select {
	case cmd.Reply <- err:
	default:
	}
}
