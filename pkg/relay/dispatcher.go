package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

// ErrUnknownCommand indicates a label that is not in the dispatcher's
// table. Nothing is written to the transport in that case.
var ErrUnknownCommand = errors.New("relay: unknown command")

// Sender transmits raw payloads to the peripheral. session.Manager
// satisfies it.
type Sender interface {
	Send(ctx context.Context, payload []byte) error
}

type Option func(*Dispatcher)

// WithClock substitutes the clock used by Pulse, primarily for tests.
func WithClock(clock clockwork.Clock) Option {
	return func(d *Dispatcher) { d.clock = clock }
}

// Dispatcher resolves labels against a command table and forwards the
// selected code byte. It performs no retries and reads no responses;
// sender errors pass through unchanged.
type Dispatcher struct {
	table  *Table
	sender Sender
	clock  clockwork.Clock
}

func NewDispatcher(table *Table, sender Sender, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		table:  table,
		sender: sender,
		clock:  clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Table returns the dispatcher's command table.
func (d *Dispatcher) Table() *Table {
	return d.table
}

// Set switches the labeled channel on or off with a single-byte send.
func (d *Dispatcher) Set(ctx context.Context, label string, on bool) error {
	cmd, ok := d.table.Lookup(label)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, label)
	}
	code := cmd.Off
	if on {
		code = cmd.On
	}
	return d.sender.Send(ctx, []byte{code})
}

// Pulse switches the channel on, holds it for the given duration, then
// switches it off. If ctx expires during the hold, Pulse still attempts
// the off send before returning the context error.
func (d *Dispatcher) Pulse(ctx context.Context, label string, hold time.Duration) error {
	if err := d.Set(ctx, label, true); err != nil {
		return err
	}
	select {
	case <-d.clock.After(hold):
	case <-ctx.Done():
		if err := d.Set(context.WithoutCancel(ctx), label, false); err != nil {
			return errors.Join(ctx.Err(), err)
		}
		return ctx.Err()
	}
	return d.Set(ctx, label, false)
}
