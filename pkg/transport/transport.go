// Package transport defines the byte-stream boundary between the session
// core and a radio backend.
package transport

import (
	"context"
	"errors"
)

// InboxSize is the number of inbound chunks a Stream may queue before it
// starts dropping.
const InboxSize = 8

// ErrRadioUnavailable indicates the host radio stack is disabled or cannot
// be reached. It is returned by registry queries and stream opens alike.
var ErrRadioUnavailable = errors.New("transport: radio unavailable")

// Stream is a live byte stream to a single peripheral. Payloads are opaque;
// the transport imposes no framing.
type Stream interface {
	// Receive returns a read-only channel of inbound chunks. The channel is
	// never closed; consumers watch Done for stream end. Chunks reflect
	// transport delivery boundaries and carry no framing guarantees.
	//
	// Implementations must be thread safe.
	Receive() <-chan []byte

	// Send writes the buffer to the peripheral and does not return until
	// the transport has accepted all of it or an error occurs.
	//
	// Implementations must be thread safe.
	Send(ctx context.Context, buffer []byte) error

	// Done is closed when the stream has ended for any reason: peer
	// disconnect, transport failure, or Close.
	Done() <-chan struct{}

	// Err reports why the stream ended. It returns nil before Done is
	// closed and after a local Close.
	Err() error

	// Close releases the stream. Repeated calls must be idempotent.
	Close()
}

// Opener establishes streams to peripherals by address.
type Opener interface {
	// Open connects to the peripheral with the given address. The address
	// format is backend specific; for Bluetooth backends it is the MAC
	// string reported by the registry.
	Open(ctx context.Context, address string) (Stream, error)
}
