// Package ble provides a transport.Stream over a Bluetooth Low Energy
// serial service (Nordic UART). The radio library sits behind the Adapter
// interface so backends can be swapped or faked in tests.
package ble

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/relaylink/relayctl/internal/log"
	"github.com/relaylink/relayctl/pkg/transport"
)

const (
	defaultMTU    = 23
	maxBLEMTUSize = 512 + 3

	// Nordic UART Service. RX is the peripheral's receive characteristic
	// (host writes), TX is its transmit characteristic (host subscribes).
	SerialServiceUUID = "6e400001-b5a3-f393-e0a9-e50e24dcca9e"
	RxUUID            = "6e400002-b5a3-f393-e0a9-e50e24dcca9e"
	TxUUID            = "6e400003-b5a3-f393-e0a9-e50e24dcca9e"
)

// ErrConnectionLost is reported by Stream.Err when the peripheral drops the
// link without a local Close.
var ErrConnectionLost = fmt.Errorf("ble: connection lost")

// Adapter abstracts the host radio used to reach peripherals.
type Adapter interface {
	Dial(ctx context.Context, address string) (Peer, error)
	Close() error
}

// Peer is a connected peripheral.
type Peer interface {
	Service(uuid string) (Service, error)
	// Disconnected is closed when the link drops, locally or remotely.
	Disconnected() <-chan struct{}
	Close() error
}

// Service exposes the characteristics of one GATT service.
type Service interface {
	// Notify subscribes to a characteristic; callback runs on the radio
	// library's delivery goroutine.
	Notify(uuid string, callback func(buf []byte)) error
	Writer(uuid string) (Writer, error)
}

// Writer writes to a single characteristic.
type Writer interface {
	io.Writer
	// MTU negotiates the link MTU, requesting rxMTU, and returns the
	// usable transmit size.
	MTU(rxMTU int) (txMTU int, err error)
}

// Opener opens serial streams over an Adapter. It satisfies transport.Opener.
type Opener struct {
	adapter Adapter
}

func NewOpener(adapter Adapter) *Opener {
	return &Opener{adapter: adapter}
}

// Open dials the peripheral and wires up the serial service. The returned
// stream owns the link; closing it releases the connection.
func (o *Opener) Open(ctx context.Context, address string) (transport.Stream, error) {
	peer, err := o.adapter.Dial(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("ble: failed to dial %s: %w", address, err)
	}

	service, err := peer.Service(SerialServiceUUID)
	if err != nil {
		peer.Close()
		return nil, err
	}

	writer, err := service.Writer(RxUUID)
	if err != nil {
		peer.Close()
		return nil, err
	}

	blockLength, err := writer.MTU(maxBLEMTUSize)
	if err != nil {
		log.Warning("ble: failed to exchange MTU: %s", err)
		blockLength = defaultMTU - 3 // ATT header
	} else {
		blockLength -= 3
	}

	s := &Stream{
		address:     address,
		peer:        peer,
		writer:      writer,
		blockLength: blockLength,
		inbox:       make(chan []byte, transport.InboxSize),
		done:        make(chan struct{}),
		closed:      make(chan struct{}),
	}

	if err := service.Notify(TxUUID, s.rx); err != nil {
		peer.Close()
		return nil, fmt.Errorf("ble: failed to subscribe: %w", err)
	}

	go s.watch()
	log.Info("Connected to %s", address)
	return s, nil
}

// Stream is a live serial link to one peripheral.
type Stream struct {
	address     string
	peer        Peer
	writer      Writer
	blockLength int

	writeLock sync.Mutex

	inbox chan []byte

	closeOnce sync.Once
	closed    chan struct{} // local Close requested
	done      chan struct{}

	errLock sync.Mutex
	err     error
}

func (s *Stream) Receive() <-chan []byte {
	return s.inbox
}

// Send writes the buffer in MTU-sized blocks. Calls are serialized so
// concurrent senders cannot interleave bytes on the link.
func (s *Stream) Send(ctx context.Context, buffer []byte) error {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	select {
	case <-s.done:
		return ErrConnectionLost
	default:
	}

	log.Debug("TX: %02x", buffer)
	out := buffer
	blockLength := s.blockLength
	for len(out) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		if blockLength > len(out) {
			blockLength = len(out)
		}
		n, err := s.writer.Write(out[:blockLength])
		if err != nil {
			return err
		} else if n != blockLength {
			return fmt.Errorf("ble: failed to write %d bytes", blockLength)
		}
		out = out[blockLength:]
	}
	return nil
}

func (s *Stream) Done() <-chan struct{} {
	return s.done
}

func (s *Stream) Err() error {
	s.errLock.Lock()
	defer s.errLock.Unlock()
	return s.err
}

func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		if err := s.peer.Close(); err != nil {
			log.Warning("ble: failed to close peer: %s", err)
		}
	})
	<-s.done
}

// rx runs on the radio library's notification goroutine. If the consumer
// is not keeping up the oldest queued chunk is dropped so delivery never
// blocks the radio.
func (s *Stream) rx(p []byte) {
	buffer := make([]byte, len(p))
	copy(buffer, p)
	log.Debug("RX: %02x", buffer)
	for {
		select {
		case s.inbox <- buffer:
			return
		default:
		}
		select {
		case <-s.inbox:
		default:
		}
	}
}

func (s *Stream) watch() {
	select {
	case <-s.peer.Disconnected():
		select {
		case <-s.closed:
			// Local close; not an error.
		default:
			s.errLock.Lock()
			s.err = ErrConnectionLost
			s.errLock.Unlock()
			log.Warning("ble: lost connection to %s", s.address)
		}
	case <-s.closed:
	}
	close(s.done)
}
