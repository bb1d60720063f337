// Package session owns the single byte-stream session to a peripheral.
//
// A Manager holds at most one live stream. Connect tears down any prior
// session before dialing, Send refuses to write unless the session is
// Connected, and involuntary disconnection (peer hangup, radio powered
// off) surfaces on the Events channel rather than as an error return.
//
// Events and Data are independent bounded channels. When a consumer is
// slow or absent the oldest queued item is dropped so publishing never
// blocks the session; items that survive are delivered in publish order.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/relaylink/relayctl/internal/log"
	"github.com/relaylink/relayctl/pkg/transport"
)

// Status describes the session lifecycle.
type Status int

const (
	StatusIdle Status = iota
	StatusConnecting
	StatusConnected
	StatusDisconnected
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Event is published once per status transition. Err is set when the
// transition was caused by a failure: the connect error for Failed, the
// stream or radio error for an involuntary Disconnected.
type Event struct {
	Status Status
	Err    error
}

// RadioMonitor reports host radio power transitions. bluez.Monitor
// satisfies it on Linux.
type RadioMonitor interface {
	Changes() <-chan bool
}

// DefaultConnectTimeout bounds Connect when the caller's context carries no
// earlier deadline.
const DefaultConnectTimeout = 15 * time.Second

const (
	eventBufferSize = 16
	dataBufferSize  = 8
)

type Option func(*Manager)

// WithConnectTimeout overrides DefaultConnectTimeout.
func WithConnectTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.connectTimeout = d
		}
	}
}

// WithClock substitutes the clock used for the connect timeout. Tests pass
// a fake clock.
func WithClock(clock clockwork.Clock) Option {
	return func(m *Manager) { m.clock = clock }
}

// WithRadioMonitor makes the manager force-disconnect when the host radio
// is powered off underneath a live session.
func WithRadioMonitor(monitor RadioMonitor) Option {
	return func(m *Manager) { m.monitor = monitor }
}

// Manager owns at most one live session. All methods are safe for
// concurrent use.
type Manager struct {
	opener         transport.Opener
	clock          clockwork.Clock
	connectTimeout time.Duration
	monitor        RadioMonitor

	mu     sync.Mutex
	status Status
	stream transport.Stream
	gen    int // incremented on every teardown; stale goroutines check it
	cancel context.CancelFunc

	sendLock sync.Mutex

	events chan Event
	data   chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func NewManager(opener transport.Opener, opts ...Option) *Manager {
	m := &Manager{
		opener:         opener,
		clock:          clockwork.NewRealClock(),
		connectTimeout: DefaultConnectTimeout,
		status:         StatusIdle,
		events:         make(chan Event, eventBufferSize),
		data:           make(chan []byte, dataBufferSize),
		closed:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.monitor != nil {
		go m.watchRadio()
	}
	return m
}

// Status returns the current session status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Events returns the status-transition channel. See the package comment
// for the buffering policy.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// Data returns the inbound-chunk channel. Payloads are opaque to this
// layer.
func (m *Manager) Data() <-chan []byte {
	return m.data
}

// Connect establishes a session with the peripheral at address. Any prior
// session is torn down first. The attempt is bounded by the connect
// timeout and by ctx, and fails promptly if Disconnect is called while it
// is in flight. On failure the session is left Failed and the returned
// error is a *ConnectError.
func (m *Manager) Connect(ctx context.Context, address string) error {
	m.mu.Lock()
	select {
	case <-m.closed:
		m.mu.Unlock()
		return ErrClosed
	default:
	}
	m.releaseLocked(nil)
	m.gen++
	gen := m.gen
	dialCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.setStatusLocked(StatusConnecting, nil)
	m.mu.Unlock()
	defer cancel()

	stream, err := m.open(dialCtx, address)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		// Disconnect or a newer Connect superseded this attempt.
		if stream != nil {
			stream.Close()
		}
		return &ConnectError{Reason: context.Canceled}
	}
	m.cancel = nil
	if err != nil {
		m.setStatusLocked(StatusFailed, err)
		return &ConnectError{Reason: err}
	}
	m.stream = stream
	m.setStatusLocked(StatusConnected, nil)
	go m.consume(stream, gen)
	return nil
}

// open dials with a bounded timeout. The opener is required to honor
// context cancelation; if it returns late anyway, the stray stream is
// closed in the background.
func (m *Manager) open(ctx context.Context, address string) (transport.Stream, error) {
	type result struct {
		stream transport.Stream
		err    error
	}
	results := make(chan result, 1)
	dialCtx, cancel := context.WithCancel(ctx)
	go func() {
		stream, err := m.opener.Open(dialCtx, address)
		results <- result{stream, err}
	}()

	discard := func() {
		cancel()
		go func() {
			if r := <-results; r.stream != nil {
				r.stream.Close()
			}
		}()
	}

	select {
	case r := <-results:
		cancel()
		return r.stream, r.err
	case <-m.clock.After(m.connectTimeout):
		discard()
		return nil, context.DeadlineExceeded
	case <-ctx.Done():
		discard()
		return nil, ctx.Err()
	}
}

// Send writes payload to the live stream. Concurrent calls are serialized
// so bytes from separate sends cannot interleave on the link.
func (m *Manager) Send(ctx context.Context, payload []byte) error {
	m.mu.Lock()
	stream := m.stream
	connected := m.status == StatusConnected
	m.mu.Unlock()
	if !connected || stream == nil {
		return ErrNotConnected
	}

	m.sendLock.Lock()
	defer m.sendLock.Unlock()
	if err := stream.Send(ctx, payload); err != nil {
		return &WriteError{Err: err}
	}
	return nil
}

// Disconnect releases the current session, if any. It is idempotent, and
// safe to call while a Connect or Send is in flight; those calls fail
// promptly.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseLocked(nil)
}

// Close shuts the manager down for good.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.closed)
	})
	m.Disconnect()
}

// releaseLocked tears down any live or pending session and publishes at
// most one Disconnected transition. Callers hold m.mu.
func (m *Manager) releaseLocked(reason error) {
	m.gen++
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.stream != nil {
		m.stream.Close()
		m.stream = nil
	}
	switch m.status {
	case StatusConnecting, StatusConnected:
		m.setStatusLocked(StatusDisconnected, reason)
	}
}

// consume forwards inbound chunks until the stream ends.
func (m *Manager) consume(stream transport.Stream, gen int) {
	for {
		select {
		case chunk := <-stream.Receive():
			m.publishData(chunk)
		case <-stream.Done():
			m.streamEnded(stream, gen)
			return
		}
	}
}

// streamEnded handles the transport reporting end-of-stream on its own.
func (m *Manager) streamEnded(stream transport.Stream, gen int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen || m.stream != stream {
		// Already torn down by Disconnect or a newer Connect.
		return
	}
	m.stream = nil
	m.setStatusLocked(StatusDisconnected, stream.Err())
}

func (m *Manager) watchRadio() {
	for {
		select {
		case <-m.closed:
			return
		case powered, ok := <-m.monitor.Changes():
			if !ok {
				return
			}
			if powered {
				continue
			}
			m.mu.Lock()
			if m.status == StatusConnecting || m.status == StatusConnected {
				log.Warning("session: radio powered off, releasing session")
				m.releaseLocked(transport.ErrRadioUnavailable)
			}
			m.mu.Unlock()
		}
	}
}

func (m *Manager) setStatusLocked(status Status, err error) {
	if m.status == status {
		return
	}
	m.status = status
	if err != nil {
		log.Info("session: %s (%s)", status, err)
	} else {
		log.Info("session: %s", status)
	}
	publish(m.events, Event{Status: status, Err: err})
}

func (m *Manager) publishData(chunk []byte) {
	publish(m.data, chunk)
}

// publish enqueues without blocking, dropping the oldest queued item when
// the buffer is full.
func publish[T any](ch chan T, item T) {
	for {
		select {
		case ch <- item:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
