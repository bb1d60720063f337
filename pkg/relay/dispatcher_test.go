package relay_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/relaylink/relayctl/pkg/relay"
)

type recordingSender struct {
	mu   sync.Mutex
	sent [][]byte
	err  error
}

func (s *recordingSender) Send(_ context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	buffer := make([]byte, len(payload))
	copy(buffer, payload)
	s.sent = append(s.sent, buffer)
	return nil
}

func (s *recordingSender) payloads() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte{}, s.sent...)
}

var _ = Describe("Dispatcher", func() {
	var sender *recordingSender
	var dispatcher *relay.Dispatcher

	BeforeEach(func() {
		sender = &recordingSender{}
		dispatcher = relay.NewDispatcher(relay.DefaultTable(), sender)
	})

	Describe("Set", func() {
		It("sends the on code byte", func() {
			Expect(dispatcher.Set(context.Background(), "relay2", true)).To(Succeed())
			Expect(sender.payloads()).To(Equal([][]byte{{'B'}}))
		})

		It("sends the off code byte", func() {
			Expect(dispatcher.Set(context.Background(), "relay2", false)).To(Succeed())
			Expect(sender.payloads()).To(Equal([][]byte{{'b'}}))
		})

		It("rejects unknown labels without touching the transport", func() {
			err := dispatcher.Set(context.Background(), "relay9", true)
			Expect(errors.Is(err, relay.ErrUnknownCommand)).To(BeTrue())
			Expect(sender.payloads()).To(BeEmpty())
		})

		It("passes sender errors through unchanged", func() {
			sendErr := errors.New("stream torn")
			sender.err = sendErr
			err := dispatcher.Set(context.Background(), "relay1", true)
			Expect(errors.Is(err, sendErr)).To(BeTrue())
		})
	})

	Describe("Pulse", func() {
		It("sends on, waits the hold, then sends off", func() {
			clock := clockwork.NewFakeClock()
			dispatcher = relay.NewDispatcher(relay.DefaultTable(), sender, relay.WithClock(clock))

			done := make(chan error, 1)
			go func() {
				done <- dispatcher.Pulse(context.Background(), "relay1", time.Second)
			}()

			Eventually(sender.payloads).Should(Equal([][]byte{{'A'}}))
			clock.BlockUntil(1)
			clock.Advance(time.Second)

			Eventually(done).Should(Receive(BeNil()))
			Expect(sender.payloads()).To(Equal([][]byte{{'A'}, {'a'}}))
		})

		It("releases the relay when the context expires mid-hold", func() {
			clock := clockwork.NewFakeClock()
			dispatcher = relay.NewDispatcher(relay.DefaultTable(), sender, relay.WithClock(clock))

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() {
				done <- dispatcher.Pulse(ctx, "relay1", time.Minute)
			}()

			Eventually(sender.payloads).Should(Equal([][]byte{{'A'}}))
			cancel()

			Eventually(done).Should(Receive(MatchError(context.Canceled)))
			Expect(sender.payloads()).To(Equal([][]byte{{'A'}, {'a'}}))
		})
	})
})
