package bridge_test

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatserve/pkg/bridge"
	"github.com/papercomputeco/chatserve/pkg/engine"
)

// emitAll returns a Producer that pushes the given fragments and then returns err.
func emitAll(err error, fragments ...string) bridge.Producer {
	return func(ctx context.Context, emit engine.StreamHandler) error {
		for _, f := range fragments {
			if e := emit(f); e != nil {
				return e
			}
		}
		return err
	}
}

// drain pulls every fragment from the stream.
func drain(stream *bridge.Stream) []string {
	var out []string
	for {
		fragment, ok := stream.Next()
		if !ok {
			return out
		}
		out = append(out, fragment)
	}
}

var _ = Describe("Stream", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Describe("delivering fragments", func() {
		It("preserves generation order", func() {
			stream := bridge.Start(ctx, emitAll(nil, "a", "b", "c", "d"))
			defer stream.Close()

			Expect(drain(stream)).To(Equal([]string{"a", "b", "c", "d"}))
			Expect(stream.Err()).NotTo(HaveOccurred())
		})

		It("suppresses empty and whitespace-only fragments", func() {
			stream := bridge.Start(ctx, emitAll(nil, "hel", "", "  ", "\n\t", "lo", " world"))
			defer stream.Close()

			Expect(drain(stream)).To(Equal([]string{"hel", "lo", " world"}))
		})

		It("delivers the last fragment before terminating", func() {
			stream := bridge.Start(ctx, emitAll(nil, "only"))
			defer stream.Close()

			fragment, ok := stream.Next()
			Expect(ok).To(BeTrue())
			Expect(fragment).To(Equal("only"))

			_, ok = stream.Next()
			Expect(ok).To(BeFalse())
		})

		It("terminates cleanly when nothing was generated", func() {
			stream := bridge.Start(ctx, emitAll(nil))
			defer stream.Close()

			Expect(drain(stream)).To(BeEmpty())
			Expect(stream.Err()).NotTo(HaveOccurred())
		})
	})

	Describe("bounded handoff", func() {
		It("blocks the producer once the buffer is full", func() {
			var accepted atomic.Int32
			stream := bridge.Start(ctx, func(ctx context.Context, emit engine.StreamHandler) error {
				for _, f := range []string{"a", "b", "c"} {
					if err := emit(f); err != nil {
						return err
					}
					accepted.Add(1)
				}
				return nil
			}, bridge.WithBuffer(1))
			defer stream.Close()

			Eventually(accepted.Load).Should(Equal(int32(1)))
			Consistently(accepted.Load, 50*time.Millisecond).Should(Equal(int32(1)))

			Expect(drain(stream)).To(Equal([]string{"a", "b", "c"}))
			Expect(accepted.Load()).To(Equal(int32(3)))
		})
	})

	Describe("failures", func() {
		It("surfaces a generation error after the fragments produced before it", func() {
			boom := errors.New("boom")
			stream := bridge.Start(ctx, emitAll(boom, "partial"))
			defer stream.Close()

			Expect(drain(stream)).To(Equal([]string{"partial"}))
			Expect(stream.Err()).To(MatchError(boom))
		})

		It("converts a producer panic into an error", func() {
			stream := bridge.Start(ctx, func(ctx context.Context, emit engine.StreamHandler) error {
				_ = emit("before")
				panic("engine exploded")
			})
			defer stream.Close()

			Expect(drain(stream)).To(Equal([]string{"before"}))
			Expect(stream.Err()).To(MatchError(bridge.ErrProducerPanic))
			Expect(stream.Err().Error()).To(ContainSubstring("engine exploded"))
		})

		It("rejects fragments emitted after the producer returned", func() {
			var leaked engine.StreamHandler
			stream := bridge.Start(ctx, func(ctx context.Context, emit engine.StreamHandler) error {
				leaked = emit
				return nil
			})

			Expect(drain(stream)).To(BeEmpty())
			Expect(stream.Err()).NotTo(HaveOccurred())
			Expect(leaked("late")).To(MatchError(bridge.ErrStreamClosed))
			stream.Close()
		})

		It("never panics when emits race with the producer returning", func() {
			const emitters = 64
			results := make(chan error, emitters)

			for round := 0; round < 50; round++ {
				stream := bridge.Start(ctx, func(ctx context.Context, emit engine.StreamHandler) error {
					for i := 0; i < emitters; i++ {
						go func() { results <- emit("stray") }()
					}
					return nil
				}, bridge.WithBuffer(1))

				delivered := len(drain(stream))
				Expect(stream.Err()).NotTo(HaveOccurred())

				accepted := 0
				for i := 0; i < emitters; i++ {
					var err error
					Eventually(results).Should(Receive(&err))
					switch {
					case err == nil:
						accepted++
					case errors.Is(err, bridge.ErrStreamClosed), errors.Is(err, context.Canceled):
					default:
						Fail("unexpected emit error: " + err.Error())
					}
				}
				Expect(accepted).To(Equal(delivered))
				stream.Close()
			}
		})
	})

	Describe("cancellation", func() {
		endless := func(ctx context.Context, emit engine.StreamHandler) error {
			for {
				if err := emit("tick"); err != nil {
					return err
				}
			}
		}

		It("stops the worker when the consumer closes early", func() {
			stream := bridge.Start(ctx, endless, bridge.WithBuffer(2))

			fragment, ok := stream.Next()
			Expect(ok).To(BeTrue())
			Expect(fragment).To(Equal("tick"))

			done := make(chan struct{})
			go func() {
				defer close(done)
				stream.Close()
			}()
			Eventually(done).Should(BeClosed())

			Expect(stream.Err()).To(MatchError(context.Canceled))
		})

		It("stops the worker when the parent context is cancelled", func() {
			parent, cancel := context.WithCancel(ctx)
			stream := bridge.Start(parent, endless)
			defer stream.Close()

			_, ok := stream.Next()
			Expect(ok).To(BeTrue())
			cancel()

			drained := make(chan []string)
			go func() { drained <- drain(stream) }()
			Eventually(drained).Should(Receive())
			Expect(stream.Err()).To(MatchError(context.Canceled))
		})

		It("is safe to close more than once", func() {
			stream := bridge.Start(ctx, emitAll(nil, "a"))
			stream.Close()
			stream.Close()

			_, ok := stream.Next()
			Expect(ok).To(BeFalse())
		})
	})
})
