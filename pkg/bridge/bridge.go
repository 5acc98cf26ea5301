// Package bridge turns a push-style generation call into a pull-style stream
// of fragments.
//
// A generation engine streams by calling a handler for every fragment while a
// single blocking call runs. Start runs that call on a dedicated worker
// goroutine and hands fragments to the consumer over a bounded channel, so
// the request handler can pull fragments one at a time:
//
//	stream := bridge.Start(ctx, produce)
//	defer stream.Close()
//	for {
//		fragment, ok := stream.Next()
//		if !ok {
//			break
//		}
//		// write fragment
//	}
//	if err := stream.Err(); err != nil {
//		// generation failed
//	}
//
// The worker is the only writer and the consumer the only reader of the
// channel. Termination is always explicit: the worker records its result and
// then closes the channel, so an empty stream and a failed stream are never
// confused.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/chatserve/pkg/engine"
)

// DefaultBuffer is the default fragment channel capacity.
const DefaultBuffer = 16

var (
	// ErrProducerPanic is recorded when the generation call panics.
	ErrProducerPanic = errors.New("generation worker panicked")

	// ErrStreamClosed is returned by emit once the generation call has returned.
	ErrStreamClosed = errors.New("fragment emitted after stream closed")
)

// Producer is the blocking generation call run by the worker. It must push
// fragments through emit in generation order and return once generation is
// complete. emit must not be called after Producer returns.
type Producer func(ctx context.Context, emit engine.StreamHandler) error

type options struct {
	buffer int
	logger *zap.Logger
}

// Option configures a Stream.
type Option func(*options)

// WithBuffer sets the fragment channel capacity. Values below 1 fall back to
// DefaultBuffer.
func WithBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.buffer = n
		}
	}
}

// WithLogger sets the logger used for worker lifecycle events.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Stream is the consumer side of one generation.
type Stream struct {
	fragments chan string
	done      chan struct{}
	cancel    context.CancelFunc
	closeOnce sync.Once
	logger    *zap.Logger

	// Written by the worker before fragments is closed
	err error

	// sendMu makes the finished check and the send in emit atomic with
	// respect to closing fragments.
	sendMu   sync.Mutex
	finished bool
	emitted  int
}

// Start launches the worker running produce and returns the stream it feeds.
// Cancelling ctx, or calling Close, cancels the context passed to produce.
func Start(ctx context.Context, produce Producer, opts ...Option) *Stream {
	o := options{buffer: DefaultBuffer, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Stream{
		fragments: make(chan string, o.buffer),
		done:      make(chan struct{}),
		cancel:    cancel,
		logger:    o.logger,
	}

	go s.run(ctx, produce)

	return s
}

func (s *Stream) run(ctx context.Context, produce Producer) {
	startTime := time.Now()

	defer func() {
		if r := recover(); r != nil {
			s.err = fmt.Errorf("%w: %v", ErrProducerPanic, r)
		}

		// Unblocks any emit still waiting on a full channel so the lock
		// below can be taken.
		s.cancel()

		s.sendMu.Lock()
		s.finished = true
		emitted := s.emitted
		close(s.fragments)
		s.sendMu.Unlock()

		s.logger.Debug("generation worker finished",
			zap.Int("fragments", emitted),
			zap.Duration("duration", time.Since(startTime)),
			zap.Error(s.err),
		)
		close(s.done)
	}()

	s.err = produce(ctx, s.emitter(ctx))
}

func (s *Stream) emitter(ctx context.Context) engine.StreamHandler {
	return func(fragment string) error {
		if strings.TrimSpace(fragment) == "" {
			return nil
		}

		s.sendMu.Lock()
		defer s.sendMu.Unlock()

		if s.finished {
			return ErrStreamClosed
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		select {
		case s.fragments <- fragment:
			s.emitted++
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Next blocks until the next fragment is available and returns it. It
// returns false once the worker has finished and every fragment was consumed.
func (s *Stream) Next() (string, bool) {
	fragment, ok := <-s.fragments
	return fragment, ok
}

// Err returns the error the generation ended with, or nil if it completed
// normally. Call it after Next returned false; it blocks until the worker
// has exited.
func (s *Stream) Err() error {
	<-s.done
	return s.err
}

// Close cancels the generation if it is still running and waits for the
// worker to exit. It is safe to call more than once and after completion.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		for range s.fragments {
			// discard fragments buffered for an abandoned consumer
		}
		<-s.done
	})
}
