package stream

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
)

// Broadcaster reads newline-delimited chunks from a byte source on a
// background goroutine and fans them out to subscribers with full-history
// replay. Watch may be called repeatedly (once per process run); history
// accumulates across generations and is only dropped by Close.
type Broadcaster struct {
	registry *SubscriberRegistry
	logger   *slog.Logger

	// mirror, when set, additionally receives every chunk. Used to echo a
	// child's output to the daemon's own stdout/stderr. Side effect only;
	// mirror errors never affect subscribers.
	mirror io.Writer

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Broadcaster.
type Option func(*Broadcaster)

// WithMirror echoes every chunk to w in addition to broadcasting it.
func WithMirror(w io.Writer) Option {
	return func(b *Broadcaster) { b.mirror = w }
}

// NewBroadcaster creates a broadcaster with no active source.
func NewBroadcaster(logger *slog.Logger, opts ...Option) *Broadcaster {
	b := &Broadcaster{
		registry: NewSubscriberRegistry(logger),
		logger:   logger.With("component", "broadcaster"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Watch starts reading src on a background goroutine. If a previous watch is
// still active it is cancelled and fully drained first, so at most one
// reader exists at any time. Chunks read before the switch remain in the
// history; the new generation appends to it.
func (b *Broadcaster) Watch(src io.Reader) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopReader()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	b.cancel = cancel
	b.done = done

	go b.readLoop(ctx, src, done)
}

// readLoop pulls newline-delimited chunks from src until EOF or
// cancellation. A final chunk without a trailing newline is still
// broadcast. Reads are binary-safe; bytes pass through untouched. A src
// that implements io.Closer (a pipe read end) is closed when the loop ends.
func (b *Broadcaster) readLoop(ctx context.Context, src io.Reader, done chan<- struct{}) {
	defer close(done)
	defer func() {
		if c, ok := src.(io.Closer); ok {
			c.Close()
		}
	}()

	reader := bufio.NewReader(src)
	for {
		// Cooperative cancellation check between reads. A read blocked on a
		// live pipe is unblocked by the pipe closing when the child exits.
		if ctx.Err() != nil {
			return
		}

		chunk, err := reader.ReadBytes('\n')
		if len(chunk) > 0 {
			b.registry.Broadcast(chunk)
			if b.mirror != nil {
				if _, werr := b.mirror.Write(chunk); werr != nil {
					b.logger.Warn("mirror write failed", "error", werr)
				}
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				b.logger.Warn("source read failed", "error", err)
			}
			return
		}
	}
}

// Subscribe attaches a new consumer. The channel yields the entire history
// first, then live chunks, strictly in broadcast order.
func (b *Broadcaster) Subscribe() (Handle, <-chan []byte) {
	return b.registry.Add()
}

// Unsubscribe detaches a consumer and closes its channel.
func (b *Broadcaster) Unsubscribe(h Handle) {
	b.registry.Remove(h)
}

// Subscribers returns the number of attached consumers.
func (b *Broadcaster) Subscribers() int {
	return b.registry.Len()
}

// History returns all bytes broadcast so far, across every generation.
func (b *Broadcaster) History() []byte {
	return b.registry.History()
}

// Close cancels any active reader, waits for it to stop, and closes every
// subscriber channel. The broadcaster cannot be reused afterwards.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopReader()
	b.registry.Close()
}

// stopReader cancels the active reader goroutine, if any, and waits for it
// to terminate. Caller must hold b.mu.
func (b *Broadcaster) stopReader() {
	if b.cancel == nil {
		return
	}
	b.cancel()
	<-b.done
	b.cancel = nil
	b.done = nil
}
